package anomaly_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/okian/worksight/internal/domain/anomaly"
	"github.com/okian/worksight/internal/domain/baseline"
	"github.com/okian/worksight/internal/domain/features"
	"github.com/okian/worksight/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStaticMode(t *testing.T) {
	Convey("Given a model with an empty baseline", t, func() {
		ctx := context.Background()
		m := anomaly.New(baseline.Open(""))

		Convey("When features are unremarkable", func() {
			for _, fv := range []model.FeatureVector{
				{model.FeatureWordCount: 2, model.FeatureAlphaRatio: 0.2, model.FeatureDistractionHits: 1},
				{model.FeatureWordCount: 50, model.FeatureAlphaRatio: 0.9, model.FeatureDistractionHits: 0},
				{model.FeatureWordCount: 3},
			} {
				res := m.Evaluate(ctx, fv)

				Convey("Then the score is exactly 0.1 for "+describe(fv), func() {
					So(res.Score, ShouldEqual, 0.1)
					So(res.Label, ShouldEqual, model.LabelNormal)
					So(res.Mode, ShouldEqual, model.ModeStatic)
					So(res.Explanation.Triggers, ShouldBeEmpty)
				})
			}
		})

		Convey("When the screen shows three distractions", func() {
			res := m.Evaluate(ctx, model.FeatureVector{
				model.FeatureWordCount:       3,
				model.FeatureAlphaRatio:      0.9,
				model.FeatureDistractionHits: 3,
			})

			Convey("Then the score is 0.4 and suspicious", func() {
				So(res.Score, ShouldEqual, 0.4)
				So(res.Label, ShouldEqual, model.LabelSuspicious)
				So(res.Explanation.Triggers, ShouldResemble, []string{anomaly.TriggerMultipleDistractions})
			})
		})

		Convey("When the text is empty", func() {
			res := m.Evaluate(ctx, features.Extract(""))

			Convey("Then the score is 0.8 and critical", func() {
				So(res.Score, ShouldEqual, 0.8)
				So(res.Label, ShouldEqual, model.LabelCritical)
				So(res.Explanation.Triggers, ShouldResemble, []string{
					anomaly.TriggerLowWordCount, anomaly.TriggerLowAlphaRatio,
				})
			})
		})

		Convey("When every trigger fires", func() {
			res := m.Evaluate(ctx, model.FeatureVector{
				model.FeatureWordCount:       1,
				model.FeatureAlphaRatio:      0.1,
				model.FeatureDistractionHits: 2,
			})

			Convey("Then the score is clamped to 1", func() {
				So(res.Score, ShouldEqual, 1.0)
			})
		})
	})
}

func TestStatisticalMode(t *testing.T) {
	Convey("Given a baseline that reaches maturity", t, func() {
		ctx := context.Background()
		store := baseline.Open("")
		var events []string
		m := anomaly.New(store,
			anomaly.WithMinBaselineSamples(4),
			anomaly.WithMaturityHook(func(feature string, _ int64) { events = append(events, feature) }),
		)

		for _, wc := range []float64{8, 10, 12} {
			So(m.Mode(), ShouldEqual, model.ModeStatic)
			So(store.Update(model.FeatureVector{model.FeatureWordCount: wc}), ShouldBeNil)
		}
		So(m.Evaluate(ctx, model.FeatureVector{model.FeatureWordCount: 10}).Mode, ShouldEqual, model.ModeStatic)
		So(store.Update(model.FeatureVector{model.FeatureWordCount: 10}), ShouldBeNil)

		Convey("When the next observation is scored", func() {
			// mean 10, sample std sqrt(8/3)
			res := m.Evaluate(ctx, model.FeatureVector{model.FeatureWordCount: 10 + 3*1.632993161855452})

			Convey("Then it switches mode and emits the transition once", func() {
				So(res.Mode, ShouldEqual, model.ModeStatistical)
				So(m.Mode(), ShouldEqual, model.ModeStatistical)
				m.Evaluate(ctx, model.FeatureVector{model.FeatureWordCount: 10})
				So(events, ShouldResemble, []string{model.FeatureWordCount})
			})

			Convey("Then a three sigma deviation scores 1.0", func() {
				So(res.Score, ShouldEqual, 1.0)
				So(res.Label, ShouldEqual, model.LabelCritical)
				So(*res.Explanation.AvgZ, ShouldEqual, 3.0)
				So(res.Explanation.FeatureZScores[model.FeatureWordCount], ShouldEqual, 3.0)
			})
		})

		Convey("When features without statistics are scored", func() {
			m.Evaluate(ctx, model.FeatureVector{})
			res := m.Evaluate(ctx, model.FeatureVector{model.FeatureLineCount: 99})

			Convey("Then the score is zero and mode stays statistical", func() {
				So(res.Score, ShouldEqual, 0)
				So(res.Mode, ShouldEqual, model.ModeStatistical)
				So(res.Explanation.AvgZ, ShouldBeNil)
			})
		})

		Convey("When a value sits on the mean", func() {
			res := m.Evaluate(ctx, model.FeatureVector{
				model.FeatureWordCount:  10,
				model.FeatureAlphaRatio: 0.5, // no stats yet, contributes z=0
			})

			Convey("Then it is normal", func() {
				So(res.Score, ShouldEqual, 0)
				So(res.Label, ShouldEqual, model.LabelNormal)
				So(res.Explanation.FeatureZScores, ShouldHaveLength, 2)
			})
		})
	})
}

func TestLabel(t *testing.T) {
	Convey("Label thresholds are inclusive", t, func() {
		So(anomaly.Label(0.75), ShouldEqual, model.LabelCritical)
		So(anomaly.Label(0.7499), ShouldEqual, model.LabelSuspicious)
		So(anomaly.Label(0.4), ShouldEqual, model.LabelSuspicious)
		So(anomaly.Label(0.399), ShouldEqual, model.LabelNormal)
		So(anomaly.Label(0), ShouldEqual, model.LabelNormal)
	})
}

func describe(fv model.FeatureVector) string {
	return fmt.Sprintf("%v", map[string]float64(fv))
}
