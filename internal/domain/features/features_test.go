package features_test

import (
	"testing"

	"github.com/okian/worksight/internal/domain/features"
	"github.com/okian/worksight/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRedact(t *testing.T) {
	Convey("Given text with personal data", t, func() {
		text := "  mail jane.doe@example.com about ticket 48213, room 12  "

		Convey("When it is redacted", func() {
			out := features.Redact(text)

			Convey("Then emails and long numbers are masked and whitespace trimmed", func() {
				So(out, ShouldEqual, "mail [EMAIL] about ticket [NUMBER], room 12")
			})
		})

		Convey("When numbers sit next to each other or use other scripts", func() {
			So(features.Redact("123 456,789"), ShouldEqual, "[NUMBER] [NUMBER],[NUMBER]")
			So(features.Redact("order ١٢٣٤"), ShouldEqual, "order [NUMBER]")
		})

		Convey("When digits are part of a larger word", func() {
			So(features.Redact("build v1234x"), ShouldEqual, "build v1234x")
			So(features.Redact("café123 and é4567"), ShouldEqual, "café123 and é4567")
			So(features.Redact("id_9999 or 9999_x"), ShouldEqual, "id_9999 or 9999_x")
		})
	})
}

func TestExtract(t *testing.T) {
	Convey("Given OCR text from a work screen", t, func() {
		text := "JIRA ticket review\n\n  Deploy the build  \nwatching YouTube"
		fv := features.Extract(text)

		Convey("Then tokens are counted case-insensitively", func() {
			So(fv[model.FeatureWordCount], ShouldEqual, 8)
			So(fv[model.FeatureFocusHits], ShouldEqual, 5)
			So(fv[model.FeatureDistractionHits], ShouldEqual, 1)
		})

		Convey("Then blank lines are not counted", func() {
			So(fv[model.FeatureLineCount], ShouldEqual, 3)
		})

		Convey("Then alpha ratio is within bounds and rounded", func() {
			ratio := fv[model.FeatureAlphaRatio]
			So(ratio, ShouldBeGreaterThan, 0.7)
			So(ratio, ShouldBeLessThan, 1.0)
			So(ratio, ShouldEqual, model.Round(ratio, 4))
		})
	})

	Convey("Given empty text", t, func() {
		fv := features.Extract("")

		Convey("Then every feature is zero", func() {
			So(fv, ShouldHaveLength, 5)
			for _, v := range fv {
				So(v, ShouldEqual, 0)
			}
		})
	})

	Convey("Given non-latin text", t, func() {
		fv := features.Extract("código revisión")

		Convey("Then letters outside ASCII still count", func() {
			So(fv[model.FeatureWordCount], ShouldEqual, 2)
			So(fv[model.FeatureAlphaRatio], ShouldEqual, model.Round(14.0/15.0, 4))
		})
	})
}
