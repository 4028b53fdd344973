package pipeline_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/worksight/internal/domain/anomaly"
	"github.com/okian/worksight/internal/domain/baseline"
	"github.com/okian/worksight/internal/domain/model"
	"github.com/okian/worksight/internal/pipeline"
	. "github.com/smartystreets/goconvey/convey"
)

type ocrFunc func(ctx context.Context, ref string) (string, error)

func (f ocrFunc) ExtractText(ctx context.Context, ref string) (string, error) { return f(ctx, ref) }

func textOCR(text string) ocrFunc {
	return func(context.Context, string) (string, error) { return text, nil }
}

type failingBaseline struct{}

func (failingBaseline) Update(model.FeatureVector) error { return errors.New("disk full") }

// recorder logs the order in which scoring and baseline updates happen.
type recorder struct {
	calls []string
	store *baseline.Store
	model *anomaly.Model
}

func (r *recorder) Evaluate(ctx context.Context, fv model.FeatureVector) anomaly.Result {
	r.calls = append(r.calls, fmt.Sprintf("evaluate:%d", r.store.Count(model.FeatureWordCount)))
	return r.model.Evaluate(ctx, fv)
}

func (r *recorder) Update(fv model.FeatureVector) error {
	r.calls = append(r.calls, "update")
	return r.store.Update(fv)
}

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shot.png")
	if err := os.WriteFile(path, []byte("png"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func newOrchestrator(ocr pipeline.TextExtractor, opts ...pipeline.Option) (*pipeline.Orchestrator, *baseline.Store) {
	store := baseline.Open("")
	return pipeline.New(ocr, anomaly.New(store), store, opts...), store
}

func TestOrchestrator_Process(t *testing.T) {
	Convey("Given an orchestrator", t, func() {
		ctx := context.Background()
		img := writeImage(t)
		at := time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)

		Convey("When OCR returns three distraction words", func() {
			o, store := newOrchestrator(textOCR("youtube netflix game"),
				pipeline.WithFeatureVersion("v7"), pipeline.WithModel("m", "2.0"))
			m := o.Process(ctx, model.Capture{Ref: img, CapturedAt: at})

			Convey("Then the metric is suspicious in static mode", func() {
				So(m.PipelineStatus, ShouldEqual, model.StatusOK)
				So(m.ErrorCode, ShouldBeNil)
				So(m.AnomalyScore, ShouldEqual, 0.4)
				So(m.AnomalyLabel, ShouldEqual, model.LabelSuspicious)
				So(*m.AnomalyMode, ShouldEqual, "static")
				So(m.Features[model.FeatureDistractionHits], ShouldEqual, 3)
				So(m.ProductivityScore, ShouldEqual, 20.0)
			})

			Convey("Then identity fields are stamped", func() {
				So(m.SourceType, ShouldEqual, model.SourceScreenshot)
				So(m.SourceRef, ShouldEqual, img)
				So(m.AgentTimestamp, ShouldEqual, at)
				So(m.FeatureVersion, ShouldEqual, "v7")
				So(m.ModelInfo.Name, ShouldEqual, "m")
				So(m.ModelInfo.Version, ShouldEqual, "2.0")
				So(m.ModelInfo.LatencyMS, ShouldBeGreaterThanOrEqualTo, 0)
			})

			Convey("Then the baseline absorbed the observation", func() {
				So(store.Count(model.FeatureWordCount), ShouldEqual, 1)
			})
		})

		Convey("When OCR text contains personal data", func() {
			o, _ := newOrchestrator(textOCR("  contact bob@corp.io re 123456  "))
			m := o.Process(ctx, model.Capture{Ref: img})

			Convey("Then the hash covers the redacted text only", func() {
				sum := sha256.Sum256([]byte("contact [EMAIL] re [NUMBER]"))
				So(*m.OCRTextHash, ShouldEqual, hex.EncodeToString(sum[:]))
				So(m.AgentTimestamp.IsZero(), ShouldBeFalse)
			})
		})

		Convey("When the OCR engine is unavailable", func() {
			o, _ := newOrchestrator(ocrFunc(func(context.Context, string) (string, error) {
				return "", fmt.Errorf("%w: tesseract not found", pipeline.ErrOCRUnavailable)
			}))
			m := o.Process(ctx, model.Capture{Ref: img})

			Convey("Then the metric is partial with empty-text scoring", func() {
				So(m.PipelineStatus, ShouldEqual, model.StatusPartial)
				So(*m.ErrorCode, ShouldEqual, model.ErrCodeOCRUnavailable)
				So(m.OCRTextHash, ShouldBeNil)
				So(m.AnomalyScore, ShouldEqual, 0.8)
				So(m.AnomalyLabel, ShouldEqual, model.LabelCritical)
				So(m.ProductivityScore, ShouldEqual, 25.0)
			})
		})

		Convey("When OCR fails for another reason", func() {
			o, _ := newOrchestrator(ocrFunc(func(context.Context, string) (string, error) {
				return "", errors.New("bad image")
			}))
			m := o.Process(ctx, model.Capture{Ref: img})

			Convey("Then the metric is partial with OCR_FAILED", func() {
				So(m.PipelineStatus, ShouldEqual, model.StatusPartial)
				So(*m.ErrorCode, ShouldEqual, model.ErrCodeOCRFailed)
				So(*m.ErrorMessage, ShouldEqual, "bad image")
			})
		})

		Convey("When OCR overruns the pipeline timeout", func() {
			o, _ := newOrchestrator(ocrFunc(func(ctx context.Context, _ string) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			}), pipeline.WithTimeout(20*time.Millisecond))
			m := o.Process(ctx, model.Capture{Ref: img})

			Convey("Then the metric is partial with a timeout code and still scored", func() {
				So(m.PipelineStatus, ShouldEqual, model.StatusPartial)
				So(*m.ErrorCode, ShouldEqual, model.ErrCodePipelineTimeout)
				So(m.Features, ShouldContainKey, model.FeatureWordCount)
			})
		})

		Convey("When the runtime shuts down during OCR", func() {
			o, store := newOrchestrator(ocrFunc(func(ctx context.Context, _ string) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			}))
			runCtx, cancel := context.WithCancel(ctx)
			go func() {
				time.Sleep(10 * time.Millisecond)
				cancel()
			}()
			m := o.Process(runCtx, model.Capture{Ref: img})

			Convey("Then the baseline is left untouched", func() {
				So(store.Count(model.FeatureWordCount), ShouldEqual, 0)
				So(m.PipelineStatus, ShouldEqual, model.StatusFailed)
				So(*m.ErrorMessage, ShouldContainSubstring, "pipeline canceled")
			})
		})

		Convey("When the image does not exist", func() {
			o, store := newOrchestrator(textOCR("code review"))
			m := o.Process(ctx, model.Capture{Ref: filepath.Join(t.TempDir(), "missing.png")})

			Convey("Then a failed critical fallback is returned", func() {
				So(m.PipelineStatus, ShouldEqual, model.StatusFailed)
				So(m.AnomalyLabel, ShouldEqual, model.LabelCritical)
				So(m.AnomalyScore, ShouldEqual, 1.0)
				So(m.ProductivityScore, ShouldEqual, 0)
				So(m.Features, ShouldBeEmpty)
				So(*m.ErrorCode, ShouldEqual, model.ErrCodePipelineError)
				So(*m.ErrorMessage, ShouldContainSubstring, "capture source missing")
				So(store.Count(model.FeatureWordCount), ShouldEqual, 0)
			})
		})

		Convey("When the extractor panics", func() {
			o, _ := newOrchestrator(ocrFunc(func(context.Context, string) (string, error) {
				panic("boom")
			}))

			Convey("Then Process recovers into a failed metric", func() {
				var m model.AIMetric
				So(func() { m = o.Process(ctx, model.Capture{Ref: img}) }, ShouldNotPanic)
				So(m.PipelineStatus, ShouldEqual, model.StatusFailed)
				So(*m.ErrorMessage, ShouldContainSubstring, "boom")
			})
		})

		Convey("When the baseline cannot be persisted", func() {
			store := baseline.Open("")
			o := pipeline.New(textOCR("code"), anomaly.New(store), failingBaseline{})
			m := o.Process(ctx, model.Capture{Ref: img})

			Convey("Then the metric fails with the persistence error", func() {
				So(m.PipelineStatus, ShouldEqual, model.StatusFailed)
				So(*m.ErrorMessage, ShouldContainSubstring, "disk full")
			})
		})

		Convey("When the capture has a storage locator", func() {
			o, _ := newOrchestrator(textOCR("code"))
			m := o.Process(ctx, model.Capture{Ref: img, Locator: "gs://b/shot.png"})

			Convey("Then the locator is the source reference", func() {
				So(m.SourceRef, ShouldEqual, "gs://b/shot.png")
			})
		})
	})
}

func TestOrchestrator_ScoresBeforeUpdate(t *testing.T) {
	Convey("Given a recording anomaly scorer and baseline", t, func() {
		store := baseline.Open("")
		rec := &recorder{store: store, model: anomaly.New(store)}
		o := pipeline.New(textOCR("jira ticket"), rec, rec)
		img := writeImage(t)

		o.Process(context.Background(), model.Capture{Ref: img})
		o.Process(context.Background(), model.Capture{Ref: img})

		Convey("Then every evaluation sees the baseline before its own update", func() {
			So(rec.calls, ShouldResemble, []string{"evaluate:0", "update", "evaluate:1", "update"})
		})
	})
}
