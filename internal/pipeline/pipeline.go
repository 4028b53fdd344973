// Package pipeline turns a captured image into an AIMetric: OCR, redaction,
// features, productivity, anomaly, baseline update and assembly.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/okian/worksight/internal/domain/anomaly"
	"github.com/okian/worksight/internal/domain/features"
	"github.com/okian/worksight/internal/domain/model"
	"github.com/okian/worksight/internal/domain/scoring"
	"github.com/okian/worksight/pkg/logger"
	"github.com/okian/worksight/pkg/metrics"
)

// Defaults stamped on metrics when no option overrides them.
const (
	DefaultFeatureVersion = "v1"
	DefaultModelName      = "worksight-hybrid"
	DefaultModelVersion   = "1.0.0"
	DefaultTimeout        = 15 * time.Second
)

// TextExtractor reads text from a captured image. Implementations return an
// error wrapping ErrOCRUnavailable when no engine is installed.
type TextExtractor interface {
	ExtractText(ctx context.Context, ref string) (string, error)
}

// AnomalyScorer evaluates a feature vector against the pre-update baseline.
type AnomalyScorer interface {
	Evaluate(ctx context.Context, fv model.FeatureVector) anomaly.Result
}

// BaselineUpdater folds an observation into the baseline after scoring.
type BaselineUpdater interface {
	Update(fv model.FeatureVector) error
}

// Processor is what the inference worker drives.
type Processor interface {
	Process(ctx context.Context, c model.Capture) model.AIMetric
}

// Orchestrator sequences the pipeline stages. Process never returns an error
// and never panics: failures degrade into partial or failed metrics.
type Orchestrator struct {
	ocr       TextExtractor
	anomaly   AnomalyScorer
	baseline  BaselineUpdater
	predictor scoring.Predictor

	featureVersion string
	modelName      string
	modelVersion   string
	timeout        time.Duration

	logger logger.Logger
}

// New creates an Orchestrator.
func New(ocr TextExtractor, a AnomalyScorer, b BaselineUpdater, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ocr:            ocr,
		anomaly:        a,
		baseline:       b,
		predictor:      scoring.NewProductivityModel(),
		featureVersion: DefaultFeatureVersion,
		modelName:      DefaultModelName,
		modelVersion:   DefaultModelVersion,
		timeout:        DefaultTimeout,
		logger:         logger.Get().Named("pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FeatureVersion returns the feature schema version stamped on metrics.
func (o *Orchestrator) FeatureVersion() string { return o.featureVersion }

// Process runs the pipeline for one capture.
func (o *Orchestrator) Process(ctx context.Context, c model.Capture) (m model.AIMetric) {
	started := time.Now()
	if c.CapturedAt.IsZero() {
		c.CapturedAt = started.UTC()
	}
	if c.Kind == "" {
		c.Kind = model.SourceScreenshot
	}

	defer func() {
		if r := recover(); r != nil {
			m = o.fallback(ctx, c, started, fmt.Errorf("%w: %v", ErrPanic, r))
		}
		metrics.RecordPipelineRun(string(m.PipelineStatus), m.ModelInfo.LatencyMS)
		metrics.RecordAnomalyLabel(string(m.AnomalyLabel))
	}()

	m, err := o.run(ctx, c, started)
	if err != nil {
		return o.fallback(ctx, c, started, err)
	}
	return m
}

func (o *Orchestrator) run(ctx context.Context, c model.Capture, started time.Time) (model.AIMetric, error) {
	if _, err := os.Stat(c.Ref); err != nil {
		return model.AIMetric{}, fmt.Errorf("%w: %w", ErrSourceMissing, err)
	}

	status := model.StatusOK
	var errCode, errMsg string

	text, err := o.extractText(ctx, c.Ref)
	switch {
	case err == nil:
	case errors.Is(err, ErrOCRUnavailable):
		status, errCode, errMsg = model.StatusPartial, model.ErrCodeOCRUnavailable, err.Error()
	default:
		status, errCode, errMsg = model.StatusPartial, model.ErrCodeOCRFailed, err.Error()
	}
	// A shutdown mid-OCR must not feed an empty observation into the baseline.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.AIMetric{}, fmt.Errorf("%w: %w", ErrCanceled, ctxErr)
	}

	if elapsed := time.Since(started); elapsed > o.timeout {
		status, errCode = model.StatusPartial, model.ErrCodePipelineTimeout
		errMsg = fmt.Sprintf("pipeline exceeded %s", o.timeout)
	}

	redacted := features.Redact(text)
	fv := features.Extract(redacted)
	productivity := o.predictor.Predict(redacted, fv)
	res := o.anomaly.Evaluate(ctx, fv)
	if err := o.baseline.Update(fv); err != nil {
		return model.AIMetric{}, fmt.Errorf("update baseline: %w", err)
	}

	var hash *string
	if redacted != "" {
		sum := sha256.Sum256([]byte(redacted))
		hash = model.StringPtr(hex.EncodeToString(sum[:]))
	}

	mode := string(res.Mode)
	return model.AIMetric{
		AgentTimestamp:     c.CapturedAt,
		SourceType:         c.Kind,
		SourceRef:          c.SourceRef(),
		OCRTextHash:        hash,
		FeatureVersion:     o.featureVersion,
		Features:           fv.Clone(),
		ProductivityScore:  productivity,
		AnomalyScore:       res.Score,
		AnomalyLabel:       res.Label,
		AnomalyMode:        &mode,
		AnomalyExplanation: res.Explanation,
		ModelInfo:          o.modelInfo(started),
		PipelineStatus:     status,
		ErrorCode:          model.StringPtr(errCode),
		ErrorMessage:       model.StringPtr(errMsg),
	}, nil
}

// extractText bounds OCR by the pipeline timeout.
func (o *Orchestrator) extractText(ctx context.Context, ref string) (string, error) {
	if o.ocr == nil {
		return "", fmt.Errorf("%w: no extractor configured", ErrOCRUnavailable)
	}
	ocrCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return o.ocr.ExtractText(ocrCtx, ref)
}

// fallback builds the conservative metric emitted when the pipeline fails.
func (o *Orchestrator) fallback(ctx context.Context, c model.Capture, started time.Time, cause error) model.AIMetric {
	if errors.Is(cause, ErrCanceled) {
		o.logger.Info(ctx, "pipeline canceled", logger.String("source_ref", c.SourceRef()))
	} else {
		o.logger.Error(ctx, "pipeline failed",
			logger.String("source_ref", c.SourceRef()),
			logger.Error(cause),
		)
		metrics.RecordErrorByComponent("pipeline", "pipeline_error")
	}

	mode := string(model.ModeStatic)
	return model.AIMetric{
		AgentTimestamp:     c.CapturedAt,
		SourceType:         c.Kind,
		SourceRef:          c.SourceRef(),
		FeatureVersion:     o.featureVersion,
		Features:           model.FeatureVector{},
		ProductivityScore:  0,
		AnomalyScore:       1.0,
		AnomalyLabel:       model.LabelCritical,
		AnomalyMode:        &mode,
		AnomalyExplanation: model.AnomalyExplanation{Mode: model.ModeStatic},
		ModelInfo:          o.modelInfo(started),
		PipelineStatus:     model.StatusFailed,
		ErrorCode:          model.StringPtr(model.ErrCodePipelineError),
		ErrorMessage:       model.StringPtr(cause.Error()),
	}
}

func (o *Orchestrator) modelInfo(started time.Time) model.ModelInfo {
	return model.ModelInfo{
		Name:      o.modelName,
		Version:   o.modelVersion,
		LatencyMS: model.Round(float64(time.Since(started).Microseconds())/1000, 2),
	}
}
