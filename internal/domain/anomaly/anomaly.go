// Package anomaly scores feature vectors against heuristics while the
// endpoint baseline is immature, and against per-feature z-scores after.
package anomaly

import (
	"context"
	"sync"

	"github.com/okian/worksight/internal/domain/model"
	"github.com/okian/worksight/pkg/logger"
	"github.com/okian/worksight/pkg/metrics"
)

// Scoring constants.
const (
	DefaultMinBaselineSamples = 10

	staticBase          = 0.1
	lowWordCountBump    = 0.4
	lowAlphaRatioBump   = 0.3
	distractionBump     = 0.3
	lowWordCountLimit   = 2
	lowAlphaRatioLimit  = 0.2
	distractionLimit    = 1
	sigmaNormalization  = 3.0
	criticalThreshold   = 0.75
	suspiciousThreshold = 0.4
	scoreDecimals       = 3
)

// Static trigger names reported in explanations.
const (
	TriggerLowWordCount         = "low_word_count"
	TriggerLowAlphaRatio        = "low_alpha_ratio"
	TriggerMultipleDistractions = "multiple_distractions"
)

// TrackedFeatures are the features considered for maturity and z-scoring.
var TrackedFeatures = []string{
	model.FeatureWordCount,
	model.FeatureFocusHits,
	model.FeatureDistractionHits,
	model.FeatureAlphaRatio,
}

// Baseline is the read side of the baseline store the model scores against.
type Baseline interface {
	ZScore(name string, value float64) float64
	Count(name string) int64
}

// Result is one anomaly evaluation.
type Result struct {
	Score       float64
	Label       model.AnomalyLabel
	Mode        model.AnomalyMode
	Explanation model.AnomalyExplanation
}

// Model is the two-mode anomaly scorer. The static to statistical transition
// is one-way and owned by the instance.
type Model struct {
	baseline   Baseline
	minSamples int64
	onMature   func(feature string, count int64)
	logger     logger.Logger

	mu   sync.Mutex
	mode model.AnomalyMode
}

// New creates a Model scoring against b.
func New(b Baseline, opts ...Option) *Model {
	m := &Model{
		baseline:   b,
		minSamples: DefaultMinBaselineSamples,
		logger:     logger.Get().Named("anomaly"),
		mode:       model.ModeStatic,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mode returns the current scoring mode.
func (m *Model) Mode() model.AnomalyMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Evaluate scores fv against the baseline as it currently stands. Callers
// must update the baseline only after Evaluate returns.
func (m *Model) Evaluate(ctx context.Context, fv model.FeatureVector) Result {
	var score float64
	var expl model.AnomalyExplanation
	if m.advance(ctx) == model.ModeStatistical {
		score, expl = m.statistical(fv)
	} else {
		score, expl = static(fv)
	}
	return Result{Score: score, Label: Label(score), Mode: expl.Mode, Explanation: expl}
}

// advance checks maturity and performs the one-way transition.
func (m *Model) advance(ctx context.Context) model.AnomalyMode {
	m.mu.Lock()
	if m.mode == model.ModeStatistical {
		m.mu.Unlock()
		return model.ModeStatistical
	}
	feature, count, mature := m.mature()
	if !mature {
		m.mu.Unlock()
		return model.ModeStatic
	}
	m.mode = model.ModeStatistical
	hook := m.onMature
	m.mu.Unlock()

	m.logger.Info(ctx, "baseline mature, switching to statistical anomaly detection",
		logger.String("feature", feature),
		logger.Int64("samples", count),
		logger.Int64("threshold", m.minSamples),
	)
	metrics.SetBaselineMature(true)
	if hook != nil {
		hook(feature, count)
	}
	return model.ModeStatistical
}

func (m *Model) mature() (string, int64, bool) {
	for _, name := range TrackedFeatures {
		if c := m.baseline.Count(name); c >= m.minSamples {
			return name, c, true
		}
	}
	return "", 0, false
}

func static(fv model.FeatureVector) (float64, model.AnomalyExplanation) {
	score := staticBase
	triggers := []string{}

	if fv.GetOr(model.FeatureWordCount, 0) < lowWordCountLimit {
		score += lowWordCountBump
		triggers = append(triggers, TriggerLowWordCount)
	}
	if fv.GetOr(model.FeatureAlphaRatio, 1.0) < lowAlphaRatioLimit {
		score += lowAlphaRatioBump
		triggers = append(triggers, TriggerLowAlphaRatio)
	}
	if fv.GetOr(model.FeatureDistractionHits, 0) > distractionLimit {
		score += distractionBump
		triggers = append(triggers, TriggerMultipleDistractions)
	}

	score = model.Round(clamp01(score), scoreDecimals)
	return score, model.AnomalyExplanation{Mode: model.ModeStatic, Triggers: triggers}
}

func (m *Model) statistical(fv model.FeatureVector) (float64, model.AnomalyExplanation) {
	zs := make(map[string]float64, len(TrackedFeatures))
	var sum float64
	var n int
	for _, name := range TrackedFeatures {
		v, ok := fv.Get(name)
		if !ok {
			continue
		}
		z := m.baseline.ZScore(name, v)
		zs[name] = model.Round(z, scoreDecimals)
		sum += z
		n++
	}

	expl := model.AnomalyExplanation{Mode: model.ModeStatistical, FeatureZScores: zs}
	if n == 0 {
		return 0, expl
	}

	avg := sum / float64(n)
	roundedAvg := model.Round(avg, scoreDecimals)
	expl.AvgZ = &roundedAvg
	normalized := avg / sigmaNormalization
	if normalized > 1 {
		normalized = 1
	}
	return model.Round(normalized, scoreDecimals), expl
}

// Label maps a score to its categorical label.
func Label(score float64) model.AnomalyLabel {
	switch {
	case score >= criticalThreshold:
		return model.LabelCritical
	case score >= suspiciousThreshold:
		return model.LabelSuspicious
	default:
		return model.LabelNormal
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
