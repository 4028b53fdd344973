// Package scoring implements the rule-based productivity model.
package scoring

import (
	"math"

	"github.com/okian/worksight/internal/domain/model"
)

// Productivity scoring constants.
const (
	baseScore          = 50.0
	focusWeight        = 6.0
	maxFocusBonus      = 30.0
	distractionWeight  = 10.0
	maxDistractPenalty = 40.0
	shortTextWords     = 3
	shortTextPenalty   = 10.0
	emptyTextPenalty   = 15.0
	minScore           = 0.0
	maxScore           = 100.0
)

// Predictor scores productivity from text and its features.
type Predictor interface {
	Predict(text string, fv model.FeatureVector) float64
}

// ProductivityModel is the fixed heuristic productivity scorer.
type ProductivityModel struct{}

// NewProductivityModel returns the default productivity model.
func NewProductivityModel() *ProductivityModel { return &ProductivityModel{} }

// Predict returns a score in [0, 100] rounded to two decimals. Focus keywords
// raise the score, distraction keywords and short or empty text lower it.
func (ProductivityModel) Predict(text string, fv model.FeatureVector) float64 {
	score := baseScore
	score += math.Min(fv.GetOr(model.FeatureFocusHits, 0)*focusWeight, maxFocusBonus)
	score -= math.Min(fv.GetOr(model.FeatureDistractionHits, 0)*distractionWeight, maxDistractPenalty)

	if fv.GetOr(model.FeatureWordCount, 0) < shortTextWords {
		score -= shortTextPenalty
	}
	if text == "" {
		score -= emptyTextPenalty
	}

	return model.Round(math.Max(minScore, math.Min(maxScore, score)), 2)
}
