package model

// Feature names produced by the text feature extractor.
const (
	FeatureWordCount       = "word_count"
	FeatureLineCount       = "line_count"
	FeatureFocusHits       = "focus_keyword_hits"
	FeatureDistractionHits = "distraction_keyword_hits"
	FeatureAlphaRatio      = "alpha_ratio"
)

// FeatureVector maps feature names to numeric values.
type FeatureVector map[string]float64

// Get returns the value for name and whether it is present.
func (f FeatureVector) Get(name string) (float64, bool) {
	v, ok := f[name]
	return v, ok
}

// GetOr returns the value for name, or def when absent.
func (f FeatureVector) GetOr(name string, def float64) float64 {
	if v, ok := f[name]; ok {
		return v
	}
	return def
}

// Clone returns an independent copy so callers cannot mutate a produced vector.
func (f FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
