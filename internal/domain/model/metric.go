// Package model contains domain models passed between layers.
package model

import (
	"path/filepath"
	"time"
)

// SourceKind identifies what kind of evidence a metric was derived from.
type SourceKind string

// Source kinds.
const (
	SourceScreenshot      SourceKind = "screenshot"
	SourceRecordingWindow SourceKind = "recording_window"
)

// AnomalyLabel is the categorical form of an anomaly score.
type AnomalyLabel string

// Anomaly labels.
const (
	LabelNormal     AnomalyLabel = "normal"
	LabelSuspicious AnomalyLabel = "suspicious"
	LabelCritical   AnomalyLabel = "critical"
)

// AnomalyMode is the scoring regime that produced an anomaly score.
type AnomalyMode string

// Anomaly modes.
const (
	ModeStatic      AnomalyMode = "static"
	ModeStatistical AnomalyMode = "statistical"
)

// PipelineStatus reports how completely a metric was computed.
type PipelineStatus string

// Pipeline statuses.
const (
	StatusOK      PipelineStatus = "ok"
	StatusPartial PipelineStatus = "partial"
	StatusFailed  PipelineStatus = "failed"
)

// Error codes carried on degraded metrics.
const (
	ErrCodeOCRUnavailable  = "OCR_UNAVAILABLE"
	ErrCodeOCRFailed       = "OCR_FAILED"
	ErrCodePipelineTimeout = "PIPELINE_TIMEOUT"
	ErrCodePipelineError   = "PIPELINE_ERROR"
)

// Capture is one piece of evidence handed from the capture loop to inference.
type Capture struct {
	Ref        string     // local path readable by OCR
	Locator    string     // where the storage backend put it; empty if not stored
	Kind       SourceKind // screenshot unless stated otherwise
	CapturedAt time.Time
}

// SourceRef returns the reference recorded on the metric and used for
// idempotency keys: the storage locator when present, else the absolute path.
func (c Capture) SourceRef() string {
	if c.Locator != "" {
		return c.Locator
	}
	if abs, err := filepath.Abs(c.Ref); err == nil {
		return abs
	}
	return c.Ref
}

// ModelInfo identifies the scoring model and how long it ran.
type ModelInfo struct {
	Name      string  `json:"name"`
	Version   string  `json:"version"`
	LatencyMS float64 `json:"latency_ms"`
}

// AnomalyExplanation describes why a score was produced. Static mode fills
// Triggers; statistical mode fills AvgZ and FeatureZScores.
type AnomalyExplanation struct {
	Mode           AnomalyMode        `json:"mode"`
	Triggers       []string           `json:"triggers,omitempty"`
	AvgZ           *float64           `json:"avg_z,omitempty"`
	FeatureZScores map[string]float64 `json:"feature_z_scores,omitempty"`
}

// AIMetric is the unit of output shipped to the collector. It is built once
// by the pipeline and never modified afterwards.
type AIMetric struct {
	AgentTimestamp     time.Time          `json:"agent_timestamp"`
	SourceType         SourceKind         `json:"source_type"`
	SourceRef          string             `json:"source_ref"`
	OCRTextHash        *string            `json:"ocr_text_hash"`
	FeatureVersion     string             `json:"feature_version"`
	Features           FeatureVector      `json:"features"`
	ProductivityScore  float64            `json:"productivity_score"`
	AnomalyScore       float64            `json:"anomaly_score"`
	AnomalyLabel       AnomalyLabel       `json:"anomaly_label"`
	AnomalyMode        *string            `json:"anomaly_mode,omitempty"`
	AnomalyExplanation AnomalyExplanation `json:"anomaly_explanation"`
	ModelInfo          ModelInfo          `json:"model_info"`
	PipelineStatus     PipelineStatus     `json:"pipeline_status"`
	ErrorCode          *string            `json:"error_code"`
	ErrorMessage       *string            `json:"error_message"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
