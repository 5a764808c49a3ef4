// Package domain holds the shared record types and the error taxonomy the
// reasoning components exchange. Records are immutable snapshots: a component
// reads them, never writes them.
package domain

import "time"

// SubjectRecord is a point-in-time snapshot of the employee under evaluation.
// Loaded once per calculation from the subjects table.
type SubjectRecord struct {
	ID           string
	TenureYears  float64
	Compensation float64
	Position     string
	Department   string
	Status       string // "active", "probation", "notice", "exited"
	HasTenure    bool
	HasComp      bool
}

// InterviewRecord is one free-text interview note for a subject.
type InterviewRecord struct {
	ID        string
	SubjectID string
	Kind      string // "stay", "exit", "one_on_one", "review"
	Date      time.Time
	Notes     string
	Sentiment *float64 // stored analyst sentiment, overrides computed when set
}

// FeatureAttribution is one entry of the ML model's per-feature explanation.
type FeatureAttribution struct {
	Feature string
	Weight  float64
}

// MLPrediction is the externally-produced attrition probability for a
// subject. Opaque to this service beyond probability + confidence.
type MLPrediction struct {
	SubjectID   string
	Probability float64
	Confidence  float64
	Attribution []FeatureAttribution
	PredictedAt time.Time
}

// Clamp01 bounds v to [0,1]. Every score and confidence in the pipeline
// passes through here before leaving a component.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
