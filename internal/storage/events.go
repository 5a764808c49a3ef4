package storage

import "time"

// EventWriter is the interface for persisting reasoning events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *ReasoningEvent)
	Close()
}

// ReasoningEvent is one completed risk calculation, persisted for audit
// and score-drift monitoring.
type ReasoningEvent struct {
	EventID           string
	SubjectID         string
	Scope             string
	Timestamp         time.Time
	FinalScore        float64
	FinalConfidence   float64
	RiskLevel         string
	SignalNames       []string
	SignalScores      []float64
	SignalConfidences []float64
	SignalWeights     []float64
	Formula           string
	TriggeredRules    []string
	Stage             string
	InterviewCount    int32
	ForceRefresh      bool
	LatencyMs         float64
}
