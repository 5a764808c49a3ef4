// Package reasoning composes the ML prediction with the three signal
// components into a confidence-weighted final risk score, caches results
// per subject, and runs batches under a bounded worker pool.
package reasoning

import (
	"context"
	"time"

	"github.com/luminahr/insight/services/risk_engine/internal/domain"
	"github.com/luminahr/insight/services/risk_engine/internal/interview"
	"github.com/luminahr/insight/services/risk_engine/internal/rules"
	"github.com/luminahr/insight/services/risk_engine/internal/stage"
)

// Signal names as they appear in breakdowns, events, and formulas.
const (
	SignalML        = "ml"
	SignalHeuristic = "heuristic"
	SignalStage     = "stage"
	SignalInterview = "interview"
)

// PredictionSource supplies the externally-produced ML prediction.
// A missing prediction is domain.ErrNotFound and fatal for that subject.
type PredictionSource interface {
	GetMLPrediction(ctx context.Context, subjectID string) (*domain.MLPrediction, error)
}

// SubjectSource supplies subject record snapshots.
type SubjectSource interface {
	GetSubjectRecord(ctx context.Context, subjectID string) (*domain.SubjectRecord, error)
}

// BaseWeights is the tunable per-signal weight table before confidence
// scaling. Values need not sum to 1; they are renormalized after scaling.
type BaseWeights struct {
	ML        float64 `yaml:"ml"`
	Heuristic float64 `yaml:"heuristic"`
	Stage     float64 `yaml:"stage"`
	Interview float64 `yaml:"interview"`
}

// DefaultBaseWeights returns the default weight table: ML dominates,
// interview is the smallest voice.
func DefaultBaseWeights() BaseWeights {
	return BaseWeights{ML: 0.50, Heuristic: 0.20, Stage: 0.18, Interview: 0.12}
}

// SignalBreakdown documents one signal's contribution to the final score.
type SignalBreakdown struct {
	Signal     string
	Score      float64
	Confidence float64
	BaseWeight float64
	Weight     float64 // after confidence scaling and renormalization
}

// ReasoningResult is the immutable output of one calculation. A refresh
// produces a new value that replaces the cache slot; entries are never
// mutated in place.
type ReasoningResult struct {
	SubjectID       string
	FinalScore      float64
	FinalConfidence float64
	RiskLevel       string // "high", "medium", "low"
	Formula         string
	WeightRationale string
	Breakdown       []SignalBreakdown
	Heuristic       *rules.HeuristicResult
	Stage           *stage.StageResult
	Interview       *interview.InterviewAnalysisResult
	Alerts          []string
	CalculatedAt    time.Time
	CacheValidUntil time.Time
}

// Valid reports whether the cached result is still within its TTL.
func (r *ReasoningResult) Valid(now time.Time) bool {
	return now.Before(r.CacheValidUntil)
}

// BatchResult is the outcome of a CalculateBatch call: per-subject results,
// per-subject error strings, and wall-clock duration in milliseconds.
type BatchResult struct {
	Results    map[string]*ReasoningResult
	Errors     map[string]string
	DurationMs float64
}

// RuleSummaryEntry is one rule in the definition summary.
type RuleSummaryEntry struct {
	ID             string
	Name           string
	Condition      string
	Adjustment     float64
	Priority       int
	UsesPercentile bool
}

// RuleSummary is the exposed view of the active rule set.
type RuleSummary struct {
	Rules            []RuleSummaryEntry
	CountsByPriority map[int]int
}
