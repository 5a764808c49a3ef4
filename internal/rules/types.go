package rules

import (
	"context"
	"fmt"

	"github.com/luminahr/insight/services/risk_engine/internal/domain"
)

// RuleDefinition is one named condition→adjustment rule. Condition is the
// source string; the compiled tree is attached by Compile and reused across
// evaluations.
type RuleDefinition struct {
	ID             string
	Name           string
	Condition      string
	Adjustment     float64 // signed, applied when the condition matches
	Priority       int     // 1 = highest
	AlertMessage   string
	UsesPercentile bool

	expr Expr
}

// Compile parses the condition and attaches the expression tree. A rule
// whose compile fails stays non-evaluable; callers log and keep going.
func (r *RuleDefinition) Compile() error {
	expr, err := Compile(r.Condition)
	if err != nil {
		return fmt.Errorf("%w: rule %s: %v", domain.ErrRuleParse, r.ID, err)
	}
	r.expr = expr
	return nil
}

// Compiled reports whether the rule has a usable expression tree.
func (r *RuleDefinition) Compiled() bool { return r.expr != nil }

// RuleEvaluationResult records one rule's outcome against one subject.
type RuleEvaluationResult struct {
	RuleID     string
	Name       string
	Matched    bool
	Adjustment float64
	Reason     string
}

// HeuristicResult is the combined rule-engine signal for one subject.
type HeuristicResult struct {
	Score          float64 // clamp(baseRisk + Σ adjustments, 0, 1)
	Confidence     float64
	Coverage       float64 // evaluable rules / total rules
	Triggered      []RuleEvaluationResult
	Alerts         []string
	PeerSampleSize int
	Enriched       bool
}

// Provider supplies the active rule set for a scope. Implementations never
// fail outward: an unreachable store degrades to the built-in defaults.
type Provider interface {
	Rules(ctx context.Context, scope string) []*RuleDefinition
}
