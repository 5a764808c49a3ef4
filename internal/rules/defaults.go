package rules

import (
	"context"

	"go.uber.org/zap"
)

// defaultRuleTable is the built-in percentile rule set used when the rule
// store is empty or unreachable.
var defaultRuleTable = []RuleDefinition{
	{
		ID:             "new-hire-underpaid",
		Name:           "New hire paid below peers",
		Condition:      "tenure_percentile < 20 AND comp_percentile < 25",
		Adjustment:     0.12,
		Priority:       1,
		AlertMessage:   "new hire compensated below department P25",
		UsesPercentile: true,
	},
	{
		ID:             "veteran-underpaid",
		Name:           "Long tenure, bottom-quartile pay",
		Condition:      "tenure_percentile > 75 AND comp_percentile < 25",
		Adjustment:     0.15,
		Priority:       1,
		AlertMessage:   "retention risk: senior employee under market",
		UsesPercentile: true,
	},
	{
		ID:             "underpaid",
		Name:           "Bottom-quartile compensation",
		Condition:      "comp_below_p25 == true",
		Adjustment:     0.08,
		Priority:       2,
		UsesPercentile: true,
	},
	{
		ID:             "well-paid-senior",
		Name:           "Top-quartile pay, senior tenure",
		Condition:      "comp_percentile > 75 AND tenure_percentile > 60",
		Adjustment:     -0.08,
		Priority:       2,
		UsesPercentile: true,
	},
	{
		ID:             "flight-window",
		Name:           "Early-tenure flight window",
		Condition:      "tenure_percentile < 10",
		Adjustment:     0.10,
		Priority:       2,
		UsesPercentile: true,
	},
	{
		ID:             "golden-handcuffs",
		Name:           "Short tenure, top-quartile pay",
		Condition:      "tenure_percentile < 10 AND comp_percentile > 75",
		Adjustment:     -0.05,
		Priority:       3,
		UsesPercentile: true,
	},
	{
		ID:         "probation",
		Name:       "Probationary status",
		Condition:  "status == probation",
		Adjustment: 0.10,
		Priority:   2,
	},
	{
		ID:           "notice-given",
		Name:         "Notice already given",
		Condition:    "status IN [notice, exited]",
		Adjustment:   0.30,
		Priority:     1,
		AlertMessage: "subject has initiated departure",
	},
	{
		ID:         "entry-title",
		Name:       "Entry-level title",
		Condition:  "position CONTAINS junior OR position CONTAINS intern OR position CONTAINS associate",
		Adjustment: 0.05,
		Priority:   3,
	},
	{
		ID:         "leadership-title",
		Name:       "Leadership title",
		Condition:  "position CONTAINS director OR position CONTAINS head OR position CONTAINS lead",
		Adjustment: -0.05,
		Priority:   3,
	},
}

// DefaultRules returns a freshly compiled copy of the built-in rule table.
func DefaultRules(logger *zap.Logger) []*RuleDefinition {
	out := make([]*RuleDefinition, 0, len(defaultRuleTable))
	for _, r := range defaultRuleTable {
		rule := r
		if err := rule.Compile(); err != nil {
			// Built-in conditions are fixed; a failure here is a programming
			// error worth surfacing loudly in logs.
			logger.Error("default rule failed to compile", zap.String("rule_id", rule.ID), zap.Error(err))
			continue
		}
		out = append(out, &rule)
	}
	return out
}

// StaticProvider serves a fixed rule set, used when no rule store is
// configured and as the store fallback.
type StaticProvider struct {
	rules []*RuleDefinition
}

// NewStaticProvider wraps an already compiled rule set.
func NewStaticProvider(rules []*RuleDefinition) *StaticProvider {
	return &StaticProvider{rules: rules}
}

func (p *StaticProvider) Rules(_ context.Context, _ string) []*RuleDefinition { return p.rules }
