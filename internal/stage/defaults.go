package stage

import "context"

// defaultStageTable is the built-in five-stage lifecycle model, ordered by
// tenure quintile band.
var defaultStageTable = []StageDefinition{
	{
		Name:        "onboarding",
		Ordinal:     0,
		BaseRisk:    0.40,
		Description: "First tenure quintile; still forming attachment to team and role.",
		RiskFactors: []string{
			"unmet expectations from hiring process",
			"weak onboarding or missing early wins",
		},
		Recommendations: []string{
			"schedule 30/60/90-day check-ins",
			"assign an onboarding buddy",
		},
	},
	{
		Name:        "early_career",
		Ordinal:     1,
		BaseRisk:    0.35,
		Description: "Second quintile; highest external marketability relative to attachment.",
		RiskFactors: []string{
			"no visible growth path",
			"compensation drift against market",
		},
		Recommendations: []string{
			"document a promotion path",
			"review compensation against band",
		},
	},
	{
		Name:        "established",
		Ordinal:     2,
		BaseRisk:    0.25,
		Description: "Middle quintile; productive and networked, watches for stagnation.",
		RiskFactors: []string{
			"role stagnation",
			"manager change turbulence",
		},
		Recommendations: []string{
			"offer stretch assignments",
			"confirm scope grows with tenure",
		},
	},
	{
		Name:        "senior",
		Ordinal:     3,
		BaseRisk:    0.20,
		Description: "Fourth quintile; deep context, leaves mostly for leadership scope.",
		RiskFactors: []string{
			"leadership ceiling",
			"being passed over for promotion",
		},
		Recommendations: []string{
			"discuss leadership or staff-track options",
		},
	},
	{
		Name:        "veteran",
		Ordinal:     4,
		BaseRisk:    0.15,
		Description: "Top quintile; most attached, but departures are costliest.",
		RiskFactors: []string{
			"burnout from institutional load",
			"retirement or life-stage changes",
		},
		Recommendations: []string{
			"plan knowledge transfer regardless of risk",
			"protect against being the permanent escalation point",
		},
	},
}

// DefaultStages returns a copy of the built-in stage table.
func DefaultStages() []StageDefinition {
	out := make([]StageDefinition, len(defaultStageTable))
	copy(out, defaultStageTable)
	return out
}

// StaticProvider serves a fixed stage table, used when no stage store is
// configured and as the store fallback.
type StaticProvider struct {
	stages []StageDefinition
}

// NewStaticProvider wraps a stage table. Nil means the built-in defaults.
func NewStaticProvider(stages []StageDefinition) *StaticProvider {
	if stages == nil {
		stages = DefaultStages()
	}
	return &StaticProvider{stages: stages}
}

func (p *StaticProvider) StageDefinitions(_ context.Context, _ string) []StageDefinition {
	return p.stages
}
