// Package stage buckets subjects into tenure-derived lifecycle stages using
// calibrated quintile boundaries, then adjusts the stage's base risk with
// percentile, title, and status signals.
package stage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/luminahr/insight/services/risk_engine/internal/calibration"
	"github.com/luminahr/insight/services/risk_engine/internal/domain"
)

// StageDefinition is the metadata for one lifecycle stage.
type StageDefinition struct {
	Name            string
	Ordinal         int // 0 = onboarding … 4 = veteran
	BaseRisk        float64
	Description     string
	RiskFactors     []string
	Recommendations []string
}

// StageResult is the stage signal for one subject.
type StageResult struct {
	Stage           string
	Score           float64
	Confidence      float64
	Indicators      []string
	RiskFactors     []string
	Recommendations []string
}

// Provider supplies the ordered stage definitions for a scope.
// Implementations fall back to built-in defaults rather than failing.
type Provider interface {
	StageDefinitions(ctx context.Context, scope string) []StageDefinition
}

var leadershipTokens = []string{"director", "head", "lead", "principal", "vp", "chief"}
var entryTokens = []string{"junior", "intern", "associate", "trainee"}

// Classifier maps tenure to a lifecycle stage and scores it.
type Classifier struct {
	provider Provider
	logger   *zap.Logger
}

// NewClassifier creates a stage classifier over the given definitions provider.
func NewClassifier(provider Provider, logger *zap.Logger) *Classifier {
	return &Classifier{provider: provider, logger: logger}
}

// Classify buckets the subject by tenure quintile and applies the
// percentile, title, and status adjustments. Never fails: missing inputs
// lower confidence instead.
func (c *Classifier) Classify(ctx context.Context, subject *domain.SubjectRecord, thresholds *calibration.ThresholdSet, scope string) *StageResult {
	stages := c.provider.StageDefinitions(ctx, scope)
	def := stageForTenure(stages, subject, thresholds)

	score := def.BaseRisk
	indicators := []string{fmt.Sprintf("stage %s (base risk %.2f)", def.Name, def.BaseRisk)}

	if subject.HasTenure {
		if pct, ok := thresholds.FeaturePercentile("tenure", subject.TenureYears); ok {
			if pct < 20 {
				score += 0.10
				indicators = append(indicators, "bottom-20% tenure: new employee")
			} else if pct > 80 {
				score -= 0.05
				indicators = append(indicators, "top-20% tenure")
			}
		}
	}

	if subject.Position != "" {
		title := strings.ToLower(subject.Position)
		if hasToken(title, leadershipTokens) {
			score -= 0.05
			indicators = append(indicators, "leadership title")
		} else if hasToken(title, entryTokens) {
			score += 0.05
			indicators = append(indicators, "entry-level title")
		}
	}

	if subject.HasComp {
		if pct, ok := thresholds.FeaturePercentile("compensation", subject.Compensation); ok {
			if pct > 75 {
				score -= 0.03
				indicators = append(indicators, "top-quartile compensation")
			} else if pct < 25 {
				score += 0.05
				indicators = append(indicators, "bottom-quartile compensation")
			}
		}
	}

	switch subject.Status {
	case "probation":
		score += 0.10
		indicators = append(indicators, "probationary status")
	case "notice", "exited":
		score += 0.30
		indicators = append(indicators, "departure already initiated")
	}

	populated := 0
	if subject.HasTenure {
		populated++
	}
	if subject.HasComp {
		populated++
	}
	if subject.Position != "" {
		populated++
	}
	if subject.Status != "" {
		populated++
	}

	return &StageResult{
		Stage:           def.Name,
		Score:           domain.Clamp01(score),
		Confidence:      domain.Clamp01(0.5 + 0.125*float64(populated)),
		Indicators:      indicators,
		RiskFactors:     def.RiskFactors,
		Recommendations: def.Recommendations,
	}
}

// stageForTenure picks the stage whose quintile band contains the subject's
// tenure. Unknown tenure lands in the middle stage.
func stageForTenure(stages []StageDefinition, subject *domain.SubjectRecord, thresholds *calibration.ThresholdSet) StageDefinition {
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	if !subject.HasTenure {
		return stages[len(stages)/2]
	}

	band := 0
	for _, boundary := range thresholds.TenureQuintiles {
		if subject.TenureYears >= boundary {
			band++
		}
	}
	if band >= len(stages) {
		band = len(stages) - 1
	}
	return stages[band]
}

func hasToken(title string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(title, t) {
			return true
		}
	}
	return false
}
