package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/luminahr/insight/services/risk_engine/internal/calibration"
	"github.com/luminahr/insight/services/risk_engine/internal/domain"
)

// minPeers is the smallest department peer group percentile enrichment
// will run against.
const minPeers = 3

// PeerSource lists the subject records sharing a department, the default
// peer group for percentile enrichment.
type PeerSource interface {
	Peers(ctx context.Context, department string) ([]domain.SubjectRecord, error)
}

// Engine evaluates a rule set against a percentile-enriched subject record.
type Engine struct {
	peers  PeerSource
	logger *zap.Logger
}

// NewEngine creates a rule engine over the given peer source.
func NewEngine(peers PeerSource, logger *zap.Logger) *Engine {
	return &Engine{peers: peers, logger: logger}
}

// Evaluate runs every rule against the subject and folds matched
// adjustments into baseRisk. Unparseable rules and rules over absent fields
// count against coverage but never fail the evaluation.
func (e *Engine) Evaluate(ctx context.Context, subject *domain.SubjectRecord, ruleSet []*RuleDefinition, baseRisk float64) *HeuristicResult {
	fields, peerCount, enriched := e.enrich(ctx, subject)

	ordered := append([]*RuleDefinition(nil), ruleSet...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	var (
		evaluable  int
		matched    int
		adjustment float64
		triggered  []RuleEvaluationResult
		alerts     []string
	)

	for _, rule := range ordered {
		if rule.UsesPercentile && !enriched {
			continue
		}
		if !rule.Compiled() {
			e.logger.Warn("skipping uncompiled rule",
				zap.String("rule_id", rule.ID),
				zap.String("condition", rule.Condition),
			)
			continue
		}
		m, ok := rule.expr.Eval(fields)
		if !ok {
			continue
		}
		evaluable++
		if !m {
			continue
		}
		matched++
		adjustment += rule.Adjustment
		triggered = append(triggered, RuleEvaluationResult{
			RuleID:     rule.ID,
			Name:       rule.Name,
			Matched:    true,
			Adjustment: rule.Adjustment,
			Reason:     fmt.Sprintf("%s: %s (%+.2f)", rule.Name, rule.Condition, rule.Adjustment),
		})
		if rule.AlertMessage != "" {
			alerts = append(alerts, rule.AlertMessage)
		}
	}

	coverage := 0.0
	if len(ruleSet) > 0 {
		coverage = float64(evaluable) / float64(len(ruleSet))
	}

	confidence := 0.4 + 0.4*coverage + 0.05*float64(matched)
	if peerCount > 5 {
		confidence += 0.1
	}

	return &HeuristicResult{
		Score:          domain.Clamp01(baseRisk + adjustment),
		Confidence:     domain.Clamp01(confidence),
		Coverage:       coverage,
		Triggered:      triggered,
		Alerts:         alerts,
		PeerSampleSize: peerCount,
		Enriched:       enriched,
	}
}

// enrich builds the field map the expression trees evaluate against,
// adding percentile fields when a large-enough peer group exists.
func (e *Engine) enrich(ctx context.Context, subject *domain.SubjectRecord) (map[string]any, int, bool) {
	fields := map[string]any{
		"department": subject.Department,
		"position":   strings.ToLower(subject.Position),
		"status":     subject.Status,
	}
	if subject.HasTenure {
		fields["tenure_years"] = subject.TenureYears
	}
	if subject.HasComp {
		fields["compensation"] = subject.Compensation
	}

	if e.peers == nil {
		return fields, 0, false
	}

	peers, err := e.peers.Peers(ctx, subject.Department)
	if err != nil {
		e.logger.Warn("peer lookup failed, percentile rules will be skipped",
			zap.String("subject_id", subject.ID),
			zap.String("department", subject.Department),
			zap.Error(err),
		)
		return fields, 0, false
	}
	if len(peers) < minPeers {
		return fields, len(peers), false
	}

	comps := make([]float64, 0, len(peers))
	tenures := make([]float64, 0, len(peers))
	for _, p := range peers {
		if p.HasComp {
			comps = append(comps, p.Compensation)
		}
		if p.HasTenure {
			tenures = append(tenures, p.TenureYears)
		}
	}
	if len(comps) < minPeers || len(tenures) < minPeers {
		return fields, len(peers), false
	}
	sort.Float64s(comps)
	sort.Float64s(tenures)

	enriched := false
	if subject.HasComp {
		pct := calibration.PercentileOf(comps, subject.Compensation)
		fields["comp_percentile"] = pct
		fields["comp_below_p25"] = pct < 25
		fields["comp_above_p75"] = pct > 75
		enriched = true
	}
	if subject.HasTenure {
		pct := calibration.PercentileOf(tenures, subject.TenureYears)
		fields["tenure_percentile"] = pct
		fields["tenure_below_p25"] = pct < 25
		fields["tenure_above_p75"] = pct > 75
		enriched = true
	}

	return fields, len(peers), enriched
}
