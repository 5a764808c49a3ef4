// Package interview extracts sentiment, risk signals, and themes from
// free-text interview notes and aggregates them across a subject's history
// with recency weighting.
package interview

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luminahr/insight/services/risk_engine/internal/domain"
)

const (
	maxThemes = 5

	// exitRiskFloor: an exit-type interview means departure is already in
	// motion, so its risk adjustment never drops below this.
	exitRiskFloor = 0.15

	// recencyWindow separates recent interviews (full weight, recency rank
	// weighting for the adjustment) from older ones (half weight).
	recencyWindow = 12 * 30 * 24 * time.Hour
)

// InterviewInsight is the analysis of a single interview record.
type InterviewInsight struct {
	InterviewID     string
	Kind            string
	Date            time.Time
	Sentiment       float64 // [-1, 1]
	RiskSignals     []string
	PositiveSignals []string
	Themes          []string
	RiskAdjustment  float64 // [-0.3, 0.3]
}

// InterviewAnalysisResult is the recency-weighted aggregate over a
// subject's interview history.
type InterviewAnalysisResult struct {
	SubjectID          string
	AggregateSentiment float64
	RiskAdjustment     float64
	Confidence         float64
	Summary            string
	Recommendations    []string
	Insights           []InterviewInsight
}

// HistorySource supplies a subject's interview records within a lookback
// window.
type HistorySource interface {
	InterviewHistory(ctx context.Context, subjectID string, lookbackMonths int) ([]domain.InterviewRecord, error)
}

// Analyzer scores interview histories.
type Analyzer struct {
	source HistorySource
	logger *zap.Logger
	now    func() time.Time
}

// NewAnalyzer creates an interview analyzer over the given history source.
func NewAnalyzer(source HistorySource, logger *zap.Logger) *Analyzer {
	return &Analyzer{source: source, logger: logger, now: time.Now}
}

// Analyze scores every interview in the lookback window and aggregates.
// With zero interviews it returns a fixed low-confidence result
// recommending a stay interview; it never returns an error to the caller's
// risk pipeline — a history read failure is treated as zero interviews.
func (a *Analyzer) Analyze(ctx context.Context, subject *domain.SubjectRecord, lookbackMonths int) *InterviewAnalysisResult {
	records, err := a.source.InterviewHistory(ctx, subject.ID, lookbackMonths)
	if err != nil {
		a.logger.Warn("interview history read failed, treating as empty",
			zap.String("subject_id", subject.ID),
			zap.Error(err),
		)
		records = nil
	}
	if len(records) == 0 {
		return &InterviewAnalysisResult{
			SubjectID:  subject.ID,
			Confidence: 0.2,
			Summary:    "no interview history on record",
			Recommendations: []string{
				"schedule a stay interview to establish a signal baseline",
			},
		}
	}

	// Most recent first; rank 0 carries the heaviest adjustment weight.
	sorted := append([]domain.InterviewRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.After(sorted[j].Date) })

	now := a.now()
	insights := make([]InterviewInsight, 0, len(sorted))
	var (
		sentimentSum    float64
		sentimentWeight float64
		adjSum          float64
		adjWeight       float64
		recentCount     int
		recentRank      int
	)

	for _, rec := range sorted {
		insight := analyzeOne(&rec)
		insights = append(insights, insight)

		recent := now.Sub(rec.Date) <= recencyWindow
		if recent {
			recentCount++
			w := 1.0 / float64(recentRank+1)
			adjSum += insight.RiskAdjustment * w
			adjWeight += w
			recentRank++
			sentimentSum += insight.Sentiment
			sentimentWeight += 1.0
		} else {
			sentimentSum += 0.5 * insight.Sentiment
			sentimentWeight += 0.5
		}
	}

	aggregateSentiment := 0.0
	if sentimentWeight > 0 {
		aggregateSentiment = sentimentSum / sentimentWeight
	}
	riskAdjustment := 0.0
	if adjWeight > 0 {
		riskAdjustment = clampAdjustment(adjSum / adjWeight)
	}

	recencyFraction := float64(recentCount) / float64(len(sorted))
	confidence := 0.3 + 0.4*recencyFraction + 0.3*math.Min(1, float64(len(sorted))/3)

	return &InterviewAnalysisResult{
		SubjectID:          subject.ID,
		AggregateSentiment: clampSentiment(aggregateSentiment),
		RiskAdjustment:     riskAdjustment,
		Confidence:         domain.Clamp01(confidence),
		Summary:            buildSummary(insights, aggregateSentiment, riskAdjustment),
		Recommendations:    buildRecommendations(insights, riskAdjustment),
		Insights:           insights,
	}
}

// analyzeOne scores a single interview: keyword-tier sentiment (stored
// sentiment wins when present), pattern-based risk signals, and themes.
func analyzeOne(rec *domain.InterviewRecord) InterviewInsight {
	notes := strings.ToLower(rec.Notes)

	sentiment := 0.0
	for _, tier := range sentimentTiers {
		for _, kw := range tier.keywords {
			if strings.Contains(notes, kw) {
				sentiment += tier.weight
			}
		}
	}
	sentiment = clampSentiment(sentiment)
	if rec.Sentiment != nil {
		sentiment = clampSentiment(*rec.Sentiment)
	}

	var riskSignals, positiveSignals []string
	adjustment := 0.0
	for _, p := range riskPatterns {
		if p.re.MatchString(rec.Notes) {
			adjustment += p.adjustment
			riskSignals = append(riskSignals, p.label)
		}
	}
	for _, p := range positivePatterns {
		if p.re.MatchString(rec.Notes) {
			adjustment += p.adjustment
			positiveSignals = append(positiveSignals, p.label)
		}
	}
	adjustment = clampAdjustment(adjustment)

	if rec.Kind == "exit" && adjustment < exitRiskFloor {
		adjustment = exitRiskFloor
	}

	var themes []string
	for _, topic := range themeTopics {
		for _, kw := range topic.keywords {
			if strings.Contains(notes, kw) {
				themes = append(themes, topic.theme)
				break
			}
		}
		if len(themes) == maxThemes {
			break
		}
	}

	return InterviewInsight{
		InterviewID:     rec.ID,
		Kind:            rec.Kind,
		Date:            rec.Date,
		Sentiment:       sentiment,
		RiskSignals:     riskSignals,
		PositiveSignals: positiveSignals,
		Themes:          themes,
		RiskAdjustment:  adjustment,
	}
}

func buildSummary(insights []InterviewInsight, sentiment, adjustment float64) string {
	tone := "neutral"
	switch {
	case sentiment <= -0.3:
		tone = "negative"
	case sentiment >= 0.3:
		tone = "positive"
	}

	signals := 0
	for _, in := range insights {
		signals += len(in.RiskSignals)
	}

	return fmt.Sprintf("%d interview(s) analyzed; overall tone %s (%.2f); %d risk signal(s); net risk adjustment %+.2f",
		len(insights), tone, sentiment, signals, adjustment)
}

// buildRecommendations ranks follow-ups: acute risk first, then the themes
// that showed up most.
func buildRecommendations(insights []InterviewInsight, adjustment float64) []string {
	var recs []string
	if adjustment >= exitRiskFloor {
		recs = append(recs, "schedule a retention conversation this week")
	}

	themeCounts := map[string]int{}
	for _, in := range insights {
		for _, t := range in.Themes {
			themeCounts[t]++
		}
	}
	type tc struct {
		theme string
		count int
	}
	ranked := make([]tc, 0, len(themeCounts))
	for t, c := range themeCounts {
		ranked = append(ranked, tc{t, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].theme < ranked[j].theme
	})
	for i, r := range ranked {
		if i == 3 {
			break
		}
		recs = append(recs, fmt.Sprintf("follow up on recurring theme: %s", r.theme))
	}
	if len(recs) == 0 {
		recs = append(recs, "no acute signals; keep the regular 1:1 cadence")
	}
	return recs
}

func clampSentiment(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampAdjustment(v float64) float64 {
	if v < -0.3 {
		return -0.3
	}
	if v > 0.3 {
		return 0.3
	}
	return v
}
