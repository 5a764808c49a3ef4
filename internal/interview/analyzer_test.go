package interview

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/luminahr/insight/services/risk_engine/internal/domain"
)

type stubHistory struct {
	records []domain.InterviewRecord
	err     error
}

func (s *stubHistory) InterviewHistory(_ context.Context, _ string, _ int) ([]domain.InterviewRecord, error) {
	return s.records, s.err
}

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestAnalyzer(records []domain.InterviewRecord, err error) *Analyzer {
	a := NewAnalyzer(&stubHistory{records: records, err: err}, zap.NewNop())
	a.now = func() time.Time { return testNow }
	return a
}

func TestAnalyze_NoInterviews(t *testing.T) {
	a := newTestAnalyzer(nil, nil)
	res := a.Analyze(context.Background(), &domain.SubjectRecord{ID: "s1"}, 24)

	if res.Confidence != 0.2 {
		t.Fatalf("confidence = %v, want 0.2", res.Confidence)
	}
	found := false
	for _, rec := range res.Recommendations {
		if strings.Contains(rec, "stay interview") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a stay-interview recommendation, got %v", res.Recommendations)
	}
}

func TestAnalyze_HistoryErrorTreatedAsEmpty(t *testing.T) {
	a := newTestAnalyzer(nil, errors.New("db down"))
	res := a.Analyze(context.Background(), &domain.SubjectRecord{ID: "s1"}, 24)
	if res.Confidence != 0.2 {
		t.Fatalf("confidence = %v, want 0.2 (degraded, never an error)", res.Confidence)
	}
}

func TestAnalyzeOne_SentimentTiers(t *testing.T) {
	rec := domain.InterviewRecord{
		ID:    "i1",
		Kind:  "one_on_one",
		Date:  testNow.AddDate(0, -1, 0),
		Notes: "Feeling frustrated and undervalued lately.",
	}
	insight := analyzeOne(&rec)
	// Two moderate-tier hits: −0.15 − 0.15 = −0.30.
	if want := -0.30; math.Abs(insight.Sentiment-want) > 1e-9 {
		t.Fatalf("sentiment = %v, want %v", insight.Sentiment, want)
	}
}

func TestAnalyzeOne_StoredSentimentOverrides(t *testing.T) {
	stored := 0.8
	rec := domain.InterviewRecord{
		ID:        "i1",
		Kind:      "one_on_one",
		Date:      testNow,
		Notes:     "miserable and fed up",
		Sentiment: &stored,
	}
	insight := analyzeOne(&rec)
	if insight.Sentiment != 0.8 {
		t.Fatalf("sentiment = %v, want stored 0.8", insight.Sentiment)
	}
}

func TestAnalyzeOne_RiskSignalsAndClamp(t *testing.T) {
	rec := domain.InterviewRecord{
		ID:   "i1",
		Kind: "one_on_one",
		Date: testNow,
		Notes: "Actively job searching, a recruiter reached out, updated my resume, " +
			"thinking about leaving, and there is no room for growth here.",
	}
	insight := analyzeOne(&rec)
	if len(insight.RiskSignals) < 4 {
		t.Fatalf("risk signals = %v", insight.RiskSignals)
	}
	// Raw sum exceeds the cap; adjustment clamps to 0.3.
	if insight.RiskAdjustment != 0.3 {
		t.Fatalf("adjustment = %v, want clamp to 0.3", insight.RiskAdjustment)
	}
}

func TestAnalyzeOne_PositiveSignalsOffset(t *testing.T) {
	rec := domain.InterviewRecord{
		ID:    "i1",
		Kind:  "stay",
		Date:  testNow,
		Notes: "Updated my resume but turned down an offer; committed to the team.",
	}
	insight := analyzeOne(&rec)
	// +0.15 − 0.12 − 0.15 = −0.12.
	if want := -0.12; math.Abs(insight.RiskAdjustment-want) > 1e-9 {
		t.Fatalf("adjustment = %v, want %v", insight.RiskAdjustment, want)
	}
	if len(insight.PositiveSignals) != 2 {
		t.Fatalf("positive signals = %v", insight.PositiveSignals)
	}
}

func TestAnalyzeOne_ExitInterviewFloor(t *testing.T) {
	rec := domain.InterviewRecord{
		ID:    "i1",
		Kind:  "exit",
		Date:  testNow,
		Notes: "It was fine. New opportunity elsewhere.",
	}
	insight := analyzeOne(&rec)
	if insight.RiskAdjustment < 0.15 {
		t.Fatalf("exit interview adjustment = %v, want >= 0.15", insight.RiskAdjustment)
	}
}

func TestAnalyzeOne_ThemesCapped(t *testing.T) {
	rec := domain.InterviewRecord{
		ID:   "i1",
		Kind: "review",
		Date: testNow,
		Notes: "We discussed career growth, salary, my manager, the team, work hours " +
			"and balance, company culture, training, and recognition.",
	}
	insight := analyzeOne(&rec)
	if len(insight.Themes) != 5 {
		t.Fatalf("themes = %v, want cap of 5", insight.Themes)
	}
}

func TestAnalyze_RecencyWeighting(t *testing.T) {
	records := []domain.InterviewRecord{
		{
			ID:    "recent",
			Kind:  "one_on_one",
			Date:  testNow.AddDate(0, -2, 0),
			Notes: "Actively job searching.", // +0.25
		},
		{
			ID:    "old",
			Kind:  "one_on_one",
			Date:  testNow.AddDate(0, -20, 0),
			Notes: "happy and supported", // older: half weight, sentiment only
		},
	}
	a := newTestAnalyzer(records, nil)
	res := a.Analyze(context.Background(), &domain.SubjectRecord{ID: "s1"}, 24)

	// Only the recent interview feeds the adjustment.
	if want := 0.25; math.Abs(res.RiskAdjustment-want) > 1e-9 {
		t.Fatalf("risk adjustment = %v, want %v", res.RiskAdjustment, want)
	}
	// recencyFraction = 1/2, count term = 2/3:
	// 0.3 + 0.4·0.5 + 0.3·(2/3) = 0.7
	if want := 0.7; math.Abs(res.Confidence-want) > 1e-9 {
		t.Fatalf("confidence = %v, want %v", res.Confidence, want)
	}
	if len(res.Insights) != 2 {
		t.Fatalf("insights = %d, want 2", len(res.Insights))
	}
}

func TestAnalyze_RetentionRecommendationOnHighRisk(t *testing.T) {
	records := []domain.InterviewRecord{
		{
			ID:    "i1",
			Kind:  "one_on_one",
			Date:  testNow.AddDate(0, -1, 0),
			Notes: "Actively job searching and considering leaving.",
		},
	}
	a := newTestAnalyzer(records, nil)
	res := a.Analyze(context.Background(), &domain.SubjectRecord{ID: "s1"}, 24)

	if len(res.Recommendations) == 0 || !strings.Contains(res.Recommendations[0], "retention conversation") {
		t.Fatalf("recommendations = %v", res.Recommendations)
	}
}
