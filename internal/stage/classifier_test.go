package stage

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/luminahr/insight/services/risk_engine/internal/calibration"
	"github.com/luminahr/insight/services/risk_engine/internal/domain"
)

type stubPopulation struct {
	snap *calibration.PopulationSnapshot
}

func (s *stubPopulation) Population(_ context.Context, _ string) (*calibration.PopulationSnapshot, error) {
	return s.snap, nil
}

// calibratedThresholds builds an empirical ThresholdSet over tenures 1..20
// and compensations 31k..50k, giving quintile boundaries [4, 8, 12, 16].
func calibratedThresholds(t *testing.T) *calibration.ThresholdSet {
	t.Helper()
	snap := &calibration.PopulationSnapshot{Features: map[string][]float64{}}
	for i := 1; i <= 20; i++ {
		snap.Probabilities = append(snap.Probabilities, float64(i)*0.05)
		snap.Tenures = append(snap.Tenures, float64(i))
		snap.Features["compensation"] = append(snap.Features["compensation"], float64(30000+i*1000))
	}
	cal := calibration.NewCalibrator(&stubPopulation{snap: snap}, time.Hour, zap.NewNop())
	return cal.Thresholds(context.Background(), "global")
}

func newTestClassifier() *Classifier {
	return NewClassifier(NewStaticProvider(nil), zap.NewNop())
}

func TestClassifier_StageByTenureQuintile(t *testing.T) {
	thresholds := calibratedThresholds(t)
	c := newTestClassifier()

	tests := []struct {
		tenure float64
		stage  string
	}{
		{0.5, "onboarding"},
		{5, "early_career"},
		{9, "established"},
		{13, "senior"},
		{18, "veteran"},
	}
	for _, tt := range tests {
		subject := &domain.SubjectRecord{ID: "s", TenureYears: tt.tenure, HasTenure: true, Status: "active"}
		res := c.Classify(context.Background(), subject, thresholds, "global")
		if res.Stage != tt.stage {
			t.Errorf("tenure %v → stage %q, want %q", tt.tenure, res.Stage, tt.stage)
		}
	}
}

func TestClassifier_Adjustments(t *testing.T) {
	thresholds := calibratedThresholds(t)
	c := newTestClassifier()

	// Onboarding base 0.40, bottom-20% tenure +0.10, entry title +0.05,
	// bottom-quartile compensation +0.05 → 0.60.
	subject := &domain.SubjectRecord{
		ID:           "s1",
		TenureYears:  2,
		Compensation: 30000,
		Position:     "Junior Analyst",
		Status:       "active",
		HasTenure:    true,
		HasComp:      true,
	}
	res := c.Classify(context.Background(), subject, thresholds, "global")
	if want := 0.60; math.Abs(res.Score-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", res.Score, want)
	}
	// All four inputs populated → 0.5 + 0.125·4 = 1.0.
	if res.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want 1.0", res.Confidence)
	}

	// Veteran base 0.15, top-20% tenure −0.05, leadership −0.05,
	// top-quartile compensation −0.03 → clamped at 0.02.
	subject = &domain.SubjectRecord{
		ID:           "s2",
		TenureYears:  19,
		Compensation: 50000,
		Position:     "Director of Engineering",
		Status:       "active",
		HasTenure:    true,
		HasComp:      true,
	}
	res = c.Classify(context.Background(), subject, thresholds, "global")
	if want := 0.02; math.Abs(res.Score-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", res.Score, want)
	}
}

func TestClassifier_StatusAdjustments(t *testing.T) {
	thresholds := calibratedThresholds(t)
	c := newTestClassifier()

	base := &domain.SubjectRecord{ID: "s", TenureYears: 9, HasTenure: true, Status: "active"}
	active := c.Classify(context.Background(), base, thresholds, "global")

	probation := *base
	probation.Status = "probation"
	if res := c.Classify(context.Background(), &probation, thresholds, "global"); math.Abs(res.Score-active.Score-0.10) > 1e-9 {
		t.Fatalf("probation delta = %v, want +0.10", res.Score-active.Score)
	}

	notice := *base
	notice.Status = "notice"
	if res := c.Classify(context.Background(), &notice, thresholds, "global"); math.Abs(res.Score-active.Score-0.30) > 1e-9 {
		t.Fatalf("notice delta = %v, want +0.30", res.Score-active.Score)
	}
}

func TestClassifier_MissingInputsLowerConfidence(t *testing.T) {
	c := newTestClassifier()

	subject := &domain.SubjectRecord{ID: "s"}
	res := c.Classify(context.Background(), subject, calibration.DefaultThresholds(), "global")

	// Unknown tenure lands in the middle stage.
	if res.Stage != "established" {
		t.Fatalf("stage = %q, want established", res.Stage)
	}
	if res.Confidence != 0.5 {
		t.Fatalf("confidence = %v, want 0.5", res.Confidence)
	}
}

func TestClassifier_ScoreClamped(t *testing.T) {
	c := newTestClassifier()
	subject := &domain.SubjectRecord{ID: "s", Status: "notice", TenureYears: 0.1, HasTenure: true}

	res := c.Classify(context.Background(), subject, calibration.DefaultThresholds(), "global")
	if res.Score < 0 || res.Score > 1 {
		t.Fatalf("score %v out of bounds", res.Score)
	}
}
