package stage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type stubStageSource struct {
	rows []StageRow
	err  error
}

func (s *stubStageSource) ListStages(_ context.Context, _ string) ([]StageRow, error) {
	return s.rows, s.err
}

func TestStageStore_LoadsFiveStages(t *testing.T) {
	rows := make([]StageRow, 0, 5)
	names := []string{"onboarding", "ramping", "core", "senior", "tenured"}
	for i, name := range names {
		rows = append(rows, StageRow{
			Name:            name,
			Ordinal:         i,
			BaseRisk:        float64(40-i*5) / 100,
			Description:     sql.NullString{String: "stage " + name, Valid: true},
			RiskFactors:     `["factor"]`,
			Recommendations: `["rec"]`,
		})
	}
	store := newStoreWithSource(&stubStageSource{rows: rows}, time.Hour, zap.NewNop())

	got := store.StageDefinitions(context.Background(), "global")
	if len(got) != 5 {
		t.Fatalf("stage count = %d, want 5", len(got))
	}
	if got[1].Name != "ramping" || got[1].BaseRisk != 0.35 {
		t.Fatalf("stage parsed wrong: %+v", got[1])
	}
	if len(got[0].RiskFactors) != 1 || got[0].RiskFactors[0] != "factor" {
		t.Fatalf("risk factors parsed wrong: %+v", got[0].RiskFactors)
	}
}

func TestStageStore_FallsBackToDefaults(t *testing.T) {
	t.Run("store error", func(t *testing.T) {
		store := newStoreWithSource(&stubStageSource{err: errors.New("down")}, time.Hour, zap.NewNop())
		got := store.StageDefinitions(context.Background(), "global")
		if len(got) != 5 || got[0].Name != "onboarding" {
			t.Fatalf("expected default stages, got %+v", got)
		}
	})
	t.Run("incomplete table", func(t *testing.T) {
		store := newStoreWithSource(&stubStageSource{rows: []StageRow{{Name: "only"}}}, time.Hour, zap.NewNop())
		got := store.StageDefinitions(context.Background(), "global")
		if len(got) != 5 || got[4].Name != "veteran" {
			t.Fatalf("expected default stages, got %d", len(got))
		}
	})
}
