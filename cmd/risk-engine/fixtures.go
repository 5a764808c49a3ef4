package main

import (
	"context"
	"fmt"
	"time"

	"github.com/luminahr/insight/services/risk_engine/internal/calibration"
	"github.com/luminahr/insight/services/risk_engine/internal/domain"
)

// fixtureStore is the in-memory dataset used when no POSTGRES_DSN is
// configured, so the binary stays runnable for demos and smoke checks. It
// implements the same narrow read interfaces as store.Store.
type fixtureStore struct {
	subjects    map[string]*domain.SubjectRecord
	predictions map[string]*domain.MLPrediction
	interviews  map[string][]domain.InterviewRecord
}

func newFixtureStore() *fixtureStore {
	now := time.Now()
	ptr := func(v float64) *float64 { return &v }

	f := &fixtureStore{
		subjects:    make(map[string]*domain.SubjectRecord),
		predictions: make(map[string]*domain.MLPrediction),
		interviews:  make(map[string][]domain.InterviewRecord),
	}

	add := func(id, position, department, status string, tenure, comp, probability float64) {
		f.subjects[id] = &domain.SubjectRecord{
			ID:           id,
			TenureYears:  tenure,
			Compensation: comp,
			Position:     position,
			Department:   department,
			Status:       status,
			HasTenure:    true,
			HasComp:      true,
		}
		f.predictions[id] = &domain.MLPrediction{
			SubjectID:   id,
			Probability: probability,
			Confidence:  0.9,
			PredictedAt: now.Add(-24 * time.Hour),
		}
	}

	// Two departments, spread across tenures and pay bands.
	add("demo-1", "Junior Engineer", "engineering", "active", 0.4, 62000, 0.58)
	add("demo-2", "Engineer", "engineering", "active", 2.5, 84000, 0.31)
	add("demo-3", "Senior Engineer", "engineering", "active", 5.0, 112000, 0.22)
	add("demo-4", "Staff Engineer", "engineering", "active", 8.5, 139000, 0.12)
	add("demo-5", "Engineering Lead", "engineering", "active", 11.0, 158000, 0.09)
	add("demo-6", "Engineer", "engineering", "probation", 0.2, 71000, 0.47)
	add("demo-7", "Senior Engineer", "engineering", "notice", 6.2, 104000, 0.83)
	add("demo-8", "Account Associate", "sales", "active", 1.1, 51000, 0.44)
	add("demo-9", "Account Executive", "sales", "active", 3.3, 78000, 0.27)
	add("demo-10", "Sales Director", "sales", "active", 9.0, 151000, 0.11)
	add("demo-11", "Account Executive", "sales", "active", 4.7, 69000, 0.39)
	add("demo-12", "Account Associate", "sales", "active", 0.8, 48000, 0.52)

	f.interviews["demo-1"] = []domain.InterviewRecord{
		{
			ID:        "iv-1",
			SubjectID: "demo-1",
			Kind:      "one_on_one",
			Date:      now.AddDate(0, -1, 0),
			Notes:     "Feeling frustrated about compensation and unsure there is room for growth here.",
		},
	}
	f.interviews["demo-7"] = []domain.InterviewRecord{
		{
			ID:        "iv-2",
			SubjectID: "demo-7",
			Kind:      "one_on_one",
			Date:      now.AddDate(0, -2, 0),
			Notes:     "A recruiter reached out and I am actively job searching.",
		},
		{
			ID:        "iv-3",
			SubjectID: "demo-7",
			Kind:      "review",
			Date:      now.AddDate(0, -7, 0),
			Notes:     "Burned out after the migration crunch.",
			Sentiment: ptr(-0.4),
		},
	}
	f.interviews["demo-3"] = []domain.InterviewRecord{
		{
			ID:        "iv-4",
			SubjectID: "demo-3",
			Kind:      "stay",
			Date:      now.AddDate(0, -3, 0),
			Notes:     "Happy with the team, excited about the platform roadmap, staying put.",
		},
	}

	return f
}

func (f *fixtureStore) GetSubjectRecord(_ context.Context, subjectID string) (*domain.SubjectRecord, error) {
	if rec, ok := f.subjects[subjectID]; ok {
		return rec, nil
	}
	return nil, fmt.Errorf("subject %s: %w", subjectID, domain.ErrNotFound)
}

func (f *fixtureStore) GetMLPrediction(_ context.Context, subjectID string) (*domain.MLPrediction, error) {
	if p, ok := f.predictions[subjectID]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("prediction for %s: %w", subjectID, domain.ErrNotFound)
}

func (f *fixtureStore) InterviewHistory(_ context.Context, subjectID string, lookbackMonths int) ([]domain.InterviewRecord, error) {
	cutoff := time.Now().AddDate(0, -lookbackMonths, 0)
	var out []domain.InterviewRecord
	for _, rec := range f.interviews[subjectID] {
		if rec.Date.After(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fixtureStore) Peers(_ context.Context, department string) ([]domain.SubjectRecord, error) {
	var out []domain.SubjectRecord
	for _, rec := range f.subjects {
		if rec.Department == department && rec.Status != "exited" {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fixtureStore) Population(_ context.Context, scope string) (*calibration.PopulationSnapshot, error) {
	snap := &calibration.PopulationSnapshot{
		Features: map[string][]float64{},
	}
	for id, rec := range f.subjects {
		if scope != "global" && rec.Department != scope {
			continue
		}
		if rec.Status == "exited" {
			continue
		}
		if p, ok := f.predictions[id]; ok {
			snap.Probabilities = append(snap.Probabilities, p.Probability)
		}
		snap.Tenures = append(snap.Tenures, rec.TenureYears)
		snap.Features["compensation"] = append(snap.Features["compensation"], rec.Compensation)
	}
	return snap, nil
}
