// Package store provides the PostgreSQL implementations of the narrow read
// interfaces the reasoning engine consumes: subject records, ML
// predictions, interview history, and the population snapshots the
// calibrator is fed.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/luminahr/insight/services/risk_engine/internal/calibration"
	"github.com/luminahr/insight/services/risk_engine/internal/domain"
)

// Store provides read access to the HR analytics database.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetSubjectRecord loads one subject snapshot. domain.ErrNotFound when the
// id does not exist.
func (s *Store) GetSubjectRecord(ctx context.Context, subjectID string) (*domain.SubjectRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenure_years, compensation, position, department, status
		FROM subjects
		WHERE id = $1
	`, subjectID)

	var (
		rec     domain.SubjectRecord
		tenure  sql.NullFloat64
		comp    sql.NullFloat64
		pos     sql.NullString
		dept    sql.NullString
		status  sql.NullString
	)
	if err := row.Scan(&rec.ID, &tenure, &comp, &pos, &dept, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subject %s: %w", subjectID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetSubjectRecord: %w", err)
	}

	if tenure.Valid {
		rec.TenureYears = tenure.Float64
		rec.HasTenure = true
	}
	if comp.Valid {
		rec.Compensation = comp.Float64
		rec.HasComp = true
	}
	rec.Position = pos.String
	rec.Department = dept.String
	rec.Status = status.String
	return &rec, nil
}

// GetMLPrediction loads the latest stored prediction for a subject.
// domain.ErrNotFound when no prediction exists.
func (s *Store) GetMLPrediction(ctx context.Context, subjectID string) (*domain.MLPrediction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT subject_id, probability, confidence, attribution, predicted_at
		FROM ml_predictions
		WHERE subject_id = $1
		ORDER BY predicted_at DESC
		LIMIT 1
	`, subjectID)

	var (
		pred        domain.MLPrediction
		attribution sql.NullString
	)
	if err := row.Scan(&pred.SubjectID, &pred.Probability, &pred.Confidence, &attribution, &pred.PredictedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("prediction for %s: %w", subjectID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetMLPrediction: %w", err)
	}

	if attribution.Valid && attribution.String != "" && attribution.String != "[]" {
		if err := json.Unmarshal([]byte(attribution.String), &pred.Attribution); err != nil {
			return nil, fmt.Errorf("GetMLPrediction: attribution: %w", err)
		}
	}
	return &pred, nil
}

// InterviewHistory lists a subject's interviews within the lookback window,
// newest first.
func (s *Store) InterviewHistory(ctx context.Context, subjectID string, lookbackMonths int) ([]domain.InterviewRecord, error) {
	cutoff := time.Now().AddDate(0, -lookbackMonths, 0)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, kind, interview_date, notes, sentiment
		FROM interviews
		WHERE subject_id = $1 AND interview_date >= $2
		ORDER BY interview_date DESC
	`, subjectID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("InterviewHistory: %w", err)
	}
	defer rows.Close()

	var out []domain.InterviewRecord
	for rows.Next() {
		var (
			rec       domain.InterviewRecord
			notes     sql.NullString
			sentiment sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &rec.SubjectID, &rec.Kind, &rec.Date, &notes, &sentiment); err != nil {
			return nil, fmt.Errorf("InterviewHistory: %w", err)
		}
		rec.Notes = notes.String
		if sentiment.Valid {
			v := sentiment.Float64
			rec.Sentiment = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Peers lists the active subjects in a department, the default peer group
// for percentile enrichment.
func (s *Store) Peers(ctx context.Context, department string) ([]domain.SubjectRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenure_years, compensation
		FROM subjects
		WHERE department = $1 AND status <> 'exited'
	`, department)
	if err != nil {
		return nil, fmt.Errorf("Peers: %w", err)
	}
	defer rows.Close()

	var out []domain.SubjectRecord
	for rows.Next() {
		var (
			rec    domain.SubjectRecord
			tenure sql.NullFloat64
			comp   sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &tenure, &comp); err != nil {
			return nil, fmt.Errorf("Peers: %w", err)
		}
		if tenure.Valid {
			rec.TenureYears = tenure.Float64
			rec.HasTenure = true
		}
		if comp.Valid {
			rec.Compensation = comp.Float64
			rec.HasComp = true
		}
		rec.Department = department
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Population builds the calibration snapshot for a dataset scope:
// probabilities from the latest predictions plus tenure and compensation
// distributions. Scope "global" spans every active subject.
func (s *Store) Population(ctx context.Context, scope string) (*calibration.PopulationSnapshot, error) {
	snap := &calibration.PopulationSnapshot{
		Features: make(map[string][]float64),
	}

	probRows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (p.subject_id) p.probability
		FROM ml_predictions p
		JOIN subjects sub ON sub.id = p.subject_id
		WHERE sub.status <> 'exited' AND ($1 = 'global' OR sub.department = $1)
		ORDER BY p.subject_id, p.predicted_at DESC
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer probRows.Close()
	for probRows.Next() {
		var p float64
		if err := probRows.Scan(&p); err != nil {
			return nil, fmt.Errorf("Population: %w", err)
		}
		snap.Probabilities = append(snap.Probabilities, p)
	}
	if err := probRows.Err(); err != nil {
		return nil, fmt.Errorf("Population: %w", err)
	}

	subRows, err := s.db.QueryContext(ctx, `
		SELECT tenure_years, compensation
		FROM subjects
		WHERE status <> 'exited' AND ($1 = 'global' OR department = $1)
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer subRows.Close()
	for subRows.Next() {
		var tenure, comp sql.NullFloat64
		if err := subRows.Scan(&tenure, &comp); err != nil {
			return nil, fmt.Errorf("Population: %w", err)
		}
		if tenure.Valid {
			snap.Tenures = append(snap.Tenures, tenure.Float64)
		}
		if comp.Valid {
			snap.Features["compensation"] = append(snap.Features["compensation"], comp.Float64)
		}
	}
	return snap, subRows.Err()
}
