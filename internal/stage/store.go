package stage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/luminahr/insight/services/risk_engine/internal/domain"
)

// DefaultStoreTTL is how long a loaded stage table stays fresh.
const DefaultStoreTTL = time.Hour

// StageRowSource abstracts the DB query for testability.
type StageRowSource interface {
	ListStages(ctx context.Context, scope string) ([]StageRow, error)
}

// StageRow is one stage_definitions row. Factors and recommendations are
// stored as JSONB string arrays.
type StageRow struct {
	Name            string
	Ordinal         int
	BaseRisk        float64
	Description     sql.NullString
	RiskFactors     string
	Recommendations string
}

type sqlStageSource struct {
	db *sql.DB
}

func (s *sqlStageSource) ListStages(ctx context.Context, scope string) ([]StageRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, ordinal, base_risk, description, risk_factors, recommendations
		FROM stage_definitions
		WHERE scope = $1
		ORDER BY ordinal
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer rows.Close()

	var out []StageRow
	for rows.Next() {
		var r StageRow
		if err := rows.Scan(&r.Name, &r.Ordinal, &r.BaseRisk, &r.Description, &r.RiskFactors, &r.Recommendations); err != nil {
			return nil, fmt.Errorf("ListStages: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Store loads stage definitions from Postgres with a per-scope TTL cache,
// falling back to the built-in five-stage table when unreachable or when a
// scope defines fewer than five stages.
type Store struct {
	source StageRowSource
	cache  sync.Map // map[string]*stageSetEntry
	ttl    time.Duration
	logger *zap.Logger
}

type stageSetEntry struct {
	stages     []StageDefinition
	expiresAt  time.Time
	refreshing atomic.Bool
}

// StoreConfig configures a stage Store.
type StoreConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewStore creates a Postgres-backed stage store.
func NewStore(cfg StoreConfig) *Store {
	return newStoreWithSource(&sqlStageSource{db: cfg.DB}, cfg.CacheTTL, cfg.Logger)
}

func newStoreWithSource(source StageRowSource, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl == 0 {
		ttl = DefaultStoreTTL
	}
	return &Store{source: source, ttl: ttl, logger: logger}
}

// StageDefinitions returns the ordered stage table for a scope, serving
// stale entries while a background refresh runs.
func (s *Store) StageDefinitions(ctx context.Context, scope string) []StageDefinition {
	if val, ok := s.cache.Load(scope); ok {
		entry := val.(*stageSetEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.stages
		}
		if entry.refreshing.CompareAndSwap(false, true) {
			go s.refreshInBackground(scope)
		}
		return entry.stages
	}
	return s.load(ctx, scope)
}

func (s *Store) refreshInBackground(scope string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.load(ctx, scope)
}

func (s *Store) load(ctx context.Context, scope string) []StageDefinition {
	rows, err := s.source.ListStages(ctx, scope)
	if err != nil {
		s.logger.Warn("stage store unreachable, using default stages",
			zap.String("scope", scope),
			zap.Error(err),
		)
		return s.cacheSet(scope, DefaultStages())
	}
	if len(rows) < 5 {
		if len(rows) > 0 {
			s.logger.Warn("stage table incomplete, using default stages",
				zap.String("scope", scope),
				zap.Int("rows", len(rows)),
			)
		}
		return s.cacheSet(scope, DefaultStages())
	}

	stages := make([]StageDefinition, 0, len(rows))
	for _, row := range rows {
		def, err := parseStageRow(row)
		if err != nil {
			s.logger.Warn("skipping invalid stage definition",
				zap.String("stage", row.Name),
				zap.Error(err),
			)
			continue
		}
		stages = append(stages, def)
	}
	if len(stages) < 5 {
		return s.cacheSet(scope, DefaultStages())
	}
	return s.cacheSet(scope, stages)
}

func (s *Store) cacheSet(scope string, stages []StageDefinition) []StageDefinition {
	s.cache.Store(scope, &stageSetEntry{
		stages:    stages,
		expiresAt: time.Now().Add(s.ttl),
	})
	return stages
}

func parseStageRow(row StageRow) (StageDefinition, error) {
	def := StageDefinition{
		Name:     row.Name,
		Ordinal:  row.Ordinal,
		BaseRisk: row.BaseRisk,
	}
	if row.Description.Valid {
		def.Description = row.Description.String
	}
	if row.RiskFactors != "" && row.RiskFactors != "[]" {
		if err := json.Unmarshal([]byte(row.RiskFactors), &def.RiskFactors); err != nil {
			return def, fmt.Errorf("parseStageRow: risk_factors: %w", err)
		}
	}
	if row.Recommendations != "" && row.Recommendations != "[]" {
		if err := json.Unmarshal([]byte(row.Recommendations), &def.Recommendations); err != nil {
			return def, fmt.Errorf("parseStageRow: recommendations: %w", err)
		}
	}
	return def, nil
}
