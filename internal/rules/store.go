package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/luminahr/insight/services/risk_engine/internal/domain"
)

// DefaultStoreTTL is how long a loaded rule set stays fresh.
const DefaultStoreTTL = time.Hour

// ruleDocSchema validates the JSONB definition document of each rule row
// before compilation. Rows failing validation are a RuleParseError: logged,
// skipped, never fatal.
const ruleDocSchema = `{
	"type": "object",
	"required": ["name", "condition", "adjustment"],
	"properties": {
		"name":            {"type": "string", "minLength": 1},
		"condition":       {"type": "string", "minLength": 1},
		"adjustment":      {"type": "number", "minimum": -1, "maximum": 1},
		"priority":        {"type": "integer", "minimum": 1},
		"alert_message":   {"type": "string"},
		"uses_percentile": {"type": "boolean"}
	}
}`

type ruleDoc struct {
	Name           string  `json:"name"`
	Condition      string  `json:"condition"`
	Adjustment     float64 `json:"adjustment"`
	Priority       int     `json:"priority"`
	AlertMessage   string  `json:"alert_message"`
	UsesPercentile bool    `json:"uses_percentile"`
}

// RuleRowSource abstracts the DB query for testability.
type RuleRowSource interface {
	ListRules(ctx context.Context, scope string) ([]RuleRow, error)
}

// RuleRow is one rule_definitions row: id plus its JSONB definition.
type RuleRow struct {
	ID         string
	Definition string
}

type sqlRuleSource struct {
	db *sql.DB
}

func (s *sqlRuleSource) ListRules(ctx context.Context, scope string) ([]RuleRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, definition
		FROM rule_definitions
		WHERE scope = $1 AND enabled
		ORDER BY id
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer rows.Close()

	var out []RuleRow
	for rows.Next() {
		var r RuleRow
		if err := rows.Scan(&r.ID, &r.Definition); err != nil {
			return nil, fmt.Errorf("ListRules: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Store loads rule definitions from Postgres, validates and compiles them
// once, and caches the compiled set per scope with stale-while-revalidate.
// Falls back to the built-in default table when the store errors or returns
// no rows.
type Store struct {
	source   RuleRowSource
	schema   *jsonschema.Schema
	cache    sync.Map // map[string]*ruleSetEntry
	ttl      time.Duration
	fallback []*RuleDefinition
	logger   *zap.Logger
}

type ruleSetEntry struct {
	rules      []*RuleDefinition
	expiresAt  time.Time
	refreshing atomic.Bool
}

// StoreConfig configures a rule Store.
type StoreConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewStore creates a Postgres-backed rule store.
func NewStore(cfg StoreConfig) (*Store, error) {
	return newStoreWithSource(&sqlRuleSource{db: cfg.DB}, cfg.CacheTTL, cfg.Logger)
}

func newStoreWithSource(source RuleRowSource, ttl time.Duration, logger *zap.Logger) (*Store, error) {
	if ttl == 0 {
		ttl = DefaultStoreTTL
	}
	var schemaObj any
	if err := json.Unmarshal([]byte(ruleDocSchema), &schemaObj); err != nil {
		return nil, fmt.Errorf("rule schema unmarshal: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("rule.json", schemaObj); err != nil {
		return nil, fmt.Errorf("rule schema resource: %w", err)
	}
	sch, err := c.Compile("rule.json")
	if err != nil {
		return nil, fmt.Errorf("rule schema compile: %w", err)
	}
	return &Store{
		source:   source,
		schema:   sch,
		ttl:      ttl,
		fallback: DefaultRules(logger),
		logger:   logger,
	}, nil
}

// Rules returns the active rule set for a scope. Stale sets are served
// while one goroutine refreshes in the background.
func (s *Store) Rules(ctx context.Context, scope string) []*RuleDefinition {
	if val, ok := s.cache.Load(scope); ok {
		entry := val.(*ruleSetEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.rules
		}
		if entry.refreshing.CompareAndSwap(false, true) {
			go s.refreshInBackground(scope)
		}
		return entry.rules
	}
	return s.load(ctx, scope)
}

func (s *Store) refreshInBackground(scope string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.load(ctx, scope)
}

func (s *Store) load(ctx context.Context, scope string) []*RuleDefinition {
	rows, err := s.source.ListRules(ctx, scope)
	if err != nil {
		s.logger.Warn("rule store unreachable, using default rule set",
			zap.String("scope", scope),
			zap.Error(err),
		)
		s.cacheSet(scope, s.fallback)
		return s.fallback
	}
	if len(rows) == 0 {
		s.logger.Info("rule store empty, using default rule set", zap.String("scope", scope))
		s.cacheSet(scope, s.fallback)
		return s.fallback
	}

	rules := make([]*RuleDefinition, 0, len(rows))
	for _, row := range rows {
		rule, err := s.parseRow(row)
		if err != nil {
			s.logger.Warn("skipping invalid rule definition",
				zap.String("rule_id", row.ID),
				zap.Error(err),
			)
			continue
		}
		rules = append(rules, rule)
	}
	if len(rules) == 0 {
		s.cacheSet(scope, s.fallback)
		return s.fallback
	}

	s.cacheSet(scope, rules)
	return rules
}

func (s *Store) cacheSet(scope string, rules []*RuleDefinition) {
	s.cache.Store(scope, &ruleSetEntry{
		rules:     rules,
		expiresAt: time.Now().Add(s.ttl),
	})
}

func (s *Store) parseRow(row RuleRow) (*RuleDefinition, error) {
	var docValue any
	if err := json.Unmarshal([]byte(row.Definition), &docValue); err != nil {
		return nil, fmt.Errorf("%w: rule %s: %v", domain.ErrRuleParse, row.ID, err)
	}
	if err := s.schema.Validate(docValue); err != nil {
		return nil, fmt.Errorf("%w: rule %s: %v", domain.ErrRuleParse, row.ID, err)
	}

	var doc ruleDoc
	if err := json.Unmarshal([]byte(row.Definition), &doc); err != nil {
		return nil, fmt.Errorf("%w: rule %s: %v", domain.ErrRuleParse, row.ID, err)
	}
	if doc.Priority == 0 {
		doc.Priority = 3
	}

	rule := &RuleDefinition{
		ID:             row.ID,
		Name:           doc.Name,
		Condition:      doc.Condition,
		Adjustment:     doc.Adjustment,
		Priority:       doc.Priority,
		AlertMessage:   doc.AlertMessage,
		UsesPercentile: doc.UsesPercentile,
	}
	if err := rule.Compile(); err != nil {
		return nil, err
	}
	return rule, nil
}
