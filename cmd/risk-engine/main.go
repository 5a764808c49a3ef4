// Command risk-engine wires the reasoning engine against Postgres and
// ClickHouse and runs a batch calculation for the subject ids given on the
// command line.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/luminahr/insight/services/risk_engine/internal/calibration"
	"github.com/luminahr/insight/services/risk_engine/internal/config"
	"github.com/luminahr/insight/services/risk_engine/internal/interview"
	"github.com/luminahr/insight/services/risk_engine/internal/reasoning"
	"github.com/luminahr/insight/services/risk_engine/internal/rules"
	"github.com/luminahr/insight/services/risk_engine/internal/stage"
	"github.com/luminahr/insight/services/risk_engine/internal/storage"
	"github.com/luminahr/insight/services/risk_engine/internal/store"
)

func main() {
	forceRefresh := flag.Bool("force", false, "bypass the result cache")
	flag.Parse()
	subjectIDs := flag.Args()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	logger, err := cfg.BuildLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	if len(subjectIDs) == 0 {
		logger.Fatal("no subject ids given",
			zap.String("usage", "risk-engine [-force] SUBJECT_ID..."),
		)
	}
	// Event sink — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if cfg.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	var (
		subjects    reasoning.SubjectSource
		predictions reasoning.PredictionSource
		peers       rules.PeerSource
		history     interview.HistorySource
		population  calibration.PopulationSource
		ruleSource  rules.Provider
		stages      stage.Provider
	)

	if cfg.PostgresDSN == "" {
		logger.Warn("no POSTGRES_DSN set, running against the in-memory fixture dataset")
		fx := newFixtureStore()
		subjects, predictions, peers, history, population = fx, fx, fx, fx, fx
		ruleSource = rules.NewStaticProvider(rules.DefaultRules(logger))
		stages = stage.NewStaticProvider(nil)
	} else {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}

		readStore := store.NewStore(db)
		subjects, predictions, peers, history, population = readStore, readStore, readStore, readStore, readStore

		ruleStore, err := rules.NewStore(rules.StoreConfig{
			DB:       db,
			CacheTTL: cfg.RuleCacheTTL(),
			Logger:   logger,
		})
		if err != nil {
			logger.Fatal("rule store init failed", zap.Error(err))
		}
		ruleSource = ruleStore
		stages = stage.NewStore(stage.StoreConfig{
			DB:       db,
			CacheTTL: cfg.StageCacheTTL(),
			Logger:   logger,
		})
	}

	calibrator := calibration.NewCalibrator(population, cfg.ThresholdCacheTTL(), logger)

	engine := reasoning.NewEngine(reasoning.Config{
		Predictions:    predictions,
		Subjects:       subjects,
		Calibrator:     calibrator,
		RuleEngine:     rules.NewEngine(peers, logger),
		RuleSource:     ruleSource,
		Classifier:     stage.NewClassifier(stages, logger),
		Stages:         stages,
		Interviews:     interview.NewAnalyzer(history, logger),
		Weights:        cfg.BaseWeights,
		Scope:          cfg.Scope,
		LookbackMonths: cfg.LookbackMonths,
		CacheTTL:       cfg.ResultCacheTTL(),
		Events:         writer,
		Logger:         logger,
	})

	logger.Info("starting batch calculation",
		zap.Int("subjects", len(subjectIDs)),
		zap.Int("max_parallel", cfg.MaxParallel),
		zap.Bool("force_refresh", *forceRefresh),
	)

	batch := engine.CalculateBatch(context.Background(), subjectIDs, cfg.MaxParallel, *forceRefresh)

	for id, res := range batch.Results {
		logger.Info("subject scored",
			zap.String("subject_id", id),
			zap.Float64("final_score", res.FinalScore),
			zap.Float64("final_confidence", res.FinalConfidence),
			zap.String("risk_level", res.RiskLevel),
			zap.String("stage", res.Stage.Stage),
			zap.String("formula", res.Formula),
			zap.Strings("alerts", res.Alerts),
		)
	}
	for id, msg := range batch.Errors {
		logger.Error("subject failed", zap.String("subject_id", id), zap.String("error", msg))
	}

	logger.Info("batch complete",
		zap.Int("succeeded", len(batch.Results)),
		zap.Int("failed", len(batch.Errors)),
		zap.Float64("duration_ms", batch.DurationMs),
	)

	if len(batch.Errors) > 0 && len(batch.Results) == 0 {
		os.Exit(1)
	}
}
