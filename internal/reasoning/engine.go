package reasoning

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/luminahr/insight/services/risk_engine/internal/calibration"
	"github.com/luminahr/insight/services/risk_engine/internal/domain"
	"github.com/luminahr/insight/services/risk_engine/internal/interview"
	"github.com/luminahr/insight/services/risk_engine/internal/rules"
	"github.com/luminahr/insight/services/risk_engine/internal/stage"
	"github.com/luminahr/insight/services/risk_engine/internal/storage"
)

const (
	// DefaultCacheTTL bounds how long a per-subject result is served
	// without recomputation.
	DefaultCacheTTL = time.Hour

	// DefaultLookbackMonths is the interview history window.
	DefaultLookbackMonths = 24

	// maxParallelCap bounds batch concurrency regardless of caller input.
	maxParallelCap = 20

	// degradedConfidence is assigned to a signal whose component failed;
	// its renormalized weight stays small but the breakdown still shows it.
	degradedConfidence = 0.1
)

// Engine is the reasoning orchestrator.
type Engine struct {
	predictions PredictionSource
	subjects    SubjectSource

	calibrator *calibration.Calibrator
	ruleEngine *rules.Engine
	ruleSource rules.Provider
	classifier *stage.Classifier
	stages     stage.Provider
	interviews *interview.Analyzer

	weights        BaseWeights
	scope          string
	lookbackMonths int
	cacheTTL       time.Duration

	cache  sync.Map // map[string]*ReasoningResult, entries replaced atomically
	events storage.EventWriter
	logger *zap.Logger
	now    func() time.Time
}

// Config wires an Engine. Events may be nil to disable the audit trail.
type Config struct {
	Predictions PredictionSource
	Subjects    SubjectSource

	Calibrator *calibration.Calibrator
	RuleEngine *rules.Engine
	RuleSource rules.Provider
	Classifier *stage.Classifier
	Stages     stage.Provider
	Interviews *interview.Analyzer

	Weights        BaseWeights
	Scope          string
	LookbackMonths int
	CacheTTL       time.Duration
	Events         storage.EventWriter
	Logger         *zap.Logger
}

// NewEngine creates a reasoning engine.
func NewEngine(cfg Config) *Engine {
	weights := cfg.Weights
	if weights == (BaseWeights{}) {
		weights = DefaultBaseWeights()
	}
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	lookback := cfg.LookbackMonths
	if lookback == 0 {
		lookback = DefaultLookbackMonths
	}
	scope := cfg.Scope
	if scope == "" {
		scope = "global"
	}
	return &Engine{
		predictions:    cfg.Predictions,
		subjects:       cfg.Subjects,
		calibrator:     cfg.Calibrator,
		ruleEngine:     cfg.RuleEngine,
		ruleSource:     cfg.RuleSource,
		classifier:     cfg.Classifier,
		stages:         cfg.Stages,
		interviews:     cfg.Interviews,
		weights:        weights,
		scope:          scope,
		lookbackMonths: lookback,
		cacheTTL:       ttl,
		events:         cfg.Events,
		logger:         cfg.Logger,
		now:            time.Now,
	}
}

// Calculate produces (or returns the cached) ReasoningResult for one
// subject. Only a missing subject record or ML prediction is fatal;
// component failures degrade into low-confidence partial signals.
func (e *Engine) Calculate(ctx context.Context, subjectID string, forceRefresh bool) (*ReasoningResult, error) {
	if !forceRefresh {
		if val, ok := e.cache.Load(subjectID); ok {
			res := val.(*ReasoningResult)
			if res.Valid(e.now()) {
				return res, nil
			}
		}
	}

	start := e.now()

	subject, err := e.subjects.GetSubjectRecord(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("subject %s: %w", subjectID, err)
	}
	prediction, err := e.predictions.GetMLPrediction(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("prediction %s: %w", subjectID, err)
	}

	thresholds := e.calibrator.Thresholds(ctx, e.scope)
	heuristic, stageRes, interviewRes := e.fanOut(ctx, subject, prediction, thresholds)

	result := e.blend(subject, prediction, thresholds, heuristic, stageRes, interviewRes, start)

	// Snapshot-replace: the new immutable result takes the cache slot.
	e.cache.Store(subjectID, result)
	e.emitEvent(result, forceRefresh, start)
	return result, nil
}

// signalOutput carries one component's result out of the fan-out.
type signalOutput struct {
	heuristic *rules.HeuristicResult
	stage     *stage.StageResult
	interview *interview.InterviewAnalysisResult
	name      string
	err       error
}

// fanOut runs the three signal components concurrently. They touch disjoint
// inputs, so no coordination beyond the collection channel is needed. A
// panicking component is converted into a degraded signal.
func (e *Engine) fanOut(ctx context.Context, subject *domain.SubjectRecord, prediction *domain.MLPrediction, thresholds *calibration.ThresholdSet) (*rules.HeuristicResult, *stage.StageResult, *interview.InterviewAnalysisResult) {
	ch := make(chan signalOutput, 3)

	run := func(name string, fn func() signalOutput) {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					ch <- signalOutput{name: name, err: fmt.Errorf("%s component panic: %v", name, r)}
				}
			}()
			ch <- fn()
		}()
	}

	run(SignalHeuristic, func() signalOutput {
		ruleSet := e.ruleSource.Rules(ctx, e.scope)
		return signalOutput{
			name:      SignalHeuristic,
			heuristic: e.ruleEngine.Evaluate(ctx, subject, ruleSet, prediction.Probability),
		}
	})
	run(SignalStage, func() signalOutput {
		return signalOutput{
			name:  SignalStage,
			stage: e.classifier.Classify(ctx, subject, thresholds, e.scope),
		}
	})
	run(SignalInterview, func() signalOutput {
		return signalOutput{
			name:      SignalInterview,
			interview: e.interviews.Analyze(ctx, subject, e.lookbackMonths),
		}
	})

	var heuristic *rules.HeuristicResult
	var stageRes *stage.StageResult
	var interviewRes *interview.InterviewAnalysisResult

	for i := 0; i < 3; i++ {
		out := <-ch
		if out.err != nil {
			e.logger.Error("signal component failed, degrading",
				zap.String("subject_id", subject.ID),
				zap.String("signal", out.name),
				zap.Error(out.err),
			)
			continue
		}
		switch out.name {
		case SignalHeuristic:
			heuristic = out.heuristic
		case SignalStage:
			stageRes = out.stage
		case SignalInterview:
			interviewRes = out.interview
		}
	}

	// Degraded stand-ins keep the breakdown complete.
	if heuristic == nil {
		heuristic = &rules.HeuristicResult{Score: prediction.Probability, Confidence: degradedConfidence}
	}
	if stageRes == nil {
		stageRes = &stage.StageResult{Stage: "unknown", Score: 0.5, Confidence: degradedConfidence}
	}
	if interviewRes == nil {
		interviewRes = &interview.InterviewAnalysisResult{SubjectID: subject.ID, Confidence: degradedConfidence}
	}
	return heuristic, stageRes, interviewRes
}

// blend applies confidence-proportional weight renormalization and builds
// the immutable result.
func (e *Engine) blend(subject *domain.SubjectRecord, prediction *domain.MLPrediction, thresholds *calibration.ThresholdSet, heuristic *rules.HeuristicResult, stageRes *stage.StageResult, interviewRes *interview.InterviewAnalysisResult, start time.Time) *ReasoningResult {
	// The interview signal is an adjustment around the ML probability, not
	// an absolute score.
	interviewScore := domain.Clamp01(prediction.Probability + interviewRes.RiskAdjustment)

	breakdown := []SignalBreakdown{
		{Signal: SignalML, Score: domain.Clamp01(prediction.Probability), Confidence: domain.Clamp01(prediction.Confidence), BaseWeight: e.weights.ML},
		{Signal: SignalHeuristic, Score: heuristic.Score, Confidence: heuristic.Confidence, BaseWeight: e.weights.Heuristic},
		{Signal: SignalStage, Score: stageRes.Score, Confidence: stageRes.Confidence, BaseWeight: e.weights.Stage},
		{Signal: SignalInterview, Score: interviewScore, Confidence: interviewRes.Confidence, BaseWeight: e.weights.Interview},
	}

	var total float64
	for i := range breakdown {
		breakdown[i].Weight = breakdown[i].BaseWeight * breakdown[i].Confidence
		total += breakdown[i].Weight
	}
	if total <= 0 {
		// All confidences zero: fall back to the base table.
		for i := range breakdown {
			breakdown[i].Weight = breakdown[i].BaseWeight
			total += breakdown[i].Weight
		}
	}

	var finalScore, finalConfidence float64
	formulaTerms := make([]string, 0, len(breakdown))
	for i := range breakdown {
		breakdown[i].Weight /= total
		finalScore += breakdown[i].Weight * breakdown[i].Score
		finalConfidence += breakdown[i].Weight * breakdown[i].Confidence
		formulaTerms = append(formulaTerms, fmt.Sprintf("%.2f×%s(%.2f)", breakdown[i].Weight, breakdown[i].Signal, breakdown[i].Score))
	}
	finalScore = domain.Clamp01(finalScore)
	finalConfidence = domain.Clamp01(finalConfidence)

	riskLevel := "low"
	switch {
	case finalScore >= thresholds.HighThreshold:
		riskLevel = "high"
	case finalScore >= thresholds.MediumThreshold:
		riskLevel = "medium"
	}

	now := e.now()
	return &ReasoningResult{
		SubjectID:       subject.ID,
		FinalScore:      finalScore,
		FinalConfidence: finalConfidence,
		RiskLevel:       riskLevel,
		Formula:         "final = " + strings.Join(formulaTerms, " + "),
		WeightRationale: fmt.Sprintf("base weights scaled by each signal's confidence and renormalized to sum to 1 (thresholds: %s, n=%d)", thresholds.Method, thresholds.SampleSize),
		Breakdown:       breakdown,
		Heuristic:       heuristic,
		Stage:           stageRes,
		Interview:       interviewRes,
		Alerts:          heuristic.Alerts,
		CalculatedAt:    now,
		CacheValidUntil: now.Add(e.cacheTTL),
	}
}

// CalculateBatch runs Calculate for every subject id under a bounded worker
// pool. One subject's failure is recorded per key and never cancels
// siblings; a cancelled context fails only the subjects still queued.
func (e *Engine) CalculateBatch(ctx context.Context, subjectIDs []string, maxParallel int, forceRefresh bool) *BatchResult {
	if maxParallel < 1 {
		maxParallel = 1
	}
	if maxParallel > maxParallelCap {
		maxParallel = maxParallelCap
	}

	start := time.Now()
	sem := semaphore.NewWeighted(int64(maxParallel))

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]*ReasoningResult, len(subjectIDs))
		errs    = make(map[string]string)
	)

	for _, id := range subjectIDs {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs[id] = fmt.Sprintf("not started: %v", err)
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer sem.Release(1)
			res, err := e.Calculate(ctx, id, forceRefresh)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[id] = err.Error()
				return
			}
			results[id] = res
		}(id)
	}
	wg.Wait()

	return &BatchResult{
		Results:    results,
		Errors:     errs,
		DurationMs: float64(time.Since(start)) / float64(time.Millisecond),
	}
}

// GetStageDefinitionSummary exposes the active stage table.
func (e *Engine) GetStageDefinitionSummary(ctx context.Context) []stage.StageDefinition {
	return e.stages.StageDefinitions(ctx, e.scope)
}

// GetRuleDefinitionSummary exposes the active rule set with counts by
// priority.
func (e *Engine) GetRuleDefinitionSummary(ctx context.Context) RuleSummary {
	ruleSet := e.ruleSource.Rules(ctx, e.scope)
	summary := RuleSummary{
		Rules:            make([]RuleSummaryEntry, 0, len(ruleSet)),
		CountsByPriority: make(map[int]int),
	}
	for _, r := range ruleSet {
		summary.Rules = append(summary.Rules, RuleSummaryEntry{
			ID:             r.ID,
			Name:           r.Name,
			Condition:      r.Condition,
			Adjustment:     r.Adjustment,
			Priority:       r.Priority,
			UsesPercentile: r.UsesPercentile,
		})
		summary.CountsByPriority[r.Priority]++
	}
	return summary
}

func (e *Engine) emitEvent(result *ReasoningResult, forceRefresh bool, start time.Time) {
	if e.events == nil {
		return
	}
	names := make([]string, 0, len(result.Breakdown))
	scores := make([]float64, 0, len(result.Breakdown))
	confidences := make([]float64, 0, len(result.Breakdown))
	weights := make([]float64, 0, len(result.Breakdown))
	for _, b := range result.Breakdown {
		names = append(names, b.Signal)
		scores = append(scores, b.Score)
		confidences = append(confidences, b.Confidence)
		weights = append(weights, b.Weight)
	}
	var triggered []string
	for _, r := range result.Heuristic.Triggered {
		triggered = append(triggered, r.RuleID)
	}
	e.events.Write(&storage.ReasoningEvent{
		EventID:           uuid.NewString(),
		SubjectID:         result.SubjectID,
		Scope:             e.scope,
		Timestamp:         result.CalculatedAt,
		FinalScore:        result.FinalScore,
		FinalConfidence:   result.FinalConfidence,
		RiskLevel:         result.RiskLevel,
		SignalNames:       names,
		SignalScores:      scores,
		SignalConfidences: confidences,
		SignalWeights:     weights,
		Formula:           result.Formula,
		TriggeredRules:    triggered,
		Stage:             result.Stage.Stage,
		InterviewCount:    int32(len(result.Interview.Insights)),
		ForceRefresh:      forceRefresh,
		LatencyMs:         float64(e.now().Sub(start)) / float64(time.Millisecond),
	})
}
