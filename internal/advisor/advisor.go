package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/stocktester/internal/backtest"
	"github.com/yourusername/stocktester/internal/config"
	"github.com/yourusername/stocktester/internal/jobs"
	"github.com/yourusername/stocktester/internal/logger"
	"github.com/yourusername/stocktester/internal/metrics"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/strategy"
)

// Candidate sources reported in results
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

// ErrNoCandidates is returned when no strategy/parameter combination could be evaluated
var ErrNoCandidates = errors.New("no candidates could be evaluated")

// Options tune the search
type Options struct {
	MaxCandidates        int
	MonteCarloIterations int
}

// Advisor searches strategy templates for the best parameters on an objective
type Advisor struct {
	engine   *backtest.Engine
	loader   jobs.DataLoader
	registry *strategy.Registry
	remote   CandidateSource
	opts     Options
	logger   *logger.AdvisorLogger
}

// New creates an advisor. remote may be nil, in which case only the local grid is searched.
func New(engine *backtest.Engine, loader jobs.DataLoader, remote CandidateSource, opts Options, log *logrus.Logger) *Advisor {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 50
	}
	if opts.MonteCarloIterations <= 0 {
		opts.MonteCarloIterations = 1000
	}
	return &Advisor{
		engine:   engine,
		loader:   loader,
		registry: engine.Registry(),
		remote:   remote,
		opts:     opts,
		logger:   logger.NewAdvisorLogger(log),
	}
}

// NewFromConfig wires the remote client when the ai section enables it
func NewFromConfig(cfg *config.Config, engine *backtest.Engine, loader jobs.DataLoader, log *logrus.Logger) *Advisor {
	var remote CandidateSource
	if cfg.AI.Enabled && cfg.AI.URL != "" {
		ttl := time.Duration(cfg.AI.CacheTTLMinutes) * time.Minute
		remote = NewCachedSource(NewRemoteClient(cfg.AI, log), ttl)
	}
	return New(engine, loader, remote, Options{
		MaxCandidates:        cfg.AI.MaxCandidates,
		MonteCarloIterations: cfg.Engine.MonteCarloIterations,
	}, log)
}

// Handle runs an ai job and satisfies jobs.Handler
func (a *Advisor) Handle(ctx context.Context, record *models.BacktestRecord) (*jobs.Result, error) {
	req, err := models.DecodeAIBacktestRequest(record.Request)
	if err != nil {
		return nil, err
	}
	result, err := a.Recommend(ctx, record.ID, req)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode advisor result: %w", err)
	}
	trades := 0
	if result.Backtest != nil {
		trades = len(result.Backtest.Trades)
	}
	return &jobs.Result{Results: raw, Strategy: result.Best.Strategy, Trades: trades}, nil
}

// Recommend evaluates candidates over the requested data and ranks them by objective
func (a *Advisor) Recommend(ctx context.Context, id string, req models.AIBacktestRequest) (*models.AIBacktestResult, error) {
	if req.Objective == "" {
		req.Objective = models.ObjectiveSharpe
	}
	limit := req.MaxCandidates
	if limit <= 0 || limit > a.opts.MaxCandidates {
		limit = a.opts.MaxCandidates
	}

	data, err := a.loader.Load(ctx, req.Data)
	if err != nil {
		return nil, err
	}

	suggestions, source := a.candidates(ctx, id, req, limit)

	ranked := make([]models.StrategyCandidate, 0, len(suggestions))
	for _, s := range suggestions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		btReq := req.BacktestFor(s.Strategy, s.Parameters)
		outcome, err := a.engine.Run(ctx, &btReq, data)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.WithError(err).WithField("strategy", s.Strategy).Debug("Skipping candidate")
			continue
		}
		metricsOut := outcome.Result.OverallMetrics
		ranked = append(ranked, models.StrategyCandidate{
			Strategy:   s.Strategy,
			Parameters: s.Parameters,
			Score:      score(metricsOut, req.Objective),
			Metrics:    metricsOut,
		})
	}
	if len(ranked) == 0 {
		return nil, ErrNoCandidates
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	best := ranked[0]

	full := req.BacktestFor(best.Strategy, best.Parameters)
	full.Output.IncludeTrades = true
	full.Output.IncludeEquityCurve = true
	outcome, err := a.engine.Run(ctx, &full, data)
	if err != nil {
		return nil, fmt.Errorf("failed to rerun best candidate: %w", err)
	}

	robustness, err := a.robustness(ctx, id, outcome.Trades, req.Execution.InitialCapital)
	if err != nil {
		return nil, err
	}

	a.logger.LogRecommendation(id, best.Strategy, req.Objective, best.Score, len(ranked))
	return &models.AIBacktestResult{
		Objective:  req.Objective,
		Source:     source,
		Best:       &best,
		Candidates: ranked,
		Evaluated:  len(ranked),
		Robustness: robustness,
		Backtest:   outcome.Result,
	}, nil
}

// candidates asks the remote advisor first and falls back to the local grid
func (a *Advisor) candidates(ctx context.Context, id string, req models.AIBacktestRequest, limit int) ([]Suggestion, string) {
	if a.remote != nil {
		suggestReq := SuggestRequest{
			Symbols:       req.Data.Symbols,
			StartDate:     req.Data.StartDate,
			EndDate:       req.Data.EndDate,
			Timeframe:     req.Data.Timeframe,
			Objective:     req.Objective,
			Strategies:    req.Strategies,
			MaxCandidates: limit,
			Templates:     a.templates(req.Strategies),
		}
		cached := false
		if c, ok := a.remote.(*CachedSource); ok {
			cached = c.IsCached(suggestReq)
		}
		suggestions, err := a.remote.Suggest(ctx, suggestReq)
		if err != nil {
			a.logger.LogRemoteAdvisorError(id, err)
		} else if valid := a.filter(suggestions, req.Strategies, limit); len(valid) > 0 {
			a.logger.LogCandidatesGenerated(id, SourceRemote, len(valid), cached)
			metrics.RecordAdvisorCandidates(SourceRemote, len(valid))
			return valid, SourceRemote
		}
	}

	local := LocalGrid(a.registry, req.Strategies, limit)
	a.logger.LogCandidatesGenerated(id, SourceLocal, len(local), false)
	metrics.RecordAdvisorCandidates(SourceLocal, len(local))
	return local, SourceLocal
}

// filter drops remote suggestions the registry rejects, the request excluded
// or that repeat an earlier parameter set
func (a *Advisor) filter(suggestions []Suggestion, allowed []string, limit int) []Suggestion {
	allow := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allow[name] = true
	}
	seen := make(map[string]bool, len(suggestions))
	out := make([]Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if len(allow) > 0 && !allow[s.Strategy] {
			continue
		}
		if s.Parameters == nil {
			s.Parameters = map[string]interface{}{}
		}
		def := models.StrategyDefinition{Name: s.Strategy, Parameters: s.Parameters}
		if err := a.registry.ValidateDefinition(def); err != nil {
			continue
		}
		key := s.Strategy + ":" + backtest.HashParameters(s.Parameters)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (a *Advisor) templates(names []string) []models.StrategyTemplate {
	if len(names) == 0 {
		return a.registry.Templates()
	}
	out := make([]models.StrategyTemplate, 0, len(names))
	for _, name := range names {
		if tmpl, err := a.registry.Template(name); err == nil {
			out = append(out, tmpl)
		}
	}
	return out
}

func (a *Advisor) robustness(ctx context.Context, id string, trades []backtest.Trade, capital float64) (*models.RobustnessReport, error) {
	if len(trades) == 0 {
		return nil, nil
	}
	pnls := make([]float64, len(trades))
	for i, t := range trades {
		pnls[i] = t.PnL.InexactFloat64()
	}
	mc, err := backtest.RunMonteCarlo(ctx, pnls, backtest.MonteCarloConfig{
		Iterations:     a.opts.MonteCarloIterations,
		Seed:           seedFor(id),
		InitialCapital: capital,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run monte carlo: %w", err)
	}
	return &models.RobustnessReport{
		Iterations:        mc.Iterations,
		ReturnP5:          mc.ReturnP5,
		ReturnP50:         mc.ReturnP50,
		ReturnP95:         mc.ReturnP95,
		MaxDrawdownP95:    mc.MaxDrawdownP95,
		ProbabilityOfLoss: mc.ProbabilityOfLoss,
	}, nil
}

// score reads the objective, treating missing or non-finite values as zero
func score(m models.BacktestMetrics, objective string) float64 {
	v, ok := m.Value(objective)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// seedFor makes the resampling reproducible per backtest
func seedFor(id string) int64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	seed := int64(h.Sum64() & math.MaxInt64)
	if seed == 0 {
		seed = 1
	}
	return seed
}
