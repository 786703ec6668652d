package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"quantra/internal/config"
	"quantra/internal/logger"
	"quantra/internal/market"
	"quantra/internal/risk"
	"quantra/internal/strategy"
)

// warmupPad is the extra candles fetched before the lookback window so
// indicators have full history on the very first tick.
const warmupPad = 5

// Service resolves profiles, loads candle history and orchestrates runs. It
// holds the config by reference so a profile added on disk after startup can
// still be found after one reload.
type Service struct {
	cfg     *config.Config
	cfgPath string
	source  market.Source
	store   *ResultStore
}

func NewService(cfg *config.Config, cfgPath string, source market.Source, store *ResultStore) *Service {
	return &Service{cfg: cfg, cfgPath: cfgPath, source: source, store: store}
}

// RunRequest is one backtest order. Strategy is optional; when set it must
// match the profile's configured kind.
type RunRequest struct {
	Profile  string `json:"profile"`
	Strategy string `json:"strategy,omitempty"`
	StartTS  int64  `json:"start_ts"`
	EndTS    int64  `json:"end_ts"`
}

// ResolveProfile finds the named profile, reloading the config once if it is
// missing or its strategy kind disagrees with the requested one.
func (s *Service) ResolveProfile(name, kind string) (config.StrategyProfile, error) {
	profile, ok := s.cfg.Profiles[name]
	if !ok || (kind != "" && profile.Strategy != kind) {
		s.reload()
		profile, ok = s.cfg.Profiles[name]
	}
	if !ok {
		return config.StrategyProfile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	if kind != "" && profile.Strategy != kind {
		return config.StrategyProfile{}, fmt.Errorf("%w: profile %q is configured for %q, requested %q",
			ErrProfileMismatch, name, profile.Strategy, kind)
	}
	return profile, nil
}

func (s *Service) reload() {
	if s.cfgPath == "" {
		return
	}
	fresh, err := config.Load(s.cfgPath)
	if err != nil {
		logger.Warnf("backtest: config reload failed: %v", err)
		return
	}
	*s.cfg = *fresh
}

// Run executes one backtest end to end: profile resolution, history load,
// replay, optional persistence.
func (s *Service) Run(ctx context.Context, req RunRequest) (*Result, error) {
	if req.StartTS >= req.EndTS {
		return nil, fmt.Errorf("%w: start=%d end=%d", ErrInvalidRange, req.StartTS, req.EndTS)
	}
	profile, err := s.ResolveProfile(req.Profile, req.Strategy)
	if err != nil {
		return nil, err
	}
	desc, err := strategy.Lookup(profile.Strategy)
	if err != nil {
		return nil, err
	}

	lookbacks := desc.Lookbacks(profile)
	frames, err := s.loadFrames(ctx, profile.Symbol, desc.Timeframes(profile), lookbacks, req.StartTS, req.EndTS)
	if err != nil {
		return nil, err
	}

	cfg := RunConfig{
		RunID:              uuid.NewString(),
		Symbol:             profile.Symbol,
		Profile:            req.Profile,
		Strategy:           profile.Strategy,
		StartTS:            req.StartTS,
		EndTS:              req.EndTS,
		ExecutionTimeframe: profile.ExecutionTimeframe,
		Timeframes:         desc.Timeframes(profile),
		Lookbacks:          lookbacks,
		InitialBalance:     s.cfg.Backtest.InitialBalance,
		FeeRate:            s.cfg.Backtest.FeeRate,
		SlippageBps:        s.cfg.Backtest.SlippageBps,
	}
	return s.run(ctx, cfg, profile, frames)
}

// RunWithFrames replays pre-assembled candles, bypassing the data source.
func (s *Service) RunWithFrames(ctx context.Context, req RunRequest, frames map[string][]market.Candle) (*Result, error) {
	profile, err := s.ResolveProfile(req.Profile, req.Strategy)
	if err != nil {
		return nil, err
	}
	desc, err := strategy.Lookup(profile.Strategy)
	if err != nil {
		return nil, err
	}
	cfg := RunConfig{
		RunID:              uuid.NewString(),
		Symbol:             profile.Symbol,
		Profile:            req.Profile,
		Strategy:           profile.Strategy,
		StartTS:            req.StartTS,
		EndTS:              req.EndTS,
		ExecutionTimeframe: profile.ExecutionTimeframe,
		Timeframes:         desc.Timeframes(profile),
		Lookbacks:          desc.Lookbacks(profile),
		InitialBalance:     s.cfg.Backtest.InitialBalance,
		FeeRate:            s.cfg.Backtest.FeeRate,
		SlippageBps:        s.cfg.Backtest.SlippageBps,
	}
	return s.run(ctx, cfg, profile, frames)
}

func (s *Service) run(ctx context.Context, cfg RunConfig, profile config.StrategyProfile, frames map[string][]market.Candle) (*Result, error) {
	build := func(provider market.CandleProvider) (strategy.Strategy, error) {
		desc, err := strategy.Lookup(profile.Strategy)
		if err != nil {
			return nil, err
		}
		return desc.New(strategy.Deps{Symbol: cfg.Symbol, Profile: profile, Provider: provider})
	}

	var trail *risk.TrailingMonitor
	if profile.Exit.TrailLockInPct > 0 && profile.Exit.TrailGivebackPct > 0 {
		trail = risk.NewTrailingMonitor(profile.Exit.TrailLockInPct, profile.Exit.TrailGivebackPct)
	}
	runner, err := NewRunner(cfg, frames, build, RunnerOptions{
		Planner: risk.NewPlanner(risk.PlannerConfig{
			RiskPerTrade:        s.cfg.Risk.RiskPerTrade,
			MaxPositionFraction: s.cfg.Risk.MaxPositionFraction,
			Leverage:            s.cfg.Risk.Leverage,
		}),
		Trailing: trail,
	})
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, err := runner.Run(ctx)
	if err != nil {
		return nil, err
	}
	logger.Infof("backtest %s finished: %d trades, return %.2f%%, took %s",
		cfg.RunID, result.Stats.Trades, result.Stats.ReturnPct*100, time.Since(started).Round(time.Millisecond))

	if s.store != nil {
		if err := s.store.SaveResult(result); err != nil {
			logger.Errorf("backtest %s: persist result: %v", cfg.RunID, err)
		}
	}
	return result, nil
}

// loadFrames pages history for every consulted timeframe, reaching back far
// enough before StartTS to cover the strategy's warm-up window. Candles flow
// through a Store so ordering and dedup hold regardless of what the source
// returns.
func (s *Service) loadFrames(ctx context.Context, symbol string, timeframes []string, lookbacks map[string]int, startTS, endTS int64) (map[string][]market.Candle, error) {
	const pageSize = 1000

	frames := make(map[string][]market.Candle, len(timeframes))
	for _, tf := range timeframes {
		parsed, err := market.ParseTimeframe(tf)
		if err != nil {
			return nil, err
		}
		lookback := lookbacks[tf]
		if lookback <= 0 {
			lookback = 300
		}
		loadStart := startTS - int64(lookback+warmupPad)*parsed.DurationMillis()

		store := market.NewStore(market.StoreConfig{
			DefaultMaxCandles: int(parsed.ExpectedCandles(loadStart, endTS)) + lookback + warmupPad,
		})
		since := loadStart
		for since <= endTS {
			batch, err := s.source.FetchOHLCV(ctx, symbol, tf, pageSize, since)
			if err != nil {
				return nil, fmt.Errorf("load %s %s history: %w", symbol, tf, err)
			}
			if len(batch) == 0 {
				break
			}
			if err := store.IngestMany(tf, batch); err != nil {
				return nil, err
			}
			last := batch[len(batch)-1].Timestamp
			if last < since {
				break
			}
			since = last + parsed.DurationMillis()
			if len(batch) < pageSize {
				break
			}
		}
		series := store.Series(tf)
		// Drop anything past the range end; warm-up before start stays.
		for len(series) > 0 && series[len(series)-1].Timestamp > endTS {
			series = series[:len(series)-1]
		}
		warmup := 0
		for _, c := range series {
			if c.Timestamp >= startTS {
				break
			}
			warmup++
		}
		if warmup < lookback {
			logger.Warnf("backtest: %s %s warm-up short: have %d candles before range start, want %d",
				symbol, tf, warmup, lookback)
		}
		logger.Debugf("backtest: loaded %d %s candles for %s", len(series), tf, symbol)
		frames[tf] = series
	}
	return frames, nil
}
