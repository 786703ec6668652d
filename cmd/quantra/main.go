package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"
	"time"

	"quantra/internal/backtest"
	"quantra/internal/config"
	"quantra/internal/exchange"
	"quantra/internal/logger"
	"quantra/internal/market"
	"quantra/internal/strategy"
	httpapi "quantra/internal/transport/http"
)

func main() {
	var (
		cfgPath = flag.String("config", envOr("QUANTRA_CONFIG", "configs/config.yaml"), "config file path")
		mode    = flag.String("mode", "backtest", "backtest | serve | live")
		profile = flag.String("profile", "", "strategy profile to run (backtest/live)")
		start   = flag.String("start", "", "backtest range start (RFC3339 or unix ms)")
		end     = flag.String("end", "", "backtest range end (RFC3339 or unix ms)")
		report  = flag.String("report", "", "write an HTML equity report to this path after a backtest")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.SetLevel(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := exchange.NewBinanceSource(exchange.BinanceConfig{BaseURL: cfg.Data.BaseURL})

	var results *backtest.ResultStore
	if cfg.Backtest.ResultDB != "" {
		results, err = backtest.NewResultStore(cfg.Backtest.ResultDB)
		if err != nil {
			log.Fatalf("open result store: %v", err)
		}
		defer results.Close()
	}
	svc := backtest.NewService(cfg, *cfgPath, source, results)

	switch *mode {
	case "backtest":
		if err := runBacktest(ctx, svc, *profile, *start, *end, *report, results); err != nil {
			log.Fatalf("backtest: %v", err)
		}
	case "serve":
		server, err := httpapi.NewServer(httpapi.Config{Addr: cfg.Server.Addr, Svc: svc, Results: results})
		if err != nil {
			log.Fatalf("init server: %v", err)
		}
		logger.Infof("serving backtest API on %s", cfg.Server.Addr)
		if err := server.Start(ctx); err != nil {
			log.Fatalf("server: %v", err)
		}
	case "live":
		if err := runLive(ctx, cfg, *cfgPath, source, *profile); err != nil {
			log.Fatalf("live: %v", err)
		}
	default:
		log.Fatalf("unknown mode %q (backtest | serve | live)", *mode)
	}
}

func runBacktest(ctx context.Context, svc *backtest.Service, profile, start, end, report string, results *backtest.ResultStore) error {
	if profile == "" {
		return fmt.Errorf("-profile is required")
	}
	startTS, err := parseTime(start)
	if err != nil {
		return fmt.Errorf("-start: %w", err)
	}
	endTS, err := parseTime(end)
	if err != nil {
		return fmt.Errorf("-end: %w", err)
	}

	res, err := svc.Run(ctx, backtest.RunRequest{Profile: profile, StartTS: startTS, EndTS: endTS})
	if err != nil {
		return err
	}
	logger.Infof("run %s: balance %.2f -> %.2f (%.2f%%), %d trades, win rate %.1f%%, max DD %.2f%%",
		res.Config.RunID, res.Config.InitialBalance, res.Stats.FinalBalance,
		res.Stats.ReturnPct*100, res.Stats.Trades, res.Stats.WinRate*100, res.Stats.MaxDrawdownPct*100)

	if report != "" {
		if dir := filepath.Dir(report); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		f, err := os.Create(report)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := backtest.RenderEquityHTML(f, res); err != nil {
			return err
		}
		logger.Infof("equity report written to %s", report)
	}
	return nil
}

// runLive polls closed candles and logs each profile's intent. No orders are
// placed; this is a paper signal feed.
func runLive(ctx context.Context, cfg *config.Config, cfgPath string, source market.Source, only string) error {
	type instance struct {
		name  string
		prof  config.StrategyProfile
		cache *market.Cache
		strat strategy.Strategy
	}

	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		if only != "" && name != only {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return fmt.Errorf("no matching profiles configured")
	}

	var instances []*instance
	for _, name := range names {
		prof := cfg.Profiles[name]
		desc, err := strategy.Lookup(prof.Strategy)
		if err != nil {
			return fmt.Errorf("profile %s: %w", name, err)
		}
		cache, err := market.NewCache(source, market.CacheConfig{
			Symbol:       prof.Symbol,
			Timeframes:   desc.Timeframes(prof),
			Limits:       desc.Lookbacks(prof),
			DefaultLimit: cfg.Data.DefaultLimit,
			MaxAge:       cfg.Data.CacheMaxAge,
		})
		if err != nil {
			return fmt.Errorf("profile %s: %w", name, err)
		}
		strat, err := desc.New(strategy.Deps{Symbol: prof.Symbol, Profile: prof, Provider: cache})
		if err != nil {
			return fmt.Errorf("profile %s: %w", name, err)
		}
		instances = append(instances, &instance{name: name, prof: prof, cache: cache, strat: strat})
	}

	go func() {
		if err := config.Watch(ctx, cfgPath, func(fresh *config.Config) {
			logger.SetLevel(fresh.Log.Level)
			logger.Infof("config reloaded; log level now %q (profile changes need a restart)", fresh.Log.Level)
		}); err != nil && ctx.Err() == nil {
			logger.Warnf("config watch stopped: %v", err)
		}
	}()

	interval := cfg.Data.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	logger.Infof("live signal feed: %d profiles, polling every %s", len(instances), interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for _, inst := range instances {
			if err := inst.cache.RefreshAll(ctx); err != nil {
				logger.Warnf("[%s] refresh: %v", inst.name, err)
				continue
			}
			intent, err := inst.strat.Decide(ctx, strategy.SideFlat)
			if err != nil {
				logger.Errorf("[%s] decide: %v", inst.name, err)
				continue
			}
			if intent.Intent == strategy.IntentNoAction {
				logger.Debugf("[%s] %s no action (%s)", inst.name, inst.prof.Symbol, intent.Reason)
				continue
			}
			logger.Infof("[%s] %s signal %s (%s) stop=%.4f target=%.4f confidence=%.2f",
				inst.name, inst.prof.Symbol, intent.Intent, intent.Reason,
				intent.Meta.StopLoss, intent.Meta.TakeProfit, intent.Meta.Confidence)
		}
	}
}

func parseTime(v string) (int64, error) {
	if v == "" {
		return 0, fmt.Errorf("value is required")
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return 0, fmt.Errorf("want unix ms or RFC3339: %w", err)
	}
	return t.UnixMilli(), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
