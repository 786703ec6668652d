package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantra/internal/market"
	"quantra/internal/strategy"
)

const minuteMs = 60_000

// scripted replays a fixed intent per call index, recording how much history
// the provider exposed on every tick.
type scripted struct {
	symbol   string
	provider market.CandleProvider
	script   map[int]strategy.TradeIntent
	calls    int
	seen     []int
}

func (s *scripted) Decide(ctx context.Context, _ strategy.Side) (strategy.TradeIntent, error) {
	candles, err := s.provider.Candles(ctx, "1m")
	if err != nil {
		return strategy.TradeIntent{}, err
	}
	s.seen = append(s.seen, len(candles))
	idx := s.calls
	s.calls++
	if intent, ok := s.script[idx]; ok {
		if len(candles) > 0 {
			intent.Timestamp = candles[len(candles)-1].Timestamp
		}
		return intent, nil
	}
	return strategy.NoAction(s.symbol, strategy.ReasonNoSignal, 0), nil
}

func scriptedFactory(s *scripted) StrategyFactory {
	return func(p market.CandleProvider) (strategy.Strategy, error) {
		s.provider = p
		return s, nil
	}
}

func risingCandles(n int, start int64, base float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		price := base + float64(i)
		out[i] = market.Candle{
			Symbol: "BTCUSDT", Timeframe: "1m", Timestamp: start + int64(i)*minuteMs,
			Open: price, High: price + 1, Low: price - 1, Close: price + 0.5, Volume: 10,
		}
	}
	return out
}

func baseRunConfig(start, end int64) RunConfig {
	return RunConfig{
		RunID:              "test-run",
		Symbol:             "BTCUSDT",
		Profile:            "test",
		Strategy:           "scripted",
		StartTS:            start,
		EndTS:              end,
		ExecutionTimeframe: "1m",
		Timeframes:         []string{"1m"},
		InitialBalance:     10_000,
	}
}

func openLong(stop float64) strategy.TradeIntent {
	return strategy.TradeIntent{
		Symbol: "BTCUSDT",
		Intent: strategy.IntentOpenLong,
		Reason: "trend_ignition_long",
		Meta:   strategy.IntentMeta{StopLoss: stop, RiskScale: 1},
	}
}

func closeLong(reason string) strategy.TradeIntent {
	return strategy.TradeIntent{Symbol: "BTCUSDT", Intent: strategy.IntentCloseLong, Reason: reason}
}

func TestRunnerRejectsInvalidRange(t *testing.T) {
	cfg := baseRunConfig(600_000, 600_000)
	_, err := NewRunner(cfg, nil, scriptedFactory(&scripted{symbol: "BTCUSDT"}), RunnerOptions{})
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestRunnerNoExecutionCandles(t *testing.T) {
	frames := map[string][]market.Candle{"1m": risingCandles(5, 0, 100)}

	// Every candle sits before the requested range.
	cfg := baseRunConfig(10*minuteMs, 20*minuteMs)
	r, err := NewRunner(cfg, frames, scriptedFactory(&scripted{symbol: "BTCUSDT"}), RunnerOptions{})
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.ErrorIs(t, err, ErrNoExecutionCandles)

	// No candles loaded at all.
	r, err = NewRunner(cfg, map[string][]market.Candle{"1m": nil}, scriptedFactory(&scripted{symbol: "BTCUSDT"}), RunnerOptions{})
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.ErrorIs(t, err, ErrNoExecutionCandles)
}

func TestRunnerRoundTripOnRisingMarket(t *testing.T) {
	frames := map[string][]market.Candle{"1m": risingCandles(20, 0, 100)}
	cfg := baseRunConfig(0, 19*minuteMs)

	strat := &scripted{symbol: "BTCUSDT", script: map[int]strategy.TradeIntent{
		2: openLong(90),
		8: closeLong(strategy.ExitVWAPLoss),
	}}
	r, err := NewRunner(cfg, frames, scriptedFactory(strat), RunnerOptions{})
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, strategy.SideLong, trade.Side)
	assert.Equal(t, int64(2*minuteMs), trade.EntryTime)
	assert.Equal(t, int64(8*minuteMs), trade.ExitTime)
	assert.Greater(t, trade.PnL, 0.0, "long into a rising market")
	assert.Equal(t, "trend_ignition_long", trade.EntryReason)
	assert.Equal(t, strategy.ExitVWAPLoss, trade.ExitReason)

	assert.Len(t, res.Equity, 20, "one snapshot per processed candle")
	assert.Greater(t, res.Stats.FinalBalance, cfg.InitialBalance)
	assert.Equal(t, 1, res.Stats.Wins)
	assert.Equal(t, 0, res.Stats.Losses)
}

func TestRunnerWarmupVisibleButNotTicked(t *testing.T) {
	frames := map[string][]market.Candle{"1m": risingCandles(20, 0, 100)}
	// Warm-up: first 10 candles precede the range.
	cfg := baseRunConfig(10*minuteMs, 19*minuteMs)

	strat := &scripted{symbol: "BTCUSDT"}
	r, err := NewRunner(cfg, frames, scriptedFactory(strat), RunnerOptions{})
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, strat.calls, "strategy ticks only inside the range")
	require.NotEmpty(t, strat.seen)
	assert.Equal(t, 11, strat.seen[0], "warm-up history visible on the first tick")
	assert.Equal(t, 20, strat.seen[len(strat.seen)-1])
	assert.Len(t, res.Equity, 10)
}

func TestRunnerStopLossFillsAtLevel(t *testing.T) {
	candles := risingCandles(10, 0, 100)
	// Crash through the stop without gapping: open above, low below.
	candles[5] = market.Candle{
		Symbol: "BTCUSDT", Timeframe: "1m", Timestamp: 5 * minuteMs,
		Open: 104, High: 104, Low: 90, Close: 91, Volume: 50,
	}
	frames := map[string][]market.Candle{"1m": candles}
	cfg := baseRunConfig(0, 9*minuteMs)

	strat := &scripted{symbol: "BTCUSDT", script: map[int]strategy.TradeIntent{1: openLong(95)}}
	r, err := NewRunner(cfg, frames, scriptedFactory(strat), RunnerOptions{})
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, "stop_loss", trade.ExitReason)
	assert.Equal(t, int64(5*minuteMs), trade.ExitTime)
	assert.InDelta(t, 95, trade.ExitPrice, 1e-9, "filled at the level, not the close")
	// The strategy is not consulted on the tick the stop fires.
	assert.Equal(t, 9, strat.calls)
}

func TestRunnerStopLossGapFillsAtOpen(t *testing.T) {
	candles := risingCandles(10, 0, 100)
	candles[5] = market.Candle{
		Symbol: "BTCUSDT", Timeframe: "1m", Timestamp: 5 * minuteMs,
		Open: 92, High: 93, Low: 90, Close: 91, Volume: 50,
	}
	frames := map[string][]market.Candle{"1m": candles}
	cfg := baseRunConfig(0, 9*minuteMs)

	strat := &scripted{symbol: "BTCUSDT", script: map[int]strategy.TradeIntent{1: openLong(95)}}
	r, err := NewRunner(cfg, frames, scriptedFactory(strat), RunnerOptions{})
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.InDelta(t, 92, res.Trades[0].ExitPrice, 1e-9, "gapped through the stop, filled at the open")
}

func TestRunnerForceClosesAtEnd(t *testing.T) {
	frames := map[string][]market.Candle{"1m": risingCandles(10, 0, 100)}
	cfg := baseRunConfig(0, 9*minuteMs)

	strat := &scripted{symbol: "BTCUSDT", script: map[int]strategy.TradeIntent{1: openLong(50)}}
	r, err := NewRunner(cfg, frames, scriptedFactory(strat), RunnerOptions{})
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, "end_of_backtest", trade.ExitReason)
	assert.Equal(t, int64(9*minuteMs), trade.ExitTime)
	assert.Greater(t, trade.PnL, 0.0)
}

func TestRunnerRecordsSkips(t *testing.T) {
	frames := map[string][]market.Candle{"1m": risingCandles(10, 0, 100)}
	cfg := baseRunConfig(0, 9*minuteMs)

	// A close with nothing open never produces a plan.
	strat := &scripted{symbol: "BTCUSDT", script: map[int]strategy.TradeIntent{3: closeLong("bogus")}}
	r, err := NewRunner(cfg, frames, scriptedFactory(strat), RunnerOptions{})
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	require.Len(t, res.Skips, 1)
	assert.Equal(t, strategy.IntentCloseLong, res.Skips[0].Intent)
	assert.Equal(t, int64(3*minuteMs), res.Skips[0].Timestamp)
}

// tfWatcher records, per tick, how much of each timeframe the provider
// exposed and the newest visible timestamps.
type tfWatcher struct {
	provider market.CandleProvider
	seen5m   []int
	last1m   []int64
	last5m   []int64
}

func (w *tfWatcher) Decide(ctx context.Context, _ strategy.Side) (strategy.TradeIntent, error) {
	one, err := w.provider.Candles(ctx, "1m")
	if err != nil {
		return strategy.TradeIntent{}, err
	}
	five, err := w.provider.Candles(ctx, "5m")
	if err != nil {
		return strategy.TradeIntent{}, err
	}
	w.seen5m = append(w.seen5m, len(five))
	w.last1m = append(w.last1m, one[len(one)-1].Timestamp)
	if len(five) > 0 {
		w.last5m = append(w.last5m, five[len(five)-1].Timestamp)
	} else {
		w.last5m = append(w.last5m, -1)
	}
	return strategy.NoAction("BTCUSDT", strategy.ReasonNoSignal, 0), nil
}

func TestRunnerAdvancesHigherTimeframeInLockstep(t *testing.T) {
	fiveMin := make([]market.Candle, 4)
	for i := range fiveMin {
		price := 100 + float64(i)
		fiveMin[i] = market.Candle{
			Symbol: "BTCUSDT", Timeframe: "5m", Timestamp: int64(i) * 5 * minuteMs,
			Open: price, High: price + 1, Low: price - 1, Close: price + 0.5, Volume: 50,
		}
	}
	frames := map[string][]market.Candle{
		"1m": risingCandles(20, 0, 100),
		"5m": fiveMin,
	}
	cfg := baseRunConfig(0, 19*minuteMs)
	cfg.Timeframes = []string{"1m", "5m"}

	watcher := &tfWatcher{}
	r, err := NewRunner(cfg, frames, func(p market.CandleProvider) (strategy.Strategy, error) {
		watcher.provider = p
		return watcher, nil
	}, RunnerOptions{})
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, watcher.seen5m, 20)
	for i := 0; i < 20; i++ {
		execTS := int64(i) * minuteMs
		assert.Equal(t, execTS, watcher.last1m[i])
		// Exactly the 5m candles stamped at or before the execution tick.
		assert.Equal(t, i/5+1, watcher.seen5m[i], "tick %d", i)
		assert.Equal(t, int64(i/5)*5*minuteMs, watcher.last5m[i], "tick %d", i)
		assert.LessOrEqual(t, watcher.last5m[i], execTS, "future 5m candle leaked at tick %d", i)
	}
}

func TestRunnerDeterministicReplay(t *testing.T) {
	frames := map[string][]market.Candle{"1m": risingCandles(30, 0, 100)}
	cfg := baseRunConfig(0, 29*minuteMs)
	cfg.FeeRate = 0.001
	cfg.SlippageBps = 5

	run := func() *Result {
		strat := &scripted{symbol: "BTCUSDT", script: map[int]strategy.TradeIntent{
			2:  openLong(90),
			10: closeLong(strategy.ExitLateralStall),
			15: openLong(100),
			25: closeLong(strategy.ExitRSIExtreme),
		}}
		r, err := NewRunner(cfg, frames, scriptedFactory(strat), RunnerOptions{})
		require.NoError(t, err)
		res, err := r.Run(context.Background())
		require.NoError(t, err)
		return res
	}

	first, second := run(), run()
	assert.Equal(t, first.Trades, second.Trades)
	assert.Equal(t, first.Equity, second.Equity)
	assert.Equal(t, first.Stats.FinalBalance, second.Stats.FinalBalance)
}
