package backtest

import (
	"context"
	"fmt"

	"quantra/internal/logger"
	"quantra/internal/market"
	"quantra/internal/risk"
	"quantra/internal/strategy"
)

// StrategyFactory builds the strategy under test against the replay provider.
type StrategyFactory func(provider market.CandleProvider) (strategy.Strategy, error)

// RunnerOptions carries the optional collaborators of a run. A nil Planner
// gets default sizing; a nil Trailing disables the intrabar trailing stop.
type RunnerOptions struct {
	Planner  *risk.Planner
	Trailing *risk.TrailingMonitor
}

// Runner replays pre-loaded candles against a strategy under a single master
// clock: the execution timeframe. Candles before StartTS are warm-up only;
// the strategy is never invoked for them but can see them through the
// provider. Every decision is made on candle close, while protective levels
// (stop, target, trailing) are checked against the candle's intrabar extremes
// before the strategy runs.
type Runner struct {
	cfg      RunConfig
	provider *frameProvider
	strat    strategy.Strategy
	planner  *risk.Planner
	engine   *risk.SimEngine
	trail    *risk.TrailingMonitor

	result  *Result
	pending *pendingEntry
	peak    float64
}

// pendingEntry links an open fill to the close that completes the round trip.
type pendingEntry struct {
	time   int64
	price  float64
	qty    float64
	fee    float64
	reason string
}

func NewRunner(cfg RunConfig, frames map[string][]market.Candle, build StrategyFactory, opts RunnerOptions) (*Runner, error) {
	if cfg.StartTS >= cfg.EndTS {
		return nil, fmt.Errorf("%w: start=%d end=%d", ErrInvalidRange, cfg.StartTS, cfg.EndTS)
	}
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = 10000
	}
	provider := newFrameProvider(frames)
	strat, err := build(provider)
	if err != nil {
		return nil, fmt.Errorf("build strategy: %w", err)
	}
	engine, err := risk.NewSimEngine(cfg.Symbol, cfg.InitialBalance, cfg.FeeRate, cfg.SlippageBps)
	if err != nil {
		return nil, err
	}
	planner := opts.Planner
	if planner == nil {
		planner = risk.NewPlanner(risk.PlannerConfig{})
	}
	return &Runner{
		cfg:      cfg,
		provider: provider,
		strat:    strat,
		planner:  planner,
		engine:   engine,
		trail:    opts.Trailing,
		peak:     cfg.InitialBalance,
	}, nil
}

// Run replays the configured range and returns the auditable result. The same
// config over the same candles always yields the same result.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	exec := r.provider.frames[r.cfg.ExecutionTimeframe]
	startIdx := -1
	for i, c := range exec {
		if c.Timestamp >= r.cfg.StartTS {
			startIdx = i
			break
		}
	}
	if startIdx < 0 || exec[startIdx].Timestamp > r.cfg.EndTS {
		return nil, ErrNoExecutionCandles
	}

	r.result = &Result{Config: r.cfg}
	var lastClose float64
	var lastTS int64

	for i := startIdx; i < len(exec); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candle := exec[i]
		if candle.Timestamp > r.cfg.EndTS {
			break
		}
		lastClose, lastTS = candle.Close, candle.Timestamp

		r.engine.SetClock(candle.Timestamp)
		r.provider.advanceAll(candle.Timestamp)

		pos := r.engine.Position(r.cfg.Symbol)
		if !pos.Flat() {
			if price, reason, hit := r.protectiveTouch(pos, candle); hit {
				r.forceClose(pos, price, candle.Timestamp, reason)
				r.snapshot(candle.Timestamp, candle.Close)
				continue
			}
			if r.trail != nil {
				r.trail.Observe(pos, candle)
			}
		}

		intent, err := r.strat.Decide(ctx, pos.Side)
		if err != nil {
			logger.Errorf("backtest: decide at %d: %v", candle.Timestamp, err)
			r.snapshot(candle.Timestamp, candle.Close)
			continue
		}
		if intent.Intent != strategy.IntentNoAction {
			r.apply(intent, pos, candle)
		}
		r.snapshot(candle.Timestamp, candle.Close)
	}

	if pos := r.engine.Position(r.cfg.Symbol); !pos.Flat() {
		r.forceClose(pos, lastClose, lastTS, "end_of_backtest")
		r.snapshot(lastTS, lastClose)
	}
	r.result.computeStats()
	return r.result, nil
}

// protectiveTouch checks the candle's extremes against the position's stop,
// target and armed trailing level, in that order. Fills happen at the level,
// or at the open when the candle gaps through it.
func (r *Runner) protectiveTouch(pos risk.PositionSnapshot, candle market.Candle) (float64, string, bool) {
	long := pos.Side == strategy.SideLong

	touched := func(level float64, below bool) (float64, bool) {
		if level <= 0 {
			return 0, false
		}
		if below {
			if candle.Low > level {
				return 0, false
			}
			if candle.Open <= level {
				return candle.Open, true
			}
		} else {
			if candle.High < level {
				return 0, false
			}
			if candle.Open >= level {
				return candle.Open, true
			}
		}
		return level, true
	}

	if price, ok := touched(pos.StopLoss, long); ok {
		return price, "stop_loss", true
	}
	if price, ok := touched(pos.TakeProfit, !long); ok {
		return price, "take_profit", true
	}
	if r.trail != nil {
		if level, armed := r.trail.Level(pos); armed {
			if price, ok := touched(level, long); ok {
				return price, strategy.ExitTrailingStop, true
			}
		}
	}
	return 0, "", false
}

// apply turns the intent into a plan and executes it, recording either the
// fill or the reason nothing happened.
func (r *Runner) apply(intent strategy.TradeIntent, pos risk.PositionSnapshot, candle market.Candle) {
	plan := r.planner.Plan(intent, candle.Close, r.engine.Equity(candle.Close), pos)
	if plan == nil {
		r.result.Skips = append(r.result.Skips, SkipRecord{
			Timestamp: candle.Timestamp,
			Intent:    intent.Intent,
			Reason:    "no executable plan",
		})
		return
	}
	fill, err := r.engine.Execute(plan, candle.Close)
	if err != nil {
		logger.Errorf("backtest: execute at %d: %v", candle.Timestamp, err)
		return
	}
	if fill.Status == risk.FillSkipped {
		r.result.Skips = append(r.result.Skips, SkipRecord{
			Timestamp: candle.Timestamp,
			Intent:    intent.Intent,
			Reason:    fill.Reason,
		})
		return
	}
	if plan.Action == risk.ActionOpen {
		if r.trail != nil {
			r.trail.Reset()
		}
		r.pending = &pendingEntry{
			time:   candle.Timestamp,
			price:  fill.Price,
			qty:    fill.Quantity,
			fee:    fill.Fee,
			reason: intent.Reason,
		}
		return
	}
	r.recordTrade(plan.Side, fill, candle.Timestamp, intent.Reason)
}

// forceClose liquidates the position at the given price, bypassing the
// strategy. Used for protective levels and end-of-run settlement.
func (r *Runner) forceClose(pos risk.PositionSnapshot, price float64, ts int64, reason string) {
	fill, err := r.engine.Execute(&risk.TradePlan{
		Symbol:   pos.Symbol,
		Action:   risk.ActionClose,
		Side:     pos.Side,
		Quantity: pos.Quantity,
		Reason:   reason,
	}, price)
	if err != nil || fill.Status != risk.FillFilled {
		logger.Errorf("backtest: force close at %d failed: %v %s", ts, err, fill.Reason)
		return
	}
	r.recordTrade(pos.Side, fill, ts, reason)
}

func (r *Runner) recordTrade(side strategy.Side, fill risk.Fill, ts int64, exitReason string) {
	pe := r.pending
	if pe == nil {
		logger.Warnf("backtest: close fill at %d with no recorded entry", ts)
		pe = &pendingEntry{time: ts, price: fill.Price, qty: fill.Quantity}
	}
	pnl := fill.RealizedPnL - pe.fee
	trade := Trade{
		Symbol:      r.cfg.Symbol,
		Side:        side,
		EntryTime:   pe.time,
		ExitTime:    ts,
		EntryPrice:  pe.price,
		ExitPrice:   fill.Price,
		Quantity:    pe.qty,
		Fee:         pe.fee + fill.Fee,
		PnL:         pnl,
		EntryReason: pe.reason,
		ExitReason:  exitReason,
	}
	if notional := pe.price * pe.qty; notional > 0 {
		trade.PnLPct = pnl / notional
	}
	r.result.Trades = append(r.result.Trades, trade)
	r.pending = nil
	if r.trail != nil {
		r.trail.Reset()
	}
}

func (r *Runner) snapshot(ts int64, price float64) {
	equity := r.engine.Equity(price)
	if equity > r.peak {
		r.peak = equity
	}
	var drawdown float64
	if r.peak > 0 {
		drawdown = (r.peak - equity) / r.peak
	}
	r.result.Equity = append(r.result.Equity, EquitySnapshot{
		Timestamp: ts,
		Balance:   r.engine.Balance(),
		Equity:    equity,
		Drawdown:  drawdown,
	})
}
