package strategy

import (
	"quantra/internal/analysis/indicator"
	"quantra/internal/config"
)

const dayMillis = int64(24 * 60 * 60 * 1000)

// exitEngine owns the bookkeeping around exits: the entry-blocking cooldown
// after stop-outs and the same-UTC-day running PnL that feeds the daily
// drawdown circuit breaker.
type exitEngine struct {
	cfg config.ExitConfig

	cooldownLeft int
	dayKey       int64
	dayPnL       float64
}

func newExitEngine(cfg config.ExitConfig) *exitEngine {
	return &exitEngine{cfg: cfg}
}

// entryBlocked reports why new entries are disallowed on this bar, if they
// are. It consumes one bar of the stop-out cooldown, so a cooldown of N blocks
// exactly the N flat bars after the stop-out; call it once per flat bar.
func (e *exitEngine) entryBlocked(ts int64) (string, bool) {
	if e.cooldownLeft > 0 {
		e.cooldownLeft--
		return ReasonCooldown, true
	}
	e.rollDay(ts)
	if e.dayPnL <= -e.cfg.DailyDrawdownPct {
		return ReasonDailyDrawdown, true
	}
	return "", false
}

func (e *exitEngine) rollDay(ts int64) {
	day := ts / dayMillis
	if day != e.dayKey {
		e.dayKey = day
		e.dayPnL = 0
	}
}

// isStopOut classifies exit reasons that arm the cooldown.
func isStopOut(reason string) bool {
	switch reason {
	case ExitDrawdownStop, ExitTrailingStop, "stop_loss":
		return true
	}
	return false
}

// recordExit folds a realized exit into the day PnL and arms the cooldown on
// stop-outs.
func (e *exitEngine) recordExit(reason string, pnlPct float64, ts int64) {
	e.rollDay(ts)
	e.dayPnL += pnlPct
	if isStopOut(reason) {
		e.cooldownLeft = e.cfg.CooldownBars
	}
}

// evaluate runs the exit rules in fixed priority order against the snapshot
// and the position memory. Returns the matching exit reason, or ok=false to
// keep holding. The memory's favorable-price ratchet must have been advanced
// for this tick before the call.
func (e *exitEngine) evaluate(mc MarketContext, mem *PositionMemory, barMillis int64) (string, bool) {
	if mem == nil || mem.Side == SideFlat {
		return "", false
	}
	price := mc.Price
	pnl := mem.PnLPct(price)

	// 1. Maximum trade duration.
	if barMillis > 0 && e.cfg.MaxDurationBars > 0 {
		held := (mc.Timestamp - mem.OpenedAt) / barMillis
		if held >= int64(e.cfg.MaxDurationBars) {
			return ExitMaxDuration, true
		}
	}

	// 2. Per-trade drawdown stop (fraction of entry price).
	if pnl <= -e.cfg.MaxDrawdownPct {
		return ExitDrawdownStop, true
	}

	// 3. Favorable-price trailing stop, armed once the lock-in move is seen.
	bestPnL := mem.PnLPct(mem.BestFavorablePrice)
	if bestPnL >= e.cfg.TrailLockInPct {
		give := (mem.BestFavorablePrice - mem.EntryPrice) * e.cfg.TrailGivebackPct
		if mem.Side == SideLong {
			if price <= mem.BestFavorablePrice-give {
				return ExitTrailingStop, true
			}
		} else {
			if price >= mem.BestFavorablePrice-give { // give is negative for shorts
				return ExitTrailingStop, true
			}
		}
	}

	// 4. Lateral stall: tight recent range while already in profit.
	if pnl > 0 && indicator.TightRange(mc.Exec, e.cfg.StallBars, e.cfg.StallRangePct) {
		return ExitLateralStall, true
	}

	// 5. Structural exits: VWAP support/resistance lost, RSI extremes.
	if mem.Side == SideLong {
		if price < mc.VWAP && mc.Trend != TrendingUp {
			return ExitVWAPLoss, true
		}
		if mc.RSI >= e.cfg.RSIExitHigh {
			return ExitRSIExtreme, true
		}
	} else {
		if price > mc.VWAP && mc.Trend != TrendingDown {
			return ExitVWAPLoss, true
		}
		if mc.RSI <= e.cfg.RSIExitLow {
			return ExitRSIExtreme, true
		}
	}

	// 6. Volatility fade: ATR contraction plus a tight close range.
	if e.cfg.VolFadeEnabled &&
		mc.ATRMedian > 0 && mc.ATR < e.cfg.VolFadeRatio*mc.ATRMedian &&
		indicator.TightRange(mc.Exec, e.cfg.StallBars, 2*e.cfg.StallRangePct) {
		return ExitVolatilityFade, true
	}

	return "", false
}
