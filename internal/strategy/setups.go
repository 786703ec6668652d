package strategy

import "quantra/internal/config"

// Setup names. One setup per (pattern, side); evaluation order is fixed so
// diagnostics stay stable across runs.
const (
	SetupTrendIgnitionLong   = "trend_ignition_long"
	SetupTrendIgnitionShort  = "trend_ignition_short"
	SetupMeanReversionLong   = "mean_reversion_long"
	SetupMeanReversionShort  = "mean_reversion_short"
	SetupBreakoutTrapLong    = "breakout_trap_long"
	SetupBreakoutTrapShort   = "breakout_trap_short"
	SetupLiquiditySweepLong  = "liquidity_sweep_long"
	SetupLiquiditySweepShort = "liquidity_sweep_short"
)

// DefaultSetupOrder is the priority order used when a profile does not
// configure one.
var DefaultSetupOrder = []string{
	SetupTrendIgnitionLong,
	SetupTrendIgnitionShort,
	SetupLiquiditySweepLong,
	SetupLiquiditySweepShort,
	SetupBreakoutTrapLong,
	SetupBreakoutTrapShort,
	SetupMeanReversionLong,
	SetupMeanReversionShort,
}

// EvaluateSetups runs every setup predicate against the snapshot. Pure: same
// context in, same results out, no state touched.
func EvaluateSetups(mc MarketContext, cfg config.EntryConfig) []SetupResult {
	return []SetupResult{
		evalTrendIgnition(mc, SideLong),
		evalTrendIgnition(mc, SideShort),
		evalMeanReversion(mc, cfg, SideLong),
		evalMeanReversion(mc, cfg, SideShort),
		evalBreakoutTrap(mc, SideLong),
		evalBreakoutTrap(mc, SideShort),
		evalLiquiditySweep(mc, SideLong),
		evalLiquiditySweep(mc, SideShort),
	}
}

func finish(name string, side Side, checks map[string]bool) SetupResult {
	active := true
	for _, v := range checks {
		if !v {
			active = false
			break
		}
	}
	return SetupResult{Name: name, Side: side, Active: active, Checks: checks}
}

// Trend ignition: an established trend with order flow behind it and momentum
// not yet exhausted.
func evalTrendIgnition(mc MarketContext, side Side) SetupResult {
	if side == SideShort {
		checks := map[string]bool{
			"trend_down":      mc.Trend == TrendingDown,
			"cvd_falling":     mc.CVD.Falling(),
			"below_ema_fast":  mc.Price < mc.EMAFast,
			"rsi_has_room":    mc.RSI > 25 && mc.RSI < 50,
			"regime_not_high": mc.Regime != VolHigh,
		}
		return finish(SetupTrendIgnitionShort, side, checks)
	}
	checks := map[string]bool{
		"trend_up":        mc.Trend == TrendingUp,
		"cvd_rising":      mc.CVD.Rising(),
		"above_ema_fast":  mc.Price > mc.EMAFast,
		"rsi_has_room":    mc.RSI > 50 && mc.RSI < 75,
		"regime_not_high": mc.Regime != VolHigh,
	}
	return finish(SetupTrendIgnitionLong, side, checks)
}

// Mean reversion: a stretched move inside a ranging market snapping back
// toward VWAP.
func evalMeanReversion(mc MarketContext, cfg config.EntryConfig, side Side) SetupResult {
	stretch := 1.5 * mc.ATR
	if side == SideShort {
		checks := map[string]bool{
			"ranging":        mc.Trend == Ranging,
			"rsi_overbought": mc.RSI >= 68,
			"above_vwap":     mc.VWAPDev > 0,
			"stretched":      mc.Price-mc.VWAP >= stretch,
			"near_range_high": mc.Levels.RangeHigh > 0 &&
				mc.Price >= mc.Levels.RangeHigh-0.25*mc.ATR,
		}
		return finish(SetupMeanReversionShort, side, checks)
	}
	checks := map[string]bool{
		"ranging":       mc.Trend == Ranging,
		"rsi_oversold":  mc.RSI <= 32,
		"below_vwap":    mc.VWAPDev < 0,
		"stretched":     mc.VWAP-mc.Price >= stretch,
		"near_range_low": mc.Levels.RangeLow > 0 &&
			mc.Price <= mc.Levels.RangeLow+0.25*mc.ATR,
	}
	return finish(SetupMeanReversionLong, side, checks)
}

// Breakout trap: a poke through the prior day's extreme that closed back
// inside, fading the trapped breakout traders.
func evalBreakoutTrap(mc MarketContext, side Side) SetupResult {
	last := mc.Exec[len(mc.Exec)-1]
	if side == SideLong {
		level := mc.Levels.PrevDayLow
		checks := map[string]bool{
			"level_known":       level > 0,
			"poked_below_level": level > 0 && last.Low < level,
			"closed_back_above": last.Close > level,
			"cvd_not_falling":   !mc.CVD.Falling(),
		}
		return finish(SetupBreakoutTrapLong, side, checks)
	}
	level := mc.Levels.PrevDayHigh
	checks := map[string]bool{
		"level_known":       level > 0,
		"poked_above_level": level > 0 && last.High > level,
		"closed_back_below": last.Close < level,
		"cvd_not_rising":    !mc.CVD.Rising(),
	}
	return finish(SetupBreakoutTrapShort, side, checks)
}

// Liquidity sweep: stops beneath a swing point get run, price reclaims the
// level and order flow diverges against the sweep.
func evalLiquiditySweep(mc MarketContext, side Side) SetupResult {
	last := mc.Exec[len(mc.Exec)-1]
	if side == SideLong {
		swing := mc.Levels.SwingLow
		checks := map[string]bool{
			"swing_known":        swing > 0,
			"swept_below_swing":  swing > 0 && last.Low < swing,
			"reclaimed":          last.Close > swing,
			"bullish_divergence": mc.CVD.Divergence == "bullish",
		}
		return finish(SetupLiquiditySweepLong, side, checks)
	}
	swing := mc.Levels.SwingHigh
	checks := map[string]bool{
		"swing_known":        swing > 0,
		"swept_above_swing":  swing > 0 && last.High > swing,
		"rejected":           last.Close < swing,
		"bearish_divergence": mc.CVD.Divergence == "bearish",
	}
	return finish(SetupLiquiditySweepShort, side, checks)
}
