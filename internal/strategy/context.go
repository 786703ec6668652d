package strategy

import (
	"context"

	"quantra/internal/analysis/indicator"
	"quantra/internal/config"
	"quantra/internal/market"
)

// TrendDirection classifies the confirming-timeframe trend.
type TrendDirection string

const (
	TrendingUp   TrendDirection = "trending_up"
	TrendingDown TrendDirection = "trending_down"
	Ranging      TrendDirection = "ranging"
)

// VolRegime classifies current ATR against its rolling median.
type VolRegime string

const (
	VolLow      VolRegime = "low"
	VolBalanced VolRegime = "balanced"
	VolHigh     VolRegime = "high"
)

func regimeRank(r VolRegime) int {
	switch r {
	case VolLow:
		return 0
	case VolBalanced:
		return 1
	default:
		return 2
	}
}

// MarketContext is the full snapshot the setups and the exit machine read.
// Built fresh per tick from the multi-timeframe candle slices; never mutated
// afterwards.
type MarketContext struct {
	Symbol    string
	Timestamp int64
	Price     float64

	Exec    []market.Candle
	Confirm []market.Candle
	Context []market.Candle

	Trend TrendDirection
	Slope float64

	Regime    VolRegime
	ATR       float64
	ATRMedian float64

	EMAFast float64
	EMASlow float64
	RSI     float64
	VWAP    float64
	VWAPDev float64
	CVD     market.CVDMetrics

	Levels indicator.Levels
}

// fetchFrames pulls the profile's candle slices from the provider. Returns
// ok=false when any consulted timeframe is below its configured minimum bar
// count.
func fetchFrames(ctx context.Context, provider market.CandleProvider, p config.StrategyProfile) (exec, confirm, cctx []market.Candle, ok bool, err error) {
	exec, err = provider.Candles(ctx, p.ExecutionTimeframe)
	if err != nil {
		return nil, nil, nil, false, err
	}
	confirm = exec
	if p.ConfirmTimeframe != "" && p.ConfirmTimeframe != p.ExecutionTimeframe {
		confirm, err = provider.Candles(ctx, p.ConfirmTimeframe)
		if err != nil {
			return nil, nil, nil, false, err
		}
	}
	cctx = confirm
	if p.ContextTimeframe != "" && p.ContextTimeframe != p.ConfirmTimeframe && p.ContextTimeframe != p.ExecutionTimeframe {
		cctx, err = provider.Candles(ctx, p.ContextTimeframe)
		if err != nil {
			return nil, nil, nil, false, err
		}
	}
	if len(exec) < p.MinBarsFor(p.ExecutionTimeframe) {
		return exec, confirm, cctx, false, nil
	}
	if p.ConfirmTimeframe != "" && len(confirm) < p.MinBarsFor(p.ConfirmTimeframe) {
		return exec, confirm, cctx, false, nil
	}
	if p.ContextTimeframe != "" && len(cctx) < p.MinBarsFor(p.ContextTimeframe) {
		return exec, confirm, cctx, false, nil
	}
	return exec, confirm, cctx, true, nil
}

// buildContext computes the indicator battery. ok=false means some indicator
// could not be computed from the available history and the engine should emit
// a no-action tick.
func buildContext(symbol string, p config.StrategyProfile, exec, confirm, cctx []market.Candle) (MarketContext, bool) {
	if len(exec) == 0 {
		return MarketContext{}, false
	}
	last := exec[len(exec)-1]
	mc := MarketContext{
		Symbol:    symbol,
		Timestamp: last.Timestamp,
		Price:     last.Close,
		Exec:      exec,
		Confirm:   confirm,
		Context:   cctx,
	}

	atrSeries, ok := indicator.ATRSeries(exec, p.Entry.ATRPeriod)
	if !ok {
		return mc, false
	}
	mc.ATR, _ = indicator.ATR(exec, p.Entry.ATRPeriod)
	mc.ATRMedian, ok = indicator.RollingMedian(atrSeries, p.Entry.RangeWindow)
	if !ok || mc.ATR == 0 {
		return mc, false
	}
	switch {
	case mc.ATR < 0.8*mc.ATRMedian:
		mc.Regime = VolLow
	case mc.ATR > 1.25*mc.ATRMedian:
		mc.Regime = VolHigh
	default:
		mc.Regime = VolBalanced
	}

	if mc.EMAFast, ok = indicator.EMA(exec, p.Entry.EMAFast); !ok {
		return mc, false
	}
	if mc.EMASlow, ok = indicator.EMA(exec, p.Entry.EMASlow); !ok {
		return mc, false
	}
	if mc.RSI, ok = indicator.RSI(exec, p.Entry.RSIPeriod); !ok {
		return mc, false
	}
	if mc.VWAP, mc.VWAPDev, ok = indicator.VWAP(exec, p.Entry.VWAPWindow); !ok {
		return mc, false
	}
	if mc.Slope, ok = indicator.Slope(confirm, p.Entry.SlopePeriod); !ok {
		return mc, false
	}
	if mc.CVD, ok = market.ComputeCVD(exec); !ok {
		return mc, false
	}
	if mc.Levels, ok = indicator.ComputeLevels(cctx, p.Entry.RangeWindow, p.Entry.SwingLook); !ok {
		return mc, false
	}

	// Slope gives direction, VWAP side confirms it; disagreement is ranging.
	switch {
	case mc.Slope >= p.Entry.MinSlope && mc.Price > mc.VWAP:
		mc.Trend = TrendingUp
	case mc.Slope <= -p.Entry.MinSlope && mc.Price < mc.VWAP:
		mc.Trend = TrendingDown
	default:
		mc.Trend = Ranging
	}
	return mc, true
}
