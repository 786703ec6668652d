package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantra/internal/market"
)

func exitContext(price float64, ts int64) MarketContext {
	// Wide exec range so the stall/fade checks stay quiet unless a test
	// narrows them.
	exec := walk(20, price, func(i int) float64 { return float64(i%2)*4 - 2 })
	exec[len(exec)-1].Close = price
	return MarketContext{
		Symbol:    "BTCUSDT",
		Timestamp: ts,
		Price:     price,
		Exec:      exec,
		Trend:     TrendingUp,
		Regime:    VolBalanced,
		ATR:       2,
		ATRMedian: 2,
		RSI:       55,
		VWAP:      price - 5,
	}
}

func longMem(entry float64, openedAt int64) *PositionMemory {
	return &PositionMemory{
		Side:               SideLong,
		OpenedAt:           openedAt,
		EntryPrice:         entry,
		Stop:               entry * 0.98,
		ATROnEntry:         2,
		BestFavorablePrice: entry,
	}
}

func TestExitMaxDuration(t *testing.T) {
	e := newExitEngine(testProfile().Exit)
	mem := longMem(100, 0)
	mc := exitContext(100, int64(48)*60000)
	reason, ok := e.evaluate(mc, mem, 60000)
	require.True(t, ok)
	assert.Equal(t, ExitMaxDuration, reason)
}

func TestExitDrawdownStop(t *testing.T) {
	e := newExitEngine(testProfile().Exit)
	mem := longMem(100, 0)
	mc := exitContext(97.9, 60000) // -2.1% vs the 2% cap
	mc.VWAP = 90                   // keep the structural exit out of the way
	reason, ok := e.evaluate(mc, mem, 60000)
	require.True(t, ok)
	assert.Equal(t, ExitDrawdownStop, reason)
}

func TestExitTrailingStopArmsThenFires(t *testing.T) {
	e := newExitEngine(testProfile().Exit)
	mem := longMem(100, 0)

	// Not armed yet: favorable move below the lock-in threshold.
	mem.Ratchet(100.5)
	mc := exitContext(100.2, 60000)
	_, ok := e.evaluate(mc, mem, 60000)
	assert.False(t, ok)

	// Armed at +2%, giveback 40% of the move -> trail at 100 + 2*0.6 = 101.2.
	mem.Ratchet(102)
	mc = exitContext(101.0, 120000)
	reason, ok := e.evaluate(mc, mem, 60000)
	require.True(t, ok)
	assert.Equal(t, ExitTrailingStop, reason)
}

func TestExitTrailingStopShort(t *testing.T) {
	e := newExitEngine(testProfile().Exit)
	mem := &PositionMemory{
		Side:               SideShort,
		OpenedAt:           0,
		EntryPrice:         100,
		BestFavorablePrice: 100,
	}
	mem.Ratchet(98) // +2% favorable for a short
	mc := exitContext(99.0, 60000)
	mc.Trend = TrendingDown
	mc.VWAP = mc.Price + 5
	reason, ok := e.evaluate(mc, mem, 60000)
	require.True(t, ok)
	assert.Equal(t, ExitTrailingStop, reason)
}

func TestExitVWAPLossAndRSIExtreme(t *testing.T) {
	e := newExitEngine(testProfile().Exit)

	mem := longMem(100, 0)
	mc := exitContext(100.5, 60000)
	mc.VWAP = 101 // price below vwap
	mc.Trend = Ranging
	reason, ok := e.evaluate(mc, mem, 60000)
	require.True(t, ok)
	assert.Equal(t, ExitVWAPLoss, reason)

	mem = longMem(100, 0)
	mc = exitContext(100.5, 60000)
	mc.RSI = 80
	reason, ok = e.evaluate(mc, mem, 60000)
	require.True(t, ok)
	assert.Equal(t, ExitRSIExtreme, reason)
}

func TestExitLateralStall(t *testing.T) {
	e := newExitEngine(testProfile().Exit)
	mem := longMem(100, 0)
	mc := exitContext(100.5, 60000)
	// Tight closes over the stall window, position in profit.
	flat := walk(10, 100.5, func(int) float64 { return 0 })
	mc.Exec = flat
	reason, ok := e.evaluate(mc, mem, 60000)
	require.True(t, ok)
	assert.Equal(t, ExitLateralStall, reason)
}

func TestExitVolatilityFade(t *testing.T) {
	cfg := testProfile().Exit
	cfg.VolFadeEnabled = true
	e := newExitEngine(cfg)
	mem := longMem(100, 0)
	mc := exitContext(99.9, 60000) // slightly under water: stall exit stays out
	flat := walk(10, 99.9, func(int) float64 { return 0 })
	mc.Exec = flat
	mc.VWAP = 95
	mc.ATR = 1
	mc.ATRMedian = 2 // contraction: 1 < 0.6*2
	reason, ok := e.evaluate(mc, mem, 60000)
	require.True(t, ok)
	assert.Equal(t, ExitVolatilityFade, reason)
}

func TestCooldownArmsOnStopOutOnly(t *testing.T) {
	e := newExitEngine(testProfile().Exit) // cooldown_bars: 3

	e.recordExit(ExitRSIExtreme, 0.01, 60000)
	_, blocked := e.entryBlocked(120000)
	assert.False(t, blocked, "non stop-out exits must not arm the cooldown")

	// A stop-out blocks exactly the next three flat bars.
	e.recordExit(ExitDrawdownStop, -0.02, 180000)
	for i := 0; i < 3; i++ {
		reason, blocked := e.entryBlocked(240000 + int64(i)*60000)
		require.True(t, blocked, "bar %d after the stop-out", i+1)
		assert.Equal(t, ReasonCooldown, reason)
	}
	_, blocked = e.entryBlocked(480000)
	assert.False(t, blocked)
}

func TestCooldownSingleBarBlocksOneBar(t *testing.T) {
	cfg := testProfile().Exit
	cfg.CooldownBars = 1
	e := newExitEngine(cfg)

	e.recordExit(ExitDrawdownStop, -0.02, 60000)
	reason, blocked := e.entryBlocked(120000)
	require.True(t, blocked, "the bar right after a stop-out is inside a 1-bar cooldown")
	assert.Equal(t, ReasonCooldown, reason)

	_, blocked = e.entryBlocked(180000)
	assert.False(t, blocked)
}

func TestDailyDrawdownBreakerResetsNextDay(t *testing.T) {
	e := newExitEngine(testProfile().Exit)
	ts := int64(1_700_000_000_000)
	e.recordExit(ExitVWAPLoss, -0.03, ts)
	e.recordExit(ExitVWAPLoss, -0.03, ts+60000)

	reason, blocked := e.entryBlocked(ts + 120000)
	require.True(t, blocked)
	assert.Equal(t, ReasonDailyDrawdown, reason)

	// A new UTC day clears the running PnL.
	_, blocked = e.entryBlocked(ts + dayMillis)
	assert.False(t, blocked)
}

func TestSequencerEmitsScriptThenCompletes(t *testing.T) {
	frames := map[string][]market.Candle{"1m": nil}
	prov := &mapProvider{frames: frames}
	profile := testProfile()
	profile.Strategy = "sequencer"
	seq, err := NewSequencer(Deps{Profile: profile, Provider: prov})
	require.NoError(t, err)

	var actions []Intent
	for i := 1; i <= 8; i++ {
		frames["1m"] = append(frames["1m"], market.Candle{
			Timestamp: int64(i) * 60000,
			Open:      100, High: 101, Low: 99, Close: 100, Volume: 1,
		})
		intent, err := seq.Decide(context.Background(), SideFlat)
		require.NoError(t, err)
		if intent.Intent != IntentNoAction {
			actions = append(actions, intent.Intent)
		}
		if i > 6 {
			assert.Equal(t, ReasonSequenceComplete, intent.Reason)
		}
	}
	assert.Equal(t, []Intent{IntentOpenLong, IntentCloseLong, IntentOpenShort, IntentCloseShort}, actions)
}

func TestSequencerIdempotentOnDuplicateTick(t *testing.T) {
	frames := map[string][]market.Candle{"1m": {{
		Timestamp: 60000, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1,
	}}}
	prov := &mapProvider{frames: frames}
	profile := testProfile()
	seq, err := NewSequencer(Deps{Profile: profile, Provider: prov})
	require.NoError(t, err)

	first, err := seq.Decide(context.Background(), SideFlat)
	require.NoError(t, err)
	assert.Equal(t, IntentOpenLong, first.Intent)

	// Same bar again: the sequence must not advance.
	dup, err := seq.Decide(context.Background(), SideFlat)
	require.NoError(t, err)
	assert.Equal(t, IntentNoAction, dup.Intent)
	assert.Equal(t, ReasonDuplicateTick, dup.Reason)

	frames["1m"] = append(frames["1m"], market.Candle{
		Timestamp: 120000, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1,
	})
	next, err := seq.Decide(context.Background(), SideFlat)
	require.NoError(t, err)
	assert.Equal(t, IntentNoAction, next.Intent, "step 2 of the script is a hold")
}

func TestRegistryLookup(t *testing.T) {
	d, err := Lookup("momentum")
	require.NoError(t, err)
	assert.Equal(t, KindMomentum, d.Kind)

	_, err = Lookup("does_not_exist")
	require.ErrorIs(t, err, ErrUnknownStrategy)

	assert.Equal(t, []string{"momentum", "sequencer"}, Kinds())
}
