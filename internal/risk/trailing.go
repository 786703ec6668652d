package risk

import (
	"quantra/internal/market"
	"quantra/internal/strategy"
)

// TrailingMonitor tracks the best favorable excursion of the open position at
// candle granularity and, once the trigger move is seen, maintains a trailing
// level the replay loop checks intrabar. One monitor per position; Reset on
// every open.
type TrailingMonitor struct {
	TriggerPct  float64
	GivebackPct float64

	best  float64
	armed bool
}

func NewTrailingMonitor(triggerPct, givebackPct float64) *TrailingMonitor {
	return &TrailingMonitor{TriggerPct: triggerPct, GivebackPct: givebackPct}
}

// Reset clears the monitor state for a freshly opened position.
func (t *TrailingMonitor) Reset() {
	t.best = 0
	t.armed = false
}

// Observe folds one candle's extremes into the favorable-excursion ratchet.
func (t *TrailingMonitor) Observe(pos PositionSnapshot, candle market.Candle) {
	if pos.Flat() || t.TriggerPct <= 0 || t.GivebackPct <= 0 {
		return
	}
	switch pos.Side {
	case strategy.SideLong:
		if candle.High > t.best {
			t.best = candle.High
		}
		if !t.armed && pos.EntryPrice > 0 && (t.best-pos.EntryPrice)/pos.EntryPrice >= t.TriggerPct {
			t.armed = true
		}
	case strategy.SideShort:
		if t.best == 0 || candle.Low < t.best {
			t.best = candle.Low
		}
		if !t.armed && pos.EntryPrice > 0 && (pos.EntryPrice-t.best)/pos.EntryPrice >= t.TriggerPct {
			t.armed = true
		}
	}
}

// Level returns the current trailing-stop level; armed=false means no level
// is active yet.
func (t *TrailingMonitor) Level(pos PositionSnapshot) (float64, bool) {
	if !t.armed || pos.Flat() || pos.EntryPrice <= 0 {
		return 0, false
	}
	give := (t.best - pos.EntryPrice) * t.GivebackPct
	return t.best - give, true
}
