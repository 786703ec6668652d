package strategy

import "context"

// Side is the position side a strategy can be in. The empty string means flat.
type Side string

const (
	SideFlat  Side = ""
	SideLong  Side = "long"
	SideShort Side = "short"
)

func (s Side) Opposite() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	default:
		return SideFlat
	}
}

// Intent is the action a strategy wants taken on the current tick.
type Intent string

const (
	IntentOpenLong   Intent = "open_long"
	IntentCloseLong  Intent = "close_long"
	IntentOpenShort  Intent = "open_short"
	IntentCloseShort Intent = "close_short"
	IntentNoAction   Intent = "no_action"
)

// IsOpen reports whether the intent opens a position.
func (i Intent) IsOpen() bool { return i == IntentOpenLong || i == IntentOpenShort }

// IsClose reports whether the intent closes a position.
func (i Intent) IsClose() bool { return i == IntentCloseLong || i == IntentCloseShort }

// Side returns the position side the intent refers to.
func (i Intent) Side() Side {
	switch i {
	case IntentOpenLong, IntentCloseLong:
		return SideLong
	case IntentOpenShort, IntentCloseShort:
		return SideShort
	default:
		return SideFlat
	}
}

// IntentMeta carries the sizing/level hints attached to an intent. Stop and
// target are absolute prices; RiskScale multiplies the account's base risk
// fraction.
type IntentMeta struct {
	Setup      string          `json:"setup,omitempty"`
	StopLoss   float64         `json:"stop_loss,omitempty"`
	TakeProfit float64         `json:"take_profit,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	RiskScale  float64         `json:"risk_scale,omitempty"`
	PnLPct     float64         `json:"pnl_pct,omitempty"`
	Checks     map[string]bool `json:"checks,omitempty"`
}

// TradeIntent is the sole output contract of every strategy: immutable,
// produced fresh each call.
type TradeIntent struct {
	Symbol    string     `json:"symbol"`
	Intent    Intent     `json:"intent"`
	Reason    string     `json:"reason"`
	Timestamp int64      `json:"timestamp"`
	Meta      IntentMeta `json:"meta"`
}

// Well-known intent reasons.
const (
	ReasonInsufficientCandles = "insufficient_candles"
	ReasonNoSignal            = "no_signal"
	ReasonManagePosition      = "manage_position"
	ReasonDuplicateTick       = "duplicate_tick"
	ReasonExternalExit        = "external_exit"
	ReasonCooldown            = "cooldown"
	ReasonDailyDrawdown       = "daily_drawdown"
	ReasonSequenceComplete    = "sequence_complete"

	ExitMaxDuration    = "max_duration"
	ExitDrawdownStop   = "drawdown_stop"
	ExitTrailingStop   = "trailing_stop"
	ExitLateralStall   = "lateral_stall"
	ExitVWAPLoss       = "vwap_loss"
	ExitRSIExtreme     = "rsi_extreme"
	ExitVolatilityFade = "volatility_fade"
)

// NoAction builds the neutral intent.
func NoAction(symbol, reason string, ts int64) TradeIntent {
	return TradeIntent{Symbol: symbol, Intent: IntentNoAction, Reason: reason, Timestamp: ts}
}

// Strategy is the single capability every strategy variant implements, called
// once per closed execution-timeframe candle with the externally observed
// position side.
type Strategy interface {
	Decide(ctx context.Context, position Side) (TradeIntent, error)
}

// PositionMemory tracks the currently open trade for exit-logic purposes:
// created on entry, ratcheted every tick, destroyed on exit or external flat
// sync. It is an explicit struct on the strategy instance, never closure
// state.
type PositionMemory struct {
	Side               Side
	OpenedAt           int64
	EntryPrice         float64
	Stop               float64
	ATROnEntry         float64
	BestFavorablePrice float64
}

// Ratchet advances the best favorable price seen since entry.
func (m *PositionMemory) Ratchet(price float64) {
	switch m.Side {
	case SideLong:
		if price > m.BestFavorablePrice {
			m.BestFavorablePrice = price
		}
	case SideShort:
		if m.BestFavorablePrice == 0 || price < m.BestFavorablePrice {
			m.BestFavorablePrice = price
		}
	}
}

// PnLPct returns the signed favorable move from entry at the given price.
func (m *PositionMemory) PnLPct(price float64) float64 {
	if m.EntryPrice == 0 {
		return 0
	}
	if m.Side == SideShort {
		return (m.EntryPrice - price) / m.EntryPrice
	}
	return (price - m.EntryPrice) / m.EntryPrice
}

// SetupResult is the uniform diagnostics record every setup evaluation
// produces: the named sub-conditions and their truth values, reproducible and
// side-effect free.
type SetupResult struct {
	Name   string          `json:"name"`
	Side   Side            `json:"side"`
	Active bool            `json:"active"`
	Checks map[string]bool `json:"checks"`
}
