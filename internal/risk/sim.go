package risk

import (
	"fmt"

	"quantra/internal/strategy"
)

// FillStatus distinguishes executed plans from inapplicable ones.
type FillStatus string

const (
	FillFilled  FillStatus = "filled"
	FillSkipped FillStatus = "skipped"
)

// Fill is the outcome of one Execute call. RealizedPnL is net of fees and
// only set on closes.
type Fill struct {
	Status      FillStatus
	Quantity    float64
	Price       float64
	Fee         float64
	RealizedPnL float64
	Reason      string
}

// ExecutionEngine is the narrow contract the replay loop drives.
type ExecutionEngine interface {
	Execute(plan *TradePlan, price float64) (Fill, error)
	Position(symbol string) PositionSnapshot
}

type simPosition struct {
	side       strategy.Side
	quantity   float64
	entryPrice float64
	stopLoss   float64
	takeProfit float64
	openedAt   int64
}

// SimEngine is the simulated fill engine used by backtests: market fills at
// the given price adjusted by slippage, taker fee on both sides, single net
// position per symbol.
type SimEngine struct {
	symbol      string
	balance     float64
	feeRate     float64
	slippageBps float64
	clock       int64
	pos         *simPosition
}

func NewSimEngine(symbol string, initialBalance, feeRate, slippageBps float64) (*SimEngine, error) {
	if symbol == "" {
		return nil, fmt.Errorf("sim engine requires a symbol")
	}
	if initialBalance <= 0 {
		return nil, fmt.Errorf("sim engine requires a positive initial balance")
	}
	return &SimEngine{
		symbol:      symbol,
		balance:     initialBalance,
		feeRate:     feeRate,
		slippageBps: slippageBps,
	}, nil
}

// SetClock stamps subsequently opened positions. The replay loop advances it
// to the current candle's timestamp.
func (e *SimEngine) SetClock(ts int64) { e.clock = ts }

func (e *SimEngine) Balance() float64 { return e.balance }

// UnrealizedPnL marks the open position to the given price.
func (e *SimEngine) UnrealizedPnL(price float64) float64 {
	if e.pos == nil {
		return 0
	}
	if e.pos.side == strategy.SideLong {
		return (price - e.pos.entryPrice) * e.pos.quantity
	}
	return (e.pos.entryPrice - price) * e.pos.quantity
}

// Equity is balance plus unrealized PnL at the given price.
func (e *SimEngine) Equity(price float64) float64 {
	return e.balance + e.UnrealizedPnL(price)
}

func (e *SimEngine) Position(symbol string) PositionSnapshot {
	if e.pos == nil || symbol != e.symbol {
		return PositionSnapshot{Symbol: symbol}
	}
	return PositionSnapshot{
		Symbol:     e.symbol,
		Side:       e.pos.side,
		Quantity:   e.pos.quantity,
		EntryPrice: e.pos.entryPrice,
		StopLoss:   e.pos.stopLoss,
		TakeProfit: e.pos.takeProfit,
		OpenedAt:   e.pos.openedAt,
	}
}

func (e *SimEngine) slip(price float64, side strategy.Side, opening bool) float64 {
	slippage := price * e.slippageBps / 10000
	// Paying up on entry, giving back on exit.
	worse := (side == strategy.SideLong) == opening
	if worse {
		return price + slippage
	}
	return price - slippage
}

// Execute fills the plan at price (slippage-adjusted). Plans that do not
// apply to the current position are skipped, never an error; errors are
// reserved for malformed plans.
func (e *SimEngine) Execute(plan *TradePlan, price float64) (Fill, error) {
	if plan == nil {
		return Fill{Status: FillSkipped, Reason: "nil plan"}, nil
	}
	if price <= 0 || plan.Quantity <= 0 {
		return Fill{}, fmt.Errorf("invalid plan: price=%f quantity=%f", price, plan.Quantity)
	}
	switch plan.Action {
	case ActionOpen:
		return e.open(plan, price)
	case ActionClose:
		return e.close(plan, price)
	default:
		return Fill{}, fmt.Errorf("unknown plan action %q", plan.Action)
	}
}

func (e *SimEngine) open(plan *TradePlan, price float64) (Fill, error) {
	if e.pos != nil {
		return Fill{Status: FillSkipped, Reason: "position already open"}, nil
	}
	fillPrice := e.slip(price, plan.Side, true)
	notional := plan.Quantity * fillPrice
	fee := notional * e.feeRate
	if fee > e.balance {
		return Fill{Status: FillSkipped, Reason: "insufficient balance for fee"}, nil
	}
	e.balance -= fee
	e.pos = &simPosition{
		side:       plan.Side,
		quantity:   plan.Quantity,
		entryPrice: fillPrice,
		stopLoss:   plan.StopLoss,
		takeProfit: plan.TakeProfit,
		openedAt:   e.clock,
	}
	return Fill{Status: FillFilled, Quantity: plan.Quantity, Price: fillPrice, Fee: fee}, nil
}

func (e *SimEngine) close(plan *TradePlan, price float64) (Fill, error) {
	if e.pos == nil || e.pos.side != plan.Side {
		return Fill{Status: FillSkipped, Reason: "no matching position"}, nil
	}
	fillPrice := e.slip(price, plan.Side, false)
	pnl := e.pnlAt(fillPrice)
	fee := e.pos.quantity * fillPrice * e.feeRate
	e.balance += pnl - fee
	qty := e.pos.quantity
	e.pos = nil
	return Fill{
		Status:      FillFilled,
		Quantity:    qty,
		Price:       fillPrice,
		Fee:         fee,
		RealizedPnL: pnl - fee,
	}, nil
}

func (e *SimEngine) pnlAt(price float64) float64 {
	if e.pos.side == strategy.SideLong {
		return (price - e.pos.entryPrice) * e.pos.quantity
	}
	return (e.pos.entryPrice - price) * e.pos.quantity
}
