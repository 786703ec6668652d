package risk

import (
	"math"

	"quantra/internal/strategy"
)

// PlanAction says what the execution engine should do with a plan.
type PlanAction string

const (
	ActionOpen  PlanAction = "open"
	ActionClose PlanAction = "close"
)

// TradePlan is the sized, leveled order the execution engine consumes.
type TradePlan struct {
	Symbol     string
	Action     PlanAction
	Side       strategy.Side
	Quantity   float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Confidence float64
	Reason     string
}

// PositionSnapshot is the execution engine's view of the open position.
type PositionSnapshot struct {
	Symbol     string
	Side       strategy.Side
	Quantity   float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	OpenedAt   int64
}

func (p PositionSnapshot) Flat() bool { return p.Side == strategy.SideFlat || p.Quantity == 0 }

// PlannerConfig bounds the sizing.
type PlannerConfig struct {
	RiskPerTrade        float64
	MaxPositionFraction float64
	Leverage            int
}

// Planner turns trade intents into sized plans. Pure function of its inputs:
// same intent, price, equity and position always yield the same plan.
type Planner struct {
	cfg PlannerConfig
}

func NewPlanner(cfg PlannerConfig) *Planner {
	if cfg.RiskPerTrade <= 0 {
		cfg.RiskPerTrade = 0.01
	}
	if cfg.MaxPositionFraction <= 0 {
		cfg.MaxPositionFraction = 0.2
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	return &Planner{cfg: cfg}
}

// Plan returns nil when the intent is inapplicable to the current position
// (no action, a close with nothing open, an open while already positioned);
// the caller records the skip.
func (p *Planner) Plan(intent strategy.TradeIntent, price, equity float64, pos PositionSnapshot) *TradePlan {
	if intent.Intent == strategy.IntentNoAction || price <= 0 || equity <= 0 {
		return nil
	}
	side := intent.Intent.Side()
	if intent.Intent.IsClose() {
		if pos.Flat() || pos.Side != side {
			return nil
		}
		return &TradePlan{
			Symbol:   intent.Symbol,
			Action:   ActionClose,
			Side:     side,
			Quantity: pos.Quantity,
			Price:    price,
			Reason:   intent.Reason,
		}
	}
	if !pos.Flat() {
		return nil
	}

	scale := intent.Meta.RiskScale
	if scale <= 0 {
		scale = 1
	}
	riskAmount := equity * p.cfg.RiskPerTrade * scale
	stopDistance := math.Abs(price - intent.Meta.StopLoss)
	if intent.Meta.StopLoss <= 0 || stopDistance == 0 {
		stopDistance = price * 0.01
	}
	qty := riskAmount / stopDistance
	maxNotional := equity * p.cfg.MaxPositionFraction * float64(p.cfg.Leverage)
	if qty*price > maxNotional {
		qty = maxNotional / price
	}
	if qty <= 0 {
		return nil
	}
	return &TradePlan{
		Symbol:     intent.Symbol,
		Action:     ActionOpen,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		StopLoss:   intent.Meta.StopLoss,
		TakeProfit: intent.Meta.TakeProfit,
		Confidence: intent.Meta.Confidence,
		Reason:     intent.Reason,
	}
}
