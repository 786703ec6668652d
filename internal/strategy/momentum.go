package strategy

import (
	"context"
	"fmt"

	"quantra/internal/config"
	"quantra/internal/logger"
	"quantra/internal/market"
)

// Momentum is the reference decision engine: context construction from
// multi-timeframe candles, independent setup evaluation, priority/quality
// filtered entry selection, position-memory tracking and the multi-reason
// exit state machine with dynamic risk sizing.
type Momentum struct {
	symbol    string
	profile   config.StrategyProfile
	provider  market.CandleProvider
	barMillis int64

	mem    *PositionMemory
	exits  *exitEngine
	lastTS int64
}

func NewMomentum(deps Deps) (*Momentum, error) {
	tf, err := market.ParseTimeframe(deps.Profile.ExecutionTimeframe)
	if err != nil {
		return nil, fmt.Errorf("momentum: %w", err)
	}
	symbol := deps.Symbol
	if symbol == "" {
		symbol = deps.Profile.Symbol
	}
	if symbol == "" {
		return nil, fmt.Errorf("momentum: symbol is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("momentum: candle provider is required")
	}
	return &Momentum{
		symbol:    symbol,
		profile:   deps.Profile,
		provider:  deps.Provider,
		barMillis: tf.DurationMillis(),
		exits:     newExitEngine(deps.Profile.Exit),
	}, nil
}

// Memory exposes the current position memory (copy) for observability.
func (m *Momentum) Memory() (PositionMemory, bool) {
	if m.mem == nil {
		return PositionMemory{}, false
	}
	return *m.mem, true
}

// Decide implements Strategy. position is the externally observed side; a
// change the engine did not cause resyncs the position memory first.
func (m *Momentum) Decide(ctx context.Context, position Side) (TradeIntent, error) {
	exec, confirm, cctx, enough, err := fetchFrames(ctx, m.provider, m.profile)
	if err != nil {
		return TradeIntent{}, err
	}
	var ts int64
	if len(exec) > 0 {
		ts = exec[len(exec)-1].Timestamp
	}
	if !enough {
		return NoAction(m.symbol, ReasonInsufficientCandles, ts), nil
	}

	// A duplicate tick (same latest candle) must not advance any state.
	if ts == m.lastTS {
		return NoAction(m.symbol, ReasonDuplicateTick, ts), nil
	}
	m.lastTS = ts

	m.syncExternal(position, exec[len(exec)-1])

	mc, ok := buildContext(m.symbol, m.profile, exec, confirm, cctx)
	if !ok {
		return NoAction(m.symbol, ReasonInsufficientCandles, ts), nil
	}

	if m.mem != nil {
		return m.managePosition(mc), nil
	}
	return m.tryEnter(mc), nil
}

// syncExternal reconciles the position memory with the caller-reported side.
func (m *Momentum) syncExternal(position Side, last market.Candle) {
	switch {
	case position == SideFlat && m.mem != nil:
		logger.Debugf("[%s] external flat sync, dropping position memory (%s)", m.symbol, m.mem.Side)
		m.exits.recordExit(ReasonExternalExit, m.mem.PnLPct(last.Close), last.Timestamp)
		m.mem = nil
	case position != SideFlat && (m.mem == nil || m.mem.Side != position):
		logger.Debugf("[%s] external position sync to %s", m.symbol, position)
		m.mem = &PositionMemory{
			Side:               position,
			OpenedAt:           last.Timestamp,
			EntryPrice:         last.Close,
			BestFavorablePrice: last.Close,
		}
	}
}

func (m *Momentum) managePosition(mc MarketContext) TradeIntent {
	m.mem.Ratchet(mc.Price)
	reason, exit := m.exits.evaluate(mc, m.mem, m.barMillis)
	if !exit {
		return NoAction(m.symbol, ReasonManagePosition, mc.Timestamp)
	}
	pnl := m.mem.PnLPct(mc.Price)
	intent := IntentCloseLong
	if m.mem.Side == SideShort {
		intent = IntentCloseShort
	}
	m.exits.recordExit(reason, pnl, mc.Timestamp)
	m.mem = nil
	return TradeIntent{
		Symbol:    m.symbol,
		Intent:    intent,
		Reason:    reason,
		Timestamp: mc.Timestamp,
		Meta:      IntentMeta{PnLPct: pnl},
	}
}

func (m *Momentum) tryEnter(mc MarketContext) TradeIntent {
	if reason, blocked := m.exits.entryBlocked(mc.Timestamp); blocked {
		return NoAction(m.symbol, reason, mc.Timestamp)
	}
	results := EvaluateSetups(mc, m.profile.Entry)
	cand := selectEntry(mc, m.profile.Entry, results)
	if cand == nil {
		return NoAction(m.symbol, ReasonNoSignal, mc.Timestamp)
	}

	intent := IntentOpenLong
	if cand.setup.Side == SideShort {
		intent = IntentOpenShort
	}
	m.mem = &PositionMemory{
		Side:               cand.setup.Side,
		OpenedAt:           mc.Timestamp,
		EntryPrice:         mc.Price,
		Stop:               cand.stop,
		ATROnEntry:         mc.ATR,
		BestFavorablePrice: mc.Price,
	}
	return TradeIntent{
		Symbol:    m.symbol,
		Intent:    intent,
		Reason:    cand.setup.Name,
		Timestamp: mc.Timestamp,
		Meta: IntentMeta{
			Setup:      cand.setup.Name,
			StopLoss:   cand.stop,
			TakeProfit: cand.target,
			Confidence: cand.confidence,
			RiskScale:  cand.riskScale,
			Checks:     cand.setup.Checks,
		},
	}
}
