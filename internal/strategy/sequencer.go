package strategy

import (
	"context"
	"fmt"

	"quantra/internal/config"
	"quantra/internal/market"
)

// sequencerScript drives the full open/close lifecycle on both sides over six
// ticks; used to exercise the execution pipeline end to end without any
// market logic.
var sequencerScript = []Intent{
	IntentOpenLong,
	IntentNoAction,
	IntentCloseLong,
	IntentOpenShort,
	IntentNoAction,
	IntentCloseShort,
}

// Sequencer is a debug strategy: it walks sequencerScript one step per new
// closed bar, then reports sequence_complete forever. A repeated latest-candle
// timestamp does not advance the sequence.
type Sequencer struct {
	symbol   string
	execTF   string
	provider market.CandleProvider

	step   int
	lastTS int64
}

func NewSequencer(deps Deps) (*Sequencer, error) {
	symbol := deps.Symbol
	if symbol == "" {
		symbol = deps.Profile.Symbol
	}
	if symbol == "" {
		return nil, fmt.Errorf("sequencer: symbol is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("sequencer: candle provider is required")
	}
	if _, err := market.ParseTimeframe(deps.Profile.ExecutionTimeframe); err != nil {
		return nil, fmt.Errorf("sequencer: %w", err)
	}
	return &Sequencer{
		symbol:   symbol,
		execTF:   deps.Profile.ExecutionTimeframe,
		provider: deps.Provider,
	}, nil
}

func (s *Sequencer) Decide(ctx context.Context, _ Side) (TradeIntent, error) {
	candles, err := s.provider.Candles(ctx, s.execTF)
	if err != nil {
		return TradeIntent{}, err
	}
	if len(candles) == 0 {
		return NoAction(s.symbol, ReasonInsufficientCandles, 0), nil
	}
	ts := candles[len(candles)-1].Timestamp
	if ts == s.lastTS {
		return NoAction(s.symbol, ReasonDuplicateTick, ts), nil
	}
	s.lastTS = ts

	if s.step >= len(sequencerScript) {
		return NoAction(s.symbol, ReasonSequenceComplete, ts), nil
	}
	intent := sequencerScript[s.step]
	s.step++
	if intent == IntentNoAction {
		return NoAction(s.symbol, ReasonManagePosition, ts), nil
	}
	return TradeIntent{
		Symbol:    s.symbol,
		Intent:    intent,
		Reason:    fmt.Sprintf("sequence_step_%d", s.step),
		Timestamp: ts,
	}, nil
}

// sequencerLookbacks: the sequencer only needs the latest execution bar.
func sequencerLookbacks(p config.StrategyProfile) map[string]int {
	return map[string]int{p.ExecutionTimeframe: 2}
}
