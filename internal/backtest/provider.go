package backtest

import (
	"context"
	"fmt"

	"quantra/internal/market"
)

// frameProvider is the store-backed CandleProvider the replay loop hands to
// strategies: pre-loaded per-timeframe slices bounded by monotonic cursors,
// so a strategy only ever sees candles closed at or before the current
// execution timestamp. Reads are synchronous; nothing here suspends.
type frameProvider struct {
	frames  map[string][]market.Candle
	visible map[string]int
}

func newFrameProvider(frames map[string][]market.Candle) *frameProvider {
	return &frameProvider{
		frames:  frames,
		visible: make(map[string]int, len(frames)),
	}
}

// advance moves the timeframe cursor forward to include every candle with
// timestamp <= ts. Cursors never rewind.
func (p *frameProvider) advance(tf string, ts int64) {
	candles := p.frames[tf]
	cursor := p.visible[tf]
	for cursor < len(candles) && candles[cursor].Timestamp <= ts {
		cursor++
	}
	p.visible[tf] = cursor
}

// advanceAll advances every tracked timeframe.
func (p *frameProvider) advanceAll(ts int64) {
	for tf := range p.frames {
		p.advance(tf, ts)
	}
}

func (p *frameProvider) Candles(_ context.Context, timeframe string) ([]market.Candle, error) {
	candles, ok := p.frames[timeframe]
	if !ok {
		return nil, fmt.Errorf("timeframe %s not loaded for backtest", timeframe)
	}
	n := p.visible[timeframe]
	out := make([]market.Candle, n)
	copy(out, candles[:n])
	return out, nil
}
