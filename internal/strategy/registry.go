package strategy

import (
	"fmt"
	"sort"

	"quantra/internal/config"
	"quantra/internal/market"
)

// ErrUnknownStrategy is returned when a profile names a kind that is not in
// the registry.
var ErrUnknownStrategy = fmt.Errorf("unknown strategy kind")

// Kind identifies a strategy implementation. The set is closed: every kind is
// registered at compile time with its constructor and data requirements;
// resolution is a table lookup, never reflection.
type Kind string

const (
	KindMomentum  Kind = "momentum"
	KindSequencer Kind = "sequencer"
)

// Deps is everything a strategy constructor receives.
type Deps struct {
	Symbol   string
	Profile  config.StrategyProfile
	Provider market.CandleProvider
}

// Descriptor binds a kind to its constructor and its cache dependencies.
type Descriptor struct {
	Kind Kind
	New  func(Deps) (Strategy, error)
	// Timeframes lists the candle series the strategy consults.
	Timeframes func(config.StrategyProfile) []string
	// Lookbacks maps each consulted timeframe to its warm-up bar count.
	Lookbacks func(config.StrategyProfile) map[string]int
}

var registry = map[Kind]Descriptor{
	KindMomentum: {
		Kind: KindMomentum,
		New:  func(d Deps) (Strategy, error) { return NewMomentum(d) },
		Timeframes: func(p config.StrategyProfile) []string {
			return p.Timeframes()
		},
		Lookbacks: func(p config.StrategyProfile) map[string]int {
			out := make(map[string]int)
			for _, tf := range p.Timeframes() {
				out[tf] = p.LookbackFor(tf)
			}
			return out
		},
	},
	KindSequencer: {
		Kind: KindSequencer,
		New:  func(d Deps) (Strategy, error) { return NewSequencer(d) },
		Timeframes: func(p config.StrategyProfile) []string {
			return []string{p.ExecutionTimeframe}
		},
		Lookbacks: sequencerLookbacks,
	},
}

// Lookup resolves a strategy kind by name.
func Lookup(kind string) (Descriptor, error) {
	d, ok := registry[Kind(kind)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownStrategy, kind, Kinds())
	}
	return d, nil
}

// Kinds lists the registered strategy kinds, sorted.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}
