package market

import "context"

// Source abstracts the exchange/data-vendor candle fetch. Implementations
// return candles in ascending timestamp order, best effort.
type Source interface {
	// FetchOHLCV returns up to limit candles for symbol/timeframe. since is a
	// unix-ms lower bound; 0 means "the most recent limit bars".
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int, since int64) ([]Candle, error)
}

// CandleProvider is the uniform read contract the decision engine consumes.
// The live cache implements it with fetch-through TTL reads; the backtest
// replay implements it over pre-loaded, cursor-bounded slices. Suspension only
// ever happens at the live fetch boundary.
type CandleProvider interface {
	Candles(ctx context.Context, timeframe string) ([]Candle, error)
}
