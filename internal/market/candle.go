package market

// Candle is one OHLCV bar. Timestamp is the bucket-aligned open time in unix
// milliseconds; within a (symbol, timeframe) series timestamps are strictly
// increasing and unique.
type Candle struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Delta approximates the taker volume delta of the bar: full volume signed by
// the bar direction. Used by the CVD series when per-side volume is absent.
func (c Candle) Delta() float64 {
	switch {
	case c.Close > c.Open:
		return c.Volume
	case c.Close < c.Open:
		return -c.Volume
	default:
		return 0
	}
}

// Range returns high-low.
func (c Candle) Range() float64 {
	return c.High - c.Low
}
