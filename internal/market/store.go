package market

import (
	"fmt"
	"sort"
)

const defaultWindow = 500

// StoreConfig controls how many candles each timeframe series retains.
type StoreConfig struct {
	DefaultMaxCandles int
	MaxCandles        map[string]int // per-timeframe override
}

// Store keeps one sorted, deduplicated candle series per timeframe. It is the
// canonical in-memory substrate both the live cache and the backtest replay
// read from. Not safe for concurrent use; callers own the synchronization
// (the replay loop is single-threaded, the live cache serializes writes).
type Store struct {
	cfg    StoreConfig
	series map[string][]Candle
}

func NewStore(cfg StoreConfig) *Store {
	if cfg.DefaultMaxCandles <= 0 {
		cfg.DefaultMaxCandles = defaultWindow
	}
	return &Store{
		cfg:    cfg,
		series: make(map[string][]Candle),
	}
}

// windowFor returns the effective retention for a timeframe, clamped to >= 1
// so a misconfigured limit can never empty the series.
func (s *Store) windowFor(tf string) int {
	limit := s.cfg.DefaultMaxCandles
	if v, ok := s.cfg.MaxCandles[tf]; ok {
		limit = v
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// Ingest inserts one candle into the timeframe series: timestamp normalized to
// the bucket grid, sorted insert scanning from the tail (arrivals are
// near-sorted), last write wins on a duplicate timestamp, oldest trimmed past
// the window.
func (s *Store) Ingest(timeframe string, c Candle) error {
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return err
	}
	c.Timeframe = tf.Key
	c.Timestamp = tf.Normalize(c.Timestamp)

	cur := s.series[tf.Key]
	idx := len(cur)
	for idx > 0 && cur[idx-1].Timestamp > c.Timestamp {
		idx--
	}
	if idx > 0 && cur[idx-1].Timestamp == c.Timestamp {
		cur[idx-1] = c
	} else {
		cur = append(cur, Candle{})
		copy(cur[idx+1:], cur[idx:])
		cur[idx] = c
	}
	s.series[tf.Key] = s.trim(cur, tf.Key)
	return nil
}

// IngestMany merges a batch into the timeframe series. The batch may arrive in
// any order and contain internal duplicates; the last occurrence in input
// order wins, and on a timestamp collision with existing data the new candle
// wins. The result is identical to feeding the batch through Ingest one by
// one.
func (s *Store) IngestMany(timeframe string, candles []Candle) error {
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return nil
	}
	batch := make([]Candle, len(candles))
	copy(batch, candles)
	for i := range batch {
		batch[i].Timeframe = tf.Key
		batch[i].Timestamp = tf.Normalize(batch[i].Timestamp)
	}
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Timestamp < batch[j].Timestamp
	})
	// Collapse duplicates; stable sort kept input order within equal
	// timestamps, so the last element of each group is the last occurrence.
	dedup := batch[:0]
	for i := 0; i < len(batch); i++ {
		if i+1 < len(batch) && batch[i+1].Timestamp == batch[i].Timestamp {
			continue
		}
		dedup = append(dedup, batch[i])
	}

	cur := s.series[tf.Key]
	merged := make([]Candle, 0, len(cur)+len(dedup))
	i, j := 0, 0
	for i < len(cur) && j < len(dedup) {
		switch {
		case cur[i].Timestamp < dedup[j].Timestamp:
			merged = append(merged, cur[i])
			i++
		case cur[i].Timestamp > dedup[j].Timestamp:
			merged = append(merged, dedup[j])
			j++
		default:
			merged = append(merged, dedup[j])
			i++
			j++
		}
	}
	merged = append(merged, cur[i:]...)
	merged = append(merged, dedup[j:]...)
	s.series[tf.Key] = s.trim(merged, tf.Key)
	return nil
}

func (s *Store) trim(candles []Candle, tf string) []Candle {
	limit := s.windowFor(tf)
	if len(candles) <= limit {
		return candles
	}
	keep := candles[len(candles)-limit:]
	out := make([]Candle, limit)
	copy(out, keep)
	return out
}

// Series returns a defensive copy of the ordered sequence for a timeframe.
func (s *Store) Series(timeframe string) []Candle {
	cur, ok := s.series[normalizeKey(timeframe)]
	if !ok || len(cur) == 0 {
		return nil
	}
	out := make([]Candle, len(cur))
	copy(out, cur)
	return out
}

// LatestCandle returns the newest candle of the series, if any.
func (s *Store) LatestCandle(timeframe string) (Candle, bool) {
	cur := s.series[normalizeKey(timeframe)]
	if len(cur) == 0 {
		return Candle{}, false
	}
	return cur[len(cur)-1], true
}

func (s *Store) HasCandles(timeframe string) bool {
	return len(s.series[normalizeKey(timeframe)]) > 0
}

// Timeframes lists every timeframe currently holding candles, sorted.
func (s *Store) Timeframes() []string {
	keys := make([]string, 0, len(s.series))
	for k, v := range s.series {
		if len(v) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) Clear() {
	s.series = make(map[string][]Candle)
}

func (s *Store) ClearTimeframe(timeframe string) {
	delete(s.series, normalizeKey(timeframe))
}

// Len reports the series length for a timeframe.
func (s *Store) Len(timeframe string) int {
	return len(s.series[normalizeKey(timeframe)])
}

func normalizeKey(tf string) string {
	if parsed, err := ParseTimeframe(tf); err == nil {
		return parsed.Key
	}
	return tf
}

// CheckIntegrity verifies the invariant the store promises: strictly ascending
// unique timestamps, length within window. Used by tests and debug tooling.
func (s *Store) CheckIntegrity(timeframe string) error {
	key := normalizeKey(timeframe)
	cur := s.series[key]
	if len(cur) > s.windowFor(key) {
		return fmt.Errorf("series %s exceeds window: %d > %d", key, len(cur), s.windowFor(key))
	}
	for i := 1; i < len(cur); i++ {
		if cur[i].Timestamp <= cur[i-1].Timestamp {
			return fmt.Errorf("series %s not strictly ascending at index %d", key, i)
		}
	}
	return nil
}
