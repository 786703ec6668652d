package market

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candleAt(ts int64, close float64) Candle {
	return Candle{
		Symbol:    "BTCUSDT",
		Timestamp: ts,
		Open:      close - 1,
		High:      close + 2,
		Low:       close - 2,
		Close:     close,
		Volume:    10,
	}
}

func TestIngestKeepsSeriesSortedAndUnique(t *testing.T) {
	s := NewStore(StoreConfig{DefaultMaxCandles: 100})
	// Out-of-order single arrivals plus a replacement on collision.
	for _, ts := range []int64{180000, 60000, 120000, 120000} {
		require.NoError(t, s.Ingest("1m", candleAt(ts, float64(ts))))
	}
	got := s.Series("1m")
	require.Len(t, got, 3)
	assert.Equal(t, int64(60000), got[0].Timestamp)
	assert.Equal(t, int64(120000), got[1].Timestamp)
	assert.Equal(t, int64(180000), got[2].Timestamp)
	require.NoError(t, s.CheckIntegrity("1m"))
}

func TestIngestNormalizesMisalignedTimestamp(t *testing.T) {
	s := NewStore(StoreConfig{DefaultMaxCandles: 10})
	require.NoError(t, s.Ingest("1m", candleAt(60123, 1)))
	got := s.Series("1m")
	require.Len(t, got, 1)
	assert.Equal(t, int64(60000), got[0].Timestamp)
}

func TestIngestTrimsToWindow(t *testing.T) {
	s := NewStore(StoreConfig{DefaultMaxCandles: 2})
	for _, ts := range []int64{60000, 120000, 180000} {
		require.NoError(t, s.Ingest("1m", candleAt(ts, float64(ts))))
	}
	got := s.Series("1m")
	require.Len(t, got, 2)
	assert.Equal(t, int64(120000), got[0].Timestamp)
	assert.Equal(t, int64(180000), got[1].Timestamp)
}

func TestWindowClampedToOne(t *testing.T) {
	s := NewStore(StoreConfig{
		DefaultMaxCandles: 10,
		MaxCandles:        map[string]int{"1m": -3},
	})
	require.NoError(t, s.Ingest("1m", candleAt(60000, 1)))
	require.NoError(t, s.Ingest("1m", candleAt(120000, 2)))
	got := s.Series("1m")
	require.Len(t, got, 1)
	assert.Equal(t, int64(120000), got[0].Timestamp)
}

func TestIngestManyMatchesSequentialIngest(t *testing.T) {
	base := []Candle{
		candleAt(60000, 1),
		candleAt(300000, 5),
		candleAt(120000, 2),
		candleAt(120000, 2.5), // duplicate inside the batch, later wins
		candleAt(240000, 4),
		candleAt(180123, 3), // misaligned, lands on 180000
	}
	rng := rand.New(rand.NewSource(7))
	for perm := 0; perm < 20; perm++ {
		batch := make([]Candle, len(base))
		copy(batch, base)
		if perm > 0 {
			rng.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })
		}

		bulk := NewStore(StoreConfig{DefaultMaxCandles: 50})
		require.NoError(t, bulk.IngestMany("1m", batch))

		seq := NewStore(StoreConfig{DefaultMaxCandles: 50})
		for _, c := range batch {
			require.NoError(t, seq.Ingest("1m", c))
		}
		assert.Equal(t, seq.Series("1m"), bulk.Series("1m"), "permutation %d diverged", perm)
		require.NoError(t, bulk.CheckIntegrity("1m"))
	}
}

func TestIngestManyMergesAgainstExisting(t *testing.T) {
	s := NewStore(StoreConfig{DefaultMaxCandles: 50})
	require.NoError(t, s.Ingest("1m", candleAt(120000, 2)))
	require.NoError(t, s.Ingest("1m", candleAt(240000, 4)))

	replacement := candleAt(120000, 9)
	require.NoError(t, s.IngestMany("1m", []Candle{candleAt(180000, 3), replacement}))

	got := s.Series("1m")
	require.Len(t, got, 3)
	assert.Equal(t, 9.0, got[0].Close, "batch candle must replace the existing one")
	assert.Equal(t, int64(180000), got[1].Timestamp)
}

func TestSeriesReturnsDefensiveCopy(t *testing.T) {
	s := NewStore(StoreConfig{DefaultMaxCandles: 10})
	require.NoError(t, s.Ingest("1m", candleAt(60000, 1)))
	got := s.Series("1m")
	got[0].Close = 999
	again := s.Series("1m")
	assert.Equal(t, 1.0, again[0].Close)
}

func TestStoreReadHelpers(t *testing.T) {
	s := NewStore(StoreConfig{DefaultMaxCandles: 10})
	assert.False(t, s.HasCandles("1m"))
	_, ok := s.LatestCandle("1m")
	assert.False(t, ok)

	require.NoError(t, s.Ingest("1m", candleAt(60000, 1)))
	require.NoError(t, s.Ingest("5m", candleAt(300000, 2)))

	last, ok := s.LatestCandle("1m")
	require.True(t, ok)
	assert.Equal(t, int64(60000), last.Timestamp)
	assert.Equal(t, []string{"1m", "5m"}, s.Timeframes())

	s.ClearTimeframe("1m")
	assert.False(t, s.HasCandles("1m"))
	assert.True(t, s.HasCandles("5m"))
	s.Clear()
	assert.Empty(t, s.Timeframes())
}

func TestIngestRejectsUnknownTimeframe(t *testing.T) {
	s := NewStore(StoreConfig{})
	err := s.Ingest("2m", candleAt(60000, 1))
	require.Error(t, err)
}
