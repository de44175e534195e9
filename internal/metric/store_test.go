package metric_test

import (
	"testing"

	"codeberg.org/mutker/embedids/internal/errors"
	"codeberg.org/mutker/embedids/internal/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreFillsInOrder(t *testing.T) {
	buf := make([]metric.Datapoint, 5)
	store := metric.NewStore(buf)

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Append(metric.Uint32Value(uint32(i)), uint64(i*1000)))
	}

	assert.Equal(t, 5, store.Len())
	assert.Equal(t, 0, store.WriteIndex())
	for i := 0; i < 5; i++ {
		assert.Equal(t, uint32(i+1), buf[i].Value.Uint32())
		assert.Equal(t, uint64((i+1)*1000), buf[i].TimestampMs)
	}

	oldest, ok := store.Oldest()
	require.True(t, ok)
	assert.Equal(t, uint32(1), oldest.Value.Uint32())
}

func TestStoreWrapsAndOverwritesOldest(t *testing.T) {
	buf := make([]metric.Datapoint, 3)
	store := metric.NewStore(buf)

	for i := 1; i <= 7; i++ {
		require.NoError(t, store.Append(metric.Uint32Value(uint32(i)), uint64(i)))
		assert.LessOrEqual(t, store.Len(), 3)
	}

	assert.Equal(t, 3, store.Len())

	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, uint32(7), latest.Value.Uint32())

	prev, ok := store.NthFromLatest(1)
	require.True(t, ok)
	assert.Equal(t, uint32(6), prev.Value.Uint32())

	oldest, ok := store.Oldest()
	require.True(t, ok)
	assert.Equal(t, uint32(5), oldest.Value.Uint32())

	_, ok = store.NthFromLatest(3)
	assert.False(t, ok)
}

func TestStoreNPlusOneOverwritesSlotZero(t *testing.T) {
	buf := make([]metric.Datapoint, 4)
	store := metric.NewStore(buf)

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Append(metric.FloatValue(float32(i)*1.5), uint64(i)))
	}

	assert.Equal(t, float32(7.5), buf[0].Value.Float())
	assert.Equal(t, float32(3.0), buf[1].Value.Float())
	assert.Equal(t, 1, store.WriteIndex())
}

func TestStoreEmpty(t *testing.T) {
	store := metric.NewStore(make([]metric.Datapoint, 2))

	_, ok := store.Latest()
	assert.False(t, ok)
	_, ok = store.Oldest()
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestStoreAcceptsOutOfOrderTimestamps(t *testing.T) {
	store := metric.NewStore(make([]metric.Datapoint, 4))

	require.NoError(t, store.Append(metric.Uint64Value(1), 5000))
	require.NoError(t, store.Append(metric.Uint64Value(2), 1000))

	latest, _ := store.Latest()
	assert.Equal(t, uint64(1000), latest.TimestampMs)
}

func TestStoreZeroCapacity(t *testing.T) {
	var store metric.Store
	err := store.Append(metric.Uint32Value(1), 1)
	assert.Equal(t, errors.ErrConfigInvalid, errors.CodeOf(err))
	assert.False(t, store.Bound())

	empty := metric.NewStore([]metric.Datapoint{})
	err = empty.Append(metric.Uint32Value(1), 1)
	assert.Equal(t, errors.ErrConfigInvalid, errors.CodeOf(err))
}

func TestStoreReset(t *testing.T) {
	buf := make([]metric.Datapoint, 3)
	store := metric.NewStore(buf)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Append(metric.Uint32Value(9), 1))
	}

	store.Reset()

	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, store.WriteIndex())
	for _, dp := range buf {
		assert.Equal(t, metric.Datapoint{}, dp)
	}
}
