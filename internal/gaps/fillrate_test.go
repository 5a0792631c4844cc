package gaps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFillRateSource struct {
	rate  float64
	ok    bool
	err   error
	calls int
}

func (f *fakeFillRateSource) FillRateForHour(context.Context, uuid.UUID, int) (float64, bool, error) {
	f.calls++
	return f.rate, f.ok, f.err
}

func TestFillRateCacheMissThenHit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	source := &fakeFillRateSource{rate: 0.75, ok: true}
	cache := NewFillRateCache(rdb, source, time.Hour, nil)
	providerID := uuid.New()

	rate, err := cache.FillRate(context.Background(), providerID, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.75, rate)
	assert.Equal(t, 1, source.calls)

	// Second call is served from redis without touching the source.
	rate, err = cache.FillRate(context.Background(), providerID, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.75, rate)
	assert.Equal(t, 1, source.calls)
}

func TestFillRateCacheNeutralWhenNoHistory(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	cache := NewFillRateCache(rdb, &fakeFillRateSource{ok: false}, time.Hour, nil)

	rate, err := cache.FillRate(context.Background(), uuid.New(), 14)
	require.NoError(t, err)
	assert.Equal(t, 0.5, rate)
}

func TestFillRateCacheSourceError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	cache := NewFillRateCache(rdb, &fakeFillRateSource{err: errors.New("boom")}, time.Hour, nil)

	_, err := cache.FillRate(context.Background(), uuid.New(), 9)
	require.Error(t, err)
}

func TestFillRateCacheKeysPerProviderAndHour(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	source := &fakeFillRateSource{rate: 0.25, ok: true}
	cache := NewFillRateCache(rdb, source, time.Hour, nil)
	providerID := uuid.New()

	_, err := cache.FillRate(context.Background(), providerID, 9)
	require.NoError(t, err)
	_, err = cache.FillRate(context.Background(), providerID, 10)
	require.NoError(t, err)

	// Distinct hours are distinct cache entries.
	assert.Equal(t, 2, source.calls)
	assert.True(t, mr.Exists(fillRateKey(providerID, 9)))
	assert.True(t, mr.Exists(fillRateKey(providerID, 10)))
}
