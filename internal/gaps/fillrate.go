package gaps

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultFillRateTTL = 6 * time.Hour

// fillRateSource aggregates historical fill rates; satisfied by *Store.
type fillRateSource interface {
	FillRateForHour(ctx context.Context, providerID uuid.UUID, hourOfDay int) (float64, bool, error)
}

// FillRateCache serves provider/hour fill rates from redis, falling back to
// the historical aggregate in Postgres on miss.
type FillRateCache struct {
	redis  *redis.Client
	source fillRateSource
	ttl    time.Duration
	tracer trace.Tracer
}

// NewFillRateCache creates a redis-backed fill-rate provider.
func NewFillRateCache(rdb *redis.Client, source fillRateSource, ttl time.Duration, tracer trace.Tracer) *FillRateCache {
	if rdb == nil {
		panic("gaps: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultFillRateTTL
	}
	if tracer == nil {
		tracer = otel.Tracer("clinicpulse.internal.gaps.fillrate")
	}
	return &FillRateCache{redis: rdb, source: source, ttl: ttl, tracer: tracer}
}

// FillRate returns the cached fill rate for a provider/hour, computing and
// caching it on miss. Providers with no gap history get a neutral 0.5.
func (c *FillRateCache) FillRate(ctx context.Context, providerID uuid.UUID, hourOfDay int) (float64, error) {
	ctx, span := c.tracer.Start(ctx, "gaps.fill_rate")
	defer span.End()

	key := fillRateKey(providerID, hourOfDay)
	if val, err := c.redis.Get(ctx, key).Float64(); err == nil {
		return val, nil
	} else if err != redis.Nil {
		span.RecordError(err)
		return 0, fmt.Errorf("gaps: fill rate cache get: %w", err)
	}

	rate, ok, err := c.source.FillRateForHour(ctx, providerID, hourOfDay)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if !ok {
		rate = 0.5
	}

	if err := c.redis.Set(ctx, key, rate, c.ttl).Err(); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("gaps: fill rate cache set: %w", err)
	}
	return rate, nil
}

func fillRateKey(providerID uuid.UUID, hourOfDay int) string {
	return "fillrate:" + providerID.String() + ":" + strconv.Itoa(hourOfDay)
}
