package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10, cfg.GapMinFillableMinutes)
	assert.Equal(t, 1, cfg.MaxConcurrentOverbooks)
	assert.Equal(t, 48*time.Hour, cfg.OverbookRecommendationTTL)
	assert.Equal(t, 100, cfg.RecallDispatchBatchSize)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GAP_MIN_FILLABLE_MINUTES", "15")
	t.Setenv("OVERBOOK_RECOMMENDATION_TTL", "24h")
	t.Setenv("REDIS_TLS", "true")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 15, cfg.GapMinFillableMinutes)
	assert.Equal(t, 24*time.Hour, cfg.OverbookRecommendationTTL)
	assert.True(t, cfg.RedisTLS)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("GAP_MIN_FILLABLE_MINUTES", "not-a-number")
	t.Setenv("EXPIRY_INTERVAL", "soon")

	cfg := Load()

	assert.Equal(t, 10, cfg.GapMinFillableMinutes)
	assert.Equal(t, 15*time.Minute, cfg.ExpiryInterval)
}
