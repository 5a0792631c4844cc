package gaps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriority(t *testing.T) {
	tests := []struct {
		name      string
		duration  time.Duration
		timeUntil time.Duration
		fillRate  float64
		want      int
	}{
		{"hour long gap starting soon", time.Hour, 2 * time.Hour, 0.5, 9},
		{"half hour gap starting soon", 30 * time.Minute, 2 * time.Hour, 0.5, 7},
		{"duration credit capped at an hour", 5 * time.Hour, 2 * time.Hour, 0.5, 9},
		{"distant gap loses proximity credit", time.Hour, 10 * 24 * time.Hour, 0.5, 6},
		{"two day horizon", time.Hour, 48 * time.Hour, 0.5, 8},
		{"week horizon", time.Hour, 6 * 24 * time.Hour, 0.5, 7},
		{"high fill rate pushes to ceiling", time.Hour, time.Hour, 1.0, 10},
		{"dead slot scores low", 15 * time.Minute, 10 * 24 * time.Hour, 0.0, 1},
		{"fill rate clamped above one", time.Hour, time.Hour, 3.0, 10},
		{"fill rate clamped below zero", time.Hour, 10 * 24 * time.Hour, -1.0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Priority(tt.duration, tt.timeUntil, tt.fillRate))
		})
	}
}

func TestPriorityIsDeterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		assert.Equal(t, 9, Priority(time.Hour, 2*time.Hour, 0.5))
	}
}
