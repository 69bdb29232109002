package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRestartRecord_AllowsUpToCap(t *testing.T) {
	policy := Policy{MaxRestarts: 5, Window: 10 * time.Minute}
	record := &RestartRecord{Name: "resolver"}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		assert.True(t, record.Allow(now, policy), "attempt %d should be allowed", i+1)
		record.Record(now)
		now = now.Add(30 * time.Second)
	}

	// Sixth attempt within the window is deferred.
	assert.False(t, record.Allow(now, policy))
	assert.Equal(t, 5, record.InWindow(now, policy))
}

func TestRestartRecord_WindowRollover(t *testing.T) {
	policy := Policy{MaxRestarts: 2, Window: time.Minute}
	record := &RestartRecord{Name: "led"}
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	record.Record(start)
	record.Record(start.Add(10 * time.Second))
	assert.False(t, record.Allow(start.Add(20*time.Second), policy))

	// After the window passes the first start, one slot frees up.
	later := start.Add(61 * time.Second)
	assert.True(t, record.Allow(later, policy))
	assert.Equal(t, 1, record.InWindow(later, policy))

	// Past both starts the budget is fully restored.
	muchLater := start.Add(2 * time.Minute)
	assert.Equal(t, 0, record.InWindow(muchLater, policy))
}

func TestRestartRecord_IndependentPerRole(t *testing.T) {
	policy := Policy{MaxRestarts: 1, Window: time.Hour}
	now := time.Now()

	crashing := &RestartRecord{Name: "resolver"}
	healthy := &RestartRecord{Name: "led"}

	crashing.Record(now)
	assert.False(t, crashing.Allow(now, policy))
	assert.True(t, healthy.Allow(now, policy))
}
