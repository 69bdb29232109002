package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Level
	}{
		{name: "safe", raw: "SAFE", expected: Safe},
		{name: "caution", raw: "CAUTION", expected: Caution},
		{name: "danger", raw: "DANGER", expected: Danger},
		{name: "demo", raw: "DEMO", expected: Demo},
		{name: "lowercase", raw: "danger", expected: Danger},
		{name: "padded", raw: "  caution \n", expected: Caution},
		{name: "empty collapses to safe", raw: "", expected: Safe},
		{name: "unknown collapses to safe", raw: "MAYHEM", expected: Safe},
		{name: "numeric collapses to safe", raw: "3", expected: Safe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.raw))
		})
	}
}

func TestLevel_Color(t *testing.T) {
	assert.Equal(t, "GREEN", Safe.Color())
	assert.Equal(t, "YELLOW", Caution.Color())
	assert.Equal(t, "RED", Danger.Color())
	assert.Equal(t, "GREEN", Demo.Color())
}

func TestLevel_Valid(t *testing.T) {
	assert.True(t, Safe.Valid())
	assert.True(t, Demo.Valid())
	assert.False(t, Level("GREEN").Valid())
	assert.False(t, Level("").Valid())
}

func TestFailsafe(t *testing.T) {
	now := time.Now()
	decision := Failsafe(now)

	assert.Equal(t, Safe, decision.Level)
	assert.Equal(t, SourceFailsafe, decision.Source)
	assert.Equal(t, now, decision.ObtainedAt)
	assert.Empty(t, decision.AudioURL)
}
