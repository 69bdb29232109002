package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_LevelParsing(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected zerolog.Level
	}{
		{name: "debug", level: "debug", expected: zerolog.DebugLevel},
		{name: "warn", level: "warn", expected: zerolog.WarnLevel},
		{name: "mixed case", level: "ERROR", expected: zerolog.ErrorLevel},
		{name: "empty falls back to info", level: "", expected: zerolog.InfoLevel},
		{name: "garbage falls back to info", level: "loud", expected: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := New(Config{Level: tt.level})
			assert.Equal(t, tt.expected, log.GetLevel())
		})
	}
}
