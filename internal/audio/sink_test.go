package audio

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecSink_Success(t *testing.T) {
	sink := NewExecSink("true", 5*time.Second, zerolog.Nop())
	require.NoError(t, sink.Play(context.Background(), "/tmp/anything.mp3"))
}

func TestExecSink_PlayerFailure(t *testing.T) {
	sink := NewExecSink("false", 5*time.Second, zerolog.Nop())
	err := sink.Play(context.Background(), "/tmp/anything.mp3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio player failed")
}

func TestExecSink_Timeout(t *testing.T) {
	sink := NewExecSink("sleep", 100*time.Millisecond, zerolog.Nop())
	err := sink.Play(context.Background(), "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestNopSink(t *testing.T) {
	sink := NewNopSink(zerolog.Nop())
	assert.NoError(t, sink.Play(context.Background(), "/tmp/anything.mp3"))
}
