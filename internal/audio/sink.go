// Package audio plays alert audio and caches downloaded files.
//
// The player is an injectable sink: the real implementation shells out to an
// external player with a bounded timeout, and a no-op sink stands in when no
// player is installed (headless testing, simulation mode).
package audio

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// Sink plays a local audio file synchronously.
type Sink interface {
	// Play blocks until playback finishes, fails, or the timeout elapses.
	Play(ctx context.Context, path string) error
}

// ExecSink plays files by invoking an external player command.
type ExecSink struct {
	player  string
	timeout time.Duration
	log     zerolog.Logger
}

var _ Sink = (*ExecSink)(nil)

// NewExecSink creates a sink invoking player (for example "mpg123") with the
// file path as its single argument.
func NewExecSink(player string, timeout time.Duration, log zerolog.Logger) *ExecSink {
	return &ExecSink{
		player:  player,
		timeout: timeout,
		log:     log.With().Str("component", "audio_sink").Logger(),
	}
}

// Play runs the player synchronously. A non-zero exit or an overrun of the
// timeout is returned as an error; callers log it and move on, the next
// cycle retries naturally.
func (s *ExecSink) Play(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.player, path)

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("audio playback timed out after %s", s.timeout)
		}
		return fmt.Errorf("audio player failed: %w", err)
	}

	s.log.Debug().
		Str("file", path).
		Dur("duration", time.Since(start)).
		Msg("Playback finished")
	return nil
}

// NopSink discards playback requests. Used when the device has no audio
// output or in tests.
type NopSink struct {
	log zerolog.Logger
}

var _ Sink = (*NopSink)(nil)

// NewNopSink creates a logging no-op sink.
func NewNopSink(log zerolog.Logger) *NopSink {
	return &NopSink{log: log.With().Str("component", "audio_sink").Logger()}
}

// Play logs and returns immediately.
func (s *NopSink) Play(_ context.Context, path string) error {
	s.log.Info().Str("file", path).Msg("Audio playback skipped (no sink)")
	return nil
}
