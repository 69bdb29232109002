// Package control implements the file-backed LED control channel.
//
// The resolver writes a single-line token to a well-known path; the LED
// service polls it. The token is a latest-wins signal, not a queue: writes
// use write-then-rename so a reader observes either the old or the new value,
// never a torn one.
package control

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/wavealert/wavealert360/internal/alert"
)

// Token is a single-line control value.
type Token string

const (
	TokenRed    Token = "PATTERN:RED"
	TokenYellow Token = "PATTERN:YELLOW"
	TokenGreen  Token = "PATTERN:GREEN"
	TokenOff    Token = "OFF"
)

// TokenForLevel maps a canonical level to its control token.
func TokenForLevel(level alert.Level) Token {
	switch level.Color() {
	case "RED":
		return TokenRed
	case "YELLOW":
		return TokenYellow
	default:
		return TokenGreen
	}
}

// Valid reports whether t is one of the recognized tokens.
func (t Token) Valid() bool {
	switch t {
	case TokenRed, TokenYellow, TokenGreen, TokenOff:
		return true
	}
	return false
}

// Channel reads and writes the control token file.
type Channel struct {
	path string
	log  zerolog.Logger

	// degraded is set after an atomic write fails; the next write goes
	// straight to the file in place.
	degraded bool
}

// NewChannel creates a channel over the token file at path.
func NewChannel(path string, log zerolog.Logger) *Channel {
	return &Channel{
		path: path,
		log:  log.With().Str("component", "control").Logger(),
	}
}

// Write publishes a token, atomically when possible. If the atomic
// write-then-rename fails (for example a full or read-only temp dir) the
// error is logged and subsequent writes fall back to in-place writes.
func (c *Channel) Write(token Token) error {
	if !token.Valid() {
		return fmt.Errorf("invalid control token %q", token)
	}

	data := []byte(string(token) + "\n")

	if !c.degraded {
		if err := renameio.WriteFile(c.path, data, 0o644); err == nil {
			return nil
		} else {
			c.log.Error().Err(err).Msg("Atomic token write failed, falling back to in-place writes")
			c.degraded = true
		}
	}

	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write control token: %w", err)
	}
	return nil
}

// Read returns the current token. A missing file reports ok=false; garbage
// contents are logged and also report ok=false so the reader keeps its
// previous state.
func (c *Channel) Read() (Token, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return "", false
	}
	token := Token(strings.TrimSpace(string(data)))
	if !token.Valid() {
		c.log.Warn().Str("raw", string(token)).Msg("Ignoring unrecognized control token")
		return "", false
	}
	return token, true
}

// Path returns the token file path.
func (c *Channel) Path() string { return c.path }
