// Package lkg persists the last-known-good resolver decision.
//
// The cache is written only after a successful cloud resolution and read back
// by the resolver when both the cloud call and the weather fallback fail. A
// corrupt or missing cache is
// treated as absent; callers fall through to the fail-safe level.
package lkg

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/wavealert/wavealert360/internal/alert"
)

// Cache reads and writes the last-known-good decision file.
type Cache struct {
	path   string
	maxAge time.Duration
	log    zerolog.Logger
}

// New creates a cache at path. Decisions older than maxAge are reported as
// stale by Load.
func New(path string, maxAge time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		path:   path,
		maxAge: maxAge,
		log:    log.With().Str("component", "lkg").Logger(),
	}
}

// Store persists a decision atomically. Call only with successful
// resolutions; failure-path decisions must never overwrite the cache.
func (c *Cache) Store(decision alert.Decision) error {
	data, err := json.MarshalIndent(decision, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}
	if err := renameio.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write lkg cache: %w", err)
	}
	return nil
}

// Load returns the cached decision. ok is false when the cache is missing,
// unreadable, or stale beyond the configured bound. Corrupt contents are
// logged and treated as absent.
func (c *Cache) Load(now time.Time) (alert.Decision, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Error().Err(err).Msg("Failed to read lkg cache")
		}
		return alert.Decision{}, false
	}

	var decision alert.Decision
	if err := json.Unmarshal(data, &decision); err != nil {
		c.log.Warn().Err(err).Msg("Corrupt lkg cache, ignoring")
		return alert.Decision{}, false
	}
	if !decision.Level.Valid() {
		c.log.Warn().Str("level", string(decision.Level)).Msg("Lkg cache holds unknown level, ignoring")
		return alert.Decision{}, false
	}

	if c.maxAge > 0 && now.Sub(decision.ObtainedAt) > c.maxAge {
		c.log.Info().
			Time("obtained_at", decision.ObtainedAt).
			Dur("max_age", c.maxAge).
			Msg("Lkg cache stale, ignoring")
		return alert.Decision{}, false
	}

	return decision, true
}

// Path returns the cache file path.
func (c *Cache) Path() string { return c.path }
