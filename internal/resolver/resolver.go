// Package resolver drives the appliance's visible behavior. Each poll it
// obtains a decision (cloud, weather fallback, cache, or fail-safe), writes
// the control token for the LED service, and plays the matching audio.
package resolver

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wavealert/wavealert360/internal/alert"
	"github.com/wavealert/wavealert360/internal/audio"
	"github.com/wavealert/wavealert360/internal/clients/cloud"
	"github.com/wavealert/wavealert360/internal/clients/weather"
	"github.com/wavealert/wavealert360/internal/control"
	"github.com/wavealert/wavealert360/internal/events"
	"github.com/wavealert/wavealert360/internal/identity"
	"github.com/wavealert/wavealert360/internal/lkg"
)

// AudioFetcher resolves an audio URL to a local file path. Implemented by
// audio.Cache.
type AudioFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Config holds the resolver's collaborators.
type Config struct {
	Cloud     cloud.ClientInterface
	Weather   weather.ClientInterface
	Cache     *lkg.Cache
	Audio     AudioFetcher
	Sink      audio.Sink
	Channel   *control.Channel
	Bus       *events.Bus
	Device    identity.DeviceID
	Latitude  float64
	Longitude float64
	Log       zerolog.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Resolver produces and dispatches decisions.
type Resolver struct {
	cloud    cloud.ClientInterface
	weather  weather.ClientInterface
	cache    *lkg.Cache
	audio    AudioFetcher
	sink     audio.Sink
	channel  *control.Channel
	bus      *events.Bus
	device   identity.DeviceID
	lat, lon float64
	log      zerolog.Logger
	now      func() time.Time

	// Failure counters, reported in the cycle log.
	cloudFailures   uint64
	weatherFailures uint64
	unknownLevels   uint64
}

// New creates a resolver.
func New(cfg Config) *Resolver {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		cloud:   cfg.Cloud,
		weather: cfg.Weather,
		cache:   cfg.Cache,
		audio:   cfg.Audio,
		sink:    cfg.Sink,
		channel: cfg.Channel,
		bus:     cfg.Bus,
		device:  cfg.Device,
		lat:     cfg.Latitude,
		lon:     cfg.Longitude,
		log:     cfg.Log.With().Str("component", "resolver").Logger(),
		now:     now,
	}
}

// Resolve obtains the decision for one cycle.
//
// Order: cloud endpoint first; on failure the upstream weather API with
// local severity analysis; on double failure the last-known-good cache; and
// when nothing holds, the fail-safe SAFE decision. Only cloud successes are
// persisted to the cache.
func (r *Resolver) Resolve(ctx context.Context) alert.Decision {
	now := r.now()

	resp, err := r.cloud.GetAlert(ctx, r.device)
	if err == nil {
		decision := resp.Decision(now)
		if alert.Normalize(resp.AlertLevel) != alert.Level(resp.AlertLevel) {
			r.unknownLevels++
			r.log.Warn().
				Str("alert_level", resp.AlertLevel).
				Str("normalized", string(decision.Level)).
				Uint64("unknown_levels", r.unknownLevels).
				Msg("Non-canonical alert level normalized")
		}
		if storeErr := r.cache.Store(decision); storeErr != nil {
			r.log.Error().Err(storeErr).Msg("Failed to persist decision to lkg cache")
		}
		return decision
	}

	r.cloudFailures++
	r.log.Warn().Err(err).Uint64("cloud_failures", r.cloudFailures).Msg("Cloud resolution failed, trying weather fallback")

	features, werr := r.weather.ActiveAlerts(ctx, r.lat, r.lon)
	if werr == nil {
		level := weather.Severity(features)
		r.log.Info().
			Int("features", len(features)).
			Str("level", string(level)).
			Msg("Resolved via weather fallback")
		// The weather API is a secondary authority, not a failure path, so
		// its severity stands, including DANGER. Provenance is LIVE data.
		return alert.Decision{
			Level:      level,
			Source:     alert.SourceLive,
			DeviceMode: alert.ModeLive,
			ObtainedAt: now,
		}
	}

	r.weatherFailures++
	r.log.Warn().Err(werr).Uint64("weather_failures", r.weatherFailures).Msg("Weather fallback failed, trying lkg cache")

	if cached, ok := r.cache.Load(now); ok {
		cached.Source = alert.SourceCache
		return cached
	}

	r.log.Warn().Msg("No authoritative signal available, emitting fail-safe")
	return alert.Failsafe(now)
}

// Dispatch publishes a decision: the control token is written strictly
// before audio begins, so the LEDs light up no later than the audio.
func (r *Resolver) Dispatch(ctx context.Context, decision alert.Decision) {
	cycleID := uuid.NewString()

	token := control.TokenForLevel(decision.Level)
	if err := r.channel.Write(token); err != nil {
		r.log.Error().Err(err).Str("cycle_id", cycleID).Msg("Failed to write control token")
	} else if r.bus != nil {
		r.bus.Emit(events.TokenDispatched, "resolver", map[string]interface{}{
			"token":    string(token),
			"cycle_id": cycleID,
		})
	}

	if decision.AudioURL != "" {
		r.playAudio(ctx, decision.AudioURL, cycleID)
	}

	r.log.Info().
		Str("cycle_id", cycleID).
		Str("level", string(decision.Level)).
		Str("source", string(decision.Source)).
		Str("token", string(token)).
		Msg("Decision dispatched")

	if r.bus != nil {
		r.bus.Emit(events.DecisionResolved, "resolver", map[string]interface{}{
			"level":    string(decision.Level),
			"source":   string(decision.Source),
			"cycle_id": cycleID,
		})
	}
}

// playAudio fetches and plays one file. Failures are logged, never retried
// within the cycle; the next cycle tries again.
func (r *Resolver) playAudio(ctx context.Context, url, cycleID string) {
	path, err := r.audio.Fetch(ctx, url)
	if err != nil {
		r.log.Error().Err(err).Str("cycle_id", cycleID).Str("url", url).Msg("Audio fetch failed")
		return
	}
	if err := r.sink.Play(ctx, path); err != nil {
		r.log.Error().Err(err).Str("cycle_id", cycleID).Str("file", path).Msg("Audio playback failed")
	}
}
