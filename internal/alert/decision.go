package alert

import "time"

// Source records where a decision came from.
type Source string

const (
	// SourceLive is a successful cloud resolution.
	SourceLive Source = "LIVE"
	// SourceTest is a cloud resolution with the device in TEST mode.
	SourceTest Source = "TEST"
	// SourceDemo is a step of the scripted demo cycle.
	SourceDemo Source = "DEMO"
	// SourceCache is a decision replayed from the last-known-good cache.
	SourceCache Source = "CACHE"
	// SourceFailsafe is the fallback when no authoritative signal exists.
	SourceFailsafe Source = "FAILSAFE"
)

// DeviceMode is the operating mode reported by the cloud service.
type DeviceMode string

const (
	ModeLive DeviceMode = "LIVE"
	ModeTest DeviceMode = "TEST"
	ModeDemo DeviceMode = "DEMO"
)

// Decision is the structured outcome of one resolver poll. It is persisted
// verbatim to the last-known-good cache on every successful resolution.
type Decision struct {
	Level            Level      `json:"level"`
	AudioURL         string     `json:"audio_url,omitempty"`
	Source           Source     `json:"source"`
	DeviceMode       DeviceMode `json:"device_mode,omitempty"`
	DemoPauseSeconds int        `json:"demo_pause_seconds,omitempty"`
	ObtainedAt       time.Time  `json:"obtained_at"`
}

// Failsafe returns the decision emitted when nothing authoritative is
// available. The level is always Safe, never Danger.
func Failsafe(now time.Time) Decision {
	return Decision{
		Level:      Safe,
		Source:     SourceFailsafe,
		ObtainedAt: now,
	}
}
