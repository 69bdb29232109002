// Package config loads the appliance configuration.
//
// Configuration comes from environment variables (optionally seeded from a
// .env file in the working directory) and is resolved once at startup into an
// immutable Config value that is passed explicitly to every component
// constructor. Persistent state lives in the filesystem under DataDir.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default intervals. Each can be overridden via environment variables; the
// values here are the ones the appliance ships with.
const (
	DefaultPollInterval        = 30 * time.Second
	DefaultMonitorInterval     = 60 * time.Second
	DefaultLEDMonitorInterval  = 2 * time.Second
	DefaultUpdateCheckInterval = 120 * time.Second
	DefaultHTTPTimeout         = 10 * time.Second
	DefaultAudioTimeout        = 60 * time.Second
	DefaultDemoPause           = 3 * time.Second
	DefaultLKGMaxAge           = 6 * time.Hour
)

// Config holds all resolved configuration for every component. The value is
// immutable after Load returns.
type Config struct {
	// DataDir is the root of all persisted state (token, status, LKG, locks).
	DataDir string

	// LogLevel is the zerolog level name (trace, debug, info, warn, error).
	LogLevel string

	// CloudBaseURL is the base URL of the cloud alert service.
	CloudBaseURL string

	// WeatherBaseURL is the base URL of the upstream weather alert API used
	// as the fallback when the cloud service is unreachable.
	WeatherBaseURL string

	// Latitude and Longitude locate the device for the weather fallback.
	Latitude  float64
	Longitude float64

	// PollInterval is the resolver poll period.
	PollInterval time.Duration

	// MonitorInterval is the supervisor health check period.
	MonitorInterval time.Duration

	// LEDMonitorInterval is the LED service token poll period.
	LEDMonitorInterval time.Duration

	// UpdateCheckInterval is the updater remote poll period.
	UpdateCheckInterval time.Duration

	// HTTPTimeout bounds every outbound HTTP call.
	HTTPTimeout time.Duration

	// AudioTimeout bounds a single audio playback.
	AudioTimeout time.Duration

	// AudioPlayer is the external player command (invoked with the file path).
	AudioPlayer string

	// DemoPause is the default hold between demo cycle steps when the cloud
	// response does not specify one.
	DemoPause time.Duration

	// LKGMaxAge bounds how stale a cached decision may be before the resolver
	// falls through to the fail-safe level.
	LKGMaxAge time.Duration

	// RepoDir is the working tree the updater keeps in sync.
	RepoDir string

	// RepoBranch is the branch the updater follows.
	RepoBranch string

	// GitHubRepo is the "owner/name" slug used for latest-commit lookups.
	GitHubRepo string

	// GitHubAPIBase is the commits REST endpoint base. Tests point it at a
	// local server.
	GitHubAPIBase string

	// InstallCommand, when set, runs in RepoDir after each applied update.
	InstallCommand string

	// GitHubToken authenticates commit lookups and fetches. Loaded from
	// WAVEALERT_GITHUB_TOKEN or, if set, the file named by
	// WAVEALERT_GITHUB_TOKEN_FILE.
	GitHubToken string

	// Offsite backup (S3-compatible). Backups stay local when unset.
	BackupS3Endpoint  string
	BackupS3Bucket    string
	BackupS3AccessKey string
	BackupS3SecretKey string

	// DashboardPort is the local status dashboard listen port.
	DashboardPort int

	// DashboardAllowedIPs restricts dashboard access. Empty means local only
	// (loopback).
	DashboardAllowedIPs []string
}

// Load resolves configuration from the environment. dataDirFlag, when
// non-empty, overrides WAVEALERT_DATA_DIR (CLI flags take highest priority).
func Load(dataDirFlag string) (*Config, error) {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()

	dataDir := dataDirFlag
	if dataDir == "" {
		dataDir = os.Getenv("WAVEALERT_DATA_DIR")
	}
	if dataDir == "" {
		dataDir = "/home/wavealert/data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(absDataDir, "locks"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	cfg := &Config{
		DataDir:             absDataDir,
		LogLevel:            envOr("WAVEALERT_LOG_LEVEL", "info"),
		CloudBaseURL:        envOr("WAVEALERT_CLOUD_URL", "https://wavealert360.example.com"),
		WeatherBaseURL:      envOr("WAVEALERT_WEATHER_URL", "https://api.weather.gov"),
		PollInterval:        envDuration("WAVEALERT_POLL_INTERVAL", DefaultPollInterval),
		MonitorInterval:     envDuration("WAVEALERT_MONITOR_INTERVAL", DefaultMonitorInterval),
		LEDMonitorInterval:  envDuration("WAVEALERT_LED_MONITOR_INTERVAL", DefaultLEDMonitorInterval),
		UpdateCheckInterval: envDuration("WAVEALERT_UPDATE_CHECK_INTERVAL", DefaultUpdateCheckInterval),
		HTTPTimeout:         envDuration("WAVEALERT_HTTP_TIMEOUT", DefaultHTTPTimeout),
		AudioTimeout:        envDuration("WAVEALERT_AUDIO_TIMEOUT", DefaultAudioTimeout),
		AudioPlayer:         envOr("WAVEALERT_AUDIO_PLAYER", "mpg123"),
		DemoPause:           envDuration("WAVEALERT_DEMO_PAUSE", DefaultDemoPause),
		LKGMaxAge:           envDuration("WAVEALERT_LKG_MAX_AGE", DefaultLKGMaxAge),
		RepoDir:             envOr("WAVEALERT_REPO_DIR", "/home/wavealert/app"),
		RepoBranch:          envOr("WAVEALERT_REPO_BRANCH", "main"),
		GitHubRepo:          os.Getenv("WAVEALERT_GITHUB_REPO"),
		GitHubAPIBase:       envOr("WAVEALERT_GITHUB_API", "https://api.github.com"),
		InstallCommand:      os.Getenv("WAVEALERT_INSTALL_COMMAND"),
		BackupS3Endpoint:    os.Getenv("WAVEALERT_BACKUP_S3_ENDPOINT"),
		BackupS3Bucket:      os.Getenv("WAVEALERT_BACKUP_S3_BUCKET"),
		BackupS3AccessKey:   os.Getenv("WAVEALERT_BACKUP_S3_ACCESS_KEY"),
		BackupS3SecretKey:   os.Getenv("WAVEALERT_BACKUP_S3_SECRET_KEY"),
		DashboardPort:       envInt("WAVEALERT_DASHBOARD_PORT", 8080),
	}

	cfg.Latitude, err = envFloat("WAVEALERT_LATITUDE", 0)
	if err != nil {
		return nil, err
	}
	cfg.Longitude, err = envFloat("WAVEALERT_LONGITUDE", 0)
	if err != nil {
		return nil, err
	}

	if allowed := os.Getenv("WAVEALERT_DASHBOARD_ALLOWED_IPS"); allowed != "" {
		for _, ip := range strings.Split(allowed, ",") {
			if ip = strings.TrimSpace(ip); ip != "" {
				cfg.DashboardAllowedIPs = append(cfg.DashboardAllowedIPs, ip)
			}
		}
	}

	cfg.GitHubToken = os.Getenv("WAVEALERT_GITHUB_TOKEN")
	if tokenFile := os.Getenv("WAVEALERT_GITHUB_TOKEN_FILE"); cfg.GitHubToken == "" && tokenFile != "" {
		data, err := os.ReadFile(tokenFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read github token file: %w", err)
		}
		cfg.GitHubToken = strings.TrimSpace(string(data))
	}

	return cfg, nil
}

// Derived state paths. Every persisted document lives under DataDir so a
// single mount point carries all appliance state.

// ControlTokenPath is the LED control channel file.
func (c *Config) ControlTokenPath() string { return filepath.Join(c.DataDir, "led_control") }

// StatusPath is the LED service status document.
func (c *Config) StatusPath() string { return filepath.Join(c.DataDir, "led_status.json") }

// LKGPath is the last-known-good resolver decision cache.
func (c *Config) LKGPath() string { return filepath.Join(c.DataDir, "lkg.json") }

// UpdateStatePath stores the deployed commit hash.
func (c *Config) UpdateStatePath() string { return filepath.Join(c.DataDir, "update_state") }

// LockPath returns the advisory lock file for a role.
func (c *Config) LockPath(role string) string {
	return filepath.Join(c.DataDir, "locks", role+".lock")
}

// HeartbeatPath is the supervisor heartbeat document.
func (c *Config) HeartbeatPath() string {
	return filepath.Join(c.DataDir, "supervisor_heartbeat.json")
}

// BackupDir holds update backup archives.
func (c *Config) BackupDir() string { return filepath.Join(c.DataDir, "backups") }

// AudioCacheDir holds downloaded audio files and their manifest.
func (c *Config) AudioCacheDir() string { return filepath.Join(c.DataDir, "audio_cache") }

// EmergencyStopPath disables the updater entirely while present.
func (c *Config) EmergencyStopPath() string { return filepath.Join(c.DataDir, "emergency_stop") }

// ManualModePath disables automatic application of updates while present.
func (c *Config) ManualModePath() string { return filepath.Join(c.DataDir, "manual_mode") }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envDuration reads a duration either as a bare number of seconds ("30") or a
// Go duration string ("30s", "2m").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return f, nil
}
