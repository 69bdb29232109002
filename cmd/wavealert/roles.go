package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wavealert/wavealert360/internal/audio"
	"github.com/wavealert/wavealert360/internal/clients/cloud"
	"github.com/wavealert/wavealert360/internal/clients/weather"
	"github.com/wavealert/wavealert360/internal/config"
	"github.com/wavealert/wavealert360/internal/control"
	"github.com/wavealert/wavealert360/internal/dashboard"
	"github.com/wavealert/wavealert360/internal/events"
	"github.com/wavealert/wavealert360/internal/identity"
	"github.com/wavealert/wavealert360/internal/led"
	"github.com/wavealert/wavealert360/internal/lkg"
	"github.com/wavealert/wavealert360/internal/lockfile"
	"github.com/wavealert/wavealert360/internal/reliability"
	"github.com/wavealert/wavealert360/internal/resolver"
	"github.com/wavealert/wavealert360/internal/status"
	"github.com/wavealert/wavealert360/internal/supervisor"
	"github.com/wavealert/wavealert360/internal/updater"
)

// runSupervisor starts every peer role and guards them. Spawn order puts the
// hardware owner first so control-channel writes from the resolver are
// observed quickly.
func runSupervisor(cfg *config.Config, log zerolog.Logger) error {
	lock, err := lockfile.Acquire(cfg.LockPath("supervisor"), "supervisor", log)
	if err != nil {
		return err
	}
	defer lock.Release()

	binary, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve own binary: %w", err)
	}

	bus := events.NewBus(log)

	sup := supervisor.New(supervisor.Config{
		Binary: binary,
		Roles: []supervisor.Role{
			{
				Name:       "led",
				StatusPath: cfg.StatusPath(),
				// The LED service publishes every couple of seconds; a
				// document older than a few monitor ticks means it wedged.
				StatusWindow: 3 * cfg.MonitorInterval,
			},
			{Name: "resolver"},
			{Name: "updater"},
			{Name: "dashboard"},
		},
		Policy:          supervisor.DefaultPolicy,
		MonitorInterval: cfg.MonitorInterval,
		HeartbeatPath:   cfg.HeartbeatPath(),
		Bus:             bus,
		Log:             log,
	})

	if err := sup.StartAll(); err != nil {
		// Individual spawn failures are retried by the monitor loop; log
		// and keep supervising whatever did come up.
		log.Error().Err(err).Msg("Some roles failed to start")
	}

	go sup.Run()
	waitForSignal()
	sup.Stop()
	return nil
}

// runLED is the exclusive hardware owner.
func runLED(cfg *config.Config, log zerolog.Logger) error {
	lock, err := lockfile.Acquire(cfg.LockPath("led"), "led", log)
	if err != nil {
		return err
	}
	defer lock.Release()

	svc := led.NewService(led.ServiceConfig{
		Channel:      control.NewChannel(cfg.ControlTokenPath(), log),
		StatusWriter: status.NewWriter(cfg.StatusPath()),
		Interval:     cfg.LEDMonitorInterval,
		Log:          log,
	})
	svc.InitHardware(led.DefaultDevicePaths)

	svc.Start()
	waitForSignal()
	svc.Stop()
	return nil
}

// runResolver polls the cloud and dispatches decisions.
func runResolver(cfg *config.Config, log zerolog.Logger) error {
	lock, err := lockfile.Acquire(cfg.LockPath("resolver"), "resolver", log)
	if err != nil {
		return err
	}
	defer lock.Release()

	device, err := identity.Resolve()
	if err != nil {
		return fmt.Errorf("failed to resolve device identity: %w", err)
	}
	log.Info().Str("device", device.String()).Msg("Device identity resolved")

	audioCache, err := audio.NewCache(cfg.AudioCacheDir(), cfg.HTTPTimeout, log)
	if err != nil {
		return fmt.Errorf("failed to open audio cache: %w", err)
	}

	var sink audio.Sink
	if _, lookErr := exec.LookPath(cfg.AudioPlayer); cfg.AudioPlayer != "" && lookErr == nil {
		sink = audio.NewExecSink(cfg.AudioPlayer, cfg.AudioTimeout, log)
	} else {
		sink = audio.NewNopSink(log)
	}

	res := resolver.New(resolver.Config{
		Cloud:     cloud.New(cfg.CloudBaseURL, cfg.HTTPTimeout, log),
		Weather:   weather.New(cfg.WeatherBaseURL, cfg.HTTPTimeout, log),
		Cache:     lkg.New(cfg.LKGPath(), cfg.LKGMaxAge, log),
		Audio:     audioCache,
		Sink:      sink,
		Channel:   control.NewChannel(cfg.ControlTokenPath(), log),
		Bus:       events.NewBus(log),
		Device:    device,
		Latitude:  cfg.Latitude,
		Longitude: cfg.Longitude,
		Log:       log,
	})

	svc := resolver.NewService(resolver.ServiceConfig{
		Resolver:     res,
		PollInterval: cfg.PollInterval,
		DemoPause:    cfg.DemoPause,
		Log:          log,
	})

	svc.Start()
	waitForSignal()
	svc.Stop()
	return nil
}

// runUpdater reconciles the working tree with the remote branch.
func runUpdater(cfg *config.Config, log zerolog.Logger) error {
	lock, err := lockfile.Acquire(cfg.LockPath("updater"), "updater", log)
	if err != nil {
		return err
	}
	defer lock.Release()

	if cfg.GitHubRepo == "" {
		log.Warn().Msg("No remote repository configured, updater idle")
		waitForSignal()
		return nil
	}

	// Offsite replication is optional; the updater runs the same without it.
	var offsite *reliability.OffsiteClient
	if cfg.BackupS3Endpoint != "" {
		offsite, err = reliability.NewOffsiteClient(
			cfg.BackupS3Endpoint, cfg.BackupS3AccessKey, cfg.BackupS3SecretKey, cfg.BackupS3Bucket, log)
		if err != nil {
			log.Warn().Err(err).Msg("Offsite backup unavailable, archives stay local")
		}
	}

	upd := updater.New(updater.Config{
		Remote:            updater.NewRemoteClient(cfg.GitHubAPIBase, cfg.GitHubRepo, cfg.RepoBranch, cfg.GitHubToken, cfg.HTTPTimeout, log),
		Git:               updater.NewGitRunner(cfg.RepoDir, cfg.RepoBranch, log),
		State:             updater.NewStateFile(cfg.UpdateStatePath()),
		Backup:            updater.NewBackupper(cfg.RepoDir, cfg.BackupDir(), offsite, log),
		Bus:               events.NewBus(log),
		EmergencyStopPath: cfg.EmergencyStopPath(),
		ManualModePath:    cfg.ManualModePath(),
		InstallCommand:    cfg.InstallCommand,
		RepoDir:           cfg.RepoDir,
		PeerLockPaths: []string{
			cfg.LockPath("dashboard"),
			cfg.LockPath("resolver"),
			cfg.LockPath("led"),
		},
		Log: log,
	})

	svc := updater.NewService(upd, cfg.UpdateCheckInterval, log)
	if err := svc.Start(); err != nil {
		return err
	}
	waitForSignal()
	svc.Stop()
	return nil
}

// runDashboard serves the local status API.
func runDashboard(cfg *config.Config, log zerolog.Logger) error {
	lock, err := lockfile.Acquire(cfg.LockPath("dashboard"), "dashboard", log)
	if err != nil {
		return err
	}
	defer lock.Release()

	srv := dashboard.New(dashboard.Config{
		Port:             cfg.DashboardPort,
		AllowedIPs:       cfg.DashboardAllowedIPs,
		StatusPath:       cfg.StatusPath(),
		HeartbeatPath:    cfg.HeartbeatPath(),
		LKGPath:          cfg.LKGPath(),
		UpdateStatePath:  cfg.UpdateStatePath(),
		ControlTokenPath: cfg.ControlTokenPath(),
		Log:              log,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
