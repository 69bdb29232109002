// Package main is the entry point for the WaveAlert360 coastal-hazard
// alerting appliance.
//
// One binary carries every role; -role selects which component this process
// runs. The supervisor spawns its peers by exec-ing this same binary with
// the peer's role, so a single deploy unit updates the whole appliance:
//
//	wavealert -role supervisor    process guardian (spawns everything below)
//	wavealert -role led           exclusive LED hardware owner
//	wavealert -role resolver      alert resolution + dispatch
//	wavealert -role updater       source tree reconciliation
//	wavealert -role dashboard     local status dashboard
//
// Every role follows the same lifecycle: load configuration, acquire the
// role lock (exit non-zero if another live instance holds it), run until
// SIGTERM/SIGINT, release the lock, exit 0.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/wavealert/wavealert360/internal/config"
	"github.com/wavealert/wavealert360/pkg/logger"
)

func main() {
	var role string
	var dataDirFlag string
	flag.StringVar(&role, "role", "supervisor", "Component role: supervisor, led, resolver, updater, dashboard")
	flag.StringVar(&dataDirFlag, "data-dir", "", "State directory path (overrides WAVEALERT_DATA_DIR)")
	flag.Parse()

	cfg, err := config.Load(dataDirFlag)
	if err != nil {
		// Use a fallback logger so the configuration error is still visible.
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	}).With().Str("role", role).Logger()

	var run func(*config.Config, zerolog.Logger) error
	switch role {
	case "supervisor":
		run = runSupervisor
	case "led":
		run = runLED
	case "resolver":
		run = runResolver
	case "updater":
		run = runUpdater
	case "dashboard":
		run = runDashboard
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n", role)
		os.Exit(2)
	}

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("Fatal error")
		os.Exit(1)
	}
}

// waitForSignal blocks until SIGINT or SIGTERM.
func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
