package resolver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavealert/wavealert360/internal/alert"
	"github.com/wavealert/wavealert360/internal/clients/cloud"
	"github.com/wavealert/wavealert360/internal/control"
	"github.com/wavealert/wavealert360/internal/identity"
	"github.com/wavealert/wavealert360/internal/lkg"
)

func TestService_DemoCycleStepsThroughAllLevels(t *testing.T) {
	dir := t.TempDir()
	channel := control.NewChannel(filepath.Join(dir, "led_control"), zerolog.Nop())
	sink := &recordingSink{}

	res := New(Config{
		Cloud:   &fakeCloud{},
		Weather: &fakeWeather{},
		Cache:   lkg.New(filepath.Join(dir, "lkg.json"), time.Hour, zerolog.Nop()),
		Audio:   &fakeFetcher{path: "/tmp/demo.mp3"},
		Sink:    sink,
		Channel: channel,
		Device:  identity.DeviceID("aa:bb:cc:dd:ee:ff"),
		Log:     zerolog.Nop(),
	})

	svc := NewService(ServiceConfig{
		Resolver:  res,
		DemoPause: time.Millisecond,
		Log:       zerolog.Nop(),
	})

	var tokens []control.Token
	sink.onPlay = func() {
		if token, ok := channel.Read(); ok {
			tokens = append(tokens, token)
		}
	}

	svc.runDemoCycle(context.Background(), alert.Decision{
		Level:      alert.Demo,
		AudioURL:   "https://cdn.example.com/demo.mp3",
		DeviceMode: alert.ModeDemo,
	})

	require.Equal(t, []control.Token{control.TokenGreen, control.TokenYellow, control.TokenRed}, tokens)
}

func TestService_DemoPauseDefaultWhenDecisionHasNone(t *testing.T) {
	dir := t.TempDir()
	channel := control.NewChannel(filepath.Join(dir, "led_control"), zerolog.Nop())

	res := New(Config{
		Cloud:   &fakeCloud{},
		Weather: &fakeWeather{},
		Cache:   lkg.New(filepath.Join(dir, "lkg.json"), time.Hour, zerolog.Nop()),
		Audio:   &fakeFetcher{},
		Sink:    &recordingSink{},
		Channel: channel,
		Device:  identity.DeviceID("aa:bb:cc:dd:ee:ff"),
		Log:     zerolog.Nop(),
	})

	svc := NewService(ServiceConfig{
		Resolver:  res,
		DemoPause: time.Millisecond,
		Log:       zerolog.Nop(),
	})

	// Pause of 0 in the decision keeps the configured default; the cycle
	// with three 1ms pauses finishes quickly.
	start := time.Now()
	svc.runDemoCycle(context.Background(), alert.Decision{DeviceMode: alert.ModeDemo})
	assert.Less(t, time.Since(start), time.Second)
}

// A demo device that boots offline keeps cycling: the mode flag survives in
// the lkg cache.
func TestService_DemoModeOffline(t *testing.T) {
	dir := t.TempDir()
	channel := control.NewChannel(filepath.Join(dir, "led_control"), zerolog.Nop())
	cache := lkg.New(filepath.Join(dir, "lkg.json"), time.Hour, zerolog.Nop())

	require.NoError(t, cache.Store(alert.Decision{
		Level:            alert.Safe,
		Source:           alert.SourceLive,
		DeviceMode:       alert.ModeDemo,
		DemoPauseSeconds: 0,
		ObtainedAt:       time.Now(),
	}))

	failingCloud := &fakeCloud{err: context.DeadlineExceeded}
	failingWeather := &fakeWeather{err: context.DeadlineExceeded}

	res := New(Config{
		Cloud:   failingCloud,
		Weather: failingWeather,
		Cache:   cache,
		Audio:   &fakeFetcher{},
		Sink:    &recordingSink{},
		Channel: channel,
		Device:  identity.DeviceID("aa:bb:cc:dd:ee:ff"),
		Log:     zerolog.Nop(),
	})

	decision := res.Resolve(context.Background())
	assert.Equal(t, alert.SourceCache, decision.Source)
	assert.Equal(t, alert.ModeDemo, decision.DeviceMode)
}

func TestService_StartStop(t *testing.T) {
	dir := t.TempDir()
	channel := control.NewChannel(filepath.Join(dir, "led_control"), zerolog.Nop())

	cloudClient := &fakeCloud{resp: &cloud.AlertResponse{AlertLevel: "SAFE"}}

	res := New(Config{
		Cloud:   cloudClient,
		Weather: &fakeWeather{},
		Cache:   lkg.New(filepath.Join(dir, "lkg.json"), time.Hour, zerolog.Nop()),
		Audio:   &fakeFetcher{},
		Sink:    &recordingSink{},
		Channel: channel,
		Device:  identity.DeviceID("aa:bb:cc:dd:ee:ff"),
		Log:     zerolog.Nop(),
	})

	svc := NewService(ServiceConfig{
		Resolver:     res,
		PollInterval: 10 * time.Millisecond,
		Log:          zerolog.Nop(),
	})

	svc.Start()
	require.Eventually(t, func() bool {
		token, ok := channel.Read()
		return ok && token == control.TokenGreen
	}, time.Second, 5*time.Millisecond)
	svc.Stop()

	assert.GreaterOrEqual(t, cloudClient.calls, 1)
}
