package led

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavealert/wavealert360/internal/alert"
	"github.com/wavealert/wavealert360/internal/control"
	"github.com/wavealert/wavealert360/internal/status"
)

func newTestService(t *testing.T) (*Service, *SimDriver, *control.Channel, string) {
	t.Helper()
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "led_status.json")
	channel := control.NewChannel(filepath.Join(dir, "led_control"), zerolog.Nop())

	svc := NewService(ServiceConfig{
		Channel:      channel,
		StatusWriter: status.NewWriter(statusPath),
		Interval:     10 * time.Millisecond,
		BlinkCycles:  1,
		BlinkStep:    time.Millisecond,
		Log:          zerolog.Nop(),
	})
	driver := NewSimDriver(zerolog.Nop())
	svc.SetDriver(driver, false)

	return svc, driver, channel, statusPath
}

func TestService_RedTokenLightsOnlyRedStrip(t *testing.T) {
	svc, driver, channel, _ := newTestService(t)
	require.NoError(t, channel.Write(control.TokenRed))

	svc.tick()

	assert.Equal(t, colorRed, driver.Strip(StripRed))
	assert.Equal(t, colorOff, driver.Strip(StripGreen))
	assert.Equal(t, colorOff, driver.Strip(StripYellow))
}

func TestService_TokenChangeSwitchesStrip(t *testing.T) {
	svc, driver, channel, _ := newTestService(t)

	require.NoError(t, channel.Write(control.TokenYellow))
	svc.tick()
	assert.Equal(t, colorYellow, driver.Strip(StripYellow))

	require.NoError(t, channel.Write(control.TokenGreen))
	svc.tick()
	assert.Equal(t, colorGreen, driver.Strip(StripGreen))
	assert.Equal(t, colorOff, driver.Strip(StripYellow))
}

func TestService_OffClearsAllStrips(t *testing.T) {
	svc, driver, channel, _ := newTestService(t)

	require.NoError(t, channel.Write(control.TokenRed))
	svc.tick()
	require.Equal(t, colorRed, driver.Strip(StripRed))

	require.NoError(t, channel.Write(control.TokenOff))
	svc.tick()

	for strip := 0; strip < stripCount; strip++ {
		assert.Equal(t, colorOff, driver.Strip(strip), "strip %d should be off", strip)
	}
}

func TestService_UnchangedTokenDoesNotReanimate(t *testing.T) {
	svc, driver, channel, _ := newTestService(t)

	require.NoError(t, channel.Write(control.TokenGreen))
	svc.tick()
	require.Equal(t, colorGreen, driver.Strip(StripGreen))

	// Poke the strip and tick again with the same token: the service must
	// not re-apply, because the token did not change.
	require.NoError(t, driver.Fill(StripGreen, colorOff))
	svc.tick()
	assert.Equal(t, colorOff, driver.Strip(StripGreen))
}

func TestService_PublishesStatusEveryTick(t *testing.T) {
	svc, _, channel, statusPath := newTestService(t)

	svc.tick()
	doc, err := status.Read(statusPath)
	require.NoError(t, err)
	assert.False(t, doc.HardwareAvailable)
	assert.Empty(t, doc.CurrentLevel)

	require.NoError(t, channel.Write(control.TokenRed))
	svc.tick()
	doc, err = status.Read(statusPath)
	require.NoError(t, err)
	assert.Equal(t, alert.Danger, doc.CurrentLevel)
	assert.False(t, doc.LastUpdated.IsZero())
}

// errorDriver fails every write, simulating broken hardware.
type errorDriver struct{}

func (errorDriver) Fill(int, Color) error { return fmt.Errorf("spi write error") }
func (errorDriver) Clear() error          { return fmt.Errorf("spi write error") }
func (errorDriver) Close() error          { return nil }

func TestService_HardwareErrorDegradesButDoesNotCrash(t *testing.T) {
	svc, _, channel, statusPath := newTestService(t)
	svc.SetDriver(errorDriver{}, true)

	require.NoError(t, channel.Write(control.TokenRed))
	svc.tick()

	assert.False(t, svc.HardwareAvailable())

	doc, err := status.Read(statusPath)
	require.NoError(t, err)
	assert.False(t, doc.HardwareAvailable)
}

func TestService_StartStop(t *testing.T) {
	svc, driver, channel, _ := newTestService(t)
	require.NoError(t, channel.Write(control.TokenYellow))

	svc.Start()
	require.Eventually(t, func() bool {
		return driver.Strip(StripYellow) == colorYellow
	}, time.Second, 5*time.Millisecond)

	svc.Stop()
	// Stop clears the strips.
	assert.Equal(t, colorOff, driver.Strip(StripYellow))
}

func TestInitHardware_FallsBackToSimulation(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	dir := t.TempDir()
	svc.InitHardware([3]string{
		filepath.Join(dir, "missing0"),
		filepath.Join(dir, "missing1"),
		filepath.Join(dir, "missing2"),
	})

	assert.False(t, svc.HardwareAvailable())
	_, isSim := svc.driver.(*SimDriver)
	assert.True(t, isSim)
}

func TestEncodeFrame(t *testing.T) {
	frame := encodeFrame(Color{R: 255}, 1)
	// 24 data bytes plus the reset tail.
	require.Len(t, frame, 24+64)

	// GRB order: first 8 bytes are green (zero), next 8 red (0xFF).
	for i := 0; i < 8; i++ {
		assert.Equal(t, byte(0b1000_0000), frame[i])
	}
	for i := 8; i < 16; i++ {
		assert.Equal(t, byte(0b1100_0000), frame[i])
	}
}
