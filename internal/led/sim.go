package led

import (
	"sync"

	"github.com/rs/zerolog"
)

// SimDriver is the no-op driver used when hardware init fails or in headless
// tests. It records the last state written so tests can assert on it.
type SimDriver struct {
	mu     sync.Mutex
	strips [stripCount]Color
	log    zerolog.Logger
}

var _ Driver = (*SimDriver)(nil)

// NewSimDriver creates a simulation driver.
func NewSimDriver(log zerolog.Logger) *SimDriver {
	return &SimDriver{log: log.With().Str("component", "sim_driver").Logger()}
}

// Fill records the strip state.
func (d *SimDriver) Fill(strip int, color Color) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if strip >= 0 && strip < stripCount {
		d.strips[strip] = color
	}
	return nil
}

// Clear records all strips off.
func (d *SimDriver) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.strips = [stripCount]Color{}
	return nil
}

// Close is a no-op.
func (d *SimDriver) Close() error { return nil }

// Strip returns the last color written to a strip. Test helper.
func (d *SimDriver) Strip(strip int) Color {
	d.mu.Lock()
	defer d.mu.Unlock()
	if strip < 0 || strip >= stripCount {
		return Color{}
	}
	return d.strips[strip]
}
