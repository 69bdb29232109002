package led

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// SPIDriver drives WS2812-class strips over spidev character devices, one
// device per strip. Each data bit is stretched to one SPI byte (0b1100_0000
// for 1, 0b1000_0000 for 0 at the bus clock configured in the device tree), which is the
// standard trick for driving these strips without a dedicated PWM peripheral.
type SPIDriver struct {
	devices [stripCount]*os.File
	log     zerolog.Logger
}

var _ Driver = (*SPIDriver)(nil)

// NewSPIDriver opens the three strip devices. Any open failure closes what
// was opened and returns the aggregated error; the caller then falls back to
// the simulation driver.
func NewSPIDriver(devicePaths [3]string, log zerolog.Logger) (*SPIDriver, error) {
	d := &SPIDriver{log: log.With().Str("component", "spi_driver").Logger()}

	var errs *multierror.Error
	for i, path := range devicePaths {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("strip %d (%s): %w", i, path, err))
			continue
		}
		d.devices[i] = f
	}

	if err := errs.ErrorOrNil(); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to initialize led hardware: %w", err)
	}

	return d, nil
}

// Fill sets every pixel of one strip to the same color.
func (d *SPIDriver) Fill(strip int, color Color) error {
	if strip < 0 || strip >= stripCount {
		return fmt.Errorf("invalid strip index %d", strip)
	}

	frame := encodeFrame(color, PixelsPerStrip)
	if _, err := d.devices[strip].Write(frame); err != nil {
		return fmt.Errorf("failed to write strip %d: %w", strip, err)
	}
	return nil
}

// Clear turns all three strips off.
func (d *SPIDriver) Clear() error {
	var errs *multierror.Error
	for strip := 0; strip < stripCount; strip++ {
		if err := d.Fill(strip, colorOff); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// Close releases the strip devices.
func (d *SPIDriver) Close() error {
	var errs *multierror.Error
	for i, f := range d.devices {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("strip %d: %w", i, err))
		}
		d.devices[i] = nil
	}
	return errs.ErrorOrNil()
}

// encodeFrame expands pixel data into the SPI bit pattern. WS2812 wants GRB
// order, most significant bit first, plus a >50us low reset tail.
func encodeFrame(color Color, pixels int) []byte {
	const resetBytes = 64

	frame := make([]byte, 0, pixels*24+resetBytes)
	for p := 0; p < pixels; p++ {
		for _, channel := range [3]uint8{color.G, color.R, color.B} {
			for bit := 7; bit >= 0; bit-- {
				if channel&(1<<uint(bit)) != 0 {
					frame = append(frame, 0b1100_0000)
				} else {
					frame = append(frame, 0b1000_0000)
				}
			}
		}
	}
	return append(frame, make([]byte, resetBytes)...)
}

// DefaultDevicePaths are the spidev nodes the appliance wires its strips to.
var DefaultDevicePaths = [3]string{
	"/dev/spidev0.0",
	"/dev/spidev0.1",
	"/dev/spidev1.0",
}
