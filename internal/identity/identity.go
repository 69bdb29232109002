// Package identity reads the device's hardware identity.
//
// The cloud service keys every lookup on the device's hardware address. The
// address is read once at startup from the primary network interface and is
// immutable for the process lifetime.
package identity

import (
	"fmt"
	"net"
	"strings"
)

// DeviceID is the device's hardware address in lowercase colon form.
type DeviceID string

// Resolve returns the hardware address of the first up, non-loopback
// interface that has one. Virtual interfaces without a MAC are skipped.
func Resolve() (DeviceID, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to list network interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return DeviceID(strings.ToLower(iface.HardwareAddr.String())), nil
	}

	return "", fmt.Errorf("no usable network interface found")
}

// String returns the address for use in URLs and log fields.
func (d DeviceID) String() string { return string(d) }
