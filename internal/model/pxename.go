package model

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrNoAddress is returned by PxeConfigName when a host has neither a MAC
// nor an IPv4 address on record.
var ErrNoAddress = errors.New("no address for host")

// PxeConfigName derives the per-host FIFO basename: "01-" followed by the
// MAC with colons replaced by dashes and lower-cased, if a MAC is known;
// otherwise the four IPv4 octets as upper-case two-digit hex, if an IPv4
// is known; otherwise ErrNoAddress.
func PxeConfigName(rec HostRecord) (string, error) {
	if mac := strings.TrimSpace(rec.MAC); mac != "" {
		hw, err := net.ParseMAC(mac)
		if err != nil {
			return "", fmt.Errorf("parse mac %q: %w", mac, err)
		}
		parts := make([]string, len(hw))
		for i, b := range hw {
			parts[i] = fmt.Sprintf("%02x", b)
		}
		return "01-" + strings.Join(parts, "-"), nil
	}

	if ip := strings.TrimSpace(rec.IPv4); ip != "" {
		parsed := net.ParseIP(ip).To4()
		if parsed == nil {
			return "", fmt.Errorf("parse ipv4 %q", ip)
		}
		return fmt.Sprintf("%02X%02X%02X%02X", parsed[0], parsed[1], parsed[2], parsed[3]), nil
	}

	return "", fmt.Errorf("%w: %s", ErrNoAddress, rec.HostID)
}
