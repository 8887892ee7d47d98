package model

import (
	"fmt"
	"strings"
)

// HostID is the canonical, fully-qualified identifier of an opsi client.
// Equality is always defined on the canonical form returned by
// CanonicalizeHostID; callers must never compare raw, uncanonicalised
// strings.
type HostID string

// CanonicalizeHostID lower-cases id, verifies it looks like a DNS label
// sequence (at least one dot, no empty labels, no whitespace) and rejects
// the empty string.
func CanonicalizeHostID(id string) (HostID, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", fmt.Errorf("host id is empty")
	}

	lower := strings.ToLower(trimmed)
	labels := strings.Split(lower, ".")
	if len(labels) < 2 {
		return "", fmt.Errorf("host id %q is not a fully-qualified domain name", id)
	}
	for _, label := range labels {
		if label == "" {
			return "", fmt.Errorf("host id %q has an empty label", id)
		}
		if strings.ContainsAny(label, " \t\r\n") {
			return "", fmt.Errorf("host id %q contains whitespace", id)
		}
	}

	return HostID(lower), nil
}

// ShortName returns the first label of the host id (e.g. "h1" for
// "h1.example.org").
func (h HostID) ShortName() string {
	s := string(h)
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// Domain returns everything after the first label (e.g. "example.org" for
// "h1.example.org"), or the empty string if there is no domain suffix.
func (h HostID) Domain() string {
	s := string(h)
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		return s[idx+1:]
	}
	return ""
}

func (h HostID) String() string {
	return string(h)
}
