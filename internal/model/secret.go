package model

import "log/slog"

// redacted is substituted for any Secret value rendered through fmt,
// %v/%s, or slog.
const redacted = "REDACTED"

// Secret wraps a confidential value — in this codebase, always a host
// key — so that it can flow through rendering and logging call sites
// without any of them having to remember to mask it. Reveal is the only
// way to get the raw value back out.
type Secret string

// NewSecret wraps v as a Secret.
func NewSecret(v string) Secret {
	return Secret(v)
}

// Reveal returns the unwrapped value. Call sites that do this must never
// pass the result to a logger or to the control protocol.
func (s Secret) Reveal() string {
	return string(s)
}

// String implements fmt.Stringer with a redacted value so that a Secret
// accidentally passed to Printf/Sprintf/logging never leaks.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// LogValue implements slog.LogValuer so that a Secret passed as a log
// attribute is redacted even though slog would otherwise call String()
// only when formatting as text.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}
