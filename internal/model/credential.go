package model

import (
	"slices"
	"time"
)

// CredentialFlag is a structural warning raised while inspecting a session credential.
type CredentialFlag string

const (
	FlagTruncated      CredentialFlag = "truncated"
	FlagWrappingQuotes CredentialFlag = "has_wrapping_quotes"
	FlagControlChars   CredentialFlag = "contains_control_characters"
	FlagTooShort       CredentialFlag = "too_short"
	FlagTooFewSegments CredentialFlag = "too_few_segments"
	FlagPlaceholder    CredentialFlag = "contains_placeholder_values"
)

// Hard reports whether the flag alone rejects the credential.
func (f CredentialFlag) Hard() bool {
	switch f {
	case FlagTruncated, FlagControlChars, FlagPlaceholder:
		return true
	default:
		return false
	}
}

// CredentialDiagnostics is a derived snapshot of a session credential. It never
// carries the credential itself, only names, counts and flags.
type CredentialDiagnostics struct {
	Detected  []string         `json:"detected"`
	Missing   []string         `json:"missing"`
	Warnings  []CredentialFlag `json:"warnings"`
	Length    int              `json:"length"`
	Segments  int              `json:"segments"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
}

// Accepted reports whether the credential may be used for a pipeline run.
func (d CredentialDiagnostics) Accepted() bool {
	return len(d.Missing) == 0 && len(d.HardRejects()) == 0
}

// HardRejects returns the flags that reject the credential on their own.
func (d CredentialDiagnostics) HardRejects() []CredentialFlag {
	var out []CredentialFlag
	for _, w := range d.Warnings {
		if w.Hard() {
			out = append(out, w)
		}
	}
	return out
}

// Has reports whether flag was raised.
func (d CredentialDiagnostics) Has(flag CredentialFlag) bool {
	return slices.Contains(d.Warnings, flag)
}

// Expired reports whether the estimated expiry is known and before now.
func (d CredentialDiagnostics) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && d.ExpiresAt.Before(now)
}

// WarningNames returns the raised flags as plain strings.
func (d CredentialDiagnostics) WarningNames() []string {
	out := make([]string, len(d.Warnings))
	for i, w := range d.Warnings {
		out[i] = string(w)
	}
	return out
}
