// Package credential inspects operator-supplied session cookies before any
// network call is made.
package credential

import (
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sells-group/listing-sync/internal/model"
)

// Defaults used when a Validator is built from an empty Rules.
var (
	DefaultRequiredTokens = []string{"sessionid", "auth_token"}
	DefaultMinLength      = 40
	DefaultMinSegments    = 2
)

var placeholderValues = []string{"undefined", "null"}

// Rules configures which sub-tokens are required and the soft length heuristics.
type Rules struct {
	RequiredTokens []string `yaml:"required_tokens" mapstructure:"required_tokens"`
	MinLength      int      `yaml:"min_length" mapstructure:"min_length"`
	MinSegments    int      `yaml:"min_segments" mapstructure:"min_segments"`
}

// Validator checks session credentials against a fixed set of Rules.
type Validator struct {
	rules Rules
}

// NewValidator creates a Validator, filling unset rules with defaults.
func NewValidator(rules Rules) *Validator {
	if len(rules.RequiredTokens) == 0 {
		rules.RequiredTokens = DefaultRequiredTokens
	}
	if rules.MinLength <= 0 {
		rules.MinLength = DefaultMinLength
	}
	if rules.MinSegments <= 0 {
		rules.MinSegments = DefaultMinSegments
	}
	return &Validator{rules: rules}
}

// RequiredTokens returns the sub-token names that must be present.
func (v *Validator) RequiredTokens() []string {
	return slices.Clone(v.rules.RequiredTokens)
}

type segment struct {
	name  string
	value string
}

// Validate inspects raw and returns its diagnostics. It has no side effects.
func (v *Validator) Validate(raw string) model.CredentialDiagnostics {
	var diag model.CredentialDiagnostics
	trimmed := strings.TrimSpace(raw)
	diag.Length = len(trimmed)

	quoted := hasWrappingQuotes(trimmed)
	body := Normalize(trimmed)
	segments := parseSegments(body)
	diag.Segments = len(segments)

	present := make(map[string]bool, len(segments))
	for _, s := range segments {
		if s.name == "" || present[s.name] {
			continue
		}
		present[s.name] = true
		diag.Detected = append(diag.Detected, s.name)
	}
	for _, name := range v.rules.RequiredTokens {
		if !present[name] {
			diag.Missing = append(diag.Missing, name)
		}
	}

	if isTruncated(trimmed) {
		diag.Warnings = append(diag.Warnings, model.FlagTruncated)
	}
	if quoted {
		diag.Warnings = append(diag.Warnings, model.FlagWrappingQuotes)
	}
	if strings.ContainsAny(body, "\n\r\t") {
		diag.Warnings = append(diag.Warnings, model.FlagControlChars)
	}
	if len(body) < v.rules.MinLength {
		diag.Warnings = append(diag.Warnings, model.FlagTooShort)
	}
	if len(segments) < v.rules.MinSegments {
		diag.Warnings = append(diag.Warnings, model.FlagTooFewSegments)
	}
	if hasPlaceholder(body, segments) {
		diag.Warnings = append(diag.Warnings, model.FlagPlaceholder)
	}

	diag.ExpiresAt = estimateExpiry(segments)
	return diag
}

// Normalize trims surrounding whitespace and strips one pair of symmetric
// wrapping quotes. It is the form of the credential sent upstream.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if hasWrappingQuotes(s) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func hasWrappingQuotes(s string) bool {
	if len(s) < 2 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	return first == last && (first == '"' || first == '\'' || first == '`')
}

// isTruncated reports a copy cut short by a UI: an ellipsis character
// anywhere, or three trailing dots.
func isTruncated(s string) bool {
	if strings.Contains(s, "…") {
		return true
	}
	s = strings.TrimRight(s, "\"'` ")
	return strings.HasSuffix(s, "...")
}

func parseSegments(s string) []segment {
	var out []segment
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		out = append(out, segment{
			name:  strings.TrimSpace(name),
			value: strings.TrimSpace(value),
		})
	}
	return out
}

func hasPlaceholder(body string, segments []segment) bool {
	if isPlaceholder(body) {
		return true
	}
	for _, s := range segments {
		if isPlaceholder(s.value) {
			return true
		}
	}
	return false
}

func isPlaceholder(v string) bool {
	v = strings.Trim(strings.TrimSpace(v), "\"'")
	for _, p := range placeholderValues {
		if strings.EqualFold(v, p) {
			return true
		}
	}
	return false
}

// estimateExpiry returns the earliest exp claim among sub-token values that
// parse as JWTs. Signatures are not verified; the result is advisory.
func estimateExpiry(segments []segment) *time.Time {
	parser := jwt.NewParser()
	var earliest *time.Time
	for _, s := range segments {
		if strings.Count(s.value, ".") != 2 {
			continue
		}
		claims := jwt.MapClaims{}
		if _, _, err := parser.ParseUnverified(s.value, claims); err != nil {
			continue
		}
		exp, err := claims.GetExpirationTime()
		if err != nil || exp == nil {
			continue
		}
		t := exp.Time.UTC()
		if earliest == nil || t.Before(*earliest) {
			earliest = &t
		}
	}
	return earliest
}
