package credential

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/listing-sync/internal/model"
)

// Message summarises why a credential was rejected.
func Message(d model.CredentialDiagnostics) string {
	switch {
	case len(d.Missing) > 0:
		return fmt.Sprintf("Cookie is missing required session values: %s", strings.Join(d.Missing, ", "))
	case d.Has(model.FlagTruncated):
		return "Cookie appears to be truncated"
	case d.Has(model.FlagControlChars):
		return "Cookie contains line breaks or tabs"
	case d.Has(model.FlagPlaceholder):
		return "Cookie contains placeholder values instead of real session data"
	default:
		return "Cookie format is valid"
	}
}

// Hint tells the operator how to obtain a usable credential.
func Hint(d model.CredentialDiagnostics, now time.Time) string {
	var parts []string
	if len(d.Missing) > 0 {
		parts = append(parts, "Log in to the marketplace, open the developer tools Network tab and copy the full Cookie request header from a page request")
	}
	if d.Has(model.FlagTruncated) {
		parts = append(parts, "the copied value ends in an ellipsis; copy it with \"Copy value\" instead of from the truncated display")
	}
	if d.Has(model.FlagControlChars) {
		parts = append(parts, "paste the cookie as a single line")
	}
	if d.Has(model.FlagPlaceholder) {
		parts = append(parts, "the cookie was exported before the session was established; log in again and re-copy it")
	}
	if d.Has(model.FlagWrappingQuotes) {
		parts = append(parts, "surrounding quotes are removed automatically")
	}
	if d.Expired(now) {
		parts = append(parts, fmt.Sprintf("the session token appears to have expired at %s", d.ExpiresAt.Format(time.RFC3339)))
	}
	return strings.Join(parts, "; ")
}
