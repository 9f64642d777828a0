package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// IsTimeout reports whether err represents an expired deadline: a network
// timeout, a context deadline, or an upstream message that says so.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return ContainsTimeoutMarker(err.Error())
}

// ContainsTimeoutMarker reports whether text mentions a timeout. Upstream
// services only signal some timeouts in free text, so this is a substring
// heuristic and will miss rewordings.
func ContainsTimeoutMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range []string{"timeout", "timed out", "time out"} {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IsConnectionFailure reports whether err is a network-level failure to
// reach or stay connected to a peer.
func IsConnectionFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"server closed idle connection",
		"transport connection broken",
		"unexpected eof",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
