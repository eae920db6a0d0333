package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ProviderError is a failed provider HTTP round with enough detail for
// retry classification.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider request failed: status %d: %s", e.StatusCode, e.Body)
}

// transientSignatures are matched against lowercased error text when no
// structured status is available (network faults, wrapped errors).
var transientSignatures = []string{
	"rate limit",
	"rate_limit",
	"overloaded",
	"overloaded_error",
	"too many requests",
	"timeout",
	"timed out",
	"temporarily unavailable",
	"connection reset",
	"bad gateway",
	"service unavailable",
}

// IsTransient reports whether a provider error is worth retrying.
// Rate limits, overload and generic upstream faults qualify; everything
// else (auth, malformed request, context length) is fatal to the turn.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	lower := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}
