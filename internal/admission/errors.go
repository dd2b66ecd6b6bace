package admission

import (
	"errors"
	"net/http"
)

// Sentinel errors. Every error crossing the admission boundary wraps one of
// these; raw store or network errors never leak to the transport layer.
var (
	ErrEmptyText        = errors.New("admission: text is required")
	ErrTextTooLong      = errors.New("admission: text exceeds the maximum length")
	ErrMissingVoice     = errors.New("admission: voice is required")
	ErrAuthRequired     = errors.New("admission: authentication required")
	ErrEmailNotVerified = errors.New("admission: email must be verified before using text-to-speech")
	ErrRateLimited      = errors.New("admission: rate limit exceeded")
	ErrQueueTimeout     = errors.New("admission: timed out waiting for queued request")
	ErrSynthesis        = errors.New("admission: speech synthesis failed")
	ErrStoreUnavailable = errors.New("admission: request store unavailable")
)

// CodeOf returns the stable wire code for an admission error, so clients
// can branch programmatically instead of parsing messages.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrEmptyText),
		errors.Is(err, ErrTextTooLong),
		errors.Is(err, ErrMissingVoice):
		return "invalid_request"
	case errors.Is(err, ErrAuthRequired):
		return "auth_required"
	case errors.Is(err, ErrEmailNotVerified):
		return "email_not_verified"
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrQueueTimeout):
		return "rate_limit_exceeded"
	case errors.Is(err, ErrSynthesis):
		return "synthesis_failed"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal_error"
	}
}

// StatusOf returns the HTTP status for an admission error.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrEmptyText),
		errors.Is(err, ErrTextTooLong),
		errors.Is(err, ErrMissingVoice):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthRequired), errors.Is(err, ErrEmailNotVerified):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrQueueTimeout):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
