package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	// ErrInferenceUnavailable covers inference timeouts, transport failures
	// and unparsable or empty model output.
	ErrInferenceUnavailable = errors.New("inference unavailable")
	ErrParseRejected        = errors.New("spec parse rejected")
	ErrFetchFailed          = errors.New("fetch failed")
	ErrProviderUnavailable  = errors.New("provider unavailable")
	ErrPipeline             = errors.New("pipeline error")
	ErrInvalidMarket        = errors.New("invalid market")
)
