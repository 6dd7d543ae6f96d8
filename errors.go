package goKaltura

import "errors"

var (
	// ErrClientNotReady is returned by methods called on a nil or unbuilt Client.
	ErrClientNotReady = errors.New("client not ready")
	// ErrInvalidConfig is returned when Config.Validate rejects a configuration.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrNoCredential is returned when an operation needs a secret or KS and has neither.
	ErrNoCredential = errors.New("no session credential")
	// ErrAPIStatus is returned when the API answers with a non-2xx status.
	ErrAPIStatus = errors.New("unexpected api status")
	// ErrCacheUnavailable is returned when a cache operation is requested without Redis.
	ErrCacheUnavailable = errors.New("ks cache unavailable")
)
