// Package common defines shared constants and sentinel errors used across
// the authentication client layers. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Input rejected before any network call.
	ErrValidation = errors.New("validation error")

	// Provider errors. ErrNoIDToken is a provider success without a usable
	// token and must stay distinguishable from ErrProvider (failure or
	// user cancellation).
	ErrProvider            = errors.New("provider error")
	ErrNoIDToken           = errors.New("provider returned no id token")
	ErrProviderUnavailable = errors.New("provider unavailable")

	// Redirect state/nonce validation failed.
	ErrCsrfMismatch = errors.New("csrf mismatch")

	// Identity service rejected the request or was unreachable.
	ErrBackend = errors.New("backend error")

	// No session after a completed flow.
	ErrSessionAbsent = errors.New("session absent")
)
