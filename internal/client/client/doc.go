// Package client talks to the hosted identity backend.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface): sign-up,
//     password / id-token / redirect sign-in, refresh, sign-out, session and
//     user lookup, and a change-event subscription.
//  2. A GoTrue-compatible HTTP implementation (see HTTPClient) that owns the
//     current session, persists it through the session repository, refreshes
//     it before expiry and publishes every replacement as an Event.
//
// # Error Handling
//
// Every error wraps common.ErrBackend. Network failures additionally match
// ErrUnavailable; 401/403 responses match ErrUnauthorized; the backend's
// error body is available through *APIError.
//
// # Events
//
// Each subscriber receives INITIAL_SESSION first and then every change in the
// order the session was replaced. Callbacks for one subscriber run on their
// own goroutine, one at a time.
package client
