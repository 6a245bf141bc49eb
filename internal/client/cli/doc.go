// Package cli provides the interactive GophAuth command-line client.
//
// It wires configuration, the encrypted session store, the identity backend
// client and the auth context, then serves a small REPL. A session saved by
// an earlier run is restored on start without a network round trip.
//
// Key features:
//   - Register / Login with email and password
//   - Google and Apple sign-in through the platform's mechanism; on a
//     terminal that is a browser redirect received on a loopback listener
//   - Status (local) and User (backend) inspection
//   - Logout, which keeps the session if the backend cannot be reached
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
