// Package internal contains helpers that are private to the recovery module:
// session token and verification code generation.
//
// # Sub-packages
//
//   - app: wires settings, stores, directory and notifiers into a server
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators behind every Engine operation
//   - limiters: fixed-window attempt limiter (memory and Redis)
//   - settings: RECOVERY_* environment configuration and logger setup
//   - stores: reset session store (memory and Redis)
//
// # What this package must NOT do
//
//   - Export types that appear in the public recovery API.
//   - Be imported by any package outside the recovery module.
package internal
