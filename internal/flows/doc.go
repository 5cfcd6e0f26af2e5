// Package flows contains the orchestrators behind every Engine operation.
//
// Each Run* function accepts a typed dependency struct and returns results
// without side effects beyond those dependencies. The root package builds the
// deps once per call from its configuration and collaborators, which keeps
// Engine thin and lets tests drive a flow with plain closures.
//
// # Architecture boundaries
//
// Flows coordinate the session store, the attempt limiter, the subject
// directory, the notifier, the password hasher and the credential store.
// They do not own any of these resources; ownership stays with the Engine.
// Errors returned to callers are always produced by the constructors in
// ResetErrors so the root package controls the public taxonomy.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root package.
//   - Read the wall clock for anything but dispatch latency and response
//     padding.
package flows
