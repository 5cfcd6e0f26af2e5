// Package stores holds short-lived password reset sessions keyed by an
// opaque session token.
//
// # Design
//
// Two backends implement SessionStore. MemorySessionStore keeps records in a
// map with a lock per entry and relies on SweepExpired for cleanup.
// RedisSessionStore writes a versioned, binary-encoded record with a TTL equal
// to the session deadline; Update and Delete run inside WATCH/MULTI
// transactions and retry on contention.
//
// Expired records are treated as absent by every read path, whether or not
// they have been physically removed yet.
//
// # Architecture boundaries
//
// This package owns persistence and per-token concurrency control. It does
// not generate tokens or codes, enforce rate limits, or decide whether a code
// matches; those live in internal/flows.
//
// # What this package must NOT do
//
//   - Import the root package or any sibling internal package.
//   - Log session fields.
package stores
