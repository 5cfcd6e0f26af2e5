// Package limiters counts attempts per key inside a fixed time window.
//
// [MemoryAttemptLimiter] anchors each window at the first attempt and resets
// the record on the first attempt after the window has elapsed.
// [RedisAttemptLimiter] does the same with INCR and a key expiry so several
// processes share one budget.
//
// Both are nil-safe: a nil limiter allows everything.
//
// # What this package must NOT do
//
//   - Import the root package or any sibling internal package.
//   - Decide what a denial means; the reset flow turns it into an error.
package limiters
