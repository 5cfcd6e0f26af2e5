// Package audit delivers password reset audit events to a pluggable sink.
//
// # Components
//
//   - [Event]: one reset step with attempt id, subject id, client IP and outcome code.
//   - [Sink]: consumer interface with no-op, channel, JSON-lines and zerolog implementations.
//   - [Dispatcher]: buffered relay that runs sinks off the request path.
//
// # Architecture boundaries
//
// The engine decides which events to emit. This package only buffers and
// delivers them.
//
// # What this package must NOT do
//
//   - Filter events based on business logic.
//   - Import the root package or any sibling internal package.
package audit
