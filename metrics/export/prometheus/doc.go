// Package prometheus renders recovery engine metrics in the Prometheus text
// exposition format.
//
// Counters are named recovery_*_total. The notifier latency histogram is
// recovery_dispatch_latency_seconds and carries a real _sum.
//
// # What this package must NOT do
//
//   - Register anything in a global Prometheus registry; callers mount Handler.
//   - Mutate engine state.
package prometheus
