package internaldefs

import (
	"github.com/pensionportal/recovery"
)

type CounterDef struct {
	ID   recovery.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   recovery.MetricID
	Name string
	Help string
}

// AuditDroppedName is exported by every backend next to the engine counters.
const (
	AuditDroppedName = "recovery_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

var CounterDefs = []CounterDef{
	{ID: recovery.MetricInitiate, Name: "recovery_initiate_total", Help: "Accepted password reset initiations."},
	{ID: recovery.MetricInitiateUnknownSubject, Name: "recovery_initiate_unknown_subject_total", Help: "Initiations for identifiers with no matching account."},
	{ID: recovery.MetricRateLimited, Name: "recovery_rate_limited_total", Help: "Initiations denied by the attempt limiter."},
	{ID: recovery.MetricCodeSent, Name: "recovery_code_sent_total", Help: "Verification codes delivered to a notifier."},
	{ID: recovery.MetricDispatchFailure, Name: "recovery_dispatch_failure_total", Help: "Verification codes the notifier failed to deliver."},
	{ID: recovery.MetricVerifySuccess, Name: "recovery_verify_success_total", Help: "Verification codes that matched."},
	{ID: recovery.MetricVerifyFailure, Name: "recovery_verify_failure_total", Help: "Verification codes that did not match."},
	{ID: recovery.MetricAttemptsExceeded, Name: "recovery_attempts_exceeded_total", Help: "Verifications refused after the attempt cap."},
	{ID: recovery.MetricResetSuccess, Name: "recovery_reset_success_total", Help: "Completed password resets."},
	{ID: recovery.MetricResetFailure, Name: "recovery_reset_failure_total", Help: "Password reset completions that failed."},
	{ID: recovery.MetricInvalidSession, Name: "recovery_invalid_session_total", Help: "Operations rejected for an unknown, expired or unverified session."},
	{ID: recovery.MetricSessionsSwept, Name: "recovery_sessions_swept_total", Help: "Expired sessions removed by the sweeper."},
}

var HistogramDefs = []HistogramDef{
	{ID: recovery.MetricDispatchLatency, Name: "recovery_dispatch_latency_seconds", Help: "Notifier delivery latency."},
}

// HistogramBounds are the upper bounds of the engine buckets in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix spells HistogramBounds in instrument-name-safe form.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
