package recovery

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/pensionportal/recovery/internal/audit"
	"github.com/rs/zerolog"
)

// ContactMethod is an out-of-band channel a verification code can travel on.
type ContactMethod string

const (
	MethodEmail ContactMethod = "email"
	MethodSMS   ContactMethod = "sms"
)

// Valid reports whether m is one of the recognized methods.
func (m ContactMethod) Valid() bool {
	return m == MethodEmail || m == MethodSMS
}

// Subject is an account as resolved by a SubjectDirectory. ID is the
// directory key handed to the CredentialStore; Identifier is the normalized
// number the user typed.
type Subject struct {
	ID         string
	Identifier string
	Email      string
	Phone      string
}

// SubjectDirectory maps a normalized identifier to an account. It must
// return ErrSubjectNotFound (or wrap it) for unknown identifiers.
type SubjectDirectory interface {
	LookupSubject(ctx context.Context, identifier string) (Subject, error)
}

// Delivery is one verification code to send.
type Delivery struct {
	Method      ContactMethod
	Destination string
	SubjectID   string
	Code        string
	ValidFor    time.Duration
}

// Notifier sends a Delivery. Implementations must not retry internally
// beyond the caller's context deadline.
type Notifier interface {
	Deliver(ctx context.Context, d Delivery) error
}

// MethodSupporter is implemented by notifiers that serve only some methods.
// Initiate advertises, and SendCode accepts, only the supported ones.
type MethodSupporter interface {
	Supports(method ContactMethod) bool
}

// CredentialStore persists the final password hash.
type CredentialStore interface {
	UpdatePasswordHash(ctx context.Context, subjectID, passwordHash string) error
}

// InitiateResult is returned for every well-formed identifier. Token and
// AvailableMethods are empty when the identifier matched no account.
type InitiateResult struct {
	Token            string
	AvailableMethods []ContactMethod
}

// SendCodeResult reports how long the delivered code stays valid.
type SendCodeResult struct {
	ExpiresIn time.Duration
}

// ExpiresInMinutes rounds ExpiresIn up to whole minutes.
func (r SendCodeResult) ExpiresInMinutes() int {
	return int((r.ExpiresIn + time.Minute - 1) / time.Minute)
}

// AuditEvent is emitted for every reset step.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events off the request path.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events in a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZerologSink writes audit events through a zerolog logger.
type ZerologSink = internalaudit.ZerologSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewZerologSink(logger zerolog.Logger) *ZerologSink {
	return internalaudit.NewZerologSink(logger)
}
