package recovery

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pensionportal/recovery/password"
)

// Code is the stable, client-facing classification of a failure.
type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeInvalidSession  Code = "INVALID_SESSION"
	CodeInvalidCode     Code = "INVALID_CODE"
	CodeTooManyAttempts Code = "TOO_MANY_ATTEMPTS"
	CodeDispatchFailed  Code = "DISPATCH_FAILED"
	CodeUnavailable     Code = "SERVICE_UNAVAILABLE"
	CodeInternal        Code = "INTERNAL_ERROR"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrRateLimited     = errors.New("too many reset requests")
	ErrInvalidSession  = errors.New("invalid or expired reset session")
	ErrInvalidCode     = errors.New("invalid verification code")
	ErrTooManyAttempts = errors.New("too many verification attempts")
	ErrDispatchFailed  = errors.New("verification code could not be delivered")
	ErrUnavailable     = errors.New("reset backend unavailable")
	ErrInternal        = errors.New("internal error")

	// ErrSubjectNotFound is returned by a SubjectDirectory for unknown
	// identifiers. The engine never surfaces it.
	ErrSubjectNotFound = errors.New("subject not found")

	ErrEngineNotReady = errors.New("engine not initialized")
)

var codeSentinels = map[Code]error{
	CodeValidation:      ErrValidation,
	CodeRateLimited:     ErrRateLimited,
	CodeInvalidSession:  ErrInvalidSession,
	CodeInvalidCode:     ErrInvalidCode,
	CodeTooManyAttempts: ErrTooManyAttempts,
	CodeDispatchFailed:  ErrDispatchFailed,
	CodeUnavailable:     ErrUnavailable,
	CodeInternal:        ErrInternal,
}

// Error is the single error type returned by Engine operations. It matches
// the sentinel for its Code with errors.Is and unwraps to the underlying
// cause, which is never shown to clients.
type Error struct {
	Code    Code
	Message string

	// Field names the offending input for CodeValidation.
	Field string
	// RetryAfter is set for CodeRateLimited.
	RetryAfter time.Duration
	// RemainingAttempts is set for CodeInvalidCode and CodeTooManyAttempts.
	RemainingAttempts int
	// Violations lists unmet password rules for CodeValidation.
	Violations []password.Rule

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if s, ok := codeSentinels[e.Code]; ok {
		out = append(out, s)
	}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

// RetryAfterMinutes rounds RetryAfter up to whole minutes, never below one.
func (e *Error) RetryAfterMinutes() int {
	if e.RetryAfter <= 0 {
		return 1
	}
	m := int((e.RetryAfter + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}

// AsError extracts the *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var out *Error
	if errors.As(err, &out) {
		return out, true
	}
	return nil, false
}

// CodeOf classifies any error. Errors outside the taxonomy are INTERNAL_ERROR.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if e, ok := AsError(err); ok {
		return e.Code
	}
	for code, sentinel := range codeSentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeInternal
}

func validationError(field, message string) error {
	return &Error{Code: CodeValidation, Field: field, Message: message}
}

func passwordPolicyError(rules []password.Rule) error {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = string(r)
	}
	return &Error{
		Code:       CodeValidation,
		Field:      "newPassword",
		Message:    "password does not meet requirements: " + strings.Join(names, ", "),
		Violations: append([]password.Rule(nil), rules...),
	}
}

func rateLimitedError(retryAfter time.Duration) error {
	e := &Error{Code: CodeRateLimited, RetryAfter: retryAfter}
	e.Message = fmt.Sprintf("too many attempts, retry after %d minutes", e.RetryAfterMinutes())
	return e
}

func invalidCodeError(remaining int) error {
	return &Error{
		Code:              CodeInvalidCode,
		Message:           fmt.Sprintf("invalid verification code, %d attempts remaining", remaining),
		RemainingAttempts: remaining,
	}
}

func causedError(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, cause: cause}
}

// invalidSessionError does not say whether the token expired, never existed
// or is not verified yet.
func invalidSessionError() error {
	return &Error{Code: CodeInvalidSession, Message: "invalid or expired session"}
}

func tooManyAttemptsError() error {
	return &Error{Code: CodeTooManyAttempts, Message: "too many verification attempts, start over"}
}
