package recovery

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pensionportal/recovery/password"
)

func TestErrorMatchesSentinel(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
		code     Code
	}{
		{validationError("method", "bad"), ErrValidation, CodeValidation},
		{passwordPolicyError([]password.Rule{password.RuleDigit}), ErrValidation, CodeValidation},
		{rateLimitedError(time.Minute), ErrRateLimited, CodeRateLimited},
		{invalidCodeError(2), ErrInvalidCode, CodeInvalidCode},
		{invalidSessionError(), ErrInvalidSession, CodeInvalidSession},
		{tooManyAttemptsError(), ErrTooManyAttempts, CodeTooManyAttempts},
		{causedError(CodeDispatchFailed, "x", errors.New("smtp down")), ErrDispatchFailed, CodeDispatchFailed},
		{causedError(CodeUnavailable, "x", errors.New("redis down")), ErrUnavailable, CodeUnavailable},
	}

	for _, tc := range tests {
		if !errors.Is(tc.err, tc.sentinel) {
			t.Fatalf("%v: expected errors.Is %v", tc.err, tc.sentinel)
		}
		if got := CodeOf(tc.err); got != tc.code {
			t.Fatalf("%v: expected code %s, got %s", tc.err, tc.code, got)
		}
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := causedError(CodeUnavailable, "password reset is temporarily unavailable", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	wrapped := fmt.Errorf("handler: %w", err)
	e, ok := AsError(wrapped)
	if !ok || e.Code != CodeUnavailable {
		t.Fatalf("expected *Error through wrapping, got %v", wrapped)
	}
}

func TestCodeOfForeignErrors(t *testing.T) {
	if CodeOf(nil) != "" {
		t.Fatal("nil error must have no code")
	}
	if CodeOf(errors.New("boom")) != CodeInternal {
		t.Fatal("foreign error must be internal")
	}
	if CodeOf(fmt.Errorf("x: %w", ErrRateLimited)) != CodeRateLimited {
		t.Fatal("wrapped sentinel must keep its code")
	}
}

func TestRetryAfterMinutesRoundsUp(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 1},
		{time.Second, 1},
		{time.Minute, 1},
		{time.Minute + time.Second, 2},
		{14*time.Minute + 30*time.Second, 15},
	}

	for _, tc := range tests {
		e := &Error{Code: CodeRateLimited, RetryAfter: tc.d}
		if got := e.RetryAfterMinutes(); got != tc.want {
			t.Fatalf("RetryAfter %v: expected %d, got %d", tc.d, tc.want, got)
		}
	}

	err := rateLimitedError(90 * time.Second)
	if err.Error() != "too many attempts, retry after 2 minutes" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestPasswordPolicyErrorListsRules(t *testing.T) {
	rules := []password.Rule{password.RuleUppercase, password.RuleDigit, password.RuleSymbol}
	e, ok := AsError(passwordPolicyError(rules))
	if !ok {
		t.Fatal("expected *Error")
	}
	if len(e.Violations) != 3 || e.Field != "newPassword" {
		t.Fatalf("unexpected error %+v", e)
	}

	rules[0] = password.RuleLowercase
	if e.Violations[0] != password.RuleUppercase {
		t.Fatal("violations must be copied")
	}
}
