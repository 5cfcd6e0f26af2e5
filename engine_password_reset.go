package recovery

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"
	internalflows "github.com/pensionportal/recovery/internal/flows"
)

const (
	enumerationDelayMin    = 20 * time.Millisecond
	enumerationDelayJitter = 20 * time.Millisecond
)

// Initiate starts a reset attempt for subjectIdentifier.
//
// Initiate returns a *Error with CodeValidation for malformed identifiers and
// CodeRateLimited when the client has asked too often for this identifier.
// An identifier that matches no account yields a zero InitiateResult and a
// nil error, indistinguishable in shape from success.
func (e *Engine) Initiate(ctx context.Context, subjectIdentifier string) (InitiateResult, error) {
	out, err := internalflows.RunInitiate(ctx, subjectIdentifier, e.resetFlowDeps())
	if err != nil {
		return InitiateResult{}, err
	}

	result := InitiateResult{Token: out.Token}
	if len(out.Methods) > 0 {
		result.AvailableMethods = make([]ContactMethod, len(out.Methods))
		for i, m := range out.Methods {
			result.AvailableMethods[i] = ContactMethod(m)
		}
	}
	return result, nil
}

// SendCode generates a fresh verification code for the session behind token
// and delivers it over method. Any earlier code stops working. The returned
// duration is how long the new code stays valid; the code itself is never
// returned.
func (e *Engine) SendCode(ctx context.Context, token string, method ContactMethod) (SendCodeResult, error) {
	validFor, err := internalflows.RunSendCode(ctx, token, string(method), e.resetFlowDeps())
	if err != nil {
		return SendCodeResult{}, err
	}
	return SendCodeResult{ExpiresIn: validFor}, nil
}

// VerifyCode checks code against the last code sent for token. Every call
// counts against the attempt cap, including a correct one.
func (e *Engine) VerifyCode(ctx context.Context, token, code string) error {
	return internalflows.RunVerifyCode(ctx, token, code, e.resetFlowDeps())
}

// CompletePasswordReset sets newPassword for the subject of a verified
// session and consumes the session. A password that fails the policy leaves
// the session usable.
func (e *Engine) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	return internalflows.RunCompletePasswordReset(ctx, token, newPassword, e.resetFlowDeps())
}

func (e *Engine) resetFlowDeps() internalflows.ResetDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.ResetDeps{
		IdentifierPrefixes:  cfg.Reset.IdentifierPrefixes,
		SessionTTL:          cfg.Reset.SessionTTL,
		CodeTTL:             cfg.Reset.CodeTTL,
		VerifiedTTL:         cfg.Reset.VerifiedTTL,
		MaxVerifyAttempts:   cfg.Reset.MaxVerifyAttempts,
		Now:                 e.now,
		ClientIPFromContext: clientIPFromContext,
		NewAttemptID:        uuid.NewString,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		ObserveDispatch: func(d time.Duration) {
			if e != nil && e.metrics != nil {
				e.metrics.Observe(MetricDispatchLatency, d)
			}
		},
		EmitAudit:     e.emitAudit,
		EmitRateLimit: e.emitRateLimit,
		Metrics: internalflows.ResetMetrics{
			Initiate:               int(MetricInitiate),
			InitiateUnknownSubject: int(MetricInitiateUnknownSubject),
			RateLimited:            int(MetricRateLimited),
			CodeSent:               int(MetricCodeSent),
			DispatchFailure:        int(MetricDispatchFailure),
			VerifySuccess:          int(MetricVerifySuccess),
			VerifyFailure:          int(MetricVerifyFailure),
			AttemptsExceeded:       int(MetricAttemptsExceeded),
			ResetSuccess:           int(MetricResetSuccess),
			ResetFailure:           int(MetricResetFailure),
			InvalidSession:         int(MetricInvalidSession),
		},
		Events: internalflows.ResetEvents{
			Initiate:   auditEventResetInitiate,
			CodeSent:   auditEventResetCodeSent,
			CodeVerify: auditEventResetCodeVerify,
			Complete:   auditEventResetComplete,
		},
		Errors: internalflows.ResetErrors{
			EngineNotReady:  ErrEngineNotReady,
			SubjectNotFound: ErrSubjectNotFound,
			InvalidSession:  invalidSessionError,
			TooManyAttempts: tooManyAttemptsError,
			Validation:      validationError,
			PasswordPolicy:  passwordPolicyError,
			RateLimited:     rateLimitedError,
			InvalidCode:     invalidCodeError,
			DispatchFailed: func(cause error) error {
				return causedError(CodeDispatchFailed, "verification code could not be delivered, request a new code", cause)
			},
			Unavailable: func(cause error) error {
				return causedError(CodeUnavailable, "password reset is temporarily unavailable", cause)
			},
			Internal: func(cause error) error {
				return causedError(CodeInternal, "internal error", cause)
			},
		},
	}

	if e == nil {
		return deps
	}

	deps.Sessions = e.sessions
	deps.Limiter = e.limiter
	if cfg.Reset.EnumerationDelay {
		deps.PadResponse = padInitiateResponse
	}

	if e.directory != nil {
		deps.LookupSubject = func(ctx context.Context, identifier string) (internalflows.ResetSubject, error) {
			s, err := e.directory.LookupSubject(ctx, identifier)
			if err != nil {
				return internalflows.ResetSubject{}, err
			}
			return internalflows.ResetSubject{
				ID:         s.ID,
				Identifier: s.Identifier,
				Email:      s.Email,
				Phone:      s.Phone,
			}, nil
		}
	}
	if e.notifier != nil {
		deps.Deliver = func(ctx context.Context, method, destination, subjectID, code string, validFor time.Duration) error {
			return e.notifier.Deliver(ctx, Delivery{
				Method:      ContactMethod(method),
				Destination: destination,
				SubjectID:   subjectID,
				Code:        code,
				ValidFor:    validFor,
			})
		}
	}
	if e.credentials != nil {
		deps.UpdatePasswordHash = e.credentials.UpdatePasswordHash
	}
	if e.hasher != nil {
		deps.HashPassword = e.hasher.Hash
	}
	if s, ok := e.notifier.(MethodSupporter); ok {
		deps.SupportsMethod = func(method string) bool {
			return s.Supports(ContactMethod(method))
		}
	}
	deps.CheckPassword = e.policy.Check

	return deps
}

// padInitiateResponse holds Initiate until a randomized floor after started,
// so known and unknown identifiers answer in the same time band.
func padInitiateResponse(ctx context.Context, started time.Time) error {
	floor := enumerationDelayMin
	if n, err := rand.Int(rand.Reader, big.NewInt(int64(enumerationDelayJitter))); err == nil {
		floor += time.Duration(n.Int64())
	}

	delay := floor - time.Since(started)
	if delay <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
