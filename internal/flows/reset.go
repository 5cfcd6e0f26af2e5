package flows

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/pensionportal/recovery/internal"
	"github.com/pensionportal/recovery/internal/limiters"
	"github.com/pensionportal/recovery/internal/stores"
	"github.com/pensionportal/recovery/password"
)

const (
	MethodEmail = "email"
	MethodSMS   = "sms"
)

var errAttemptsExhausted = errors.New("verification attempts exhausted")

type ResetSubject struct {
	ID         string
	Identifier string
	Email      string
	Phone      string
}

type InitiateOutput struct {
	Token   string
	Methods []string
}

type ResetMetrics struct {
	Initiate               int
	InitiateUnknownSubject int
	RateLimited            int
	CodeSent               int
	DispatchFailure        int
	VerifySuccess          int
	VerifyFailure          int
	AttemptsExceeded       int
	ResetSuccess           int
	ResetFailure           int
	InvalidSession         int
}

type ResetEvents struct {
	Initiate   string
	CodeSent   string
	CodeVerify string
	Complete   string
}

// ResetErrors produces every error a reset flow can return. Constructors
// are used instead of values because most variants carry details.
type ResetErrors struct {
	EngineNotReady  error
	SubjectNotFound error

	InvalidSession  func() error
	TooManyAttempts func() error
	Validation      func(field, message string) error
	PasswordPolicy  func([]password.Rule) error
	RateLimited     func(retryAfter time.Duration) error
	InvalidCode     func(remaining int) error
	DispatchFailed  func(cause error) error
	Unavailable     func(cause error) error
	Internal        func(cause error) error
}

type ResetDeps struct {
	IdentifierPrefixes []string
	SessionTTL         time.Duration
	CodeTTL            time.Duration
	VerifiedTTL        time.Duration
	MaxVerifyAttempts  int

	Now                 func() time.Time
	ClientIPFromContext func(context.Context) string

	Sessions stores.SessionStore
	// Limiter may be nil, which disables Initiate rate limiting.
	Limiter limiters.AttemptLimiter

	LookupSubject      func(context.Context, string) (ResetSubject, error)
	Deliver            func(ctx context.Context, method, destination, subjectID, code string, validFor time.Duration) error
	UpdatePasswordHash func(context.Context, string, string) error
	CheckPassword      func(string) []password.Rule
	HashPassword       func(string) (string, error)

	NewToken     func() (string, error)
	NewCode      func() (string, error)
	NewAttemptID func() string
	// PadResponse blocks until a floor measured from started has passed.
	// Initiate calls it on the known and the unknown subject path alike.
	PadResponse func(ctx context.Context, started time.Time) error
	// SupportsMethod reports whether a notifier route exists for a method.
	// Nil means every method is deliverable.
	SupportsMethod func(method string) bool

	MetricInc       func(int)
	ObserveDispatch func(time.Duration)
	EmitAudit       func(ctx context.Context, eventType string, success bool, attemptID, subjectID string, err error, metadata func() map[string]string)
	EmitRateLimit   func(ctx context.Context, scope string, metadata func() map[string]string)

	Metrics ResetMetrics
	Events  ResetEvents
	Errors  ResetErrors
}

/*
====================================
INITIATE
====================================
*/

func RunInitiate(ctx context.Context, rawIdentifier string, deps ResetDeps) (InitiateOutput, error) {
	normalizeResetDeps(&deps)

	if deps.Sessions == nil || deps.LookupSubject == nil {
		return InitiateOutput{}, deps.Errors.EngineNotReady
	}

	started := time.Now()
	identifier, ok := NormalizeIdentifier(rawIdentifier, deps.IdentifierPrefixes)
	if !ok {
		err := deps.Errors.Validation("subjectIdentifier", "subject identifier format is invalid")
		deps.EmitAudit(ctx, deps.Events.Initiate, false, "", "", err, func() map[string]string {
			return map[string]string{"reason": "invalid_format"}
		})
		return InitiateOutput{}, err
	}

	now := deps.Now()
	clientIP := deps.ClientIPFromContext(ctx)
	if deps.Limiter != nil {
		decision, err := deps.Limiter.Allow(ctx, clientIP+":"+identifier, now)
		if err != nil {
			mapped := deps.Errors.Unavailable(err)
			deps.EmitAudit(ctx, deps.Events.Initiate, false, "", "", mapped, nil)
			return InitiateOutput{}, mapped
		}
		if !decision.Allowed {
			mapped := deps.Errors.RateLimited(decision.RetryAfter)
			deps.MetricInc(deps.Metrics.RateLimited)
			deps.EmitAudit(ctx, deps.Events.Initiate, false, "", "", mapped, nil)
			deps.EmitRateLimit(ctx, "reset_initiate", func() map[string]string {
				return map[string]string{"retry_after": decision.RetryAfter.String()}
			})
			return InitiateOutput{}, mapped
		}
	}

	subject, err := deps.LookupSubject(ctx, identifier)
	if err != nil {
		if !errors.Is(err, deps.Errors.SubjectNotFound) {
			mapped := deps.Errors.Unavailable(err)
			deps.EmitAudit(ctx, deps.Events.Initiate, false, "", "", mapped, func() map[string]string {
				return map[string]string{"reason": "directory_failed"}
			})
			return InitiateOutput{}, mapped
		}

		if padErr := deps.PadResponse(ctx, started); padErr != nil {
			return InitiateOutput{}, deps.Errors.Unavailable(padErr)
		}
		deps.MetricInc(deps.Metrics.Initiate)
		deps.MetricInc(deps.Metrics.InitiateUnknownSubject)
		deps.EmitAudit(ctx, deps.Events.Initiate, true, "", "", nil, func() map[string]string {
			return map[string]string{"enumeration_safe": "true"}
		})
		return InitiateOutput{}, nil
	}

	token, err := deps.NewToken()
	if err != nil {
		return InitiateOutput{}, deps.Errors.Internal(err)
	}

	session := &stores.ResetSession{
		Token:        token,
		AttemptID:    deps.NewAttemptID(),
		SubjectID:    subject.ID,
		ContactEmail: subject.Email,
		ContactPhone: subject.Phone,
		CreatedAt:    now,
		ExpiresAt:    now.Add(deps.SessionTTL),
	}
	if err := deps.Sessions.Save(ctx, session, now); err != nil {
		mapped := mapStoreError(err, deps.Errors)
		deps.EmitAudit(ctx, deps.Events.Initiate, false, session.AttemptID, subject.ID, mapped, nil)
		return InitiateOutput{}, mapped
	}

	if padErr := deps.PadResponse(ctx, started); padErr != nil {
		return InitiateOutput{}, deps.Errors.Unavailable(padErr)
	}

	methods := availableMethods(session, deps.SupportsMethod)
	deps.MetricInc(deps.Metrics.Initiate)
	deps.EmitAudit(ctx, deps.Events.Initiate, true, session.AttemptID, subject.ID, nil, nil)
	return InitiateOutput{Token: token, Methods: methods}, nil
}

/*
====================================
SEND CODE
====================================
*/

func RunSendCode(ctx context.Context, token, method string, deps ResetDeps) (time.Duration, error) {
	normalizeResetDeps(&deps)

	if deps.Sessions == nil || deps.Deliver == nil {
		return 0, deps.Errors.EngineNotReady
	}
	if !internal.ValidSessionTokenShape(token) {
		return 0, invalidSession(ctx, deps, deps.Events.CodeSent, nil)
	}

	now := deps.Now()
	var (
		prevCode     string
		prevVerified bool
		prevExpires  time.Time
		code         string
		destination  string
	)
	session, err := deps.Sessions.Update(ctx, token, now, func(s *stores.ResetSession) error {
		if method != MethodEmail && method != MethodSMS {
			return errUnknownMethod
		}
		destination = contactFor(s, method)
		if destination == "" || !deps.SupportsMethod(method) {
			return errNoChannel
		}

		generated, err := deps.NewCode()
		if err != nil {
			return err
		}

		prevCode, prevVerified, prevExpires = s.Code, s.CodeVerified, s.ExpiresAt
		code = generated
		s.Code = generated
		s.CodeVerified = false
		s.ExpiresAt = now.Add(deps.CodeTTL)
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errUnknownMethod):
			return 0, deps.Errors.Validation("method", "method must be email or sms")
		case errors.Is(err, errNoChannel):
			return 0, deps.Errors.Validation("method", "no contact channel registered for this method")
		case errors.Is(err, stores.ErrSessionNotFound):
			return 0, invalidSession(ctx, deps, deps.Events.CodeSent, nil)
		}
		mapped := mapStoreError(err, deps.Errors)
		deps.EmitAudit(ctx, deps.Events.CodeSent, false, "", "", mapped, nil)
		return 0, mapped
	}

	start := time.Now()
	deliverErr := deps.Deliver(ctx, method, destination, session.SubjectID, code, deps.CodeTTL)
	deps.ObserveDispatch(time.Since(start))

	if deliverErr != nil {
		rollbackCode(ctx, deps, token, code, prevCode, prevVerified, prevExpires)

		mapped := deps.Errors.DispatchFailed(deliverErr)
		deps.MetricInc(deps.Metrics.DispatchFailure)
		deps.EmitAudit(ctx, deps.Events.CodeSent, false, session.AttemptID, session.SubjectID, mapped, func() map[string]string {
			return map[string]string{"method": method}
		})
		return 0, mapped
	}

	deps.MetricInc(deps.Metrics.CodeSent)
	deps.EmitAudit(ctx, deps.Events.CodeSent, true, session.AttemptID, session.SubjectID, nil, func() map[string]string {
		return map[string]string{"method": method}
	})
	return deps.CodeTTL, nil
}

var (
	errUnknownMethod = errors.New("unknown contact method")
	errNoChannel     = errors.New("no contact channel for method")
	errCodeReplaced  = errors.New("code replaced concurrently")
)

// rollbackCode restores the state that preceded a failed dispatch, unless a
// concurrent SendCode already replaced the code.
func rollbackCode(
	ctx context.Context,
	deps ResetDeps,
	token, sentCode, prevCode string,
	prevVerified bool,
	prevExpires time.Time,
) {
	_, _ = deps.Sessions.Update(ctx, token, deps.Now(), func(s *stores.ResetSession) error {
		if s.Code != sentCode {
			return errCodeReplaced
		}
		s.Code = prevCode
		s.CodeVerified = prevVerified
		s.ExpiresAt = prevExpires
		return nil
	})
}

/*
====================================
VERIFY CODE
====================================
*/

func RunVerifyCode(ctx context.Context, token, code string, deps ResetDeps) error {
	normalizeResetDeps(&deps)

	if deps.Sessions == nil {
		return deps.Errors.EngineNotReady
	}
	if !internal.ValidSessionTokenShape(token) {
		return invalidSession(ctx, deps, deps.Events.CodeVerify, nil)
	}
	if code == "" {
		return deps.Errors.Validation("code", "code is required")
	}

	now := deps.Now()
	var (
		matched   bool
		remaining int
	)
	session, err := deps.Sessions.Update(ctx, token, now, func(s *stores.ResetSession) error {
		matched = false
		if int(s.VerificationAttempts) >= deps.MaxVerifyAttempts {
			return errAttemptsExhausted
		}
		s.VerificationAttempts++
		remaining = deps.MaxVerifyAttempts - int(s.VerificationAttempts)

		if s.Code == "" || subtle.ConstantTimeCompare([]byte(s.Code), []byte(code)) != 1 {
			if remaining <= 0 {
				// The session is abandoned, even if it was verified before.
				s.Code = ""
				s.CodeVerified = false
			}
			return nil
		}
		matched = true
		s.CodeVerified = true
		s.ExpiresAt = now.Add(deps.VerifiedTTL)
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errAttemptsExhausted):
			mapped := deps.Errors.TooManyAttempts()
			deps.MetricInc(deps.Metrics.AttemptsExceeded)
			deps.EmitAudit(ctx, deps.Events.CodeVerify, false, "", "", mapped, nil)
			return mapped
		case errors.Is(err, stores.ErrSessionNotFound):
			return invalidSession(ctx, deps, deps.Events.CodeVerify, nil)
		}
		mapped := mapStoreError(err, deps.Errors)
		deps.EmitAudit(ctx, deps.Events.CodeVerify, false, "", "", mapped, nil)
		return mapped
	}

	if matched {
		deps.MetricInc(deps.Metrics.VerifySuccess)
		deps.EmitAudit(ctx, deps.Events.CodeVerify, true, session.AttemptID, session.SubjectID, nil, nil)
		return nil
	}

	deps.MetricInc(deps.Metrics.VerifyFailure)
	var mapped error
	if remaining <= 0 {
		mapped = deps.Errors.TooManyAttempts()
		deps.MetricInc(deps.Metrics.AttemptsExceeded)
	} else {
		mapped = deps.Errors.InvalidCode(remaining)
	}
	deps.EmitAudit(ctx, deps.Events.CodeVerify, false, session.AttemptID, session.SubjectID, mapped, nil)
	return mapped
}

/*
====================================
COMPLETE PASSWORD RESET
====================================
*/

func RunCompletePasswordReset(ctx context.Context, token, newPassword string, deps ResetDeps) error {
	normalizeResetDeps(&deps)

	if deps.Sessions == nil || deps.UpdatePasswordHash == nil || deps.HashPassword == nil || deps.CheckPassword == nil {
		return deps.Errors.EngineNotReady
	}
	if !internal.ValidSessionTokenShape(token) {
		deps.MetricInc(deps.Metrics.ResetFailure)
		return invalidSession(ctx, deps, deps.Events.Complete, nil)
	}

	now := deps.Now()
	session, err := deps.Sessions.Get(ctx, token, now)
	if err != nil {
		deps.MetricInc(deps.Metrics.ResetFailure)
		if errors.Is(err, stores.ErrSessionNotFound) {
			return invalidSession(ctx, deps, deps.Events.Complete, nil)
		}
		mapped := mapStoreError(err, deps.Errors)
		deps.EmitAudit(ctx, deps.Events.Complete, false, "", "", mapped, nil)
		return mapped
	}
	if !session.CodeVerified {
		deps.MetricInc(deps.Metrics.ResetFailure)
		return invalidSession(ctx, deps, deps.Events.Complete, func() map[string]string {
			return map[string]string{"reason": "not_verified"}
		})
	}

	if violations := deps.CheckPassword(newPassword); len(violations) > 0 {
		mapped := deps.Errors.PasswordPolicy(violations)
		deps.MetricInc(deps.Metrics.ResetFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, session.AttemptID, session.SubjectID, mapped, nil)
		return mapped
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		mapped := deps.Errors.Internal(err)
		deps.MetricInc(deps.Metrics.ResetFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, session.AttemptID, session.SubjectID, mapped, nil)
		return mapped
	}

	// Deleting claims the session; a concurrent completion sees it gone.
	claimed, err := deps.Sessions.Delete(ctx, token, deps.Now())
	if err != nil {
		deps.MetricInc(deps.Metrics.ResetFailure)
		if errors.Is(err, stores.ErrSessionNotFound) {
			return invalidSession(ctx, deps, deps.Events.Complete, nil)
		}
		mapped := mapStoreError(err, deps.Errors)
		deps.EmitAudit(ctx, deps.Events.Complete, false, session.AttemptID, session.SubjectID, mapped, nil)
		return mapped
	}
	if !claimed.CodeVerified {
		_ = deps.Sessions.Save(ctx, claimed, deps.Now())
		deps.MetricInc(deps.Metrics.ResetFailure)
		return invalidSession(ctx, deps, deps.Events.Complete, func() map[string]string {
			return map[string]string{"reason": "not_verified"}
		})
	}

	if err := deps.UpdatePasswordHash(ctx, claimed.SubjectID, hash); err != nil {
		// Put the session back so the user can retry without a new code.
		_ = deps.Sessions.Save(ctx, claimed, deps.Now())

		mapped := deps.Errors.Unavailable(err)
		deps.MetricInc(deps.Metrics.ResetFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, claimed.AttemptID, claimed.SubjectID, mapped, func() map[string]string {
			return map[string]string{"reason": "credential_store_failed"}
		})
		return mapped
	}

	deps.MetricInc(deps.Metrics.ResetSuccess)
	deps.EmitAudit(ctx, deps.Events.Complete, true, claimed.AttemptID, claimed.SubjectID, nil, nil)
	return nil
}

/*
====================================
HELPERS
====================================
*/

func availableMethods(s *stores.ResetSession, supports func(string) bool) []string {
	methods := make([]string, 0, 2)
	if s.ContactEmail != "" && supports(MethodEmail) {
		methods = append(methods, MethodEmail)
	}
	if s.ContactPhone != "" && supports(MethodSMS) {
		methods = append(methods, MethodSMS)
	}
	return methods
}

func contactFor(s *stores.ResetSession, method string) string {
	switch method {
	case MethodEmail:
		return s.ContactEmail
	case MethodSMS:
		return s.ContactPhone
	default:
		return ""
	}
}

func invalidSession(ctx context.Context, deps ResetDeps, event string, metadata func() map[string]string) error {
	err := deps.Errors.InvalidSession()
	deps.MetricInc(deps.Metrics.InvalidSession)
	deps.EmitAudit(ctx, event, false, "", "", err, metadata)
	return err
}

func mapStoreError(err error, e ResetErrors) error {
	switch {
	case errors.Is(err, stores.ErrSessionNotFound):
		return e.InvalidSession()
	case errors.Is(err, stores.ErrStoreUnavailable),
		errors.Is(err, stores.ErrStoreContention),
		errors.Is(err, limiters.ErrLimiterUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return e.Unavailable(err)
	default:
		return e.Internal(err)
	}
}

func normalizeResetDeps(deps *ResetDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.MaxVerifyAttempts <= 0 {
		deps.MaxVerifyAttempts = 3
	}
	if deps.NewToken == nil {
		deps.NewToken = internal.NewSessionToken
	}
	if deps.NewCode == nil {
		deps.NewCode = internal.NewVerificationCode
	}
	if deps.NewAttemptID == nil {
		deps.NewAttemptID = func() string { return "" }
	}
	if deps.PadResponse == nil {
		deps.PadResponse = func(context.Context, time.Time) error { return nil }
	}
	if deps.SupportsMethod == nil {
		deps.SupportsMethod = func(string) bool { return true }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.ObserveDispatch == nil {
		deps.ObserveDispatch = func(time.Duration) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.EmitRateLimit == nil {
		deps.EmitRateLimit = func(context.Context, string, func() map[string]string) {}
	}

	fallback := deps.Errors.EngineNotReady
	if fallback == nil {
		fallback = errors.New("reset flow not ready")
		deps.Errors.EngineNotReady = fallback
	}
	if deps.Errors.SubjectNotFound == nil {
		deps.Errors.SubjectNotFound = errors.New("subject not found")
	}
	if deps.Errors.InvalidSession == nil {
		deps.Errors.InvalidSession = func() error { return fallback }
	}
	if deps.Errors.TooManyAttempts == nil {
		deps.Errors.TooManyAttempts = func() error { return fallback }
	}
	if deps.Errors.Validation == nil {
		deps.Errors.Validation = func(string, string) error { return fallback }
	}
	if deps.Errors.PasswordPolicy == nil {
		deps.Errors.PasswordPolicy = func([]password.Rule) error { return fallback }
	}
	if deps.Errors.RateLimited == nil {
		deps.Errors.RateLimited = func(time.Duration) error { return fallback }
	}
	if deps.Errors.InvalidCode == nil {
		deps.Errors.InvalidCode = func(int) error { return fallback }
	}
	if deps.Errors.DispatchFailed == nil {
		deps.Errors.DispatchFailed = func(error) error { return fallback }
	}
	if deps.Errors.Unavailable == nil {
		deps.Errors.Unavailable = func(error) error { return fallback }
	}
	if deps.Errors.Internal == nil {
		deps.Errors.Internal = func(error) error { return fallback }
	}
}
