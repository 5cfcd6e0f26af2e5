// Package recovery implements the pensioner portal forgot-password flow:
// a subject proves control of a registered email address or phone number with
// a short-lived six digit code and then sets a new password.
//
// The flow has four steps, each one Engine method:
//
//	Initiate              identifier -> opaque session token + contact methods
//	SendCode              token, method -> code delivered out of band
//	VerifyCode            token, code -> session marked verified
//	CompletePasswordReset token, password -> hash persisted, session consumed
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// recovery is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator interfaces ([SubjectDirectory], [Notifier],
// [CredentialStore]) and the error taxonomy ([Error], [Code]). Flow
// orchestration, session encoding, attempt limiting and audit dispatch live
// under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Reveal whether a subject identifier exists, through results or errors.
//   - Return verification codes or password hashes to callers.
//   - Log. Reporting happens through audit events and metrics.
//   - Import any sub-package that re-imports recovery (no import cycles).
package recovery
