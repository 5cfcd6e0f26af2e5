// Package httpapi exposes the recovery engine over JSON/HTTP.
//
// Routes live under /api/v1/auth/forgot-password. Every failure is rendered
// through one table that maps recovery.Code to an HTTP status, so handlers
// never inspect error types themselves.
package httpapi
