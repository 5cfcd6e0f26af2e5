// Package accounts provides SubjectDirectory and CredentialStore
// implementations for the recovery engine.
//
// StaticDirectory serves a fixed subject list loaded from YAML and keeps
// password hashes in memory; it backs development servers and tests.
// SQLDirectory reads subjects from and writes hashes to a MySQL or
// PostgreSQL table through database/sql.
package accounts
