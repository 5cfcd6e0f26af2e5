package accounts_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pensionportal/recovery"
	"github.com/pensionportal/recovery/accounts"
)

// setupSQLDirectoryTest creates a directory over a mocked pool
func setupSQLDirectoryTest(t *testing.T, driverName string) (*accounts.SQLDirectory, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	dir, err := accounts.NewSQLDirectory(db, driverName, "")
	require.NoError(t, err)

	return dir, mock, func() {
		db.Close()
	}
}

func TestSQLDirectory_LookupSubject(t *testing.T) {
	dir, mock, cleanup := setupSQLDirectoryTest(t, accounts.DriverMySQL)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "identifier", "email", "phone"}).
		AddRow("p-1", "NSS12345678", "ana@example.org", nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, identifier, email, phone FROM pensioners WHERE identifier = ?")).
		WithArgs("NSS12345678").
		WillReturnRows(rows)

	subject, err := dir.LookupSubject(context.Background(), " nss12345678")

	assert.NoError(t, err)
	assert.Equal(t, recovery.Subject{ID: "p-1", Identifier: "NSS12345678", Email: "ana@example.org"}, subject)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDirectory_LookupSubject_NotFound(t *testing.T) {
	dir, mock, cleanup := setupSQLDirectoryTest(t, accounts.DriverPostgres)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE identifier = $1")).
		WithArgs("NSS00000000").
		WillReturnError(sql.ErrNoRows)

	_, err := dir.LookupSubject(context.Background(), "NSS00000000")

	assert.ErrorIs(t, err, recovery.ErrSubjectNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDirectory_LookupSubject_ConnectionError(t *testing.T) {
	tests := []struct {
		name        string
		driver      string
		err         error
		unavailable bool
	}{
		{"mysql invalid conn", accounts.DriverMySQL, mysql.ErrInvalidConn, true},
		{"mysql too many connections", accounts.DriverMySQL, &mysql.MySQLError{Number: 1040}, true},
		{"postgres connection failure", accounts.DriverPostgres, &pq.Error{Code: "08006"}, true},
		{"postgres admin shutdown", accounts.DriverPostgres, &pq.Error{Code: "57P01"}, true},
		{"postgres syntax error", accounts.DriverPostgres, &pq.Error{Code: "42601"}, false},
		{"plain error", accounts.DriverMySQL, errors.New("boom"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir, mock, cleanup := setupSQLDirectoryTest(t, tc.driver)
			defer cleanup()

			mock.ExpectQuery("SELECT id, identifier").WillReturnError(tc.err)

			_, err := dir.LookupSubject(context.Background(), "NSS12345678")

			require.Error(t, err)
			assert.NotErrorIs(t, err, recovery.ErrSubjectNotFound)
			assert.Equal(t, tc.unavailable, errors.Is(err, recovery.ErrUnavailable))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLDirectory_UpdatePasswordHash(t *testing.T) {
	dir, mock, cleanup := setupSQLDirectoryTest(t, accounts.DriverPostgres)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE pensioners SET password_hash = $1 WHERE id = $2")).
		WithArgs("$2a$12$hash", "p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := dir.UpdatePasswordHash(context.Background(), "p-1", "$2a$12$hash")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDirectory_UpdatePasswordHash_NoRows(t *testing.T) {
	dir, mock, cleanup := setupSQLDirectoryTest(t, accounts.DriverMySQL)
	defer cleanup()

	mock.ExpectExec("UPDATE pensioners").
		WithArgs("hash", "p-9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := dir.UpdatePasswordHash(context.Background(), "p-9", "hash")

	assert.ErrorIs(t, err, recovery.ErrSubjectNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDirectory_UpdatePasswordHash_DatabaseError(t *testing.T) {
	dir, mock, cleanup := setupSQLDirectoryTest(t, accounts.DriverMySQL)
	defer cleanup()

	mock.ExpectExec("UPDATE pensioners").
		WillReturnError(errors.New("deadlock"))

	err := dir.UpdatePasswordHash(context.Background(), "p-1", "hash")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update password hash")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSQLDirectory_Rejects(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = accounts.NewSQLDirectory(db, "sqlite", "")
	assert.Error(t, err)

	_, err = accounts.NewSQLDirectory(db, accounts.DriverMySQL, "users; DROP TABLE users")
	assert.Error(t, err)

	_, err = accounts.NewSQLDirectory(nil, accounts.DriverMySQL, "")
	assert.Error(t, err)

	_, err = accounts.NewSQLDirectory(db, accounts.DriverPostgres, "recovery.pensioners")
	assert.NoError(t, err)
}
