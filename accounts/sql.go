package accounts

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/pensionportal/recovery"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"

	DefaultTable = "pensioners"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLConfig describes the subject table. The table must carry the columns
// id, identifier, email, phone and password_hash.
type SQLConfig struct {
	Driver string
	DSN    string
	Table  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLDirectory resolves subjects and stores password hashes in a SQL table.
type SQLDirectory struct {
	db     *sql.DB
	driver string

	lookupQuery string
	updateQuery string
}

// OpenSQLDirectory opens a pool for cfg and pings it once.
func OpenSQLDirectory(ctx context.Context, cfg SQLConfig) (*SQLDirectory, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sql directory requires a dsn")
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", cfg.Driver, err)
	}

	d, err := NewSQLDirectory(db, cfg.Driver, cfg.Table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// NewSQLDirectory wraps an existing pool. driver selects the placeholder
// syntax; table defaults to DefaultTable.
func NewSQLDirectory(db *sql.DB, driverName, table string) (*SQLDirectory, error) {
	if db == nil {
		return nil, errors.New("sql directory requires a database handle")
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	var lookup, update string
	switch driverName {
	case DriverMySQL:
		lookup = "SELECT id, identifier, email, phone FROM " + table + " WHERE identifier = ?"
		update = "UPDATE " + table + " SET password_hash = ? WHERE id = ?"
	case DriverPostgres:
		lookup = "SELECT id, identifier, email, phone FROM " + table + " WHERE identifier = $1"
		update = "UPDATE " + table + " SET password_hash = $1 WHERE id = $2"
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driverName)
	}

	return &SQLDirectory{
		db:          db,
		driver:      driverName,
		lookupQuery: lookup,
		updateQuery: update,
	}, nil
}

func (d *SQLDirectory) LookupSubject(ctx context.Context, identifier string) (recovery.Subject, error) {
	var (
		s            recovery.Subject
		email, phone sql.NullString
	)

	err := d.db.QueryRowContext(ctx, d.lookupQuery, normalizeKey(identifier)).
		Scan(&s.ID, &s.Identifier, &email, &phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return recovery.Subject{}, recovery.ErrSubjectNotFound
		}
		return recovery.Subject{}, d.wrap("failed to look up subject", err)
	}

	s.Email = email.String
	s.Phone = phone.String
	return s, nil
}

func (d *SQLDirectory) UpdatePasswordHash(ctx context.Context, subjectID, passwordHash string) error {
	res, err := d.db.ExecContext(ctx, d.updateQuery, passwordHash, subjectID)
	if err != nil {
		return d.wrap("failed to update password hash", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return d.wrap("failed to read affected rows", err)
	}
	if n == 0 {
		return recovery.ErrSubjectNotFound
	}
	return nil
}

// Close closes the underlying pool.
func (d *SQLDirectory) Close() error {
	return d.db.Close()
}

// wrap tags connection-level failures with recovery.ErrUnavailable so
// callers can tell an outage from a bad query.
func (d *SQLDirectory) wrap(msg string, err error) error {
	if isConnectionError(err) {
		return fmt.Errorf("%s: %w: %w", msg, recovery.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return true
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1040, 1053, 1205, 2006, 2013:
			return true
		}
	}
	return false
}
