// Package sqlite is the embedded storage backend. It serves local
// development and the engine's tests on ":memory:".
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"leaveflow/internal/domain/leave"
)

const (
	dateLayout = "2006-01-02"
	tsLayout   = "2006-01-02T15:04:05.000000000Z07:00"
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements the service's storage interfaces on SQLite. The pool is
// limited to one connection, so transactions are serialised.
type Store struct {
	db   dbtx
	root *sql.DB
	inTx bool
}

// New opens the database at path and applies the schema. Use ":memory:" for
// a private in-memory database.
func New(path string) (*Store, error) {
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	if path != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, root: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.root.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.root.PingContext(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(leave.StoreAPI) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.root.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: tx, root: s.root, inTx: true}); err != nil {
		return err
	}
	return tx.Commit()
}

// withTx runs fn on a transaction-bound store, joining the current
// transaction if there is one.
func (s *Store) withTx(ctx context.Context, fn func(*Store) error) error {
	return s.WithTx(ctx, func(tx leave.StoreAPI) error {
		return fn(tx.(*Store))
	})
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS departments (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	max_concurrent_leaves INTEGER NOT NULL DEFAULT 0,
	required_coverage TEXT NOT NULL DEFAULT '0'
);

CREATE TABLE IF NOT EXISTS branches (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	max_concurrent_leaves INTEGER NOT NULL DEFAULT 0,
	required_coverage TEXT NOT NULL DEFAULT '0'
);

CREATE TABLE IF NOT EXISTS employees (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'employee',
	employment_type TEXT NOT NULL DEFAULT 'full-time',
	department_id TEXT NOT NULL REFERENCES departments(id),
	branch_id TEXT NOT NULL REFERENCES branches(id),
	manager_id TEXT,
	team_lead_id TEXT,
	date_of_joining TEXT,
	active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS leave_policies (
	id TEXT PRIMARY KEY,
	leave_type TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	document TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS leave_policies_active_type_idx ON leave_policies (leave_type) WHERE active = 1;

CREATE TABLE IF NOT EXISTS leave_balances (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
	leave_type TEXT NOT NULL,
	fiscal_year INTEGER NOT NULL,
	balance TEXT NOT NULL DEFAULT '0' CHECK (CAST(balance AS NUMERIC) >= 0),
	accrual_rate TEXT NOT NULL DEFAULT '0',
	max_accrual TEXT NOT NULL DEFAULT '0',
	carry_over_limit TEXT NOT NULL DEFAULT '0',
	carried_over TEXT NOT NULL DEFAULT '0',
	carry_over_used TEXT NOT NULL DEFAULT '0',
	last_accrued_cycle TEXT,
	updated_at TEXT NOT NULL,
	UNIQUE (employee_id, leave_type, fiscal_year)
);

CREATE TABLE IF NOT EXISTS leave_requests (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL REFERENCES employees(id),
	leave_type TEXT NOT NULL,
	policy_id TEXT NOT NULL,
	fiscal_year INTEGER NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	total_days INTEGER NOT NULL CHECK (total_days >= 1),
	reason TEXT NOT NULL DEFAULT '',
	relief_officer_id TEXT,
	team_lead_id TEXT,
	manager_id TEXT,
	department_id TEXT NOT NULL,
	branch_id TEXT NOT NULL,
	status TEXT NOT NULL,
	relief_status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	CHECK (end_date >= start_date)
);

CREATE INDEX IF NOT EXISTS leave_requests_employee_range_idx ON leave_requests (employee_id, start_date, end_date);
CREATE INDEX IF NOT EXISTS leave_requests_department_idx ON leave_requests (department_id, status);
CREATE INDEX IF NOT EXISTS leave_requests_branch_idx ON leave_requests (branch_id, status);

CREATE TABLE IF NOT EXISTS leave_approval_history (
	request_id TEXT NOT NULL REFERENCES leave_requests(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	actor_id TEXT NOT NULL,
	role TEXT NOT NULL,
	action TEXT NOT NULL,
	from_status TEXT NOT NULL DEFAULT '',
	to_status TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	PRIMARY KEY (request_id, seq)
);

CREATE TRIGGER IF NOT EXISTS leave_approval_history_no_update
BEFORE UPDATE ON leave_approval_history
BEGIN
	SELECT RAISE(ABORT, 'leave_approval_history is append-only');
END;

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	read_at TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS job_runs (
	id TEXT PRIMARY KEY,
	job_type TEXT NOT NULL,
	status TEXT NOT NULL,
	details_json TEXT,
	started_at TEXT NOT NULL,
	completed_at TEXT
);

CREATE TABLE IF NOT EXISTS idempotency_keys (
	actor_id TEXT NOT NULL,
	key TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	request_hash TEXT NOT NULL,
	response_json TEXT NOT NULL,
	PRIMARY KEY (actor_id, key, endpoint)
);
`

func notFound(err error, entity string, id ...string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &leave.NotFoundError{Entity: entity, ID: strings.Join(id, "/")}
	}
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatDate(t time.Time) string {
	return leave.Day(t).Format(dateLayout)
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, value)
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(tsLayout, value)
}

// dec binds a decimal as text; SQLite applies the column's numeric affinity.
func dec(d decimal.Decimal) string {
	return d.String()
}

// Amounts are stored as canonical decimal text and all arithmetic on them
// happens in Go, so a stored value compares equal to the string it was
// written from.
func parseDec(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("malformed amount %q: %w", raw, err)
	}
	return d, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func blockingArgs() []any {
	out := make([]any, 0, len(leave.BlockingStatuses))
	for _, s := range leave.BlockingStatuses {
		out = append(out, string(s))
	}
	return out
}

func unitColumn(scope leave.Scope) (string, error) {
	switch scope {
	case leave.ScopeDepartment:
		return "department_id", nil
	case leave.ScopeBranch:
		return "branch_id", nil
	}
	return "", errors.New("unknown org scope " + string(scope))
}

func unitTable(scope leave.Scope) (string, error) {
	switch scope {
	case leave.ScopeDepartment:
		return "departments", nil
	case leave.ScopeBranch:
		return "branches", nil
	}
	return "", errors.New("unknown org scope " + string(scope))
}
