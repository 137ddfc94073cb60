package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leaveflow/internal/domain/leave"
	"leaveflow/internal/platform/querier"
)

// Store implements every storage interface of the service on PostgreSQL.
// A Store returned inside WithTx is bound to that transaction and reads
// leave requests with row locks.
type Store struct {
	DB   querier.Querier
	pool querier.TxStarter
	inTx bool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{DB: pool, pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(leave.StoreAPI) error) error {
	if s.inTx {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Store{DB: tx, pool: s.pool, inTx: true})
	})
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.DB.QueryRow(ctx, "SELECT 1").Scan(&one)
}

func notFound(err error, entity string, id ...string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &leave.NotFoundError{Entity: entity, ID: strings.Join(id, "/")}
	}
	return err
}

func itoa(v int) string {
	return strconv.Itoa(v)
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func blockingStatuses() []string {
	out := make([]string, 0, len(leave.BlockingStatuses))
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
