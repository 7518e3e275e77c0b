package cockroach

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the part of *pgxpool.Pool the repositories use
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrCallNotFound       = errors.New("call not found")
	ErrCallAlreadyClosed  = errors.New("call already closed")
	ErrRingNumberTaken    = errors.New("ring number taken")
	ErrRingNumberAssigned = errors.New("ring number already assigned")
	ErrContactNotFound    = errors.New("contact not found")
	ErrContactExists      = errors.New("contact already exists")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
