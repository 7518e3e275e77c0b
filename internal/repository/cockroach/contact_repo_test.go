package cockroach

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ringring-backend/internal/domain"
)

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// fakeDB answers every statement with a fixed result and records the
// arguments of the last one
type fakeDB struct {
	tag  pgconn.CommandTag
	err  error
	row  pgx.Row
	args []any
}

func (f *fakeDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.args = args
	return f.tag, f.err
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, f.err
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.args = args
	return f.row
}

func TestContactRepository_DeleteMissing(t *testing.T) {
	// Setup
	db := &fakeDB{tag: pgconn.NewCommandTag("DELETE 0")}
	repo := NewContactRepository(db)

	// Execute
	err := repo.Delete(context.Background(), uuid.New(), uuid.New())

	// Assert
	assert.ErrorIs(t, err, ErrContactNotFound)
}

func TestContactRepository_GetByIDMissing(t *testing.T) {
	// Setup
	db := &fakeDB{row: errRow{err: pgx.ErrNoRows}}
	repo := NewContactRepository(db)
	owner, id := uuid.New(), uuid.New()

	// Execute
	_, err := repo.GetByID(context.Background(), owner, id)

	// Assert
	assert.ErrorIs(t, err, ErrContactNotFound)
	assert.Equal(t, []any{id, owner}, db.args)
}

func TestContactRepository_CreateDuplicate(t *testing.T) {
	// Setup
	db := &fakeDB{row: errRow{err: &pgconn.PgError{Code: uniqueViolation}}}
	repo := NewContactRepository(db)

	// Execute
	_, err := repo.Create(context.Background(), uuid.New(), uuid.New())

	// Assert
	assert.ErrorIs(t, err, ErrContactExists)
}

func TestContactRepository_UpdatePassesOnlyGivenFields(t *testing.T) {
	// Setup
	db := &fakeDB{row: errRow{err: pgx.ErrNoRows}}
	repo := NewContactRepository(db)
	blocked := true

	// Execute
	_, err := repo.Update(context.Background(), uuid.New(), uuid.New(), domain.ContactUpdate{IsBlocked: &blocked})

	// Assert
	assert.ErrorIs(t, err, ErrContactNotFound)
	require.Len(t, db.args, 6)
	assert.Nil(t, db.args[2])
	assert.Equal(t, &blocked, db.args[5])
}
