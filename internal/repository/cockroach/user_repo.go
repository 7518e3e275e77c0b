package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ringring-backend/internal/domain"
)

// UserRepository handles user data operations in CockroachDB
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `user_id, google_id, email, name, avatar_url, ring_number, email_verified, created_at, updated_at`

// UpsertGoogleUser creates the user for a Google identity, or refreshes the
// profile fields of the existing one
func (r *UserRepository) UpsertGoogleUser(ctx context.Context, identity *domain.Identity) (*domain.User, error) {
	var avatar *string
	if identity.AvatarURL != "" {
		avatar = &identity.AvatarURL
	}

	query := `
		INSERT INTO users (google_id, email, name, avatar_url, email_verified)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (google_id) DO UPDATE
		SET email = excluded.email,
		    name = excluded.name,
		    avatar_url = COALESCE(excluded.avatar_url, users.avatar_url),
		    email_verified = excluded.email_verified,
		    updated_at = now()
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query,
		identity.Subject,
		identity.Email,
		identity.Name,
		avatar,
		identity.EmailVerified,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByIDs retrieves the users that exist among userIDs, keyed by id
func (r *UserRepository) GetByIDs(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	users := make(map[uuid.UUID]*domain.User, len(userIDs))
	if len(userIDs) == 0 {
		return users, nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = ANY($1)`
	rows, err := r.db.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users[user.UserID] = user
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// GetByRingNumber retrieves a user by ring number
func (r *UserRepository) GetByRingNumber(ctx context.Context, ringNumber string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ring_number = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, ringNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ring number: %w", err)
	}
	return user, nil
}

// SetRingNumber assigns a ring number to a user that has none yet
func (r *UserRepository) SetRingNumber(ctx context.Context, userID uuid.UUID, ringNumber string) error {
	query := `
		UPDATE users
		SET ring_number = $2, updated_at = now()
		WHERE user_id = $1 AND ring_number IS NULL
	`
	tag, err := r.db.Exec(ctx, query, userID, ringNumber)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRingNumberTaken
		}
		return fmt.Errorf("failed to set ring number: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRingNumberAssigned
	}
	return nil
}

// UpdateAvatar stores the avatar reference of a user
func (r *UserRepository) UpdateAvatar(ctx context.Context, userID uuid.UUID, avatar string) error {
	query := `UPDATE users SET avatar_url = $2, updated_at = now() WHERE user_id = $1`
	tag, err := r.db.Exec(ctx, query, userID, avatar)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.UserID,
		&user.GoogleID,
		&user.Email,
		&user.Name,
		&user.AvatarURL,
		&user.RingNumber,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}
