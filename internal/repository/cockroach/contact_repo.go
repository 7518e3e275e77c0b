package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ringring-backend/internal/domain"
)

// ContactRepository handles address book and block relations in CockroachDB
type ContactRepository struct {
	db DB
}

// NewContactRepository creates a new ContactRepository
func NewContactRepository(db DB) *ContactRepository {
	return &ContactRepository{db: db}
}

const contactColumns = `contact_id, owner_id, contact_user_id, nickname, notes, is_favorite, is_blocked, created_at, updated_at`

// Create adds contactUserID to the owner's address book
func (r *ContactRepository) Create(ctx context.Context, ownerID, contactUserID uuid.UUID) (*domain.Contact, error) {
	query := `
		INSERT INTO contacts (owner_id, contact_user_id)
		VALUES ($1, $2)
		RETURNING ` + contactColumns

	contact, err := scanContact(r.db.QueryRow(ctx, query, ownerID, contactUserID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrContactExists
		}
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}
	return contact, nil
}

// ListByOwner returns the owner's unblocked contacts, favorites first
func (r *ContactRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE owner_id = $1 AND NOT is_blocked
		ORDER BY is_favorite DESC, created_at DESC
	`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]*domain.Contact, 0)
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contacts: %w", err)
	}
	return contacts, nil
}

// GetByID retrieves a contact owned by ownerID
func (r *ContactRepository) GetByID(ctx context.Context, ownerID, contactID uuid.UUID) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE contact_id = $1 AND owner_id = $2`
	contact, err := scanContact(r.db.QueryRow(ctx, query, contactID, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return contact, nil
}

// FindRelation returns the owner's entry for contactUserID, if any
func (r *ContactRepository) FindRelation(ctx context.Context, ownerID, contactUserID uuid.UUID) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE owner_id = $1 AND contact_user_id = $2`
	contact, err := scanContact(r.db.QueryRow(ctx, query, ownerID, contactUserID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("failed to find contact: %w", err)
	}
	return contact, nil
}

// Update applies the non-nil fields of update
func (r *ContactRepository) Update(ctx context.Context, ownerID, contactID uuid.UUID, update domain.ContactUpdate) (*domain.Contact, error) {
	query := `
		UPDATE contacts
		SET nickname = COALESCE($3, nickname),
		    notes = COALESCE($4, notes),
		    is_favorite = COALESCE($5, is_favorite),
		    is_blocked = COALESCE($6, is_blocked),
		    updated_at = now()
		WHERE contact_id = $1 AND owner_id = $2
		RETURNING ` + contactColumns

	contact, err := scanContact(r.db.QueryRow(ctx, query,
		contactID,
		ownerID,
		update.Nickname,
		update.Notes,
		update.IsFavorite,
		update.IsBlocked,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("failed to update contact: %w", err)
	}
	return contact, nil
}

// Delete removes a contact
func (r *ContactRepository) Delete(ctx context.Context, ownerID, contactID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM contacts WHERE contact_id = $1 AND owner_id = $2`, contactID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrContactNotFound
	}
	return nil
}

// ListBlockedPairs returns every block relation
func (r *ContactRepository) ListBlockedPairs(ctx context.Context) ([]domain.BlockedPair, error) {
	rows, err := r.db.Query(ctx, `SELECT owner_id, contact_user_id FROM contacts WHERE is_blocked`)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked contacts: %w", err)
	}
	defer rows.Close()

	pairs := make([]domain.BlockedPair, 0)
	for rows.Next() {
		var pair domain.BlockedPair
		if err := rows.Scan(&pair.OwnerID, &pair.BlockedID); err != nil {
			return nil, fmt.Errorf("failed to scan blocked contact: %w", err)
		}
		pairs = append(pairs, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocked contacts: %w", err)
	}
	return pairs, nil
}

func scanContact(row pgx.Row) (*domain.Contact, error) {
	contact := &domain.Contact{}
	err := row.Scan(
		&contact.ContactID,
		&contact.OwnerID,
		&contact.ContactUserID,
		&contact.Nickname,
		&contact.Notes,
		&contact.IsFavorite,
		&contact.IsBlocked,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return contact, nil
}
