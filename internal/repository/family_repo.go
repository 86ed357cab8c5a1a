package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"familygallery/internal/database"
	"familygallery/internal/models"
)

// FamilyRepository handles database operations for families and memberships
type FamilyRepository struct {
	db *database.DB
}

// NewFamilyRepository creates a new family repository
func NewFamilyRepository(db *database.DB) *FamilyRepository {
	return &FamilyRepository{db: db}
}

// CreateFamilyWithinLimit creates a family owned by creatorID and adds the
// creator as its owner, provided the creator belongs to fewer than limit
// families. The creator's row is locked so concurrent creates for the same
// account are serialized; pass NoLimit to skip the count.
func (r *FamilyRepository) CreateFamilyWithinLimit(ctx context.Context, name string, creatorID int64, limit int) (*models.Family, error) {
	var familyID int64

	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		var lockedID int64
		lockQuery := "SELECT id FROM users WHERE id = ?" + tx.GetDialect().ForUpdate()
		if err := tx.QueryRowContext(ctx, lockQuery, creatorID).Scan(&lockedID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrParentNotFound
			}
			return fmt.Errorf("failed to lock user: %w", err)
		}

		if err := admit(ctx, tx, models.ResourceFamily, creatorID, limit); err != nil {
			return err
		}

		id, err := tx.InsertReturningID(ctx, "INSERT INTO families (name, created_by) VALUES (?, ?)", name, creatorID)
		if err != nil {
			return fmt.Errorf("failed to create family: %w", err)
		}
		familyID = id

		_, err = tx.ExecContext(ctx,
			"INSERT INTO family_members (family_id, user_id, role) VALUES (?, ?, ?)",
			familyID, creatorID, string(models.RoleOwner))
		if err != nil {
			return fmt.Errorf("failed to add family owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &models.Family{
		ID:        familyID,
		Name:      name,
		CreatedBy: &creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetFamilyByID retrieves a family by ID, returning nil when it does not exist
func (r *FamilyRepository) GetFamilyByID(ctx context.Context, familyID int64) (*models.Family, error) {
	query := "SELECT id, name, created_by, created_at, updated_at FROM families WHERE id = ?"

	family := &models.Family{}
	var createdBy sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, familyID).Scan(
		&family.ID,
		&family.Name,
		&createdBy,
		&family.CreatedAt,
		&family.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}

	if createdBy.Valid {
		family.CreatedBy = &createdBy.Int64
	}
	return family, nil
}

// AddFamilyMember adds a user to a family
func (r *FamilyRepository) AddFamilyMember(ctx context.Context, familyID, userID int64, role models.Role) error {
	query := "INSERT INTO family_members (family_id, user_id, role) VALUES (?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, query, familyID, userID, string(role)); err != nil {
		return fmt.Errorf("failed to add family member: %w", err)
	}
	return nil
}

// GetMembership returns the user's membership in a family, or nil
func (r *FamilyRepository) GetMembership(ctx context.Context, userID, familyID int64) (*models.FamilyMember, error) {
	query := "SELECT id, family_id, user_id, role, joined_at FROM family_members WHERE user_id = ? AND family_id = ?"

	var m models.FamilyMember
	var role string
	err := r.db.QueryRowContext(ctx, query, userID, familyID).Scan(&m.ID, &m.FamilyID, &m.UserID, &role, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check family membership: %w", err)
	}
	m.Role = models.Role(role)
	return &m, nil
}

// IsFamilyMember checks if a user is a member of a family
func (r *FamilyRepository) IsFamilyMember(ctx context.Context, userID, familyID int64) (bool, error) {
	m, err := r.GetMembership(ctx, userID, familyID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

// FamilyIDsForUser returns every family the user belongs to together with
// the families the user created, in ascending id order.
func (r *FamilyRepository) FamilyIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	query := `
		SELECT family_id FROM family_members WHERE user_id = ?
		UNION
		SELECT id FROM families WHERE created_by = ?
		ORDER BY 1
	`
	rows, err := r.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user families: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan family id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user families: %w", err)
	}
	return ids, nil
}
