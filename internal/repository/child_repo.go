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

// ChildRepository handles database operations for child profiles
type ChildRepository struct {
	db *database.DB
}

// NewChildRepository creates a new child repository
func NewChildRepository(db *database.DB) *ChildRepository {
	return &ChildRepository{db: db}
}

// CreateChildWithinLimit adds a child to a family that holds fewer than
// limit children. The family row is locked while counting.
func (r *ChildRepository) CreateChildWithinLimit(ctx context.Context, familyID int64, name string, birthDate *time.Time, limit int) (*models.Child, error) {
	var childID int64

	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := lockFamily(ctx, tx, familyID); err != nil {
			return err
		}

		if err := admit(ctx, tx, models.ResourceChildren, familyID, limit); err != nil {
			return err
		}

		id, err := tx.InsertReturningID(ctx,
			"INSERT INTO children (family_id, name, birth_date) VALUES (?, ?, ?)",
			familyID, name, nullTime(birthDate))
		if err != nil {
			return fmt.Errorf("failed to create child: %w", err)
		}
		childID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &models.Child{
		ID:        childID,
		FamilyID:  familyID,
		Name:      name,
		BirthDate: birthDate,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetFamilyChildren retrieves all children of a family
func (r *ChildRepository) GetFamilyChildren(ctx context.Context, familyID int64) ([]models.Child, error) {
	query := `
		SELECT id, family_id, name, birth_date, created_at, updated_at
		FROM children
		WHERE family_id = ?
		ORDER BY name ASC
	`
	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query children: %w", err)
	}
	defer rows.Close()

	var children []models.Child
	for rows.Next() {
		var c models.Child
		var birth sql.NullTime
		if err := rows.Scan(&c.ID, &c.FamilyID, &c.Name, &birth, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan child: %w", err)
		}
		if birth.Valid {
			c.BirthDate = &birth.Time
		}
		children = append(children, c)
	}
	return children, rows.Err()
}

// GetChildByID retrieves a child, returning nil when it does not exist
func (r *ChildRepository) GetChildByID(ctx context.Context, childID int64) (*models.Child, error) {
	query := "SELECT id, family_id, name, birth_date, created_at, updated_at FROM children WHERE id = ?"

	var c models.Child
	var birth sql.NullTime
	err := r.db.QueryRowContext(ctx, query, childID).Scan(&c.ID, &c.FamilyID, &c.Name, &birth, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get child: %w", err)
	}
	if birth.Valid {
		c.BirthDate = &birth.Time
	}
	return &c, nil
}

// lockFamily takes a row lock on the family where the dialect supports it
// and reports ErrParentNotFound when the family does not exist.
func lockFamily(ctx context.Context, tx *database.Tx, familyID int64) error {
	var id int64
	query := "SELECT id FROM families WHERE id = ?" + tx.GetDialect().ForUpdate()
	err := tx.QueryRowContext(ctx, query, familyID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrParentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock family: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
