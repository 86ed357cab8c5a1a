package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"familygallery/internal/database"
	"familygallery/internal/models"
)

// ArtworkRepository handles database operations for artworks
type ArtworkRepository struct {
	db *database.DB
}

// NewArtworkRepository creates a new artwork repository
func NewArtworkRepository(db *database.DB) *ArtworkRepository {
	return &ArtworkRepository{db: db}
}

// CreateArtworkWithinLimit stores a new artwork in a family holding fewer
// than limit artworks. ID and CreatedAt are set on success.
func (r *ArtworkRepository) CreateArtworkWithinLimit(ctx context.Context, a *models.Artwork, limit int) error {
	tags := strings.Join(a.Tags, ",")

	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := lockFamily(ctx, tx, a.FamilyID); err != nil {
			return err
		}

		if err := admit(ctx, tx, models.ResourceArtwork, a.FamilyID, limit); err != nil {
			return err
		}

		query := `INSERT INTO artworks (family_id, child_id, uploaded_by, title, image_key, is_favorite, tags, ai_description)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		id, err := tx.InsertReturningID(ctx, query,
			a.FamilyID, nullInt(a.ChildID), a.UploadedBy, a.Title, a.ImageKey, a.IsFavorite, tags, a.AIDescription)
		if err != nil {
			return fmt.Errorf("failed to create artwork: %w", err)
		}
		a.ID = id
		return nil
	})
	if err != nil {
		return err
	}

	a.CreatedAt = time.Now()
	return nil
}

// GetArtworkByID retrieves an artwork, returning nil when it does not exist
func (r *ArtworkRepository) GetArtworkByID(ctx context.Context, id int64) (*models.Artwork, error) {
	query := `
		SELECT id, family_id, child_id, uploaded_by, title, image_key, is_favorite, tags, ai_description, created_at
		FROM artworks WHERE id = ?
	`
	var a models.Artwork
	var childID sql.NullInt64
	var tags string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.FamilyID, &childID, &a.UploadedBy, &a.Title, &a.ImageKey,
		&a.IsFavorite, &tags, &a.AIDescription, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artwork: %w", err)
	}

	if childID.Valid {
		a.ChildID = &childID.Int64
	}
	if tags != "" {
		a.Tags = strings.Split(tags, ",")
	}
	return &a, nil
}

// ArtworkRefsByUploader returns the artworks uploaded by a user
func (r *ArtworkRepository) ArtworkRefsByUploader(ctx context.Context, userID int64) ([]models.ArtworkRef, error) {
	return r.refs(ctx, "SELECT id, image_key FROM artworks WHERE uploaded_by = ? ORDER BY id", userID)
}

// ArtworkRefsByFamily returns the artworks stored in a family
func (r *ArtworkRepository) ArtworkRefsByFamily(ctx context.Context, familyID int64) ([]models.ArtworkRef, error) {
	return r.refs(ctx, "SELECT id, image_key FROM artworks WHERE family_id = ? ORDER BY id", familyID)
}

func (r *ArtworkRepository) refs(ctx context.Context, query string, arg int64) ([]models.ArtworkRef, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query artworks: %w", err)
	}
	defer rows.Close()

	var refs []models.ArtworkRef
	for rows.Next() {
		var ref models.ArtworkRef
		if err := rows.Scan(&ref.ID, &ref.ImageKey); err != nil {
			return nil, fmt.Errorf("failed to scan artwork: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate artworks: %w", err)
	}
	return refs, nil
}

func nullInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
