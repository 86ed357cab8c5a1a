package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"familygallery/internal/database"
	"familygallery/internal/models"
)

// ShareLinkRepository handles database operations for share links
type ShareLinkRepository struct {
	db *database.DB
}

// NewShareLinkRepository creates a new share link repository
func NewShareLinkRepository(db *database.DB) *ShareLinkRepository {
	return &ShareLinkRepository{db: db}
}

// CreateShareLink stores a share link with a fresh short code
func (r *ShareLinkRepository) CreateShareLink(ctx context.Context, resourceType models.ShareResourceType, resourceID, createdBy int64, expiresAt *time.Time) (*models.ShareLink, error) {
	code := shortCode()

	query := `INSERT INTO share_links (code, resource_type, resource_id, created_by, expires_at) VALUES (?, ?, ?, ?, ?)`
	id, err := r.db.InsertReturningID(ctx, query, code, string(resourceType), resourceID, createdBy, nullTime(expiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create share link: %w", err)
	}

	return &models.ShareLink{
		ID:           id,
		Code:         code,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		CreatedBy:    &createdBy,
		ExpiresAt:    expiresAt,
		CreatedAt:    time.Now(),
	}, nil
}

// shortCode is the first 12 hex digits of a random UUID
func shortCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
