package repository

import (
	"context"
	"fmt"
	"time"

	"familygallery/internal/credentials"
	"familygallery/internal/database"
	"familygallery/internal/models"
)

// InviteRepository handles database operations for family invites
type InviteRepository struct {
	db *database.DB
}

// NewInviteRepository creates a new invite repository
func NewInviteRepository(db *database.DB) *InviteRepository {
	return &InviteRepository{db: db}
}

// CreateInvite creates a new invite for a family
func (r *InviteRepository) CreateInvite(ctx context.Context, familyID, createdBy int64, email string, role models.Role, expiresAt time.Time) (*models.Invite, error) {
	code, err := credentials.GenerateInviteCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invite code: %w", err)
	}

	query := `INSERT INTO invites (family_id, created_by, code, email, role, expires_at) VALUES (?, ?, ?, ?, ?, ?)`
	id, err := r.db.InsertReturningID(ctx, query, familyID, createdBy, code, email, string(role), expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	return &models.Invite{
		ID:        id,
		FamilyID:  familyID,
		CreatedBy: createdBy,
		Code:      code,
		Email:     email,
		Role:      role,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}
