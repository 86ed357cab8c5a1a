package repository

import (
	"context"
	"fmt"

	"familygallery/internal/database"
	"familygallery/internal/models"
)

// CountRepository answers scoped count queries. Counts are always read
// from the store; nothing is cached.
type CountRepository struct {
	db *database.DB
}

// NewCountRepository creates a new count repository
func NewCountRepository(db *database.DB) *CountRepository {
	return &CountRepository{db: db}
}

// Count returns how many resources of the given type exist for ownerID.
// ownerID is a family id for artwork and children counts and an account
// id for family counts.
func (r *CountRepository) Count(ctx context.Context, resource models.ResourceType, ownerID int64) (int, error) {
	return countResource(ctx, r.db, resource, ownerID)
}

// CountMembers returns the number of memberships a family has left
func (r *CountRepository) CountMembers(ctx context.Context, familyID int64) (int, error) {
	return countWhere(ctx, r.db, "SELECT COUNT(*) FROM family_members WHERE family_id = ?", familyID)
}

// CountArtworksByUploader returns the number of artworks a user uploaded
func (r *CountRepository) CountArtworksByUploader(ctx context.Context, userID int64) (int, error) {
	return countWhere(ctx, r.db, "SELECT COUNT(*) FROM artworks WHERE uploaded_by = ?", userID)
}

// CountInvitesCreatedBy returns the number of invites a user created
func (r *CountRepository) CountInvitesCreatedBy(ctx context.Context, userID int64) (int, error) {
	return countWhere(ctx, r.db, "SELECT COUNT(*) FROM invites WHERE created_by = ?", userID)
}

// CountMemberships returns the number of families a user holds a membership in
func (r *CountRepository) CountMemberships(ctx context.Context, userID int64) (int, error) {
	return countWhere(ctx, r.db, "SELECT COUNT(*) FROM family_members WHERE user_id = ?", userID)
}

// CountOtherMembers returns the members of a family other than userID
func (r *CountRepository) CountOtherMembers(ctx context.Context, familyID, userID int64) (int, error) {
	return countWhere(ctx, r.db, "SELECT COUNT(*) FROM family_members WHERE family_id = ? AND user_id <> ?", familyID, userID)
}

func countResource(ctx context.Context, q database.DBTX, resource models.ResourceType, ownerID int64) (int, error) {
	var query string
	switch resource {
	case models.ResourceArtwork:
		query = "SELECT COUNT(*) FROM artworks WHERE family_id = ?"
	case models.ResourceChildren:
		query = "SELECT COUNT(*) FROM children WHERE family_id = ?"
	case models.ResourceFamily:
		query = "SELECT COUNT(DISTINCT family_id) FROM family_members WHERE user_id = ?"
	default:
		return 0, fmt.Errorf("cannot count resource type %q", resource.String())
	}
	return countWhere(ctx, q, query, ownerID)
}

func countWhere(ctx context.Context, q database.DBTX, query string, args ...interface{}) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

// admit counts resource within the transaction and refuses with
// ErrLimitReached when the owner is already at limit.
func admit(ctx context.Context, tx *database.Tx, resource models.ResourceType, ownerID int64, limit int) error {
	if limit == NoLimit {
		return nil
	}
	n, err := countResource(ctx, tx, resource, ownerID)
	if err != nil {
		return err
	}
	if n >= limit {
		return ErrLimitReached
	}
	return nil
}
