package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"familygallery/internal/database"
	"familygallery/internal/models"
)

// SubscriptionRepository handles database operations for billing subscriptions
type SubscriptionRepository struct {
	db *database.DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *database.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// GetSubscriptionByUserID returns the user's subscription, or nil when there is none
func (r *SubscriptionRepository) GetSubscriptionByUserID(ctx context.Context, userID int64) (*models.Subscription, error) {
	query := `
		SELECT id, user_id, plan_id, status, stripe_customer_id, stripe_subscription_id,
		       current_period_end, created_at, updated_at
		FROM subscriptions WHERE user_id = ?
	`
	var s models.Subscription
	var status string
	var periodEnd sql.NullTime
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&s.ID, &s.UserID, &s.PlanID, &status, &s.StripeCustomerID, &s.StripeSubscriptionID,
		&periodEnd, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	s.Status = models.SubscriptionStatus(status)
	if periodEnd.Valid {
		s.CurrentPeriodEnd = &periodEnd.Time
	}
	return &s, nil
}

// UpsertSubscription sets the plan and status of a user's subscription,
// creating the row when missing.
func (r *SubscriptionRepository) UpsertSubscription(ctx context.Context, userID int64, planID string, status models.SubscriptionStatus) error {
	return r.db.WithTx(ctx, func(tx *database.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE subscriptions SET plan_id = ?, status = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?",
			planID, string(status), userID)
		if err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO subscriptions (user_id, plan_id, status) VALUES (?, ?, ?)",
			userID, planID, string(status))
		if err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}
		return nil
	})
}
