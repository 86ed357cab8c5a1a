package models

import "time"

// SubscriptionStatus mirrors the billing provider's subscription states
type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionTrialing   SubscriptionStatus = "trialing"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"

	// SubscriptionNone is reported for accounts without a subscription row
	SubscriptionNone SubscriptionStatus = "none"
)

// GrantsPlan reports whether a subscription in this state receives its plan's limits
func (s SubscriptionStatus) GrantsPlan() bool {
	return s == SubscriptionActive || s == SubscriptionTrialing
}

// Subscription is the one-to-one billing record of an account
type Subscription struct {
	ID                   int64
	UserID               int64
	PlanID               string
	Status               SubscriptionStatus
	StripeCustomerID     string
	StripeSubscriptionID string
	CurrentPeriodEnd     *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
