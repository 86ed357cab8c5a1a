package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"familygallery/internal/models"
	"familygallery/internal/observability"
)

// Counter counts existing resources for an owner: a family id for artwork
// and children, an account id for families.
type Counter interface {
	Count(ctx context.Context, resource models.ResourceType, ownerID int64) (int, error)
}

// PlanSource resolves an account's effective plan
type PlanSource interface {
	Resolve(ctx context.Context, accountID int64) (*ResolvedPlan, error)
}

// LimitCheck is the answer to "may this account create one more?"
type LimitCheck struct {
	Allowed bool `json:"allowed"`
	Limit   int  `json:"limit"`
	Current int  `json:"current"`
}

// QuotaService answers admission questions from plan limits and live counts
type QuotaService struct {
	plans   PlanSource
	counter Counter
	metrics *observability.Metrics
	logger  logrus.FieldLogger
}

// NewQuotaService creates a new quota service
func NewQuotaService(plans PlanSource, counter Counter, metrics *observability.Metrics, logger logrus.FieldLogger) *QuotaService {
	return &QuotaService{plans: plans, counter: counter, metrics: metrics, logger: logger}
}

// CheckLimit reports whether accountID may create one more resource.
// familyID is required for artwork and children checks and ignored for
// family checks. The result is advisory: creates enforce the limit again.
// A failure to evaluate is returned as an error, never as a denial.
func (s *QuotaService) CheckLimit(ctx context.Context, accountID int64, resource models.ResourceType, familyID *int64) (*LimitCheck, error) {
	if accountID <= 0 {
		return nil, invalidArgument("account id must be positive")
	}
	if resource.IsZero() {
		return nil, invalidArgument("resource type is required")
	}

	ownerID := accountID
	if resource.FamilyScoped() {
		if familyID == nil || *familyID <= 0 {
			return nil, invalidArgument("%s checks require a family scope", resource)
		}
		ownerID = *familyID
	}

	plan, err := s.plans.Resolve(ctx, accountID)
	if err != nil {
		s.metrics.QuotaCheck(resource.String(), "error")
		return nil, err
	}

	limit := plan.Limits.For(resource)
	if limit == Unlimited {
		s.metrics.QuotaCheck(resource.String(), "unlimited")
		return &LimitCheck{Allowed: true, Limit: Unlimited}, nil
	}

	current, err := s.counter.Count(ctx, resource, ownerID)
	if err != nil {
		s.metrics.QuotaCheck(resource.String(), "error")
		s.logger.WithError(err).WithFields(logrus.Fields{
			"account_id": accountID,
			"resource":   resource.String(),
			"owner_id":   ownerID,
		}).Error("quota count failed")
		return nil, dependency("count "+resource.String(), err)
	}

	check := &LimitCheck{Allowed: current < limit, Limit: limit, Current: current}
	if check.Allowed {
		s.metrics.QuotaCheck(resource.String(), "allowed")
	} else {
		s.metrics.QuotaCheck(resource.String(), "denied")
	}
	return check, nil
}
