package service

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"familygallery/internal/models"
)

// Unlimited is the limit value of a resource without a cap
const Unlimited = -1

// Limits are the per-resource caps a plan grants
type Limits struct {
	Artworks int `yaml:"artworks" json:"artworks"`
	Families int `yaml:"families" json:"families"`
	Children int `yaml:"children" json:"children"`
}

// For returns the cap for one resource type
func (l Limits) For(r models.ResourceType) int {
	switch r {
	case models.ResourceArtwork:
		return l.Artworks
	case models.ResourceChildren:
		return l.Children
	case models.ResourceFamily:
		return l.Families
	}
	return 0
}

func (l Limits) validate() error {
	for _, v := range []int{l.Artworks, l.Families, l.Children} {
		if v < Unlimited {
			return fmt.Errorf("limit %d is below %d", v, Unlimited)
		}
	}
	return nil
}

// Plan is a billing tier
type Plan struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Limits Limits `yaml:"limits"`
}

// PlanCatalog is the set of known plans and the plan used for accounts
// without an active subscription.
type PlanCatalog struct {
	DefaultPlan string `yaml:"default_plan"`
	Plans       []Plan `yaml:"plans"`

	byID map[string]Plan
}

// DefaultPlanCatalog returns the built-in free, family and unlimited plans
func DefaultPlanCatalog() *PlanCatalog {
	c := &PlanCatalog{
		DefaultPlan: "free",
		Plans: []Plan{
			{ID: "free", Name: "Free", Limits: Limits{Artworks: 50, Families: 1, Children: 3}},
			{ID: "family", Name: "Family", Limits: Limits{Artworks: 1000, Families: 3, Children: 10}},
			{ID: "unlimited", Name: "Unlimited", Limits: Limits{Artworks: Unlimited, Families: Unlimited, Children: Unlimited}},
		},
	}
	if err := c.index(); err != nil {
		panic(err)
	}
	return c
}

// LoadPlanCatalog reads a YAML plan catalog
func LoadPlanCatalog(path string) (*PlanCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan catalog: %w", err)
	}

	var c PlanCatalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse plan catalog %s: %w", path, err)
	}
	if err := c.index(); err != nil {
		return nil, fmt.Errorf("invalid plan catalog %s: %w", path, err)
	}
	return &c, nil
}

func (c *PlanCatalog) index() error {
	c.byID = make(map[string]Plan, len(c.Plans))
	for _, p := range c.Plans {
		if p.ID == "" {
			return fmt.Errorf("plan without id")
		}
		if _, dup := c.byID[p.ID]; dup {
			return fmt.Errorf("duplicate plan %q", p.ID)
		}
		if err := p.Limits.validate(); err != nil {
			return fmt.Errorf("plan %q: %w", p.ID, err)
		}
		c.byID[p.ID] = p
	}
	if _, ok := c.byID[c.DefaultPlan]; !ok {
		return fmt.Errorf("default plan %q is not defined", c.DefaultPlan)
	}
	return nil
}

// Plan looks up a plan by id
func (c *PlanCatalog) Plan(id string) (Plan, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Default returns the plan for accounts without an active subscription
func (c *PlanCatalog) Default() Plan {
	return c.byID[c.DefaultPlan]
}

// SubscriptionReader loads an account's subscription; nil means none
type SubscriptionReader interface {
	GetSubscriptionByUserID(ctx context.Context, userID int64) (*models.Subscription, error)
}

// ResolvedPlan is the plan in effect for an account
type ResolvedPlan struct {
	PlanID string                    `json:"plan_id"`
	Status models.SubscriptionStatus `json:"status"`
	Limits Limits                    `json:"limits"`
}

// PlanResolver maps accounts to their effective plan limits
type PlanResolver struct {
	subs    SubscriptionReader
	catalog *PlanCatalog
	logger  logrus.FieldLogger
}

// NewPlanResolver creates a plan resolver over the given catalog
func NewPlanResolver(subs SubscriptionReader, catalog *PlanCatalog, logger logrus.FieldLogger) *PlanResolver {
	return &PlanResolver{subs: subs, catalog: catalog, logger: logger}
}

// Resolve returns the account's plan. Accounts without a subscription, or
// whose subscription is not active or trialing, get the default plan.
func (r *PlanResolver) Resolve(ctx context.Context, accountID int64) (*ResolvedPlan, error) {
	sub, err := r.subs.GetSubscriptionByUserID(ctx, accountID)
	if err != nil {
		return nil, dependency("resolve plan", err)
	}

	def := r.catalog.Default()
	if sub == nil {
		return &ResolvedPlan{PlanID: def.ID, Status: models.SubscriptionNone, Limits: def.Limits}, nil
	}
	if !sub.Status.GrantsPlan() {
		return &ResolvedPlan{PlanID: def.ID, Status: sub.Status, Limits: def.Limits}, nil
	}

	plan, ok := r.catalog.Plan(sub.PlanID)
	if !ok {
		r.logger.WithFields(logrus.Fields{
			"account_id": accountID,
			"plan_id":    sub.PlanID,
		}).Warn("subscription references unknown plan, using default")
		return &ResolvedPlan{PlanID: def.ID, Status: sub.Status, Limits: def.Limits}, nil
	}
	return &ResolvedPlan{PlanID: plan.ID, Status: sub.Status, Limits: plan.Limits}, nil
}
