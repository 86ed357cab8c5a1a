package service

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"familygallery/internal/models"
	"familygallery/internal/observability"
	"familygallery/internal/repository"
)

// DefaultInviteTTL is how long an invite stays usable when no TTL is given
const DefaultInviteTTL = 7 * 24 * time.Hour

// InviteMailer delivers invite codes
type InviteMailer interface {
	SendInviteEmail(ctx context.Context, toEmail, familyName, code string) error
}

// GalleryService creates families, children, artworks, invites and share
// links. Quota-capped creates re-check the plan limit inside the insert
// transaction, so a stale CheckLimit answer cannot overshoot a cap.
type GalleryService struct {
	families   *repository.FamilyRepository
	children   *repository.ChildRepository
	artworks   *repository.ArtworkRepository
	invites    *repository.InviteRepository
	shareLinks *repository.ShareLinkRepository
	plans      PlanSource
	mailer     InviteMailer
	metrics    *observability.Metrics
	logger     logrus.FieldLogger
}

// GalleryRepositories groups the stores the gallery service writes to
type GalleryRepositories struct {
	Families   *repository.FamilyRepository
	Children   *repository.ChildRepository
	Artworks   *repository.ArtworkRepository
	Invites    *repository.InviteRepository
	ShareLinks *repository.ShareLinkRepository
}

// NewGalleryService creates a new gallery service. mailer may be nil.
func NewGalleryService(repos GalleryRepositories, plans PlanSource, mailer InviteMailer, metrics *observability.Metrics, logger logrus.FieldLogger) *GalleryService {
	return &GalleryService{
		families:   repos.Families,
		children:   repos.Children,
		artworks:   repos.Artworks,
		invites:    repos.Invites,
		shareLinks: repos.ShareLinks,
		plans:      plans,
		mailer:     mailer,
		metrics:    metrics,
		logger:     logger,
	}
}

// ArtworkInput describes a new artwork. The image itself is uploaded to
// blob storage by the client; only its key is recorded.
type ArtworkInput struct {
	ChildID       *int64
	Title         string
	ImageKey      string
	IsFavorite    bool
	Tags          []string
	AIDescription string
}

// CreateFamily creates a family with actorID as owner
func (s *GalleryService) CreateFamily(ctx context.Context, actorID int64, name string) (*models.Family, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidArgument("family name is required")
	}

	limit, err := s.limitFor(ctx, actorID, models.ResourceFamily)
	if err != nil {
		return nil, err
	}

	family, err := s.families.CreateFamilyWithinLimit(ctx, name, actorID, limit)
	if err != nil {
		return nil, s.createError(models.ResourceFamily, limit, err)
	}
	return family, nil
}

// AddChild adds a child profile. Only owners and parents manage children.
func (s *GalleryService) AddChild(ctx context.Context, actorID, familyID int64, name string, birthDate *time.Time) (*models.Child, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidArgument("child name is required")
	}
	if birthDate != nil && birthDate.After(time.Now()) {
		return nil, invalidArgument("birth date is in the future")
	}

	if err := s.requireRole(ctx, actorID, familyID, models.RoleOwner, models.RoleParent); err != nil {
		return nil, err
	}

	limit, err := s.limitFor(ctx, actorID, models.ResourceChildren)
	if err != nil {
		return nil, err
	}

	child, err := s.children.CreateChildWithinLimit(ctx, familyID, name, birthDate, limit)
	if err != nil {
		return nil, s.createError(models.ResourceChildren, limit, err)
	}
	return child, nil
}

// AddArtwork records an artwork uploaded by actorID into one of their
// families. Viewers cannot upload.
func (s *GalleryService) AddArtwork(ctx context.Context, actorID, familyID int64, in ArtworkInput) (*models.Artwork, error) {
	if strings.TrimSpace(in.ImageKey) == "" {
		return nil, invalidArgument("image key is required")
	}

	if err := s.requireRole(ctx, actorID, familyID, models.RoleOwner, models.RoleParent, models.RoleMember); err != nil {
		return nil, err
	}

	if in.ChildID != nil {
		child, err := s.children.GetChildByID(ctx, *in.ChildID)
		if err != nil {
			return nil, dependency("load child", err)
		}
		if child == nil || child.FamilyID != familyID {
			return nil, invalidArgument("child %d is not part of family %d", *in.ChildID, familyID)
		}
	}

	limit, err := s.limitFor(ctx, actorID, models.ResourceArtwork)
	if err != nil {
		return nil, err
	}

	artwork := &models.Artwork{
		FamilyID:      familyID,
		ChildID:       in.ChildID,
		UploadedBy:    actorID,
		Title:         strings.TrimSpace(in.Title),
		ImageKey:      in.ImageKey,
		IsFavorite:    in.IsFavorite,
		Tags:          normalizeTags(in.Tags),
		AIDescription: in.AIDescription,
	}
	if err := s.artworks.CreateArtworkWithinLimit(ctx, artwork, limit); err != nil {
		return nil, s.createError(models.ResourceArtwork, limit, err)
	}
	return artwork, nil
}

// CreateInvite issues a single-use invite into a family
func (s *GalleryService) CreateInvite(ctx context.Context, actorID, familyID int64, email string, role models.Role, ttl time.Duration) (*models.Invite, error) {
	if role == "" {
		role = models.RoleMember
	}
	if !role.Valid() || role == models.RoleOwner {
		return nil, invalidArgument("invites cannot grant role %q", role)
	}
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}

	if err := s.requireRole(ctx, actorID, familyID, models.RoleOwner, models.RoleParent); err != nil {
		return nil, err
	}

	invite, err := s.invites.CreateInvite(ctx, familyID, actorID, strings.TrimSpace(email), role, time.Now().Add(ttl))
	if err != nil {
		return nil, dependency("create invite", err)
	}

	if s.mailer != nil && invite.Email != "" {
		family, err := s.families.GetFamilyByID(ctx, familyID)
		if err == nil && family != nil {
			if err := s.mailer.SendInviteEmail(ctx, invite.Email, family.Name, invite.Code); err != nil {
				s.logger.WithError(err).WithField("invite_id", invite.ID).Warn("failed to send invite email")
			}
		}
	}
	return invite, nil
}

// CreateShareLink shares an artwork, or a whole family as a collection,
// with anyone holding the code. ttl of zero means the link never expires.
func (s *GalleryService) CreateShareLink(ctx context.Context, actorID int64, resourceType models.ShareResourceType, resourceID int64, ttl time.Duration) (*models.ShareLink, error) {
	var familyID int64
	switch resourceType {
	case models.ShareArtwork:
		artwork, err := s.artworks.GetArtworkByID(ctx, resourceID)
		if err != nil {
			return nil, dependency("load artwork", err)
		}
		if artwork == nil {
			return nil, errors.Wrapf(ErrNotFound, "artwork %d", resourceID)
		}
		familyID = artwork.FamilyID
	case models.ShareCollection:
		familyID = resourceID
	default:
		return nil, invalidArgument("unknown share resource type %q", resourceType)
	}

	if err := s.requireRole(ctx, actorID, familyID, models.RoleOwner, models.RoleParent, models.RoleMember); err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	link, err := s.shareLinks.CreateShareLink(ctx, resourceType, resourceID, actorID, expiresAt)
	if err != nil {
		return nil, dependency("create share link", err)
	}
	return link, nil
}

// IsMember reports whether accountID belongs to familyID
func (s *GalleryService) IsMember(ctx context.Context, accountID, familyID int64) (bool, error) {
	ok, err := s.families.IsFamilyMember(ctx, accountID, familyID)
	if err != nil {
		return false, dependency("check membership", err)
	}
	return ok, nil
}

// requireRole returns ErrNotFound for a missing family and ErrForbidden
// when the actor is not a member holding one of roles.
func (s *GalleryService) requireRole(ctx context.Context, actorID, familyID int64, roles ...models.Role) error {
	if familyID <= 0 {
		return invalidArgument("family id must be positive")
	}

	family, err := s.families.GetFamilyByID(ctx, familyID)
	if err != nil {
		return dependency("load family", err)
	}
	if family == nil {
		return errors.Wrapf(ErrNotFound, "family %d", familyID)
	}

	m, err := s.families.GetMembership(ctx, actorID, familyID)
	if err != nil {
		return dependency("check membership", err)
	}
	if m == nil {
		return errors.Wrapf(ErrForbidden, "account %d is not a member of family %d", actorID, familyID)
	}
	for _, r := range roles {
		if m.Role == r {
			return nil
		}
	}
	return errors.Wrapf(ErrForbidden, "role %s cannot perform this action", m.Role)
}

// limitFor returns the repository limit argument for the actor's plan
func (s *GalleryService) limitFor(ctx context.Context, actorID int64, resource models.ResourceType) (int, error) {
	plan, err := s.plans.Resolve(ctx, actorID)
	if err != nil {
		return 0, err
	}
	limit := plan.Limits.For(resource)
	if limit == Unlimited {
		return repository.NoLimit, nil
	}
	return limit, nil
}

func (s *GalleryService) createError(resource models.ResourceType, limit int, err error) error {
	switch {
	case errors.Is(err, repository.ErrLimitReached):
		s.metrics.QuotaDenied(resource.String())
		return &QuotaExceededError{Resource: resource, Current: limit, Limit: limit}
	case errors.Is(err, repository.ErrParentNotFound):
		return errors.Wrapf(ErrNotFound, "owner of new %s", resource)
	default:
		return dependency("create "+resource.String(), err)
	}
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(t, ",", " ")))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
