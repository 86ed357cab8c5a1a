package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"familygallery/internal/database"
	"familygallery/internal/logging"
	"familygallery/internal/models"
	"familygallery/internal/repository"
	"familygallery/migrations"
)

// store bundles the repositories of one migrated SQLite database
type store struct {
	db         *database.DB
	users      *repository.UserRepository
	families   *repository.FamilyRepository
	children   *repository.ChildRepository
	artworks   *repository.ArtworkRepository
	invites    *repository.InviteRepository
	shareLinks *repository.ShareLinkRepository
	subs       *repository.SubscriptionRepository
	counts     *repository.CountRepository
	purge      *repository.PurgeRepository
	audit      *repository.AuditRepository
}

func newStore(t *testing.T) *store {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := database.Initialize(filepath.Join(t.TempDir(), "gallery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations(context.Background(), migrations.FS, logging.Discard()))

	return &store{
		db:         db,
		users:      repository.NewUserRepository(db),
		families:   repository.NewFamilyRepository(db),
		children:   repository.NewChildRepository(db),
		artworks:   repository.NewArtworkRepository(db),
		invites:    repository.NewInviteRepository(db),
		shareLinks: repository.NewShareLinkRepository(db),
		subs:       repository.NewSubscriptionRepository(db),
		counts:     repository.NewCountRepository(db),
		purge:      repository.NewPurgeRepository(db),
		audit:      repository.NewAuditRepository(db),
	}
}

func (s *store) user(t *testing.T, email string) *models.User {
	t.Helper()
	u, err := s.users.CreateUser(context.Background(), email, email)
	require.NoError(t, err)
	return u
}

func (s *store) family(t *testing.T, owner *models.User, name string) *models.Family {
	t.Helper()
	f, err := s.families.CreateFamilyWithinLimit(context.Background(), name, owner.ID, repository.NoLimit)
	require.NoError(t, err)
	return f
}

func (s *store) join(t *testing.T, f *models.Family, u *models.User, role models.Role) {
	t.Helper()
	require.NoError(t, s.families.AddFamilyMember(context.Background(), f.ID, u.ID, role))
}

func (s *store) artwork(t *testing.T, f *models.Family, uploader *models.User, key string) *models.Artwork {
	t.Helper()
	a := &models.Artwork{FamilyID: f.ID, UploadedBy: uploader.ID, Title: key, ImageKey: key}
	require.NoError(t, s.artworks.CreateArtworkWithinLimit(context.Background(), a, repository.NoLimit))
	return a
}

func (s *store) count(t *testing.T, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}

func (s *store) planResolver() *PlanResolver {
	return NewPlanResolver(s.subs, DefaultPlanCatalog(), logging.Discard())
}

func (s *store) gallery() *GalleryService {
	return NewGalleryService(GalleryRepositories{
		Families:   s.families,
		Children:   s.children,
		Artworks:   s.artworks,
		Invites:    s.invites,
		ShareLinks: s.shareLinks,
	}, s.planResolver(), nil, nil, logging.Discard())
}
