package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familygallery/internal/audit"
	"familygallery/internal/logging"
	"familygallery/internal/models"
	"familygallery/internal/observability"
	"familygallery/internal/repository"
)

type adminIDs map[int64]bool

func (a adminIDs) IsAdmin(id models.Identity) bool { return a[id.AccountID] }

// faultyPurger forwards to a real purger unless a failure is armed for the table
type faultyPurger struct {
	next   Purger
	failOn map[repository.Table]error
	calls  []repository.Table
	hook   func(repository.Table)
}

func (p *faultyPurger) DeleteWhere(ctx context.Context, table repository.Table, pred repository.Predicate) (int64, error) {
	p.calls = append(p.calls, table)
	if p.hook != nil {
		p.hook(table)
	}
	if err, ok := p.failOn[table]; ok {
		return 0, err
	}
	return p.next.DeleteWhere(ctx, table, pred)
}

type recordingBlobs struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (b *recordingBlobs) DeleteKeys(_ context.Context, keys []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.keys = append(b.keys, keys...)
	return nil
}

type recordingAudit struct {
	events []audit.Event
}

func (a *recordingAudit) Log(_ context.Context, e audit.Event) error {
	a.events = append(a.events, e)
	return nil
}

type deletionHarness struct {
	*store
	admin  *models.User
	svc    *AccountDeletionService
	purger *faultyPurger
	blobs  *recordingBlobs
	audit  *recordingAudit
	mailer *recordingMailer
}

func newDeletionHarness(t *testing.T) *deletionHarness {
	s := newStore(t)
	h := &deletionHarness{
		store:  s,
		admin:  s.user(t, "admin@example.com"),
		purger: &faultyPurger{next: s.purge, failOn: map[repository.Table]error{}},
		blobs:  &recordingBlobs{},
		audit:  &recordingAudit{},
		mailer: &recordingMailer{},
	}
	h.svc = h.service(nil)
	return h
}

func (h *deletionHarness) service(metrics *observability.Metrics) *AccountDeletionService {
	return NewAccountDeletionService(AccountDeletionDeps{
		Policy:   adminIDs{h.admin.ID: true},
		Accounts: h.users,
		Families: h.families,
		Artworks: h.artworks,
		Counts:   h.counts,
		Purger:   h.purger,
		Blobs:    h.blobs,
		Audit:    h.audit,
		Notifier: h.mailer,
		Metrics:  metrics,
		Logger:   logging.Discard(),
	})
}

func (h *deletionHarness) adminIdentity() models.Identity {
	return models.Identity{AccountID: h.admin.ID, Email: h.admin.Email}
}

func (h *deletionHarness) exists(t *testing.T, table string, id int64) bool {
	return h.count(t, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id) > 0
}

// Account with three artworks in a two-member family and one invite
func TestDeleteAccountLeavesSharedFamily(t *testing.T) {
	h := newDeletionHarness(t)
	ctx := context.Background()

	owner := h.user(t, "owner@example.com")
	target := h.user(t, "target@example.com")
	f1 := h.family(t, owner, "F1")
	h.join(t, f1, target, models.RoleParent)

	var arts []*models.Artwork
	for _, key := range []string{"a.png", "b.png", "c.png"} {
		arts = append(arts, h.artwork(t, f1, target, key))
	}
	kept := h.artwork(t, f1, owner, "owner.png")

	_, err := h.invites.CreateInvite(ctx, f1.ID, target.ID, "friend@example.com", models.RoleMember, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = h.shareLinks.CreateShareLink(ctx, models.ShareArtwork, arts[0].ID, target.ID, nil)
	require.NoError(t, err)
	keptLink, err := h.shareLinks.CreateShareLink(ctx, models.ShareArtwork, kept.ID, target.ID, nil)
	require.NoError(t, err)
	require.NoError(t, h.subs.UpsertSubscription(ctx, target.ID, "family", models.SubscriptionActive))

	res, err := h.svc.DeleteAccount(ctx, h.adminIdentity(), target.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.TargetFound)
	assert.Equal(t, 0, res.DeletedFamilyCount)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, 0, h.count(t, "SELECT COUNT(*) FROM artworks WHERE uploaded_by = ?", target.ID))
	assert.Equal(t, 0, h.count(t, "SELECT COUNT(*) FROM invites WHERE created_by = ?", target.ID))
	assert.Equal(t, 0, h.count(t, "SELECT COUNT(*) FROM family_members WHERE user_id = ?", target.ID))
	assert.Equal(t, 0, h.count(t, "SELECT COUNT(*) FROM subscriptions WHERE user_id = ?", target.ID))
	assert.False(t, h.exists(t, "users", target.ID))

	assert.True(t, h.exists(t, "families", f1.ID))
	assert.Equal(t, 1, h.count(t, "SELECT COUNT(*) FROM family_members WHERE family_id = ?", f1.ID))
	assert.True(t, h.exists(t, "artworks", kept.ID))
	assert.True(t, h.exists(t, "share_links", keptLink.ID), "links to other uploaders' artwork survive")

	assert.ElementsMatch(t, []string{"a.png", "b.png", "c.png"}, h.blobs.keys)
	assert.Equal(t, []string{"deleted|target@example.com"}, h.mailer.sent)

	require.Len(t, h.audit.events, 2)
	assert.Equal(t, audit.OutcomeInitiated, h.audit.events[0].Outcome)
	assert.Equal(t, audit.OutcomeSucceeded, h.audit.events[1].Outcome)
	assert.Equal(t, res.RunID, h.audit.events[1].RunID)
	assert.Equal(t, target.ID, h.audit.events[1].TargetID)
}

// Sole member of a family with children and artworks
func TestDeleteAccountRemovesEmptyFamily(t *testing.T) {
	h := newDeletionHarness(t)
	ctx := context.Background()

	target := h.user(t, "solo@example.com")
	f2 := h.family(t, target, "F2")
	for _, name := range []string{"Ann", "Ben"} {
		_, err := h.children.CreateChildWithinLimit(ctx, f2.ID, name, nil, repository.NoLimit)
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		h.artwork(t, f2, target, "art.png")
	}
	_, err := h.shareLinks.CreateShareLink(ctx, models.ShareCollection, f2.ID, target.ID, nil)
	require.NoError(t, err)

	res, err := h.svc.DeleteAccount(ctx, h.adminIdentity(), target.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.DeletedFamilyCount)

	assert.False(t, h.exists(t, "families", f2.ID))
	assert.Equal(t, 0, h.count(t, "SELECT COUNT(*) FROM children WHERE family_id = ?", f2.ID))
	assert.Equal(t, 0, h.count(t, "SELECT COUNT(*) FROM artworks WHERE family_id = ?", f2.ID))
	assert.Equal(t, 0, h.count(t, "SELECT COUNT(*) FROM share_links"))
	assert.False(t, h.exists(t, "users", target.ID))
}

// A family the target created but has left keeps its other members
func TestDeleteAccountKeepsCreatedFamilyWithMembers(t *testing.T) {
	h := newDeletionHarness(t)
	ctx := context.Background()

	target := h.user(t, "founder@example.com")
	other := h.user(t, "other@example.com")
	fam := h.family(t, target, "Founders")
	h.join(t, fam, other, models.RoleParent)
	otherArt := h.artwork(t, fam, other, "other.png")

	res, err := h.svc.DeleteAccount(ctx, h.adminIdentity(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.DeletedFamilyCount)

	got, err := h.families.GetFamilyByID(ctx, fam.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.CreatedBy)
	assert.True(t, h.exists(t, "artworks", otherArt.ID))
}

func TestDeleteAccountPreconditions(t *testing.T) {
	h := newDeletionHarness(t)
	target := h.user(t, "target@example.com")
	fam := h.family(t, target, "Target")
	h.artwork(t, fam, target, "a.png")

	tests := []struct {
		name      string
		requester models.Identity
		targetID  int64
		wantErr   error
	}{
		{"not an admin", models.Identity{AccountID: target.ID}, h.admin.ID, ErrUnauthorized},
		{"anonymous", models.Identity{}, target.ID, ErrUnauthorized},
		{"self deletion", h.adminIdentity(), h.admin.ID, ErrForbidden},
		{"zero target", h.adminIdentity(), 0, ErrInvalidArgument},
		{"negative target", h.adminIdentity(), -3, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.svc.DeleteAccount(context.Background(), tt.requester, tt.targetID)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Empty(t, h.purger.calls, "no deletes before preconditions pass")
	assert.Empty(t, h.audit.events)
	assert.True(t, h.exists(t, "users", h.admin.ID))
	assert.True(t, h.exists(t, "families", fam.ID))
}

func TestDeleteAccountIsIdempotent(t *testing.T) {
	h := newDeletionHarness(t)
	ctx := context.Background()
	target := h.user(t, "twice@example.com")
	h.family(t, target, "Solo")

	first, err := h.svc.DeleteAccount(ctx, h.adminIdentity(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.DeletedFamilyCount)

	second, err := h.svc.DeleteAccount(ctx, h.adminIdentity(), target.ID)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.False(t, second.TargetFound)
	assert.Equal(t, 0, second.DeletedFamilyCount)
	for _, st := range second.Steps {
		assert.Zero(t, st.Deleted, st.Step)
	}
	assert.Len(t, h.mailer.sent, 1, "notice only goes out when the account existed")
}

func TestDeleteAccountBestEffortFailuresContinue(t *testing.T) {
	h := newDeletionHarness(t)
	ctx := context.Background()
	owner := h.user(t, "owner@example.com")
	target := h.user(t, "target@example.com")
	fam := h.family(t, owner, "Shared")
	h.join(t, fam, target, models.RoleMember)
	art := h.artwork(t, fam, target, "a.png")
	_, err := h.shareLinks.CreateShareLink(ctx, models.ShareArtwork, art.ID, target.ID, nil)
	require.NoError(t, err)
	_, err = h.invites.CreateInvite(ctx, fam.ID, target.ID, "", models.RoleViewer, time.Now().Add(time.Hour))
	require.NoError(t, err)

	h.purger.failOn[repository.TableShareLinks] = errors.New("share links unavailable")
	h.purger.failOn[repository.TableInvites] = errors.New("invites unavailable")
	h.purger.failOn[repository.TableSubscriptions] = errors.New("billing unavailable")
	h.blobs.err = errors.New("s3 unavailable")

	res, err := h.svc.DeleteAccount(ctx, h.adminIdentity(), target.ID)
	require.Error(t, err, "leftover invite still references the account")

	// With invites failing the terminal delete trips the invites foreign key.
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "delete_account", stepErr.Step)
	assert.False(t, res.Success)

	failed := map[string]bool{}
	for _, st := range res.Steps {
		if st.Error != "" {
			failed[st.Step] = st.Critical
		}
	}
	assert.Equal(t, map[string]bool{
		"delete_artwork_share_links": false,
		"delete_artwork_blobs":       false,
		"delete_invites":             false,
		"delete_subscription":        false,
		"delete_account":             true,
	}, failed)

	delete(h.purger.failOn, repository.TableInvites)
	res, err = h.svc.DeleteAccount(ctx, h.adminIdentity(), target.ID)
	require.NoError(t, err, "re-running after the fault clears converges")
	assert.True(t, res.Success)
	assert.False(t, h.exists(t, "users", target.ID))
	assert.True(t, h.exists(t, "families", fam.ID))
}

func TestDeleteAccountCriticalFailureAborts(t *testing.T) {
	h := newDeletionHarness(t)
	ctx := context.Background()
	target := h.user(t, "target@example.com")
	fam := h.family(t, target, "Solo")

	h.purger.failOn[repository.TableFamilyMembers] = errors.New("deadlock")

	res, err := h.svc.DeleteAccount(ctx, h.adminIdentity(), target.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyFailure)
	assert.False(t, res.Success)
	assert.NotContains(t, h.purger.calls, repository.TableUsers)
	assert.NotContains(t, h.purger.calls, repository.TableFamilies)
	assert.True(t, h.exists(t, "users", target.ID))
	assert.True(t, h.exists(t, "families", fam.ID))

	require.Len(t, h.audit.events, 2)
	assert.Equal(t, audit.OutcomeFailed, h.audit.events[1].Outcome)
	assert.Empty(t, h.mailer.sent)
}

func TestDeleteAccountStopsWhenBudgetExpires(t *testing.T) {
	h := newDeletionHarness(t)
	target := h.user(t, "slow@example.com")
	h.family(t, target, "Slow")

	ctx, cancel := context.WithCancel(context.Background())
	h.purger.hook = func(table repository.Table) {
		if table == repository.TableInvites {
			cancel()
		}
	}

	res, err := h.svc.DeleteAccount(ctx, h.adminIdentity(), target.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Success)
	assert.NotContains(t, h.purger.calls, repository.TableUsers)
	assert.True(t, h.exists(t, "users", target.ID))
}

func TestDeleteAccountRecordsMetrics(t *testing.T) {
	h := newDeletionHarness(t)
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	svc := h.service(metrics)

	target := h.user(t, "target@example.com")
	fam := h.family(t, target, "Solo")
	h.artwork(t, fam, target, "a.png")

	_, err := svc.DeleteAccount(context.Background(), h.adminIdentity(), target.ID)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DeletionRunsTotal.WithLabelValues(audit.OutcomeSucceeded)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RowsDeletedTotal.WithLabelValues("artworks")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RowsDeletedTotal.WithLabelValues("families")))
}

func TestPreviewAccountDeletion(t *testing.T) {
	h := newDeletionHarness(t)
	ctx := context.Background()
	owner := h.user(t, "owner@example.com")
	target := h.user(t, "target@example.com")
	shared := h.family(t, owner, "Shared")
	h.join(t, shared, target, models.RoleMember)
	solo := h.family(t, target, "Solo")
	h.artwork(t, shared, target, "a.png")
	h.artwork(t, solo, target, "b.png")
	_, err := h.invites.CreateInvite(ctx, solo.ID, target.ID, "", models.RoleMember, time.Now().Add(time.Hour))
	require.NoError(t, err)

	p, err := h.svc.PreviewAccountDeletion(ctx, h.adminIdentity(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Artworks)
	assert.Equal(t, 1, p.Invites)
	assert.Equal(t, 2, p.Memberships)
	assert.ElementsMatch(t, []int64{shared.ID, solo.ID}, p.Families)
	assert.Equal(t, []int64{solo.ID}, p.FamiliesToDelete)

	assert.Empty(t, h.purger.calls)

	_, err = h.svc.PreviewAccountDeletion(ctx, h.adminIdentity(), target.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.svc.PreviewAccountDeletion(ctx, models.Identity{AccountID: target.ID}, target.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
