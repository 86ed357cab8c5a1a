package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"familygallery/internal/audit"
	"familygallery/internal/logging"
	"familygallery/internal/models"
	"familygallery/internal/observability"
	"familygallery/internal/repository"
	"familygallery/internal/storage"
)

// DefaultDeletionTimeout bounds one account deletion run
const DefaultDeletionTimeout = 30 * time.Second

const actionDeleteAccount = "account.delete"

// AdminPolicy decides whether an identity may act as an administrator
type AdminPolicy interface {
	IsAdmin(identity models.Identity) bool
}

// AccountReader loads accounts; nil means the account does not exist
type AccountReader interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// FamilyLookup lists the families tied to an account by membership or creation
type FamilyLookup interface {
	FamilyIDsForUser(ctx context.Context, userID int64) ([]int64, error)
}

// ArtworkLookup lists artworks by uploader or by family
type ArtworkLookup interface {
	ArtworkRefsByUploader(ctx context.Context, userID int64) ([]models.ArtworkRef, error)
	ArtworkRefsByFamily(ctx context.Context, familyID int64) ([]models.ArtworkRef, error)
}

// DeletionCounter provides the counts the deletion workflow and its preview need
type DeletionCounter interface {
	CountMembers(ctx context.Context, familyID int64) (int, error)
	CountOtherMembers(ctx context.Context, familyID, userID int64) (int, error)
	CountArtworksByUploader(ctx context.Context, userID int64) (int, error)
	CountInvitesCreatedBy(ctx context.Context, userID int64) (int, error)
	CountMemberships(ctx context.Context, userID int64) (int, error)
}

// Purger deletes the rows of one table matching a predicate
type Purger interface {
	DeleteWhere(ctx context.Context, table repository.Table, pred repository.Predicate) (int64, error)
}

// DeletionNotifier tells a removed account holder that their data is gone
type DeletionNotifier interface {
	SendAccountDeletedNotice(ctx context.Context, toEmail, toName string) error
}

// AccountDeletionDeps are the collaborators of AccountDeletionService.
// Blobs, Audit, Notifier and Metrics are optional.
type AccountDeletionDeps struct {
	Policy   AdminPolicy
	Accounts AccountReader
	Families FamilyLookup
	Artworks ArtworkLookup
	Counts   DeletionCounter
	Purger   Purger
	Blobs    storage.BlobStore
	Audit    audit.Logger
	Notifier DeletionNotifier
	Metrics  *observability.Metrics
	Logger   logrus.FieldLogger
	Timeout  time.Duration
}

// AccountDeletionService removes an account and everything it owns.
//
// The workflow is a fixed sequence of independent deletes, ordered so no
// foreign key is violated. It is not atomic. Every predicate is scoped to
// the target id, so re-running after a partial failure converges.
type AccountDeletionService struct {
	deps AccountDeletionDeps
}

// NewAccountDeletionService creates a new account deletion service
func NewAccountDeletionService(deps AccountDeletionDeps) *AccountDeletionService {
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultDeletionTimeout
	}
	if deps.Blobs == nil {
		deps.Blobs = storage.NoopStore{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	return &AccountDeletionService{deps: deps}
}

// StepOutcome is the record of one deletion step
type StepOutcome struct {
	Step     string `json:"step"`
	Critical bool   `json:"critical"`
	Deleted  int64  `json:"deleted"`
	Error    string `json:"error,omitempty"`
}

// DeletionResult summarizes a deletion run
type DeletionResult struct {
	RunID              string        `json:"run_id"`
	Success            bool          `json:"success"`
	DeletedFamilyCount int           `json:"deleted_family_count"`
	TargetFound        bool          `json:"target_found"`
	Steps              []StepOutcome `json:"steps"`
}

// DeletionPreview counts what DeleteAccount would remove right now
type DeletionPreview struct {
	AccountID        int64   `json:"account_id"`
	Email            string  `json:"email"`
	Artworks         int     `json:"artworks"`
	Invites          int     `json:"invites"`
	Memberships      int     `json:"memberships"`
	Families         []int64 `json:"families"`
	FamiliesToDelete []int64 `json:"families_to_delete"`
}

func (s *AccountDeletionService) authorize(requester models.Identity, targetID int64) error {
	if s.deps.Policy == nil || !s.deps.Policy.IsAdmin(requester) {
		return errors.Wrap(ErrUnauthorized, "administrator identity required")
	}
	if targetID <= 0 {
		return invalidArgument("target account id must be positive")
	}
	return nil
}

// DeleteAccount removes targetID and everything it owns on behalf of an
// administrator. A missing target is not an error: the run performs no
// deletes and reports success, which keeps re-invocation idempotent.
//
// When a critical step fails the returned result has Success false and
// the error is a *StepError.
func (s *AccountDeletionService) DeleteAccount(ctx context.Context, requester models.Identity, targetID int64) (*DeletionResult, error) {
	if err := s.authorize(requester, targetID); err != nil {
		return nil, err
	}
	if requester.AccountID == targetID {
		return nil, errors.Wrap(ErrForbidden, "administrators cannot delete their own account")
	}

	ctx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
	defer cancel()

	runID := uuid.NewString()
	run := &deletionRun{
		svc:       s,
		requester: requester,
		targetID:  targetID,
		result:    &DeletionResult{RunID: runID, Steps: []StepOutcome{}},
		logger: s.deps.Logger.WithFields(logrus.Fields{
			"run_id":    runID,
			"actor_id":  requester.AccountID,
			"target_id": targetID,
		}),
		started: time.Now(),
	}

	run.audit(ctx, audit.OutcomeInitiated, "")

	target, err := run.execute(ctx)
	if err != nil {
		run.finish(ctx, audit.OutcomeFailed, err.Error())
		return run.result, err
	}

	run.result.Success = true
	run.finish(ctx, audit.OutcomeSucceeded, fmt.Sprintf("deleted_family_count=%d", run.result.DeletedFamilyCount))

	if target != nil && s.deps.Notifier != nil {
		if err := s.deps.Notifier.SendAccountDeletedNotice(ctx, target.Email, target.Name); err != nil {
			run.logger.WithError(err).Warn("failed to send account deletion notice")
		}
	}
	return run.result, nil
}

// PreviewAccountDeletion reports what DeleteAccount would remove without
// changing anything.
func (s *AccountDeletionService) PreviewAccountDeletion(ctx context.Context, requester models.Identity, targetID int64) (*DeletionPreview, error) {
	if err := s.authorize(requester, targetID); err != nil {
		return nil, err
	}

	target, err := s.deps.Accounts.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, dependency("load account", err)
	}
	if target == nil {
		return nil, errors.Wrapf(ErrNotFound, "account %d", targetID)
	}

	p := &DeletionPreview{AccountID: target.ID, Email: target.Email, Families: []int64{}, FamiliesToDelete: []int64{}}
	if p.Artworks, err = s.deps.Counts.CountArtworksByUploader(ctx, targetID); err != nil {
		return nil, dependency("count artworks", err)
	}
	if p.Invites, err = s.deps.Counts.CountInvitesCreatedBy(ctx, targetID); err != nil {
		return nil, dependency("count invites", err)
	}
	if p.Memberships, err = s.deps.Counts.CountMemberships(ctx, targetID); err != nil {
		return nil, dependency("count memberships", err)
	}

	familyIDs, err := s.deps.Families.FamilyIDsForUser(ctx, targetID)
	if err != nil {
		return nil, dependency("list families", err)
	}
	for _, fid := range familyIDs {
		p.Families = append(p.Families, fid)
		others, err := s.deps.Counts.CountOtherMembers(ctx, fid, targetID)
		if err != nil {
			return nil, dependency("count family members", err)
		}
		if others == 0 {
			p.FamiliesToDelete = append(p.FamiliesToDelete, fid)
		}
	}
	return p, nil
}

// deletionRun is the state of one DeleteAccount invocation
type deletionRun struct {
	svc       *AccountDeletionService
	requester models.Identity
	targetID  int64
	result    *DeletionResult
	logger    logrus.FieldLogger
	started   time.Time
}

func (r *deletionRun) execute(ctx context.Context) (*models.User, error) {
	d := r.svc.deps
	target := r.targetID

	var account *models.User
	if err := r.lookup(ctx, "load_account", func() (err error) {
		account, err = d.Accounts.GetUserByID(ctx, target)
		return err
	}); err != nil {
		return nil, err
	}
	r.result.TargetFound = account != nil

	// Recorded before anything is removed: once memberships are gone the
	// family set can no longer be derived.
	var familyIDs []int64
	if err := r.lookup(ctx, "resolve_families", func() (err error) {
		familyIDs, err = d.Families.FamilyIDsForUser(ctx, target)
		return err
	}); err != nil {
		return account, err
	}

	var artworks []models.ArtworkRef
	if err := r.lookup(ctx, "resolve_artworks", func() (err error) {
		artworks, err = d.Artworks.ArtworkRefsByUploader(ctx, target)
		return err
	}); err != nil {
		return account, err
	}
	artworkIDs, imageKeys := splitRefs(artworks)

	steps := []deletionStep{
		{name: "delete_artwork_share_links", table: repository.TableShareLinks,
			pred: repository.Where("resource_type", string(models.ShareArtwork)).AndIn("resource_id", artworkIDs)},
		{name: "delete_artworks", table: repository.TableArtworks,
			pred: repository.Where("uploaded_by", target), loud: true},
	}
	artworksOK := true
	for _, st := range steps {
		ok, err := r.run(ctx, st)
		if err != nil {
			return account, err
		}
		if st.table == repository.TableArtworks {
			artworksOK = ok
		}
	}

	if artworksOK {
		if err := r.removeBlobs(ctx, "delete_artwork_blobs", imageKeys); err != nil {
			return account, err
		}
	}

	for _, st := range []deletionStep{
		{name: "delete_invites", table: repository.TableInvites, pred: repository.Where("created_by", target)},
		{name: "delete_memberships", table: repository.TableFamilyMembers, pred: repository.Where("user_id", target), critical: true},
		{name: "delete_subscription", table: repository.TableSubscriptions, pred: repository.Where("user_id", target)},
	} {
		if _, err := r.run(ctx, st); err != nil {
			return account, err
		}
	}

	for _, fid := range familyIDs {
		if err := r.teardownFamily(ctx, fid); err != nil {
			return account, err
		}
	}

	_, err := r.run(ctx, deletionStep{
		name: "delete_account", table: repository.TableUsers, pred: repository.Where("id", target), critical: true,
	})
	return account, err
}

// teardownFamily removes a family once it has no members left. Families
// that still have members are not touched.
func (r *deletionRun) teardownFamily(ctx context.Context, familyID int64) error {
	d := r.svc.deps
	log := r.logger.WithField("family_id", familyID)

	var remaining int
	if err := r.lookup(ctx, "count_family_members", func() (err error) {
		remaining, err = d.Counts.CountMembers(ctx, familyID)
		return err
	}); err != nil {
		return err
	}
	if remaining > 0 {
		log.WithField("members", remaining).Debug("family keeps its remaining members")
		return nil
	}

	var artworks []models.ArtworkRef
	if err := r.lookup(ctx, "resolve_family_artworks", func() (err error) {
		artworks, err = d.Artworks.ArtworkRefsByFamily(ctx, familyID)
		return err
	}); err != nil {
		return err
	}
	artworkIDs, imageKeys := splitRefs(artworks)

	steps := []deletionStep{
		{name: "delete_family_artwork_share_links", table: repository.TableShareLinks,
			pred: repository.Where("resource_type", string(models.ShareArtwork)).AndIn("resource_id", artworkIDs)},
		{name: "delete_family_share_links", table: repository.TableShareLinks,
			pred: repository.Where("resource_type", string(models.ShareCollection)).And("resource_id", familyID)},
		{name: "delete_family_invites", table: repository.TableInvites, pred: repository.Where("family_id", familyID)},
		{name: "delete_family_artworks", table: repository.TableArtworks, pred: repository.Where("family_id", familyID), critical: true},
		{name: "delete_children", table: repository.TableChildren, pred: repository.Where("family_id", familyID), critical: true},
	}
	for _, st := range steps {
		if _, err := r.run(ctx, st); err != nil {
			return err
		}
	}

	if err := r.removeBlobs(ctx, "delete_family_artwork_blobs", imageKeys); err != nil {
		return err
	}

	st := deletionStep{name: "delete_family", table: repository.TableFamilies, pred: repository.Where("id", familyID), critical: true}
	n, err := r.exec(ctx, st)
	if err != nil {
		return err
	}
	if n > 0 {
		r.result.DeletedFamilyCount++
		log.Info("deleted family without remaining members")
	}
	return nil
}

type deletionStep struct {
	name     string
	table    repository.Table
	pred     repository.Predicate
	critical bool
	loud     bool // best-effort, but a failure leaves the account undeletable
}

// run executes a step and reports whether it succeeded. Only critical
// failures and an expired budget are returned as errors.
func (r *deletionRun) run(ctx context.Context, st deletionStep) (bool, error) {
	_, err := r.exec(ctx, st)
	if err == nil {
		return true, nil
	}
	var stepErr *StepError
	if errors.As(err, &stepErr) && stepErr.Critical {
		return false, err
	}
	return false, nil
}

func (r *deletionRun) exec(ctx context.Context, st deletionStep) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, r.abort(st.name, err)
	}

	n, err := r.svc.deps.Purger.DeleteWhere(ctx, st.table, st.pred)
	outcome := StepOutcome{Step: st.name, Critical: st.critical, Deleted: n}
	r.svc.deps.Metrics.DeletionStep(st.name, string(st.table), n, err != nil)

	log := r.logger.WithFields(logrus.Fields{"step": st.name, "table": st.table})
	if err == nil {
		r.result.Steps = append(r.result.Steps, outcome)
		log.WithField("deleted", n).Debug("deletion step completed")
		return n, nil
	}

	outcome.Error = err.Error()
	r.result.Steps = append(r.result.Steps, outcome)

	if st.critical || ctx.Err() != nil {
		log.WithError(err).Error("critical deletion step failed, aborting")
		return 0, &StepError{Step: st.name, Critical: true, Err: err}
	}
	if st.loud {
		log.WithError(err).Error("deletion step failed, continuing")
	} else {
		log.WithError(err).Warn("best-effort deletion step failed, continuing")
	}
	return 0, &StepError{Step: st.name, Critical: false, Err: err}
}

// lookup runs a critical read step
func (r *deletionRun) lookup(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return r.abort(name, err)
	}
	if err := fn(); err != nil {
		r.result.Steps = append(r.result.Steps, StepOutcome{Step: name, Critical: true, Error: err.Error()})
		r.svc.deps.Metrics.DeletionStep(name, "", 0, true)
		r.logger.WithError(err).WithField("step", name).Error("critical deletion lookup failed, aborting")
		return &StepError{Step: name, Critical: true, Err: err}
	}
	return nil
}

func (r *deletionRun) removeBlobs(ctx context.Context, name string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return r.abort(name, err)
	}

	outcome := StepOutcome{Step: name, Deleted: int64(len(keys))}
	if err := r.svc.deps.Blobs.DeleteKeys(ctx, keys); err != nil {
		outcome.Deleted = 0
		outcome.Error = err.Error()
		r.logger.WithError(err).WithField("step", name).Warn("failed to remove artwork images, continuing")
	}
	r.svc.deps.Metrics.DeletionStep(name, "", 0, outcome.Error != "")
	r.result.Steps = append(r.result.Steps, outcome)
	return nil
}

func (r *deletionRun) abort(step string, err error) error {
	r.result.Steps = append(r.result.Steps, StepOutcome{Step: step, Critical: true, Error: err.Error()})
	r.logger.WithError(err).WithField("step", step).Error("deletion budget exhausted, aborting")
	return &StepError{Step: step, Critical: true, Err: err}
}

func (r *deletionRun) audit(ctx context.Context, outcome, detail string) {
	if r.svc.deps.Audit == nil {
		return
	}
	// The audit record must be written even when the run's budget is spent.
	ctx = context.WithoutCancel(ctx)
	err := r.svc.deps.Audit.Log(ctx, audit.Event{
		RunID:      r.result.RunID,
		Action:     actionDeleteAccount,
		ActorID:    r.requester.AccountID,
		ActorEmail: r.requester.Email,
		TargetID:   r.targetID,
		Outcome:    outcome,
		Detail:     detail,
		Time:       time.Now(),
	})
	if err != nil {
		r.logger.WithError(err).Warn("failed to write audit record")
	}
}

func (r *deletionRun) finish(ctx context.Context, outcome, detail string) {
	r.svc.deps.Metrics.DeletionRun(outcome, time.Since(r.started))
	r.audit(ctx, outcome, detail)
}

func splitRefs(refs []models.ArtworkRef) ([]int64, []string) {
	ids := make([]int64, 0, len(refs))
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
		if ref.ImageKey != "" {
			keys = append(keys, ref.ImageKey)
		}
	}
	return ids, keys
}
