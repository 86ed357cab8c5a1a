package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"familygallery/internal/models"
	"familygallery/internal/service"
)

// QuotaChecker answers plan limit questions
type QuotaChecker interface {
	CheckLimit(ctx context.Context, accountID int64, resource models.ResourceType, familyID *int64) (*service.LimitCheck, error)
}

// MembershipChecker reports whether an account belongs to a family
type MembershipChecker interface {
	IsMember(ctx context.Context, accountID, familyID int64) (bool, error)
}

// QuotaHandler serves limit checks for the signed-in account
type QuotaHandler struct {
	quota   QuotaChecker
	members MembershipChecker
	timeout time.Duration
	logger  logrus.FieldLogger
}

// NewQuotaHandler creates a new quota handler
func NewQuotaHandler(quota QuotaChecker, members MembershipChecker, timeout time.Duration, logger logrus.FieldLogger) *QuotaHandler {
	return &QuotaHandler{quota: quota, members: members, timeout: timeout, logger: logger}
}

type limitResponse struct {
	Resource models.ResourceType `json:"resource"`
	FamilyID *int64              `json:"family_id,omitempty"`
	service.LimitCheck
}

// CheckLimit handles GET /api/quota/{resource}?family_id=
func (h *QuotaHandler) CheckLimit(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	logger := h.logger.WithField("request_id", GetRequestID(r.Context()))

	resource, err := models.ParseResourceType(r.PathValue("resource"))
	if err != nil {
		writeServiceError(w, logger, errors.Wrap(service.ErrInvalidArgument, err.Error()))
		return
	}

	var familyID *int64
	if raw := r.URL.Query().Get("family_id"); raw != "" && resource.FamilyScoped() {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeServiceError(w, logger, errors.Wrap(service.ErrInvalidArgument, "family_id must be a positive integer"))
			return
		}
		familyID = &id
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	if familyID != nil {
		ok, err := h.members.IsMember(ctx, identity.AccountID, *familyID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		if !ok {
			writeServiceError(w, logger, errors.Wrapf(service.ErrForbidden, "not a member of family %d", *familyID))
			return
		}
	}

	check, err := h.quota.CheckLimit(ctx, identity.AccountID, resource, familyID)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, limitResponse{Resource: resource, FamilyID: familyID, LimitCheck: *check})
}
