package handlers

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"familygallery/internal/models"
	"familygallery/internal/security"
	"familygallery/internal/service"
)

// AccountDeleter runs and previews account deletions
type AccountDeleter interface {
	DeleteAccount(ctx context.Context, requester models.Identity, targetID int64) (*service.DeletionResult, error)
	PreviewAccountDeletion(ctx context.Context, requester models.Identity, targetID int64) (*service.DeletionPreview, error)
}

// AdminHandler handles admin-specific routes
type AdminHandler struct {
	deleter AccountDeleter
	csrf    *security.CSRFGenerator
	logger  logrus.FieldLogger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(deleter AccountDeleter, csrf *security.CSRFGenerator, logger logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{deleter: deleter, csrf: csrf, logger: logger}
}

type deleteAccountRequest struct {
	TargetID int64 `json:"target_id" validate:"required,gt=0"`
}

type deletionFailure struct {
	Error  errorDetail             `json:"error"`
	Result *service.DeletionResult `json:"result"`
}

// CSRFToken handles GET /admin/csrf
func (h *AdminHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())

	token, err := h.csrf.GenerateToken(identity)
	if err != nil {
		respondWithError(w, h.requestLogger(r), http.StatusUnauthorized, CodeUnauthorized,
			"token has no id", "failed to issue CSRF token", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

// PreviewDeletion handles GET /admin/accounts/{id}/deletion-preview
func (h *AdminHandler) PreviewDeletion(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	logger := h.requestLogger(r)

	targetID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}

	preview, err := h.deleter.PreviewAccountDeletion(r.Context(), identity, targetID)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// DeleteAccount handles POST /admin/accounts/delete
func (h *AdminHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	logger := h.requestLogger(r)

	var req deleteAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, logger, err)
		return
	}

	result, err := h.deleter.DeleteAccount(r.Context(), identity, req.TargetID)
	if err == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}

	var stepErr *service.StepError
	if result != nil && errors.As(err, &stepErr) {
		// The run may have applied some steps; re-invoking is safe.
		logger.WithError(err).WithFields(logrus.Fields{
			"run_id":    result.RunID,
			"target_id": req.TargetID,
			"step":      stepErr.Step,
		}).Error("account deletion failed")
		writeJSON(w, http.StatusServiceUnavailable, deletionFailure{
			Error: errorDetail{
				Code:    CodeDependencyFailure,
				Message: "account deletion failed at step " + stepErr.Step + ", it is safe to retry",
			},
			Result: result,
		})
		return
	}
	writeServiceError(w, logger, err)
}

func (h *AdminHandler) requestLogger(r *http.Request) logrus.FieldLogger {
	return h.logger.WithField("request_id", GetRequestID(r.Context()))
}
