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

// Gallery is the write side of the gallery used by GalleryHandler
type Gallery interface {
	CreateFamily(ctx context.Context, actorID int64, name string) (*models.Family, error)
	AddChild(ctx context.Context, actorID, familyID int64, name string, birthDate *time.Time) (*models.Child, error)
	AddArtwork(ctx context.Context, actorID, familyID int64, in service.ArtworkInput) (*models.Artwork, error)
	CreateInvite(ctx context.Context, actorID, familyID int64, email string, role models.Role, ttl time.Duration) (*models.Invite, error)
	CreateShareLink(ctx context.Context, actorID int64, resourceType models.ShareResourceType, resourceID int64, ttl time.Duration) (*models.ShareLink, error)
}

// GalleryHandler handles family, child, artwork, invite and share link creation
type GalleryHandler struct {
	gallery Gallery
	logger  logrus.FieldLogger
}

// NewGalleryHandler creates a new gallery handler
func NewGalleryHandler(gallery Gallery, logger logrus.FieldLogger) *GalleryHandler {
	return &GalleryHandler{gallery: gallery, logger: logger}
}

type createFamilyRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type createChildRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	BirthDate string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
}

type createArtworkRequest struct {
	ChildID       *int64   `json:"child_id" validate:"omitempty,gt=0"`
	Title         string   `json:"title" validate:"max=200"`
	ImageKey      string   `json:"image_key" validate:"required,max=512"`
	IsFavorite    bool     `json:"is_favorite"`
	Tags          []string `json:"tags" validate:"max=20,dive,max=40"`
	AIDescription string   `json:"ai_description" validate:"max=2000"`
}

type createInviteRequest struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Role     string `json:"role" validate:"omitempty,role"`
	TTLHours int    `json:"ttl_hours" validate:"gte=0,lte=720"`
}

type createShareLinkRequest struct {
	ResourceType string `json:"resource_type" validate:"required,oneof=artwork collection"`
	ResourceID   int64  `json:"resource_id" validate:"required,gt=0"`
	TTLHours     int    `json:"ttl_hours" validate:"gte=0,lte=8760"`
}

type familyResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type childResponse struct {
	ID        int64      `json:"id"`
	FamilyID  int64      `json:"family_id"`
	Name      string     `json:"name"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
}

type artworkResponse struct {
	ID         int64    `json:"id"`
	FamilyID   int64    `json:"family_id"`
	ChildID    *int64   `json:"child_id,omitempty"`
	Title      string   `json:"title"`
	ImageKey   string   `json:"image_key"`
	IsFavorite bool     `json:"is_favorite"`
	Tags       []string `json:"tags"`
}

type inviteResponse struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

type shareLinkResponse struct {
	Code         string     `json:"code"`
	ResourceType string     `json:"resource_type"`
	ResourceID   int64      `json:"resource_id"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// CreateFamily handles POST /api/families
func (h *GalleryHandler) CreateFamily(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	logger := h.requestLogger(r)

	var req createFamilyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, logger, err)
		return
	}

	family, err := h.gallery.CreateFamily(r.Context(), identity.AccountID, req.Name)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, familyResponse{ID: family.ID, Name: family.Name, CreatedAt: family.CreatedAt})
}

// AddChild handles POST /api/families/{familyID}/children
func (h *GalleryHandler) AddChild(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	logger := h.requestLogger(r)

	familyID, err := pathID(r, "familyID")
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}

	var req createChildRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, logger, err)
		return
	}

	var birthDate *time.Time
	if req.BirthDate != "" {
		t, _ := time.Parse("2006-01-02", req.BirthDate)
		birthDate = &t
	}

	child, err := h.gallery.AddChild(r.Context(), identity.AccountID, familyID, req.Name, birthDate)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, childResponse{ID: child.ID, FamilyID: child.FamilyID, Name: child.Name, BirthDate: child.BirthDate})
}

// AddArtwork handles POST /api/families/{familyID}/artworks
func (h *GalleryHandler) AddArtwork(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	logger := h.requestLogger(r)

	familyID, err := pathID(r, "familyID")
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}

	var req createArtworkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, logger, err)
		return
	}

	artwork, err := h.gallery.AddArtwork(r.Context(), identity.AccountID, familyID, service.ArtworkInput{
		ChildID:       req.ChildID,
		Title:         req.Title,
		ImageKey:      req.ImageKey,
		IsFavorite:    req.IsFavorite,
		Tags:          req.Tags,
		AIDescription: req.AIDescription,
	})
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, artworkResponse{
		ID:         artwork.ID,
		FamilyID:   artwork.FamilyID,
		ChildID:    artwork.ChildID,
		Title:      artwork.Title,
		ImageKey:   artwork.ImageKey,
		IsFavorite: artwork.IsFavorite,
		Tags:       artwork.Tags,
	})
}

// CreateInvite handles POST /api/families/{familyID}/invites
func (h *GalleryHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	logger := h.requestLogger(r)

	familyID, err := pathID(r, "familyID")
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}

	var req createInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, logger, err)
		return
	}

	ttl := time.Duration(req.TTLHours) * time.Hour
	invite, err := h.gallery.CreateInvite(r.Context(), identity.AccountID, familyID, req.Email, models.Role(req.Role), ttl)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, inviteResponse{
		ID:        invite.ID,
		Code:      invite.Code,
		Email:     invite.Email,
		Role:      string(invite.Role),
		ExpiresAt: invite.ExpiresAt,
	})
}

// CreateShareLink handles POST /api/share-links
func (h *GalleryHandler) CreateShareLink(w http.ResponseWriter, r *http.Request) {
	identity, _ := GetIdentityFromContext(r.Context())
	logger := h.requestLogger(r)

	var req createShareLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, logger, err)
		return
	}

	ttl := time.Duration(req.TTLHours) * time.Hour
	link, err := h.gallery.CreateShareLink(r.Context(), identity.AccountID, models.ShareResourceType(req.ResourceType), req.ResourceID, ttl)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, shareLinkResponse{
		Code:         link.Code,
		ResourceType: string(link.ResourceType),
		ResourceID:   link.ResourceID,
		ExpiresAt:    link.ExpiresAt,
	})
}

func (h *GalleryHandler) requestLogger(r *http.Request) logrus.FieldLogger {
	return h.logger.WithField("request_id", GetRequestID(r.Context()))
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Wrapf(service.ErrInvalidArgument, "%s must be a positive integer", name)
	}
	return id, nil
}
