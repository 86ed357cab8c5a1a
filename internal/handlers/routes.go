package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"familygallery/internal/observability"
)

// Routes bundles what NewRouter mounts. Registry and Metrics may be nil.
type Routes struct {
	Middleware *Middleware
	Startup    *Startup
	Quota      *QuotaHandler
	Gallery    *GalleryHandler
	Admin      *AdminHandler
	Registry   *prometheus.Registry
	Metrics    *observability.Metrics
}

// NewRouter builds the HTTP handler tree
func NewRouter(rt Routes) http.Handler {
	mux := http.NewServeMux()
	mw := rt.Middleware

	mux.HandleFunc("GET /healthz", rt.Startup.Health)
	if rt.Registry != nil {
		observability.RegisterMetricsEndpoint(mux, rt.Registry)
	}

	mux.HandleFunc("GET /api/quota/{resource}", mw.RequireAuth(rt.Quota.CheckLimit))
	mux.HandleFunc("POST /api/families", mw.RequireAuth(rt.Gallery.CreateFamily))
	mux.HandleFunc("POST /api/families/{familyID}/children", mw.RequireAuth(rt.Gallery.AddChild))
	mux.HandleFunc("POST /api/families/{familyID}/artworks", mw.RequireAuth(rt.Gallery.AddArtwork))
	mux.HandleFunc("POST /api/families/{familyID}/invites", mw.RequireAuth(rt.Gallery.CreateInvite))
	mux.HandleFunc("POST /api/share-links", mw.RequireAuth(rt.Gallery.CreateShareLink))

	admin := func(h http.HandlerFunc) http.HandlerFunc {
		return mw.RequireAuth(mw.RequireAdmin(mw.AdminRateLimit(h)))
	}
	mux.HandleFunc("GET /admin/csrf", admin(rt.Admin.CSRFToken))
	mux.HandleFunc("GET /admin/accounts/{id}/deletion-preview", admin(rt.Admin.PreviewDeletion))
	// Forged deletes are rejected before they spend the caller's rate budget.
	mux.HandleFunc("POST /admin/accounts/delete", mw.RequireAuth(mw.RequireAdmin(mw.VerifyOrigin(mw.CSRFProtect(mw.AdminRateLimit(rt.Admin.DeleteAccount))))))

	var h http.Handler = mux
	h = observability.HTTPMetricsMiddleware(rt.Metrics)(h)
	h = mw.Logging(h)
	h = mw.RequestID(h)
	return h
}
