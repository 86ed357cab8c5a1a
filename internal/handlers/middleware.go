package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"familygallery/internal/models"
	"familygallery/internal/observability"
	"familygallery/internal/security"
	"familygallery/internal/service"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	IdentityContextKey  ContextKey = "identity"
	RequestIDContextKey ContextKey = "request_id"

	RequestIDHeader = "X-Request-ID"
	CSRFHeader      = "X-CSRF-Token"
)

// Middleware holds dependencies for middleware functions
type Middleware struct {
	tokens  *security.TokenManager
	policy  service.AdminPolicy
	origins *security.OriginVerifier
	csrf    *security.CSRFGenerator
	limiter security.Limiter
	metrics *observability.Metrics
	logger  logrus.FieldLogger
}

// MiddlewareDeps are the collaborators of Middleware. Metrics may be nil.
type MiddlewareDeps struct {
	Tokens  *security.TokenManager
	Policy  service.AdminPolicy
	Origins *security.OriginVerifier
	CSRF    *security.CSRFGenerator
	Limiter security.Limiter
	Metrics *observability.Metrics
	Logger  logrus.FieldLogger
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(deps MiddlewareDeps) *Middleware {
	return &Middleware{
		tokens:  deps.Tokens,
		policy:  deps.Policy,
		origins: deps.Origins,
		csrf:    deps.CSRF,
		limiter: deps.Limiter,
		metrics: deps.Metrics,
		logger:  deps.Logger,
	}
}

// RequestID tags each request with an id, reusing a sane inbound X-Request-ID
func (m *Middleware) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), RequestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Logging middleware logs HTTP requests
func (m *Middleware) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		m.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start).String(),
			"client_ip":  security.GetClientIP(r),
			"request_id": GetRequestID(r.Context()),
		}).Info("request")
	})
}

// RequireAuth is middleware that requires a valid bearer token
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			respondWithError(w, m.requestLogger(r), http.StatusUnauthorized, CodeUnauthorized, "missing bearer token", "", nil)
			return
		}

		identity, err := m.tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			respondWithError(w, m.requestLogger(r), http.StatusUnauthorized, CodeUnauthorized, "invalid bearer token", "token rejected", err)
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
		next(w, r.WithContext(ctx))
	}
}

// RequireAdmin requires an authenticated identity on the admin allow-list.
// It must run after RequireAuth.
func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := GetIdentityFromContext(r.Context())
		if !ok || !m.policy.IsAdmin(identity) {
			respondWithError(w, m.requestLogger(r), http.StatusUnauthorized, CodeUnauthorized, "administrator identity required", "", nil)
			return
		}
		next(w, r)
	}
}

// VerifyOrigin rejects state-changing requests from foreign origins
func (m *Middleware) VerifyOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.origins.Verify(r) {
			respondWithError(w, m.requestLogger(r), http.StatusForbidden, CodeForbidden, "origin not allowed", "", nil)
			return
		}
		next(w, r)
	}
}

// CSRFProtect requires the X-CSRF-Token header issued for the caller's token
func (m *Middleware) CSRFProtect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := GetIdentityFromContext(r.Context())
		if !m.csrf.ValidateToken(identity, r.Header.Get(CSRFHeader)) {
			respondWithError(w, m.requestLogger(r), http.StatusForbidden, CodeForbidden, "invalid CSRF token", "", nil)
			return
		}
		next(w, r)
	}
}

// AdminRateLimit bounds admin requests per identity. A limiter failure
// rejects the request.
func (m *Middleware) AdminRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := GetIdentityFromContext(r.Context())
		key := "admin:" + strconv.FormatInt(identity.AccountID, 10)

		decision, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			respondWithError(w, m.requestLogger(r), http.StatusServiceUnavailable, CodeDependencyFailure,
				"rate limiter unavailable", "rate limiter failed", err)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			m.metrics.RateLimited(r.Pattern)
			writeServiceError(w, m.requestLogger(r), &service.RateLimitError{RetryAfter: decision.RetryAfter})
			return
		}
		next(w, r)
	}
}

func (m *Middleware) requestLogger(r *http.Request) logrus.FieldLogger {
	return m.logger.WithField("request_id", GetRequestID(r.Context()))
}

// GetIdentityFromContext retrieves the caller identity from the request context
func GetIdentityFromContext(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(models.Identity)
	return identity, ok
}

// GetRequestID returns the request id set by RequestID, or ""
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}
