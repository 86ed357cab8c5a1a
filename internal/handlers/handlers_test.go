package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familygallery/internal/logging"
	"familygallery/internal/models"
	"familygallery/internal/observability"
	"familygallery/internal/security"
	"familygallery/internal/service"
)

const testOrigin = "https://gallery.example.com"

type fakeQuota struct {
	check *service.LimitCheck
	err   error
	got   *int64
}

func (f *fakeQuota) CheckLimit(_ context.Context, _ int64, _ models.ResourceType, familyID *int64) (*service.LimitCheck, error) {
	f.got = familyID
	return f.check, f.err
}

type fakeMembers struct {
	member bool
	err    error
}

func (f fakeMembers) IsMember(context.Context, int64, int64) (bool, error) { return f.member, f.err }

type fakeGallery struct {
	err error
}

func (f *fakeGallery) CreateFamily(_ context.Context, _ int64, name string) (*models.Family, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Family{ID: 7, Name: name}, nil
}

func (f *fakeGallery) AddChild(_ context.Context, _, familyID int64, name string, birth *time.Time) (*models.Child, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Child{ID: 3, FamilyID: familyID, Name: name, BirthDate: birth}, nil
}

func (f *fakeGallery) AddArtwork(_ context.Context, _, familyID int64, in service.ArtworkInput) (*models.Artwork, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Artwork{ID: 9, FamilyID: familyID, ImageKey: in.ImageKey, Tags: in.Tags}, nil
}

func (f *fakeGallery) CreateInvite(_ context.Context, _, familyID int64, email string, role models.Role, ttl time.Duration) (*models.Invite, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Invite{ID: 1, FamilyID: familyID, Code: "abc", Email: email, Role: role, ExpiresAt: time.Now().Add(ttl)}, nil
}

func (f *fakeGallery) CreateShareLink(_ context.Context, _ int64, rt models.ShareResourceType, id int64, _ time.Duration) (*models.ShareLink, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.ShareLink{Code: "xyz", ResourceType: rt, ResourceID: id}, nil
}

type fakeDeleter struct {
	result  *service.DeletionResult
	err     error
	targets []int64
}

func (f *fakeDeleter) DeleteAccount(_ context.Context, _ models.Identity, targetID int64) (*service.DeletionResult, error) {
	f.targets = append(f.targets, targetID)
	return f.result, f.err
}

func (f *fakeDeleter) PreviewAccountDeletion(_ context.Context, _ models.Identity, targetID int64) (*service.DeletionPreview, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.DeletionPreview{AccountID: targetID, Artworks: 2}, nil
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (security.Decision, error) {
	return security.Decision{}, errors.New("redis down")
}

type testServer struct {
	handler http.Handler
	tokens  *security.TokenManager
	csrf    *security.CSRFGenerator
	quota   *fakeQuota
	members *fakeMembers
	gallery *fakeGallery
	deleter *fakeDeleter
	startup *Startup
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, limiter security.Limiter) *testServer {
	t.Helper()
	logger := logging.Discard()
	ts := &testServer{
		tokens:  security.NewTokenManager("jwt-secret", time.Hour),
		csrf:    security.NewCSRFGenerator("csrf-secret"),
		quota:   &fakeQuota{check: &service.LimitCheck{Allowed: true, Limit: 3, Current: 1}},
		members: &fakeMembers{member: true},
		gallery: &fakeGallery{},
		deleter: &fakeDeleter{result: &service.DeletionResult{RunID: "run-1", Success: true}},
		startup: NewStartup("Database connection"),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
	if limiter == nil {
		limiter = mustLimiter(t, 100)
	}

	mw := NewMiddleware(MiddlewareDeps{
		Tokens:  ts.tokens,
		Policy:  security.NewStaticAdminPolicy([]string{"admin@example.com"}),
		Origins: security.NewOriginVerifier([]string{testOrigin}),
		CSRF:    ts.csrf,
		Limiter: limiter,
		Metrics: ts.metrics,
		Logger:  logger,
	})
	ts.handler = NewRouter(Routes{
		Middleware: mw,
		Startup:    ts.startup,
		Quota:      NewQuotaHandler(ts.quota, ts.members, time.Second, logger),
		Gallery:    NewGalleryHandler(ts.gallery, logger),
		Admin:      NewAdminHandler(ts.deleter, ts.csrf, logger),
		Metrics:    ts.metrics,
	})
	return ts
}

func mustLimiter(t *testing.T, limit int) *security.SlidingWindowLimiter {
	t.Helper()
	l, err := security.NewSlidingWindowLimiter(limit, time.Minute)
	require.NoError(t, err)
	return l
}

func (ts *testServer) token(t *testing.T, accountID int64, email string) string {
	t.Helper()
	tok, err := ts.tokens.Issue(accountID, email)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, r)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code
}

func TestRespondWithErrorWritesStatusAndBody(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithOutput(&buf, "production", "")
	rec := httptest.NewRecorder()

	respondWithError(rec, logger, http.StatusInternalServerError, CodeInternal, "Internal server error", "", errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, CodeInternal, errorCode(t, rec))
	assert.Contains(t, buf.String(), "Internal server error")
	assert.Contains(t, buf.String(), "boom")
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid", service.ErrInvalidArgument, http.StatusBadRequest, CodeInvalidArgument},
		{"unauthorized", service.ErrUnauthorized, http.StatusUnauthorized, CodeUnauthorized},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, CodeForbidden},
		{"not found", service.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{"quota", &service.QuotaExceededError{Resource: models.ResourceArtwork, Current: 5, Limit: 5}, http.StatusConflict, CodeQuotaExceeded},
		{"rate limited", &service.RateLimitError{RetryAfter: 1500 * time.Millisecond}, http.StatusTooManyRequests, CodeRateLimited},
		{"dependency", &service.DependencyError{Op: "count", Err: errors.New("db")}, http.StatusServiceUnavailable, CodeDependencyFailure},
		{"unknown", errors.New("surprise"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, logging.Discard(), tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	rec := httptest.NewRecorder()
	writeServiceError(rec, logging.Discard(), &service.RateLimitError{RetryAfter: 1500 * time.Millisecond})
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, "GET", "/healthz", "", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ts.startup.CompleteStep("Database connection")
	ts.startup.MarkReady()
	rec = ts.do(t, "GET", "/healthz", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestCheckLimitEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := ts.token(t, 5, "parent@example.com")

	rec := ts.do(t, "GET", "/api/quota/artwork?family_id=12", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, "GET", "/api/quota/artwork?family_id=12", "not-a-jwt", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, "GET", "/api/quota/artwork?family_id=12", tok, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, map[string]interface{}{
		"resource": "artwork", "family_id": float64(12), "allowed": true, "limit": float64(3), "current": float64(1),
	}, got)
	require.NotNil(t, ts.quota.got)
	assert.Equal(t, int64(12), *ts.quota.got)

	rec = ts.do(t, "GET", "/api/quota/stickers", tok, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "GET", "/api/quota/children?family_id=abc", tok, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.members.member = false
	rec = ts.do(t, "GET", "/api/quota/children?family_id=12", tok, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, "GET", "/api/quota/family?family_id=12", tok, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "family checks ignore the scope")

	ts.quota.err = &service.DependencyError{Op: "count", Err: errors.New("db down")}
	rec = ts.do(t, "GET", "/api/quota/family", tok, "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"allowed"`)
}

func TestGalleryEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := ts.token(t, 5, "parent@example.com")

	rec := ts.do(t, "POST", "/api/families", tok, `{"name":"Smiths"}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Smiths"`)

	rec = ts.do(t, "POST", "/api/families", tok, `{"name":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"is required"`)

	rec = ts.do(t, "POST", "/api/families", tok, `{"name":"x","extra":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "POST", "/api/families/7/children", tok, `{"name":"Ann","birth_date":"2019-04-02"}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"birth_date":"2019-04-02T00:00:00Z"`)

	rec = ts.do(t, "POST", "/api/families/7/children", tok, `{"name":"Ann","birth_date":"April"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "POST", "/api/families/zero/artworks", tok, `{"image_key":"k"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "POST", "/api/families/7/artworks", tok, `{"image_key":"k","tags":["sun"]}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, "POST", "/api/families/7/invites", tok, `{"email":"gran@example.com","role":"viewer","ttl_hours":24}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"viewer"`)

	rec = ts.do(t, "POST", "/api/families/7/invites", tok, `{"role":"admin"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "POST", "/api/share-links", tok, `{"resource_type":"collection","resource_id":7}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	ts.gallery.err = &service.QuotaExceededError{Resource: models.ResourceArtwork, Current: 50, Limit: 50}
	rec = ts.do(t, "POST", "/api/families/7/artworks", tok, `{"image_key":"k"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"limit":50`)
}

func adminHeaders(t *testing.T, ts *testServer, tok string) map[string]string {
	t.Helper()
	id, err := ts.tokens.Parse(tok)
	require.NoError(t, err)
	csrf, err := ts.csrf.GenerateToken(id)
	require.NoError(t, err)
	return map[string]string{"Origin": testOrigin, CSRFHeader: csrf}
}

func TestAdminDeleteAccount(t *testing.T) {
	ts := newTestServer(t, nil)
	admin := ts.token(t, 1, "admin@example.com")
	user := ts.token(t, 2, "user@example.com")
	body := `{"target_id":42}`

	rec := ts.do(t, "POST", "/admin/accounts/delete", user, body, adminHeaders(t, ts, user))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	headers := adminHeaders(t, ts, admin)
	rec = ts.do(t, "POST", "/admin/accounts/delete", admin, body, map[string]string{CSRFHeader: headers[CSRFHeader]})
	assert.Equal(t, http.StatusForbidden, rec.Code, "missing origin")

	rec = ts.do(t, "POST", "/admin/accounts/delete", admin, body, map[string]string{"Origin": "https://evil.example.com", CSRFHeader: headers[CSRFHeader]})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, "POST", "/admin/accounts/delete", admin, body, map[string]string{"Origin": testOrigin, CSRFHeader: "forged"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, ts.deleter.targets)

	rec = ts.do(t, "POST", "/admin/accounts/delete", admin, `{"target_id":0}`, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "POST", "/admin/accounts/delete", admin, body, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"run-1"`)
	assert.Equal(t, []int64{42}, ts.deleter.targets)

	ts.deleter.result, ts.deleter.err = nil, service.ErrForbidden
	rec = ts.do(t, "POST", "/admin/accounts/delete", admin, `{"target_id":1}`, headers)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	ts.deleter.result = &service.DeletionResult{RunID: "run-2"}
	ts.deleter.err = &service.StepError{Step: "delete_memberships", Critical: true, Err: errors.New("deadlock")}
	rec = ts.do(t, "POST", "/admin/accounts/delete", admin, body, headers)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "delete_memberships")
	assert.Contains(t, rec.Body.String(), `"run_id":"run-2"`)
}

func TestAdminCSRFAndPreview(t *testing.T) {
	ts := newTestServer(t, nil)
	admin := ts.token(t, 1, "admin@example.com")

	rec := ts.do(t, "GET", "/admin/csrf", admin, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, adminHeaders(t, ts, admin)[CSRFHeader], body["csrf_token"])

	rec = ts.do(t, "GET", "/admin/accounts/42/deletion-preview", admin, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"account_id":42`)

	ts.deleter.err = service.ErrNotFound
	rec = ts.do(t, "GET", "/admin/accounts/42/deletion-preview", admin, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRateLimit(t *testing.T) {
	ts := newTestServer(t, mustLimiter(t, 2))
	admin := ts.token(t, 1, "admin@example.com")

	for i := 0; i < 2; i++ {
		rec := ts.do(t, "GET", "/admin/csrf", admin, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := ts.do(t, "GET", "/admin/csrf", admin, "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.RateLimitedTotal.WithLabelValues("GET /admin/csrf")))

	other := ts.token(t, 3, "admin@example.com")
	rec = ts.do(t, "GET", "/admin/csrf", other, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "limits are per account")
}

func TestRejectedDeletesDoNotSpendRateBudget(t *testing.T) {
	ts := newTestServer(t, mustLimiter(t, 2))
	admin := ts.token(t, 1, "admin@example.com")
	body := `{"target_id":42}`
	headers := adminHeaders(t, ts, admin)

	for i := 0; i < 5; i++ {
		rec := ts.do(t, "POST", "/admin/accounts/delete", admin, body, map[string]string{"Origin": "https://evil.example.com", CSRFHeader: headers[CSRFHeader]})
		require.Equal(t, http.StatusForbidden, rec.Code)
		rec = ts.do(t, "POST", "/admin/accounts/delete", admin, body, map[string]string{"Origin": testOrigin, CSRFHeader: "forged"})
		require.Equal(t, http.StatusForbidden, rec.Code)
	}
	assert.Empty(t, ts.deleter.targets)

	for i := 0; i < 2; i++ {
		rec := ts.do(t, "POST", "/admin/accounts/delete", admin, body, headers)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec := ts.do(t, "POST", "/admin/accounts/delete", admin, body, headers)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAdminRateLimiterFailureRejects(t *testing.T) {
	ts := newTestServer(t, brokenLimiter{})
	admin := ts.token(t, 1, "admin@example.com")

	rec := ts.do(t, "POST", "/admin/accounts/delete", admin, `{"target_id":42}`, adminHeaders(t, ts, admin))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, ts.deleter.targets)
}
