package botgate

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/botgate/internal/config"
	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/services/session"
	"github.com/magabrotheeeer/botgate/internal/storage"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	count int
}

func (f *fakeDispatcher) Submit(context.Context, []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return nil
}

type fakeResolver map[string]*session.AuthContext

func (f fakeResolver) ResolveCredential(_ context.Context, credential string) (*session.AuthContext, error) {
	if ac, ok := f[credential]; ok {
		return ac, nil
	}
	return nil, session.Unauthenticated(session.ReasonSignatureInvalid)
}

type fakeRotator struct {
	rotated []string
}

func (f *fakeRotator) Rotate(_ context.Context, identityID string) error {
	f.rotated = append(f.rotated, identityID)
	return nil
}

type fakeCatalog struct{}

func (fakeCatalog) GetTier(context.Context, string) (*models.Tier, error) {
	return nil, storage.ErrTierNotFound
}

func (fakeCatalog) GetSubscription(context.Context, string, string) (*models.Subscription, error) {
	return nil, storage.ErrSubscriptionNotFound
}

func (fakeCatalog) ListSubscriptions(context.Context, string) ([]*models.Subscription, error) {
	return nil, nil
}

type fakeTokens struct{}

func (fakeTokens) Redeem(context.Context, string) (*models.Identity, error) {
	return nil, storage.ErrTokenNotFound
}

type fakeSessions struct{}

func (fakeSessions) Issue(*models.Identity) (string, time.Time, error) {
	return "cred", time.Now().Add(time.Hour), nil
}

func newTestRouter(t *testing.T, tune ...func(*config.Config)) (http.Handler, *fakeDispatcher, *fakeRotator) {
	t.Helper()

	cfg := &config.Config{}
	cfg.CookieName = "botgate_session"
	cfg.LoginPath = "/login"
	cfg.DefaultPath = "/"
	cfg.Webhook.Secret = "hook"
	cfg.MaxBodyBytes = 1024
	cfg.RateLimit = 1000
	cfg.RateBurst = 1000
	for _, f := range tune {
		f(cfg)
	}

	d := &fakeDispatcher{}
	rot := &fakeRotator{}
	r := chi.NewRouter()
	RegisterRoutes(r, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), Deps{
		Dispatcher: d,
		Tokens:     fakeTokens{},
		Sessions:   fakeSessions{},
		Resolver: fakeResolver{
			"user-cred":  {IdentityID: "id-user", Role: models.RoleUser},
			"admin-cred": {IdentityID: "id-admin", Role: models.RoleStaffAdmin},
		},
		Rotator: rot,
		Catalog: fakeCatalog{},
		Metrics: http.NotFoundHandler(),
	})
	return r, d, rot
}

func TestRoutes_WebhookAlwaysAcks(t *testing.T) {
	h, d, _ := newTestRouter(t)

	for _, path := range []string{"/webhook/hook", "/webhook/wrong"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"update_id":1}`)))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `{"ok":true}`, rec.Body.String(), path)
	}
	assert.Equal(t, 1, d.count)
}

func TestRoutes_APIRequiresSession(t *testing.T) {
	h, _, _ := newTestRouter(t)

	tests := []struct {
		name       string
		auth       string
		wantStatus int
		wantBody   string
	}{
		{name: "no credential", wantStatus: http.StatusUnauthorized, wantBody: `"reason":"auth_required"`},
		{name: "bad credential", auth: "Bearer forged", wantStatus: http.StatusUnauthorized, wantBody: `"reason":"signature_invalid"`},
		{name: "valid bearer", auth: "Bearer user-cred", wantStatus: http.StatusOK, wantBody: `"identity_id":"id-user"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestRoutes_AdminRevokeRequiresStaff(t *testing.T) {
	h, _, rot := newTestRouter(t)
	target := "0b8f5a0e-3d2c-4a55-9a43-6f5f4c1f2a11"
	path := "/api/v1/admin/identities/" + target + "/revoke"

	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.AddCookie(&http.Cookie{Name: "botgate_session", Value: "user-cred"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rot.rotated)

	req = httptest.NewRequest(http.MethodPost, path, nil)
	req.AddCookie(&http.Cookie{Name: "botgate_session", Value: "admin-cred"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{target}, rot.rotated)
}

func TestRoutes_CallbackFailureRedirectsToLogin(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?token=abc", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?reason=link_invalid", rec.Header().Get("Location"))
}

func TestRoutes_RateLimitKeysOnConnection(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		wantSecond int
	}{
		{name: "forwarded header ignored without proxy", wantSecond: http.StatusTooManyRequests},
		{name: "forwarded header used behind proxy", trustProxy: true, wantSecond: http.StatusFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newTestRouter(t, func(cfg *config.Config) {
				cfg.RateLimit = 0.001
				cfg.RateBurst = 1
				cfg.TrustProxy = tt.trustProxy
			})

			codes := make([]int, 0, 2)
			for _, forwarded := range []string{"203.0.113.1", "203.0.113.2"} {
				req := httptest.NewRequest(http.MethodGet, "/auth/callback?token=abc", nil)
				req.RemoteAddr = "192.0.2.10:4000"
				req.Header.Set("X-Forwarded-For", forwarded)
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)
				codes = append(codes, rec.Code)
			}
			assert.Equal(t, http.StatusFound, codes[0])
			assert.Equal(t, tt.wantSecond, codes[1])
		})
	}
}
