package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/bloggers/internal/app"
	iauth "github.com/charlesng35/bloggers/internal/auth"
	"github.com/charlesng35/bloggers/internal/auth/providers"
	testutil "github.com/charlesng35/bloggers/internal/database/testutil"
	"github.com/charlesng35/bloggers/internal/directory"
	"github.com/charlesng35/bloggers/internal/handlers"
	"github.com/charlesng35/bloggers/internal/middleware"
	"github.com/charlesng35/bloggers/internal/notify"
	"github.com/charlesng35/bloggers/internal/services"
)

func newTestRouter(t *testing.T, checks ...handlers.HealthCheck) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	dir, err := directory.NewGormDirectory(db)
	require.NoError(t, err)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "test", AccessTokenTTL: 15 * time.Minute})
	require.NoError(t, err)

	registration, err := services.NewRegistrationService(dir, notify.NewLogGateway(zap.NewNop()))
	require.NoError(t, err)
	local, err := providers.NewLocalProvider(dir, providers.LocalConfig{})
	require.NoError(t, err)

	cfg := &app.Config{Server: app.ServerConfig{RateLimit: app.RateLimitConfig{Requests: 5, Window: 10 * time.Second}}}
	router, err := NewRouter(Dependencies{
		Registrar:     registration,
		Authenticator: local,
		JWT:           jwtSvc,
		Users:         dir,
		RateStore:     middleware.NewMemoryRateStore(),
		HealthChecks:  checks,
	}, cfg)
	require.NoError(t, err)
	return router
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	router := newTestRouter(t)

	// Health should be public
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for /health, got %d", w.Code)
	}

	// Protected endpoint without auth should be 401
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/auth/me", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for /api/auth/me without token, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/posts", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown route, got %d", w.Code)
	}
}

func TestRouter_AuthEndpointsAreRateLimited(t *testing.T) {
	router := newTestRouter(t)

	body := `{"loginOrEmail":"nobody","password":"wrong-pass"}`
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after five attempts, got %d", w.Code)
	}
}

func TestRouter_HealthReportsFailingChecks(t *testing.T) {
	router := newTestRouter(t, handlers.HealthCheck{
		Name:  "database",
		Probe: func(context.Context) error { return errors.New("down") },
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), `"database":"down"`)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	// Trigger a request to generate metrics
	rec := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for /health, got %d", rec.Code)
	}

	metricsRec := httptest.NewRecorder()
	metricsReq, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(metricsRec, metricsReq)
	if metricsRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for /metrics, got %d", metricsRec.Code)
	}

	body := metricsRec.Body.String()
	if !strings.Contains(body, `bloggers_api_latency_seconds_count{method="GET",path="/health",status="200"}`) {
		t.Fatalf("metrics output missing latency series: %s", body)
	}
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := NewRouter(Dependencies{}, &app.Config{})
	require.Error(t, err)
}
