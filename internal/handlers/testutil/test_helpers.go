package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/bloggers/internal/api"
	"github.com/charlesng35/bloggers/internal/app"
	iauth "github.com/charlesng35/bloggers/internal/auth"
	"github.com/charlesng35/bloggers/internal/auth/providers"
	sharedtestutil "github.com/charlesng35/bloggers/internal/database/testutil"
	"github.com/charlesng35/bloggers/internal/directory"
	"github.com/charlesng35/bloggers/internal/middleware"
	"github.com/charlesng35/bloggers/internal/services"
	"github.com/charlesng35/bloggers/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T         *testing.T
	DB        *gorm.DB
	Directory *directory.GormDirectory
	Gateway   *CaptureGateway
	Router    *gin.Engine
	JWT       *iauth.JWTService
	Config    *app.Config
}

// EnvOption adjusts the configuration before the router is built.
type EnvOption func(*app.Config)

// WithRateLimit overrides the auth endpoint rate limit.
func WithRateLimit(requests int, window time.Duration) EnvOption {
	return func(cfg *app.Config) {
		cfg.Server.RateLimit = app.RateLimitConfig{Requests: requests, Window: window}
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	dir, err := directory.NewGormDirectory(db)
	require.NoError(t, err)

	cfg := &app.Config{
		Server: app.ServerConfig{
			RateLimit: app.RateLimitConfig{Requests: 1000, Window: time.Minute},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	gateway := NewCaptureGateway()
	registration, err := services.NewRegistrationService(dir, gateway,
		services.WithDispatchTimeout(time.Second),
		services.WithCompensationBackoff(time.Millisecond),
	)
	require.NoError(t, err)

	local, err := providers.NewLocalProvider(dir, providers.LocalConfig{})
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		Registrar:     registration,
		Authenticator: local,
		JWT:           jwtSvc,
		Users:         dir,
		RateStore:     middleware.NewMemoryRateStore(),
	}, cfg)
	require.NoError(t, err)

	return &Env{
		T:         t,
		DB:        db,
		Directory: dir,
		Gateway:   gateway,
		Router:    router,
		JWT:       jwtSvc,
		Config:    cfg,
	}
}

// Register submits a registration and returns the confirmation code that was emailed.
func (e *Env) Register(login, email, password string) string {
	e.T.Helper()

	payload := map[string]string{
		"login":    login,
		"email":    email,
		"password": password,
	}
	w := e.Request(http.MethodPost, "/api/auth/registration", payload, "")
	require.Equal(e.T, http.StatusNoContent, w.Code, w.Body.String())

	code, ok := e.Gateway.LastCode(email)
	require.True(e.T, ok, "no confirmation code delivered to %s", email)
	return code
}

// Confirm redeems a confirmation code and expects success.
func (e *Env) Confirm(code string) {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/registration-confirmation", map[string]string{"code": code}, "")
	require.Equal(e.T, http.StatusNoContent, w.Code, w.Body.String())
}

// TokenPayload mirrors the handler login response payload.
type TokenPayload struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Login authenticates and returns the issued token.
func (e *Env) Login(loginOrEmail, password string) TokenPayload {
	e.T.Helper()

	payload := map[string]string{
		"loginOrEmail": loginOrEmail,
		"password":     password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result TokenPayload
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.Equal(e.T, "Bearer", result.TokenType)
	require.Greater(e.T, result.ExpiresIn, 0)

	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// CaptureGateway records delivered confirmation codes instead of sending email.
type CaptureGateway struct {
	mu      sync.Mutex
	codes   map[string][]string
	refuse  bool
	failure error
}

func NewCaptureGateway() *CaptureGateway {
	return &CaptureGateway{codes: make(map[string][]string)}
}

// Refuse makes subsequent deliveries report an undeliverable recipient.
func (g *CaptureGateway) Refuse(refuse bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refuse = refuse
}

// Fail makes subsequent deliveries return err.
func (g *CaptureGateway) Fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failure = err
}

// LastCode returns the most recent code delivered to email.
func (g *CaptureGateway) LastCode(email string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	codes := g.codes[strings.ToLower(email)]
	if len(codes) == 0 {
		return "", false
	}
	return codes[len(codes)-1], true
}

// Deliveries returns how many codes reached email.
func (g *CaptureGateway) Deliveries(email string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.codes[strings.ToLower(email)])
}

func (g *CaptureGateway) SendConfirmationCode(ctx context.Context, email, code string) (bool, error) {
	return g.deliver(ctx, email, code)
}

func (g *CaptureGateway) ResendConfirmationCode(ctx context.Context, email, code string) (bool, error) {
	return g.deliver(ctx, email, code)
}

func (g *CaptureGateway) deliver(ctx context.Context, email, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failure != nil {
		return false, g.failure
	}
	if g.refuse {
		return false, nil
	}
	key := strings.ToLower(email)
	g.codes[key] = append(g.codes[key], code)
	return true, nil
}
