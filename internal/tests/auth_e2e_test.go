package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kidlearn/server/internal/auth"
	httphandler "github.com/kidlearn/server/internal/http"
	"github.com/kidlearn/server/internal/http/handlers"
	"github.com/kidlearn/server/internal/repo"
	"github.com/kidlearn/server/internal/trial"
)

const testSecret = "test-jwt-secret-at-least-32-characters-long"

type e2eServer struct {
	*httptest.Server
	mailer *CaptureMailer
	auth   *auth.AuthService
}

func newE2EServer(t *testing.T) *e2eServer {
	t.Helper()
	database := OpenTestDB(t)

	accounts := repo.NewAccountRepo(database)
	mailer := NewCaptureMailer()
	otpEngine := auth.NewOtpEngine(repo.NewOtpRepo(database), mailer, "test-salt", nil)
	jwtService := auth.NewJWTService(testSecret, "", 0, 0)
	authService := auth.NewAuthService(accounts, otpEngine, jwtService, auth.NewBcryptHasher(bcrypt.MinCost), nil, auth.Options{})

	router := httphandler.NewRouter(httphandler.RouterDeps{
		AuthHandler:     handlers.NewAuthHandler(authService, nil),
		AdminHandler:    handlers.NewAdminHandler(trial.NewEngine(accounts, nil, nil), authService, nil),
		JWTService:      jwtService,
		DefaultLanguage: "vi",
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &e2eServer{Server: server, mailer: mailer, auth: authService}
}

func (s *e2eServer) post(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	return s.send(t, http.MethodPost, path, "", body)
}

func (s *e2eServer) send(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(method, s.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestAuthE2E(t *testing.T) {
	s := newE2EServer(t)
	const addr = "parent@example.com"

	status, body := s.post(t, "/api/auth/register", map[string]string{"name": "Lan", "email": addr, "password": "secret1"})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = s.post(t, "/api/auth/login", map[string]string{"email": addr, "password": "secret1"})
	require.Equal(t, http.StatusOK, status, body)

	status, _ = s.post(t, "/api/auth/forgot-password", map[string]string{"email": addr})
	require.Equal(t, http.StatusOK, status)
	code := s.mailer.Code(addr)
	require.Len(t, code, 6)

	status, _ = s.post(t, "/api/auth/verify-otp", map[string]string{"email": addr, "otp": code})
	assert.Equal(t, http.StatusOK, status)

	status, body = s.post(t, "/api/auth/reset-password", map[string]string{"email": addr, "otp": code, "newPassword": "brand-new"})
	require.Equal(t, http.StatusOK, status, body)

	status, body = s.post(t, "/api/auth/reset-password", map[string]string{"email": addr, "otp": code, "newPassword": "third-one"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["error"])

	status, _ = s.post(t, "/api/auth/login", map[string]string{"email": addr, "password": "brand-new"})
	assert.Equal(t, http.StatusOK, status)
}

func TestAdminLocksAccountE2E(t *testing.T) {
	s := newE2EServer(t)
	ctx := context.Background()

	created, err := s.auth.EnsureAdmin(ctx, "Root", "root@example.com", "secret1")
	require.NoError(t, err)
	require.True(t, created)

	status, body := s.post(t, "/api/auth/login", map[string]string{"email": "root@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, status, body)
	adminToken := body["data"].(map[string]any)["token"].(string)

	status, body = s.send(t, http.MethodPost, "/api/admin/users", adminToken, map[string]any{
		"name": "Lan", "email": "lan@example.com", "password": "secret1", "role": "parent",
		"profile": map[string]any{"gender": "female", "dateOfBirth": "1990-01-02"},
	})
	require.Equal(t, http.StatusCreated, status, body)
	user := body["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "1990-01-02", user["profile"].(map[string]any)["dateOfBirth"])
	userPath := "/api/admin/users/" + user["id"].(string)

	status, body = s.send(t, http.MethodPut, userPath, adminToken, map[string]any{"isActive": false})
	require.Equal(t, http.StatusOK, status, body)

	status, body = s.post(t, "/api/auth/login", map[string]string{"email": "lan@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "account_locked", body["error"])
}
