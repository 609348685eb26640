package app

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"license-service/internal/config"
	"license-service/internal/pkg/jwt"
	"license-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testApp struct {
	server *Server
	token  string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	dir := t.TempDir()
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPath := filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o600))

	cfg := config.AppConfig{
		HTTPAddr:            "127.0.0.1:0",
		AppEnv:              "test",
		StoreDriver:         config.DriverMemory,
		JWT:                 jwt.Config{PubPath: pubPath, Issuer: "license-service", Audience: "license-admin"},
		LedgerLockTimeout:   time.Second,
		LedgerMaxRetries:    2,
		KeygenPrefix:        "TST",
		KeygenMaxAttempts:   5,
		ValidateRateLimit:   1000,
		ExpirySweepInterval: time.Hour,
		ExpiryWarnDays:      7,
	}
	srv, err := NewServer(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	token, _, err := jwt.NewGenerator(key, "license-service", "license-admin", "", time.Hour).
		GenerateAccessToken("ops@example.com", []string{jwt.RoleAdmin}, 0)
	require.NoError(t, err)
	return &testApp{server: srv, token: token}
}

func (a *testApp) call(t *testing.T, method, path string, body interface{}, admin bool) (int, response.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	w := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(w, req)

	var resp response.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w.Code, resp
}

func idOf(t *testing.T, resp response.Response) int64 {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	return int64(data["id"].(float64))
}

func TestEndToEndLicenseFlow(t *testing.T) {
	a := newTestApp(t)

	code, resp := a.call(t, http.MethodPost, "/api/v1/admin/products", gin.H{"name": "Cache Booster", "slug": "cache-booster"}, true)
	require.Equal(t, http.StatusCreated, code)
	productID := idOf(t, resp)

	code, resp = a.call(t, http.MethodPost, "/api/v1/admin/packages", gin.H{
		"product_id": productID, "name": "Duo", "slug": "duo", "price": 99, "currency": "EUR", "domain_limit": 2,
	}, true)
	require.Equal(t, http.StatusCreated, code)
	packageID := idOf(t, resp)

	code, resp = a.call(t, http.MethodPost, "/api/v1/admin/licenses", gin.H{
		"user_id": 5, "product_id": productID, "package_id": packageID,
	}, true)
	require.Equal(t, http.StatusCreated, code)
	licenseID := idOf(t, resp)
	key := resp.Data.(map[string]interface{})["license_key"].(string)
	assert.True(t, strings.HasPrefix(key, "TST-"))

	validate := func(domain string) (int, response.Response) {
		return a.call(t, http.MethodPost, "/api/v1/licenses/validate", gin.H{"license_key": key, "domain": domain}, false)
	}

	code, _ = validate("one.example.com")
	assert.Equal(t, http.StatusOK, code)
	code, _ = validate("two.example.com")
	assert.Equal(t, http.StatusOK, code)
	code, _ = validate("ONE.example.com.")
	assert.Equal(t, http.StatusOK, code)
	code, resp = validate("three.example.com")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "domain_limit_reached", resp.Code)

	code, _ = a.call(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/licenses/%d/suspend", licenseID), nil, true)
	require.Equal(t, http.StatusOK, code)
	code, resp = validate("one.example.com")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "inactive", resp.Code)

	code, _ = a.call(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/licenses/%d/activate", licenseID), nil, true)
	require.Equal(t, http.StatusOK, code)

	code, _ = a.call(t, http.MethodPost, "/api/v1/licenses/deactivate", gin.H{"license_key": key, "domain": "two.example.com"}, false)
	assert.Equal(t, http.StatusOK, code)
	code, _ = validate("three.example.com")
	assert.Equal(t, http.StatusOK, code)

	code, resp = a.call(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/licenses/%d", licenseID), nil, true)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, resp.Data.(map[string]interface{})["used"])
}

func TestAdminRoutesNeedToken(t *testing.T) {
	a := newTestApp(t)
	code, _ := a.call(t, http.MethodGet, "/api/v1/admin/licenses", nil, false)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.call(t, http.MethodGet, "/api/v1/admin/licenses", nil, true)
	assert.Equal(t, http.StatusOK, code)
}

func TestOpsEndpoints(t *testing.T) {
	a := newTestApp(t)

	w := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"memory"`)

	a.call(t, http.MethodPost, "/api/v1/licenses/validate", gin.H{"license_key": "NOPE-0000", "domain": "example.com"}, false)

	w = httptest.NewRecorder()
	a.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")
}

func TestNewServerRejectsBadConfig(t *testing.T) {
	_, err := NewServer(context.Background(), config.AppConfig{StoreDriver: "sqlite"}, zap.NewNop())
	assert.Error(t, err)
}

func TestLogoutRevokesToken(t *testing.T) {
	a := newTestApp(t)

	code, resp := a.call(t, http.MethodPost, "/api/v1/admin/tokens/revoke", gin.H{
		"jti": "someone-else", "expires_at": time.Now().Add(time.Hour),
	}, true)
	assert.Equal(t, http.StatusForbidden, code, resp.Message)

	code, resp = a.call(t, http.MethodPost, "/api/v1/admin/session/logout", nil, true)
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = a.call(t, http.MethodGet, "/api/v1/admin/licenses", nil, true)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "token has been revoked", resp.Message)
}
