package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"license-service/internal/domain/catalog"
	"license-service/internal/domain/license"
	"license-service/internal/pkg/keygen"
	"license-service/internal/pkg/response"
	"license-service/internal/repository/memory"
	catalogsvc "license-service/internal/service/catalog"
	"license-service/internal/service/ledger"
	service "license-service/internal/service/license"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	router *gin.Engine
	store  *memory.Store
	ledger *ledger.Ledger
	pkg    *catalog.Package
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	logger := zap.NewNop()
	store := memory.NewStore(memory.Options{})

	product := &catalog.Product{Name: "Gallery", Slug: "gallery", Status: catalog.StatusActive}
	require.NoError(t, store.CreateProduct(ctx, product))
	limit := 2
	pkg := &catalog.Package{ProductID: product.ID, Name: "Business", Slug: "business", Currency: "USD", DomainLimit: &limit, Status: catalog.StatusActive}
	require.NoError(t, store.CreatePackage(ctx, pkg))

	l := ledger.NewLedger(store, nil, nil, logger, ledger.Config{})
	svc := service.NewLicenseService(store, catalogsvc.NewCatalogService(store, logger), keygen.New("GAL"), l, nil, nil, logger, service.Config{})
	h := NewLicenseHandler(svc, l, logger)

	r := gin.New()
	g := r.Group("/licenses")
	g.POST("", h.IssueLicense)
	g.GET("", h.ListLicenses)
	g.GET("/expiring", h.ListExpiring)
	g.GET("/key/:key", h.GetLicenseByKey)
	g.GET("/:id", h.GetLicense)
	g.DELETE("/:id", h.DeleteLicense)
	g.POST("/:id/suspend", h.SuspendLicense)
	g.POST("/:id/activate", h.ActivateLicense)
	g.POST("/:id/cancel", h.CancelLicense)
	g.POST("/:id/expire", h.ExpireLicense)
	g.POST("/:id/renew", h.RenewLicense)
	g.PUT("/:id/domain-limit", h.SetDomainLimit)
	g.GET("/:id/activations", h.ListActivations)
	g.DELETE("/:id/activations/:activation_id", h.RemoveActivation)

	return &harness{router: r, store: store, ledger: l, pkg: pkg}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	h.router.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, _ := resp.Data.(map[string]interface{})
	return w.Code, data
}

func (h *harness) issue(t *testing.T) (int64, string) {
	t.Helper()
	code, data := h.do(t, http.MethodPost, "/licenses", gin.H{
		"user_id": 42, "product_id": h.pkg.ProductID, "package_id": h.pkg.ID,
	})
	require.Equal(t, http.StatusCreated, code)
	return int64(data["id"].(float64)), data["license_key"].(string)
}

func TestIssueAndFetch(t *testing.T) {
	h := newHarness(t)
	id, key := h.issue(t)
	assert.True(t, keygen.Valid(key))

	code, data := h.do(t, http.MethodGet, fmt.Sprintf("/licenses/%d", id), nil)
	require.Equal(t, http.StatusOK, code)
	lic := data["license"].(map[string]interface{})
	assert.EqualValues(t, 2, lic["domain_limit"])
	assert.EqualValues(t, 2, data["remaining"])

	code, _ = h.do(t, http.MethodGet, "/licenses/key/"+key, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = h.do(t, http.MethodGet, "/licenses/999", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = h.do(t, http.MethodGet, "/licenses/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(t, http.MethodPost, "/licenses", gin.H{"user_id": 1, "product_id": h.pkg.ProductID, "package_id": 999})
	assert.Equal(t, http.StatusNotFound, code)

	code, data = h.do(t, http.MethodGet, "/licenses?user_id=42&status=active", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, data["total"])
}

func TestTransitions(t *testing.T) {
	h := newHarness(t)
	id, _ := h.issue(t)
	base := fmt.Sprintf("/licenses/%d", id)

	code, data := h.do(t, http.MethodPost, base+"/suspend", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(license.StatusSuspended), data["status"])

	// suspending twice is a no-op
	code, _ = h.do(t, http.MethodPost, base+"/suspend", nil)
	assert.Equal(t, http.StatusOK, code)

	// a limit change leaves the suspension alone
	code, data = h.do(t, http.MethodPut, base+"/domain-limit", gin.H{"domain_limit": 3})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(license.StatusSuspended), data["status"])
	stored, err := h.store.FindLicenseByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, license.StatusSuspended, stored.Status)

	code, data = h.do(t, http.MethodPost, base+"/activate", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(license.StatusActive), data["status"])

	code, _ = h.do(t, http.MethodPost, base+"/expire", nil)
	require.Equal(t, http.StatusOK, code)

	until := time.Now().Add(30 * 24 * time.Hour).UTC()
	code, data = h.do(t, http.MethodPost, base+"/renew", gin.H{"expires_at": until})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(license.StatusActive), data["status"])

	code, data = h.do(t, http.MethodPut, base+"/domain-limit", gin.H{"domain_limit": 5})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 5, data["domain_limit"])

	code, _ = h.do(t, http.MethodPut, base+"/domain-limit", gin.H{"domain_limit": 0})
	assert.Equal(t, http.StatusBadRequest, code)

	code, data = h.do(t, http.MethodGet, "/licenses/expiring?days=31", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, data["count"])

	code, _ = h.do(t, http.MethodGet, "/licenses/expiring?days=0", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(t, http.MethodPost, base+"/cancel", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = h.do(t, http.MethodPost, base+"/suspend", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestActivationsAdmin(t *testing.T) {
	h := newHarness(t)
	id, _ := h.issue(t)
	ctx := context.Background()

	lic, err := h.store.FindLicenseByID(ctx, id)
	require.NoError(t, err)
	out, err := h.ledger.TryActivate(ctx, lic, "a.example.com", "", "")
	require.NoError(t, err)
	_, err = h.ledger.TryActivate(ctx, lic, "b.example.com", "", "")
	require.NoError(t, err)

	base := fmt.Sprintf("/licenses/%d/activations", id)
	code, data := h.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, data["count"])

	code, _ = h.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, out.Activation.ID), nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = h.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, out.Activation.ID), nil)
	assert.Equal(t, http.StatusNotFound, code)

	// the freed slot is usable again
	_, err = h.ledger.TryActivate(ctx, lic, "c.example.com", "", "")
	assert.NoError(t, err)

	code, _ = h.do(t, http.MethodDelete, fmt.Sprintf("/licenses/%d", id), nil)
	require.Equal(t, http.StatusOK, code)
	n, err := h.store.CountByLicense(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, n)
}
