package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "license-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{xerrors.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", xerrors.ErrInvalidDomain), http.StatusUnprocessableEntity},
		{xerrors.ErrInvalidKey, http.StatusBadRequest},
		{&xerrors.DomainLimitReachedError{Limit: 2, Used: 2}, http.StatusConflict},
		{xerrors.ErrLicenseInactive, http.StatusForbidden},
		{xerrors.ErrConcurrencyConflict, http.StatusServiceUnavailable},
		{xerrors.ErrInvalidTransition, http.StatusUnprocessableEntity},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestFromErrorHidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	FromError(c, "failed", fmt.Errorf("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, xerrors.ErrInternal.Error(), body.Error)
	assert.True(t, c.IsAborted())
}

func TestFailCarriesCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Fail(c, http.StatusConflict, "domain_limit_reached", "refused", map[string]int{"limit": 2})

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "domain_limit_reached", body.Code)
	assert.Equal(t, http.StatusConflict, w.Code)
}
