package plan

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"entitlement-service/internal/domain/plan"
	"entitlement-service/internal/pkg/clock"
	"entitlement-service/internal/repository/memory"
	planservice "entitlement-service/internal/service/plan"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	repos := memory.NewStore(false).Repositories()
	svc := planservice.NewPlanService(repos.Plans, clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), zap.NewNop())
	h := NewPlanHandler(svc)

	r := gin.New()
	r.GET("/plans", h.ListPackages)
	r.GET("/plans/:id", h.GetPackage)
	r.POST("/admin/plans", h.CreatePackage)
	return r
}

func send(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPlanEndpoints(t *testing.T) {
	r := newRouter()

	w := send(r, http.MethodPost, "/admin/plans", map[string]any{
		"name": "Enterprise", "price": 99, "currency": "usd",
		"duration": 1, "durationUnit": "years", "tier": "enterprise",
		"ceilings": map[string]any{"maxUsers": "unlimited", "maxReports": 50},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Data plan.Package `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.True(t, created.Data.Ceilings.Users.IsUnlimited())
	assert.Equal(t, plan.Ceiling(50), created.Data.Ceilings.Reports)

	w = send(r, http.MethodPost, "/admin/plans", map[string]any{
		"name": "Enterprise", "price": 10, "currency": "USD", "duration": 1, "durationUnit": "months",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = send(r, http.MethodPost, "/admin/plans", map[string]any{
		"name": "Broken", "currency": "USD", "duration": 1, "durationUnit": "fortnights",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = send(r, http.MethodGet, "/plans/"+created.Data.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = send(r, http.MethodGet, "/plans/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = send(r, http.MethodGet, "/plans?activeOnly=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []plan.Package `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Data, 1)
}
