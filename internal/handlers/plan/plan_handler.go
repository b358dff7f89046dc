// internal/handlers/plan/plan_handler.go
package plan

import (
	"context"
	"net/http"

	"entitlement-service/internal/domain/plan"
	"entitlement-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type Catalog interface {
	CreatePackage(ctx context.Context, req *plan.CreatePackageRequest) (*plan.Package, error)
	GetPackage(ctx context.Context, id string) (*plan.Package, error)
	ListPackages(ctx context.Context, filters plan.PackageListFilters) ([]plan.Package, error)
}

type PlanHandler struct {
	catalog Catalog
}

func NewPlanHandler(catalog Catalog) *PlanHandler {
	return &PlanHandler{catalog: catalog}
}

// ListPackages lists packages; activeOnly=true hides retired ones
func (h *PlanHandler) ListPackages(c *gin.Context) {
	var filters plan.PackageListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	packages, err := h.catalog.ListPackages(c.Request.Context(), filters)
	if err != nil {
		response.FromError(c, "failed to list packages", err)
		return
	}

	response.Success(c, http.StatusOK, "packages retrieved", packages)
}

// GetPackage retrieves a package by ID
func (h *PlanHandler) GetPackage(c *gin.Context) {
	p, err := h.catalog.GetPackage(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "package not found", err)
		return
	}

	response.Success(c, http.StatusOK, "package retrieved", p)
}

// ========== Admin Operations ==========

// CreatePackage adds a package to the catalog
func (h *PlanHandler) CreatePackage(c *gin.Context) {
	var req plan.CreatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	p, err := h.catalog.CreatePackage(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, "failed to create package", err)
		return
	}

	response.Success(c, http.StatusCreated, "package created successfully", p)
}
