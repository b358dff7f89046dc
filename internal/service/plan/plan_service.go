// internal/service/plan/plan_service.go
package plan

import (
	"context"
	"fmt"
	"strings"

	"entitlement-service/internal/domain/plan"
	"entitlement-service/internal/pkg/clock"
	"entitlement-service/internal/repository"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type PlanService struct {
	planRepo repository.PlanRepository
	clock    clock.Clock
	logger   *zap.Logger
}

func NewPlanService(planRepo repository.PlanRepository, clk clock.Clock, logger *zap.Logger) *PlanService {
	return &PlanService{
		planRepo: planRepo,
		clock:    clk,
		logger:   logger,
	}
}

// CreatePackage validates and stores a new package. Packages are active
// unless the request says otherwise.
func (s *PlanService) CreatePackage(ctx context.Context, req *plan.CreatePackageRequest) (*plan.Package, error) {
	now := s.clock.Now()
	pkg := &plan.Package{
		ID:                   ulid.Make().String(),
		Name:                 strings.TrimSpace(req.Name),
		Description:          req.Description,
		Price:                req.Price,
		Currency:             strings.ToUpper(req.Currency),
		Discount:             req.Discount,
		Duration:             req.Duration,
		DurationUnit:         req.DurationUnit,
		Tier:                 req.Tier,
		Ceilings:             req.Ceilings,
		IsFree:               req.IsFree,
		IsPopular:            req.IsPopular,
		IsActive:             true,
		MaxFreeTrialDuration: req.MaxFreeTrialDuration,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if req.IsActive != nil {
		pkg.IsActive = *req.IsActive
	}

	if err := pkg.Validate(); err != nil {
		return nil, err
	}

	if err := s.planRepo.Create(ctx, pkg); err != nil {
		s.logger.Error("failed to create package", zap.String("name", pkg.Name), zap.Error(err))
		return nil, err
	}

	s.logger.Info("package created",
		zap.String("package_id", pkg.ID),
		zap.String("name", pkg.Name),
		zap.String("tier", string(pkg.ResolveTier())),
	)

	return pkg, nil
}

// GetPackage retrieves a package by ID
func (s *PlanService) GetPackage(ctx context.Context, id string) (*plan.Package, error) {
	return s.planRepo.FindByID(ctx, id)
}

// ListPackages retrieves packages ordered by price
func (s *PlanService) ListPackages(ctx context.Context, filters plan.PackageListFilters) ([]plan.Package, error) {
	packages, err := s.planRepo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	return packages, nil
}
