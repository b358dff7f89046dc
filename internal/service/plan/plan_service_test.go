package plan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"entitlement-service/internal/domain/plan"
	"entitlement-service/internal/pkg/clock"
	xerrors "entitlement-service/internal/pkg/errors"
	"entitlement-service/internal/repository/memory"
)

func newService() *PlanService {
	repos := memory.NewStore(false).Repositories()
	return NewPlanService(repos.Plans, clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), zap.NewNop())
}

func TestCreatePackage(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	pkg, err := svc.CreatePackage(ctx, &plan.CreatePackageRequest{
		Name:         " Premium ",
		Price:        20,
		Currency:     "usd",
		Duration:     1,
		DurationUnit: plan.DurationMonths,
		Ceilings:     plan.Ceilings{Users: 5, Following: plan.Unlimited},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pkg.ID)
	assert.Equal(t, "Premium", pkg.Name)
	assert.Equal(t, "USD", pkg.Currency)
	assert.True(t, pkg.IsActive)

	got, err := svc.GetPackage(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, pkg.Name, got.Name)

	_, err = svc.CreatePackage(ctx, &plan.CreatePackageRequest{
		Name: "Premium", Currency: "USD", Duration: 1, DurationUnit: plan.DurationMonths,
	})
	assert.ErrorIs(t, err, xerrors.ErrConflict)
}

func TestCreatePackageValidates(t *testing.T) {
	svc := newService()
	_, err := svc.CreatePackage(context.Background(), &plan.CreatePackageRequest{
		Name: "Broken", Currency: "USD", Duration: 1, DurationUnit: "fortnights",
	})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestListPackagesActiveOnly(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	inactive := false
	_, err := svc.CreatePackage(ctx, &plan.CreatePackageRequest{Name: "Old", Currency: "USD", Duration: 1, DurationUnit: plan.DurationYears, IsActive: &inactive})
	require.NoError(t, err)
	_, err = svc.CreatePackage(ctx, &plan.CreatePackageRequest{Name: "New", Currency: "USD", Duration: 1, DurationUnit: plan.DurationYears})
	require.NoError(t, err)

	active, err := svc.ListPackages(ctx, plan.PackageListFilters{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "New", active[0].Name)
}
