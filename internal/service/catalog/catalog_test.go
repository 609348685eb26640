package catalog

import (
	"context"
	"testing"

	"license-service/internal/domain/catalog"
	xerrors "license-service/internal/pkg/errors"
	"license-service/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func intPtr(v int) *int { return &v }

func TestProductAndPackageLifecycle(t *testing.T) {
	svc := NewCatalogService(memory.NewStore(memory.Options{}), zap.NewNop())
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, &catalog.CreateProductRequest{Name: " Backup Pro ", Slug: "Backup-Pro", DomainLimit: intPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, "Backup Pro", p.Name)
	assert.Equal(t, "backup-pro", p.Slug)

	_, err = svc.CreateProduct(ctx, &catalog.CreateProductRequest{Name: "Dup", Slug: "backup-pro"})
	assert.ErrorIs(t, err, xerrors.ErrConflict)

	pkg, err := svc.CreatePackage(ctx, &catalog.CreatePackageRequest{ProductID: p.ID, Name: "Single", Slug: "single", Currency: "usd", Price: 49})
	require.NoError(t, err)
	assert.Equal(t, "USD", pkg.Currency)
	assert.Nil(t, pkg.DomainLimit)

	_, err = svc.CreatePackage(ctx, &catalog.CreatePackageRequest{ProductID: 999, Name: "x", Slug: "x", Currency: "USD"})
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	pkg, err = svc.UpdatePackageLimit(ctx, pkg.ID, intPtr(1))
	require.NoError(t, err)
	assert.Equal(t, 1, *pkg.DomainLimit)

	_, err = svc.UpdatePackageLimit(ctx, pkg.ID, intPtr(0))
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	pkgs, err := svc.ListPackages(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, pkgs, 1)
}

func TestResolveForIssue(t *testing.T) {
	svc := NewCatalogService(memory.NewStore(memory.Options{}), zap.NewNop())
	ctx := context.Background()

	a, err := svc.CreateProduct(ctx, &catalog.CreateProductRequest{Name: "A", Slug: "a"})
	require.NoError(t, err)
	b, err := svc.CreateProduct(ctx, &catalog.CreateProductRequest{Name: "B", Slug: "b"})
	require.NoError(t, err)
	pkg, err := svc.CreatePackage(ctx, &catalog.CreatePackageRequest{ProductID: a.ID, Name: "P", Slug: "p", Currency: "USD"})
	require.NoError(t, err)

	_, _, err = svc.ResolveForIssue(ctx, a.ID, pkg.ID)
	require.NoError(t, err)

	_, _, err = svc.ResolveForIssue(ctx, b.ID, pkg.ID)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	require.NoError(t, svc.SetPackageStatus(ctx, pkg.ID, catalog.StatusInactive))
	_, _, err = svc.ResolveForIssue(ctx, a.ID, pkg.ID)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, _, err = svc.ResolveForIssue(ctx, a.ID, 12345)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}
