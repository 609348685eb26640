package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"license-service/internal/domain/catalog"
	"license-service/internal/domain/license"
	xerrors "license-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func seedLicense(t *testing.T, s *Store, key string, limit *int) *license.License {
	t.Helper()
	l := &license.License{
		UserID:      1,
		ProductID:   1,
		PackageID:   1,
		LicenseKey:  key,
		Status:      license.StatusActive,
		DomainLimit: limit,
	}
	require.NoError(t, s.CreateLicense(context.Background(), l))
	return l
}

func activate(s *Store, l *license.License, domain string) (*license.ActivationOutcome, error) {
	return s.ActivateIfUnderLimit(context.Background(), license.ActivateIfUnderLimit{
		LicenseID: l.ID,
		Domain:    domain,
		At:        time.Now(),
	})
}

func TestCreateLicenseRejectsDuplicateKey(t *testing.T) {
	s := NewStore(Options{})
	seedLicense(t, s, "AAAA-BBBB", nil)

	err := s.CreateLicense(context.Background(), &license.License{LicenseKey: "AAAA-BBBB", Status: license.StatusActive})
	assert.ErrorIs(t, err, xerrors.ErrDuplicateEntry)
}

func TestFindLicenseReturnsCopy(t *testing.T) {
	s := NewStore(Options{})
	l := seedLicense(t, s, "AAAA-BBBB", intPtr(2))

	got, err := s.FindLicenseByKey(context.Background(), "AAAA-BBBB")
	require.NoError(t, err)
	*got.DomainLimit = 99
	got.Status = license.StatusCancelled

	again, err := s.FindLicenseByID(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, *again.DomainLimit)
	assert.Equal(t, license.StatusActive, again.Status)

	_, err = s.FindLicenseByKey(context.Background(), "NOPE-NOPE")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestActivateIfUnderLimit(t *testing.T) {
	s := NewStore(Options{})
	l := seedLicense(t, s, "AAAA-BBBB", intPtr(1))

	out, err := activate(s, l, "example.com")
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Equal(t, 1, out.Used)

	out, err = activate(s, l, "example.com")
	require.NoError(t, err)
	assert.False(t, out.Created)
	assert.Equal(t, 1, out.Used)
	require.NotNil(t, out.Activation.LastCheckedAt)

	_, err = activate(s, l, "test.com")
	limitErr, ok := xerrors.AsDomainLimit(err)
	require.True(t, ok)
	assert.Equal(t, 1, limitErr.Limit)
	assert.Equal(t, 1, limitErr.Used)

	n, err := s.CountByLicense(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestActivateRefusesInactiveLicense(t *testing.T) {
	s := NewStore(Options{})
	l := seedLicense(t, s, "AAAA-BBBB", nil)
	require.NoError(t, s.UpdateLicenseStatus(context.Background(), l.ID, license.StatusActive, license.StatusSuspended))

	_, err := activate(s, l, "example.com")
	assert.ErrorIs(t, err, xerrors.ErrLicenseInactive)

	_, err = s.ActivateIfUnderLimit(context.Background(), license.ActivateIfUnderLimit{LicenseID: 999, Domain: "example.com", At: time.Now()})
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestDeleteFreesSlot(t *testing.T) {
	s := NewStore(Options{})
	l := seedLicense(t, s, "AAAA-BBBB", intPtr(1))

	_, err := activate(s, l, "example.com")
	require.NoError(t, err)
	require.NoError(t, s.DeleteByDomain(context.Background(), l.ID, "example.com"))
	assert.ErrorIs(t, s.DeleteByDomain(context.Background(), l.ID, "example.com"), xerrors.ErrNotFound)

	out, err := activate(s, l, "test.com")
	require.NoError(t, err)
	assert.True(t, out.Created)

	removed, err := s.DeleteByID(context.Background(), l.ID, out.Activation.ID)
	require.NoError(t, err)
	assert.Equal(t, "test.com", removed.Domain)
}

func TestConcurrentActivationsNeverExceedLimit(t *testing.T) {
	const limit, attempts = 3, 20

	s := NewStore(Options{
		LockTimeout: 5 * time.Second,
		// yield inside the critical section so unserialized callers would interleave
		InsideCriticalSection: func() { time.Sleep(time.Millisecond) },
	})
	l := seedLicense(t, s, "AAAA-BBBB", intPtr(limit))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		refused  int
		start    = make(chan struct{})
		failures []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := activate(s, l, fmt.Sprintf("site%d.example.com", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case xerrors.Is(err, xerrors.ErrDomainLimitReached):
				refused++
			default:
				failures = append(failures, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.Empty(t, failures)
	assert.Equal(t, limit, created)
	assert.Equal(t, attempts-limit, refused)

	n, err := s.CountByLicense(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, limit, n)
}

func TestLockWaitIsBounded(t *testing.T) {
	hold := make(chan struct{})
	entered := make(chan struct{})
	s := NewStore(Options{
		LockTimeout: 20 * time.Millisecond,
		InsideCriticalSection: func() {
			close(entered)
			<-hold
		},
	})
	l := seedLicense(t, s, "AAAA-BBBB", nil)

	done := make(chan error, 1)
	go func() {
		_, err := activate(s, l, "slow.example.com")
		done <- err
	}()
	<-entered

	_, err := activate(s, l, "fast.example.com")
	assert.ErrorIs(t, err, xerrors.ErrConcurrencyConflict)

	close(hold)
	require.NoError(t, <-done)
}

func TestCancelledContextLeavesNoRow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStore(Options{InsideCriticalSection: cancel})
	l := seedLicense(t, s, "AAAA-BBBB", nil)

	_, err := s.ActivateIfUnderLimit(ctx, license.ActivateIfUnderLimit{LicenseID: l.ID, Domain: "example.com", At: time.Now()})
	require.Error(t, err)

	n, err := s.CountByLicense(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteLicenseCascades(t *testing.T) {
	s := NewStore(Options{})
	l := seedLicense(t, s, "AAAA-BBBB", nil)
	_, err := activate(s, l, "example.com")
	require.NoError(t, err)

	require.NoError(t, s.DeleteLicense(context.Background(), l.ID))

	n, err := s.CountByLicense(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	exists, err := s.LicenseKeyExists(context.Background(), "AAAA-BBBB")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListLicensesFiltersAndPages(t *testing.T) {
	s := NewStore(Options{})
	for i := 0; i < 5; i++ {
		seedLicense(t, s, fmt.Sprintf("KEY-%d", i), nil)
	}
	third, err := s.FindLicenseByKey(context.Background(), "KEY-2")
	require.NoError(t, err)
	require.NoError(t, s.UpdateLicenseStatus(context.Background(), third.ID, license.StatusActive, license.StatusSuspended))

	got, total, err := s.ListLicenses(context.Background(), &license.ListFilters{Statuses: []license.Status{license.StatusActive}, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, got, 2)
	assert.Equal(t, "KEY-4", got[0].LicenseKey)

	got, _, err = s.ListLicenses(context.Background(), &license.ListFilters{Page: 9, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpdateLicenseStatusDetectsRace(t *testing.T) {
	s := NewStore(Options{})
	l := seedLicense(t, s, "AAAA-BBBB", nil)

	err := s.UpdateLicenseStatus(context.Background(), l.ID, license.StatusSuspended, license.StatusActive)
	assert.ErrorIs(t, err, xerrors.ErrConflict)
}

func TestRenewAndLimitWritesKeepStatus(t *testing.T) {
	s := NewStore(Options{})
	ctx := context.Background()
	l := seedLicense(t, s, "AAAA-CCCC", nil)
	require.NoError(t, s.UpdateLicenseStatus(ctx, l.ID, license.StatusActive, license.StatusSuspended))

	require.NoError(t, s.UpdateLicenseDomainLimit(ctx, l.ID, intPtr(4)))
	next := time.Now().Add(time.Hour)
	assert.ErrorIs(t, s.RenewLicense(ctx, l.ID, license.StatusActive, license.StatusActive, &next), xerrors.ErrConflict)

	got, err := s.FindLicenseByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, license.StatusSuspended, got.Status)
	assert.Equal(t, 4, *got.DomainLimit)
	assert.Nil(t, got.ExpiresAt)

	assert.ErrorIs(t, s.UpdateLicenseDomainLimit(ctx, 999, nil), xerrors.ErrNotFound)
	assert.ErrorIs(t, s.RenewLicense(ctx, 999, license.StatusActive, license.StatusActive, nil), xerrors.ErrNotFound)
}

func TestListExpiringLicenses(t *testing.T) {
	s := NewStore(Options{})
	now := time.Now()
	soon := now.Add(48 * time.Hour)
	later := now.Add(30 * 24 * time.Hour)
	past := now.Add(-time.Hour)

	for key, exp := range map[string]*time.Time{"SOON": &soon, "LATER": &later, "PAST": &past, "NEVER": nil} {
		l := seedLicense(t, s, key, nil)
		require.NoError(t, s.RenewLicense(context.Background(), l.ID, license.StatusActive, license.StatusActive, exp))
	}

	got, err := s.ListExpiringLicenses(context.Background(), now, now.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "SOON", got[0].LicenseKey)
}

func TestCatalog(t *testing.T) {
	s := NewStore(Options{})
	ctx := context.Background()

	p := &catalog.Product{Name: "Plugin", Slug: "plugin", Status: catalog.StatusActive, DomainLimit: intPtr(5)}
	require.NoError(t, s.CreateProduct(ctx, p))
	assert.ErrorIs(t, s.CreateProduct(ctx, &catalog.Product{Slug: "plugin"}), xerrors.ErrDuplicateEntry)

	pkg := &catalog.Package{ProductID: p.ID, Name: "Pro", Slug: "pro", Currency: "USD", Status: catalog.StatusActive, DomainLimit: intPtr(3)}
	require.NoError(t, s.CreatePackage(ctx, pkg))
	assert.ErrorIs(t, s.CreatePackage(ctx, &catalog.Package{ProductID: 404, Slug: "x"}), xerrors.ErrNotFound)

	require.NoError(t, s.UpdatePackageDomainLimit(ctx, pkg.ID, nil))
	got, err := s.FindPackageByID(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DomainLimit)

	pkgs, err := s.ListPackages(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, pkgs, 1)

	require.NoError(t, s.UpdateProductStatus(ctx, p.ID, catalog.StatusInactive))
	prod, err := s.FindProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusInactive, prod.Status)
}
