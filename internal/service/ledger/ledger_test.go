package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"license-service/internal/domain/license"
	wstypes "license-service/internal/domain/websocket"
	"license-service/internal/metrics"
	xerrors "license-service/internal/pkg/errors"
	"license-service/internal/repository/memory"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu     sync.Mutex
	events []wstypes.EventType
}

func (r *recorder) PublishLicenseEvent(eventType wstypes.EventType, _ *wstypes.LicenseEventData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recorder) count(eventType wstypes.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func intPtr(v int) *int { return &v }

func setup(t *testing.T, opts memory.Options, limit *int) (*Ledger, *license.License, *recorder, *metrics.Collector) {
	t.Helper()
	store := memory.NewStore(opts)
	lic := &license.License{LicenseKey: "TEST-KEY1", Status: license.StatusActive, DomainLimit: limit, UserID: 7}
	require.NoError(t, store.CreateLicense(context.Background(), lic))

	rec := &recorder{}
	collector := metrics.New()
	l := NewLedger(store, rec, collector, zap.NewNop(), Config{MaxRetries: 3, RetryBackoff: time.Millisecond})
	return l, lic, rec, collector
}

func TestLimitOfTwoScenario(t *testing.T) {
	l, lic, rec, _ := setup(t, memory.Options{}, intPtr(2))
	ctx := context.Background()

	out, err := l.TryActivate(ctx, lic, "example.com", "10.0.0.1", "wp/6.0")
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Equal(t, 1, out.Used)

	out, err = l.TryActivate(ctx, lic, "https://EXAMPLE.com/wp-admin", "", "")
	require.NoError(t, err)
	assert.False(t, out.Created)
	assert.Equal(t, 1, out.Used)

	out, err = l.TryActivate(ctx, lic, "test.com", "", "")
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Equal(t, 2, out.Used)

	_, err = l.TryActivate(ctx, lic, "other.com", "", "")
	limitErr, ok := xerrors.AsDomainLimit(err)
	require.True(t, ok)
	assert.Equal(t, 2, limitErr.Limit)

	n, err := l.ActiveActivations(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, 2, rec.count(wstypes.EventTypeDomainActivated))
	assert.Equal(t, 1, rec.count(wstypes.EventTypeDomainLimitReached))
}

func TestUnlimitedLicenseAcceptsFiftyDomains(t *testing.T) {
	l, lic, _, _ := setup(t, memory.Options{}, nil)

	for i := 0; i < 50; i++ {
		out, err := l.TryActivate(context.Background(), lic, fmt.Sprintf("site%d.example.org", i), "", "")
		require.NoError(t, err)
		assert.True(t, out.Created)
		assert.Nil(t, out.Limit)
	}
	n, err := l.ActiveActivations(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestDeactivateFreesSlot(t *testing.T) {
	l, lic, rec, _ := setup(t, memory.Options{}, intPtr(1))
	ctx := context.Background()

	_, err := l.TryActivate(ctx, lic, "example.com", "", "")
	require.NoError(t, err)
	_, err = l.TryActivate(ctx, lic, "test.com", "", "")
	require.ErrorIs(t, err, xerrors.ErrDomainLimitReached)

	require.NoError(t, l.Deactivate(ctx, lic, "Example.COM."))
	assert.ErrorIs(t, l.Deactivate(ctx, lic, "example.com"), xerrors.ErrNotFound)

	out, err := l.TryActivate(ctx, lic, "test.com", "", "")
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Equal(t, 1, rec.count(wstypes.EventTypeDomainDeactivated))
}

func TestDeactivateByID(t *testing.T) {
	l, lic, _, _ := setup(t, memory.Options{}, nil)
	ctx := context.Background()

	out, err := l.TryActivate(ctx, lic, "example.com", "", "")
	require.NoError(t, err)

	require.NoError(t, l.DeactivateByID(ctx, lic, out.Activation.ID))
	assert.ErrorIs(t, l.DeactivateByID(ctx, lic, out.Activation.ID), xerrors.ErrNotFound)

	acts, err := l.List(ctx, lic.ID)
	require.NoError(t, err)
	assert.Empty(t, acts)
}

func TestInvalidDomainNeverReachesStore(t *testing.T) {
	l, lic, _, _ := setup(t, memory.Options{}, nil)

	_, err := l.TryActivate(context.Background(), lic, "not a domain", "", "")
	assert.ErrorIs(t, err, xerrors.ErrInvalidDomain)

	n, err := l.ActiveActivations(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConcurrentDistinctDomains(t *testing.T) {
	const limit, attempts = 5, 40
	l, lic, _, collector := setup(t, memory.Options{
		LockTimeout:           5 * time.Second,
		InsideCriticalSection: func() { time.Sleep(200 * time.Microsecond) },
	}, intPtr(limit))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		refused int
		other   []error
		start   = make(chan struct{})
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := l.TryActivate(context.Background(), lic, fmt.Sprintf("d%d.example.net", i), "", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case xerrors.Is(err, xerrors.ErrDomainLimitReached):
				refused++
			default:
				other = append(other, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, limit, ok)
	assert.Equal(t, attempts-limit, refused)
	assert.Equal(t, float64(limit), testutil.ToFloat64(collector.Activations.WithLabelValues("created")))
}

func TestRetriesThenSurfacesConflict(t *testing.T) {
	hold := make(chan struct{})
	entered := make(chan struct{}, 1)
	var once sync.Once
	l, lic, _, collector := setup(t, memory.Options{
		LockTimeout: 5 * time.Millisecond,
		InsideCriticalSection: func() {
			once.Do(func() {
				entered <- struct{}{}
				<-hold
			})
		},
	}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := l.TryActivate(context.Background(), lic, "holder.example.com", "", "")
		done <- err
	}()
	<-entered

	_, err := l.TryActivate(context.Background(), lic, "waiter.example.com", "", "")
	assert.ErrorIs(t, err, xerrors.ErrConcurrencyConflict)
	assert.Equal(t, float64(3), testutil.ToFloat64(collector.LedgerRetries))

	close(hold)
	require.NoError(t, <-done)

	// once the lock is free the same request goes through
	out, err := l.TryActivate(context.Background(), lic, "waiter.example.com", "", "")
	require.NoError(t, err)
	assert.True(t, out.Created)
}
