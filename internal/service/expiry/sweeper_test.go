package expiry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"license-service/internal/domain/license"
	wstypes "license-service/internal/domain/websocket"
	"license-service/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubLister struct {
	mu    sync.Mutex
	calls int
	days  int
	out   []license.License
	err   error
}

func (s *stubLister) ListExpiring(_ context.Context, withinDays int) ([]license.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.days = withinDays
	return s.out, s.err
}

type capture struct {
	mu     sync.Mutex
	events []*wstypes.LicenseEventData
}

func (c *capture) PublishLicenseEvent(eventType wstypes.EventType, data *wstypes.LicenseEventData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if eventType == wstypes.EventTypeLicenseExpiring {
		c.events = append(c.events, data)
	}
}

func TestSweepPublishesOneEventPerLicense(t *testing.T) {
	exp := time.Now().Add(48 * time.Hour)
	lister := &stubLister{out: []license.License{
		{ID: 1, LicenseKey: "A-AAAAA", Status: license.StatusActive, ExpiresAt: &exp},
		{ID: 2, LicenseKey: "B-BBBBB", Status: license.StatusActive, ExpiresAt: &exp},
	}}
	pub := &capture{}
	collector := metrics.New()

	s := NewSweeper(lister, pub, collector, zap.NewNop(), time.Minute, 5)
	n, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, 5, lister.days)
	require.Len(t, pub.events, 2)
	assert.Equal(t, "B-BBBBB", pub.events[1].LicenseKey)
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.ExpiringLicense))
}

func TestSweepPropagatesListError(t *testing.T) {
	s := NewSweeper(&stubLister{err: errors.New("db down")}, &capture{}, nil, zap.NewNop(), time.Minute, 7)
	_, err := s.Sweep(context.Background())
	assert.Error(t, err)
}

func TestRunStopsWithContext(t *testing.T) {
	lister := &stubLister{}
	s := NewSweeper(lister, &capture{}, nil, zap.NewNop(), 5*time.Millisecond, 7)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	lister.mu.Lock()
	defer lister.mu.Unlock()
	assert.GreaterOrEqual(t, lister.calls, 2)
}
