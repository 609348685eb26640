// Package memory is an in-process implementation of the license, catalog and
// activation repositories. It keeps the same invariants as the postgres
// store (unique keys, unique (license, domain), serialized activation per
// license with a bounded lock wait) and backs the tests and STORE_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"license-service/internal/domain/catalog"
	"license-service/internal/domain/license"
	xerrors "license-service/internal/pkg/errors"
)

const defaultLockTimeout = 3 * time.Second

type Options struct {
	// LockTimeout bounds the wait for a license's activation lock.
	LockTimeout time.Duration
	// InsideCriticalSection, when set, runs while the license lock is held,
	// between the count and the insert. Tests use it to widen the race window.
	InsideCriticalSection func()
}

type Store struct {
	mu          sync.RWMutex
	nextID      int64
	products    map[int64]*catalog.Product
	packages    map[int64]*catalog.Package
	licenses    map[int64]*license.License
	keys        map[string]int64
	activations map[int64]map[string]*license.Activation

	lockMu       sync.Mutex
	licenseLocks map[int64]chan struct{}
	opts         Options
}

func NewStore(opts Options) *Store {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	return &Store{
		products:     make(map[int64]*catalog.Product),
		packages:     make(map[int64]*catalog.Package),
		licenses:     make(map[int64]*license.License),
		keys:         make(map[string]int64),
		activations:  make(map[int64]map[string]*license.Activation),
		licenseLocks: make(map[int64]chan struct{}),
		opts:         opts,
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// lockLicense acquires the per-license lock, waiting at most LockTimeout or
// until ctx is done. A timeout is reported as a concurrency conflict.
func (s *Store) lockLicense(ctx context.Context, licenseID int64) (func(), error) {
	s.lockMu.Lock()
	ch, ok := s.licenseLocks[licenseID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.licenseLocks[licenseID] = ch
	}
	s.lockMu.Unlock()

	timer := time.NewTimer(s.opts.LockTimeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: license %d lock wait exceeded %s", xerrors.ErrConcurrencyConflict, licenseID, s.opts.LockTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", xerrors.ErrConcurrencyConflict, ctx.Err())
	}
}

func sortByID[T any](items []T, id func(T) int64) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
}
