package runway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBusy is returned by a Locker when the season is already being processed.
var ErrBusy = errors.New("season is busy")

// Locker serializes runs for the same season.
type Locker interface {
	Lock(ctx context.Context, season int) (unlock func(), err error)
}

// MutexLocker is an in-process Locker. It never waits; a held season fails
// fast with ErrBusy.
type MutexLocker struct {
	mu   sync.Mutex
	held map[int]bool
}

// NewMutexLocker creates an in-process locker.
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{held: make(map[int]bool)}
}

// Lock claims season or returns ErrBusy.
func (l *MutexLocker) Lock(_ context.Context, season int) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[season] {
		return nil, ErrBusy
	}
	l.held[season] = true

	return func() {
		l.mu.Lock()
		delete(l.held, season)
		l.mu.Unlock()
	}, nil
}

// LeaseStore persists expiring leases.
type LeaseStore interface {
	AcquireLease(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key, holder string) error
}

// LeaseLocker is a Locker backed by a LeaseStore, so separate processes
// sharing a database exclude each other. The ttl bounds how long a crashed
// holder blocks the season.
type LeaseLocker struct {
	store LeaseStore
	ttl   time.Duration
}

// NewLeaseLocker creates a LeaseLocker.
func NewLeaseLocker(store LeaseStore, ttl time.Duration) *LeaseLocker {
	return &LeaseLocker{store: store, ttl: ttl}
}

// Lock acquires the season lease or returns ErrBusy.
func (l *LeaseLocker) Lock(ctx context.Context, season int) (func(), error) {
	key := fmt.Sprintf("season:%d", season)
	holder := uuid.NewString()

	ok, err := l.store.AcquireLease(ctx, key, holder, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, ErrBusy
	}

	return func() {
		// The request context may already be done; release regardless.
		if err := l.store.ReleaseLease(context.WithoutCancel(ctx), key, holder); err != nil {
			slog.Warn("failed to release lease", "key", key, "error", err)
		}
	}, nil
}
