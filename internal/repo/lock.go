package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/fintechlab/transaction-service/internal/idempotency"
)

// ErrLockNotAcquired wraps failures to open the locking transaction.
var ErrLockNotAcquired = errors.New("advisory lock not acquired")

// ErrLockTimeout is returned when the lock context deadline expires.
var ErrLockTimeout = errors.New("advisory lock timed out")

// WithFingerprintLock runs fn inside a serializable transaction holding the
// advisory lock derived from fingerprint. The lock is transaction-scoped
// (pg_advisory_xact_lock), so commit, rollback and connection loss all
// release it. Unrelated fingerprints map to distinct keys and never contend.
func (r *Repository) WithFingerprintLock(ctx context.Context, fingerprint string, fn func(tx *gorm.DB) error) error {
	key := idempotency.LockKey(fingerprint)

	// Advisory locks are a Postgres feature. On other dialects (sqlite in
	// unit tests) fall back to a process-local mutex keyed the same way.
	if r.db.Dialector.Name() != "postgres" {
		unlock := r.locks.lock(key)
		defer unlock()
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", key).Error; err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return ErrLockTimeout
				}
				return fmt.Errorf("%w: %v", ErrLockNotAcquired, err)
			}
		}
		return fn(tx)
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrLockTimeout
	}
	return err
}

// keyedMutex hands out one mutex per lock key. Entries are not reaped; the
// key space in a test process stays tiny.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*sync.Mutex)}
}

func (k *keyedMutex) lock(key int64) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}
