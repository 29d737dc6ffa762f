// Package lock arbitrates concurrent edits of entries with advisory,
// expiring locks. Expiry is computed on read; nothing sweeps old locks.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/metrics"
	"github.com/rpattn/logbook/internal/repository"

	"github.com/rs/zerolog"
)

// Manager grants, steals and releases entry locks.
type Manager struct {
	uow    repository.UnitOfWork
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets how long new locks stay active.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger.With().Str("component", "lock").Logger()
	}
}

// NewManager creates a lock manager.
func NewManager(uow repository.UnitOfWork, opts ...Option) *Manager {
	m := &Manager{
		uow:    uow,
		ttl:    domain.DefaultLockTTL,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.now()
}

// Current returns the active lock on entryID, or nil.
func (m *Manager) Current(ctx context.Context, entryID int64) (*domain.EntryLock, error) {
	var current *domain.EntryLock
	err := m.uow.Within(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Entries.GetByID(ctx, entryID); err != nil {
			return err
		}
		var err error
		current, err = repos.Locks.GetActive(ctx, entryID, m.now())
		return err
	})
	return current, err
}

// Acquire locks entryID for owner. Re-acquiring an owned lock returns it
// unchanged; a lock held by someone else yields a LockedError.
func (m *Manager) Acquire(ctx context.Context, entryID int64, owner string) (domain.EntryLock, error) {
	var acquired domain.EntryLock
	err := m.uow.Within(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Entries.GetForUpdate(ctx, entryID); err != nil {
			return err
		}

		now := m.now()
		current, err := repos.Locks.GetActive(ctx, entryID, now)
		if err != nil {
			return err
		}
		if current != nil {
			if current.OwnedByRequester(owner) {
				acquired = *current
				return nil
			}
			metrics.LockConflicts.WithLabelValues("acquire").Inc()
			return &domain.LockedError{Lock: *current}
		}

		acquired, err = m.create(ctx, repos.Locks, entryID, owner, now)
		return err
	})
	if err != nil {
		return domain.EntryLock{}, err
	}
	return acquired, nil
}

// Steal cancels any active lock on entryID and locks it for owner.
func (m *Manager) Steal(ctx context.Context, entryID int64, owner string) (domain.EntryLock, error) {
	var stolen domain.EntryLock
	err := m.uow.Within(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Entries.GetForUpdate(ctx, entryID); err != nil {
			return err
		}

		now := m.now()
		current, err := repos.Locks.GetActive(ctx, entryID, now)
		if err != nil {
			return err
		}
		if current != nil {
			if _, err := repos.Locks.Cancel(ctx, current.ID, now, owner); err != nil {
				return fmt.Errorf("failed to cancel lock %d: %w", current.ID, err)
			}
			m.logger.Info().Int64("entry_id", entryID).Str("owner", current.OwnedBy).
				Str("stolen_by", owner).Msg("lock stolen")
		}

		stolen, err = m.create(ctx, repos.Locks, entryID, owner, now)
		return err
	})
	if err != nil {
		return domain.EntryLock{}, err
	}
	return stolen, nil
}

// Release cancels owner's active lock on entryID. It returns nil without
// error when there is no lock or the lock belongs to someone else.
func (m *Manager) Release(ctx context.Context, entryID int64, owner string) (*domain.EntryLock, error) {
	var released *domain.EntryLock
	err := m.uow.Within(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Entries.GetForUpdate(ctx, entryID); err != nil {
			return err
		}

		now := m.now()
		current, err := repos.Locks.GetActive(ctx, entryID, now)
		if err != nil || current == nil || !current.OwnedByRequester(owner) {
			return err
		}

		cancelled, err := repos.Locks.Cancel(ctx, current.ID, now, owner)
		if err != nil {
			return err
		}
		released = &cancelled
		return nil
	})
	return released, err
}

// Cancel cancels the active lock on entryID on behalf of by, whoever owns it.
// It returns nil when no lock is active.
func (m *Manager) Cancel(ctx context.Context, entryID int64, by string) (*domain.EntryLock, error) {
	var cancelled *domain.EntryLock
	err := m.uow.Within(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Entries.GetForUpdate(ctx, entryID); err != nil {
			return err
		}
		lock, err := m.cancelActive(ctx, repos.Locks, entryID, by)
		cancelled = lock
		return err
	})
	return cancelled, err
}

// AdmitEdit applies the edit submission policy inside the caller's unit of
// work. A lock owned by owner is released; a lock acknowledged through
// unlockID (the entry's own id) is cancelled; any other active lock blocks the
// edit with a LockedError carrying the lock.
func (m *Manager) AdmitEdit(ctx context.Context, locks repository.LockRepository, entryID int64, owner string, unlockID *int64) error {
	now := m.now()
	current, err := locks.GetActive(ctx, entryID, now)
	if err != nil {
		return err
	}
	if current == nil {
		return nil
	}

	switch {
	case current.OwnedByRequester(owner):
		_, err = locks.Cancel(ctx, current.ID, now, owner)
	case unlockID != nil && *unlockID == entryID:
		m.logger.Info().Int64("entry_id", entryID).Str("owner", current.OwnedBy).
			Str("cancelled_by", owner).Msg("lock overridden by edit")
		_, err = locks.Cancel(ctx, current.ID, now, owner)
	default:
		metrics.LockConflicts.WithLabelValues("edit").Inc()
		return &domain.LockedError{Lock: *current}
	}
	if err != nil {
		return fmt.Errorf("failed to cancel lock %d: %w", current.ID, err)
	}
	return nil
}

func (m *Manager) cancelActive(ctx context.Context, locks repository.LockRepository, entryID int64, by string) (*domain.EntryLock, error) {
	now := m.now()
	current, err := locks.GetActive(ctx, entryID, now)
	if err != nil || current == nil {
		return nil, err
	}
	cancelled, err := locks.Cancel(ctx, current.ID, now, by)
	if err != nil {
		return nil, err
	}
	return &cancelled, nil
}

func (m *Manager) create(ctx context.Context, locks repository.LockRepository, entryID int64, owner string, now time.Time) (domain.EntryLock, error) {
	created, err := locks.Create(ctx, domain.EntryLock{
		EntryID:   entryID,
		OwnedBy:   owner,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	})
	if err != nil {
		return domain.EntryLock{}, fmt.Errorf("failed to create lock: %w", err)
	}
	metrics.LocksAcquired.Inc()
	return created, nil
}
