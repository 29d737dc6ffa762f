package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/logbook/internal/db"
	"github.com/rpattn/logbook/internal/domain"

	"github.com/jackc/pgx/v5"
)

const lockColumns = `id, entry_id, owned_by, created_at, expires_at, cancelled_at, cancelled_by`

// lockRepository implements LockRepository interface
type lockRepository struct {
	q db.DBTX
}

// NewLockRepository creates a new entry lock repository
func NewLockRepository(q db.DBTX) LockRepository {
	return &lockRepository{q: q}
}

// GetActive returns the newest lock on entryID that is active at now
func (r *lockRepository) GetActive(ctx context.Context, entryID int64, now time.Time) (*domain.EntryLock, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+lockColumns+`
		FROM entry_locks
		WHERE entry_id = $1 AND cancelled_at IS NULL AND expires_at > $2
		ORDER BY id DESC
		LIMIT 1`, entryID, now)

	lock, err := buildLock(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active lock: %w", err)
	}
	return &lock, nil
}

// GetByID retrieves a lock by ID
func (r *lockRepository) GetByID(ctx context.Context, id int64) (domain.EntryLock, error) {
	row := r.q.QueryRow(ctx, `SELECT `+lockColumns+` FROM entry_locks WHERE id = $1`, id)
	lock, err := buildLock(row)
	if err != nil {
		return domain.EntryLock{}, notFound(err, "lock", id)
	}
	return lock, nil
}

// Create inserts a new lock
func (r *lockRepository) Create(ctx context.Context, lock domain.EntryLock) (domain.EntryLock, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO entry_locks (entry_id, owned_by, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING `+lockColumns,
		lock.EntryID, lock.OwnedBy, lock.CreatedAt, lock.ExpiresAt)

	created, err := buildLock(row)
	if err != nil {
		return domain.EntryLock{}, fmt.Errorf("failed to create lock: %w", err)
	}
	return created, nil
}

// Cancel marks a lock as cancelled
func (r *lockRepository) Cancel(ctx context.Context, id int64, at time.Time, by string) (domain.EntryLock, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE entry_locks
		SET cancelled_at = $2, cancelled_by = $3
		WHERE id = $1
		RETURNING `+lockColumns, id, at, by)

	lock, err := buildLock(row)
	if err != nil {
		return domain.EntryLock{}, notFound(err, "lock", id)
	}
	return lock, nil
}

func buildLock(row scanner) (domain.EntryLock, error) {
	var lock domain.EntryLock
	err := row.Scan(&lock.ID, &lock.EntryID, &lock.OwnedBy, &lock.CreatedAt, &lock.ExpiresAt,
		&lock.CancelledAt, &lock.CancelledBy)
	return lock, err
}
