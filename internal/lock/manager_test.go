package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/repository"
	"github.com/rpattn/logbook/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(t *testing.T) (*Manager, *memory.Store, *clock, int64) {
	t.Helper()
	ctx := context.Background()
	clk := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewStore(memory.WithClock(clk.now))

	repos := store.Repositories()
	logbook, err := repos.Logbooks.Create(ctx, domain.NewLogbook("Ops", "", nil))
	require.NoError(t, err)
	entry, err := repos.Entries.Create(ctx, domain.Entry{LogbookID: logbook.ID, Title: "A"})
	require.NoError(t, err)

	return NewManager(store, WithClock(clk.now)), store, clk, entry.ID
}

func TestAcquireIsIdempotentForOwner(t *testing.T) {
	m, _, _, entryID := setup(t)
	ctx := context.Background()

	first, err := m.Acquire(ctx, entryID, "10.0.0.1")
	require.NoError(t, err)
	second, err := m.Acquire(ctx, entryID, "10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt.Add(time.Hour), first.ExpiresAt)
}

func TestAcquireConflictAndSteal(t *testing.T) {
	m, store, _, entryID := setup(t)
	ctx := context.Background()

	original, err := m.Acquire(ctx, entryID, "A")
	require.NoError(t, err)

	_, err = m.Acquire(ctx, entryID, "B")
	var locked *domain.LockedError
	require.True(t, errors.As(err, &locked))
	assert.ErrorIs(t, err, domain.ErrLocked)
	assert.Equal(t, original.ID, locked.Lock.ID)

	stolen, err := m.Steal(ctx, entryID, "B")
	require.NoError(t, err)
	assert.Equal(t, "B", stolen.OwnedBy)
	assert.NotEqual(t, original.ID, stolen.ID)

	_, err = m.Acquire(ctx, entryID, "A")
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, stolen.ID, locked.Lock.ID)

	cancelled, err := store.Repositories().Locks.GetByID(ctx, original.ID)
	require.NoError(t, err)
	require.NotNil(t, cancelled.CancelledAt)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, "B", *cancelled.CancelledBy)
}

func TestExpiredLockBehavesAsAbsent(t *testing.T) {
	m, _, clk, entryID := setup(t)
	ctx := context.Background()

	original, err := m.Acquire(ctx, entryID, "A")
	require.NoError(t, err)

	clk.advance(time.Hour + time.Second)

	current, err := m.Current(ctx, entryID)
	require.NoError(t, err)
	assert.Nil(t, current)

	fresh, err := m.Acquire(ctx, entryID, "B")
	require.NoError(t, err)
	assert.NotEqual(t, original.ID, fresh.ID)
	assert.Equal(t, "B", fresh.OwnedBy)
}

func TestReleaseByOtherOwnerIsNoop(t *testing.T) {
	m, _, _, entryID := setup(t)
	ctx := context.Background()

	held, err := m.Acquire(ctx, entryID, "A")
	require.NoError(t, err)

	released, err := m.Release(ctx, entryID, "B")
	require.NoError(t, err)
	assert.Nil(t, released)

	current, err := m.Current(ctx, entryID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, held.ID, current.ID)

	released, err = m.Release(ctx, entryID, "A")
	require.NoError(t, err)
	require.NotNil(t, released)
	assert.NotNil(t, released.CancelledAt)

	current, err = m.Current(ctx, entryID)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestCancelIgnoresOwnership(t *testing.T) {
	m, _, _, entryID := setup(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, entryID, "A")
	require.NoError(t, err)

	cancelled, err := m.Cancel(ctx, entryID, "B")
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	assert.Equal(t, "B", *cancelled.CancelledBy)

	cancelled, err = m.Cancel(ctx, entryID, "B")
	require.NoError(t, err)
	assert.Nil(t, cancelled)
}

func TestAcquireUnknownEntry(t *testing.T) {
	m, _, _, _ := setup(t)
	_, err := m.Acquire(context.Background(), 999, "A")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdmitEditPolicy(t *testing.T) {
	ctx := context.Background()

	admit := func(m *Manager, store *memory.Store, entryID int64, owner string, unlock *int64) error {
		return store.Within(ctx, func(ctx context.Context, repos repository.Repositories) error {
			return m.AdmitEdit(ctx, repos.Locks, entryID, owner, unlock)
		})
	}

	t.Run("no lock", func(t *testing.T) {
		m, store, _, entryID := setup(t)
		require.NoError(t, admit(m, store, entryID, "A", nil))
	})

	t.Run("own lock is released", func(t *testing.T) {
		m, store, _, entryID := setup(t)
		_, err := m.Acquire(ctx, entryID, "A")
		require.NoError(t, err)

		require.NoError(t, admit(m, store, entryID, "A", nil))
		current, err := m.Current(ctx, entryID)
		require.NoError(t, err)
		assert.Nil(t, current)
	})

	t.Run("foreign lock blocks", func(t *testing.T) {
		m, store, _, entryID := setup(t)
		held, err := m.Acquire(ctx, entryID, "A")
		require.NoError(t, err)

		err = admit(m, store, entryID, "B", nil)
		var locked *domain.LockedError
		require.ErrorAs(t, err, &locked)
		assert.Equal(t, held.ID, locked.Lock.ID)

		current, err := m.Current(ctx, entryID)
		require.NoError(t, err)
		require.NotNil(t, current)
	})

	t.Run("acknowledged lock is cancelled", func(t *testing.T) {
		m, store, _, entryID := setup(t)
		_, err := m.Acquire(ctx, entryID, "A")
		require.NoError(t, err)

		unlock := entryID
		require.NoError(t, admit(m, store, entryID, "B", &unlock))
		current, err := m.Current(ctx, entryID)
		require.NoError(t, err)
		assert.Nil(t, current)
	})

	t.Run("acknowledging another entry does not unlock", func(t *testing.T) {
		m, store, _, entryID := setup(t)
		_, err := m.Acquire(ctx, entryID, "A")
		require.NoError(t, err)

		other := entryID + 100
		assert.ErrorIs(t, admit(m, store, entryID, "B", &other), domain.ErrLocked)
	})
}
