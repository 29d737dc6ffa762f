// Package memory provides an in-process implementation of the repository
// interfaces. Units of work are serialized and roll back on error.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/repository"
)

type state struct {
	logbooks       map[int64]domain.Logbook
	logbookChanges map[int64][]domain.Change
	entries        map[int64]domain.Entry
	entryChanges   map[int64][]domain.Change
	locks          map[int64]domain.EntryLock
	attachments    map[int64]domain.Attachment
	sequences      map[string]int64
}

func newState() *state {
	return &state{
		logbooks:       map[int64]domain.Logbook{},
		logbookChanges: map[int64][]domain.Change{},
		entries:        map[int64]domain.Entry{},
		entryChanges:   map[int64][]domain.Change{},
		locks:          map[int64]domain.EntryLock{},
		attachments:    map[int64]domain.Attachment{},
		sequences:      map[string]int64{},
	}
}

// Stored values are never mutated in place, so copying the maps is enough to
// restore the state after a failed unit of work.
func (s *state) clone() *state {
	out := newState()
	for k, v := range s.logbooks {
		out.logbooks[k] = v
	}
	for k, v := range s.logbookChanges {
		out.logbookChanges[k] = append([]domain.Change(nil), v...)
	}
	for k, v := range s.entries {
		out.entries[k] = v
	}
	for k, v := range s.entryChanges {
		out.entryChanges[k] = append([]domain.Change(nil), v...)
	}
	for k, v := range s.locks {
		out.locks[k] = v
	}
	for k, v := range s.attachments {
		out.attachments[k] = v
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	return out
}

func (s *state) nextID(table string) int64 {
	s.sequences[table]++
	return s.sequences[table]
}

// Store keeps every record in memory.
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{state: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repository.Store = (*Store)(nil)

// Repositories returns repositories that lock the store per call.
func (s *Store) Repositories() repository.Repositories {
	return s.repositories(true)
}

// Within runs fn with the store held. Changes made by fn are discarded when
// it returns an error or panics.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.state.clone()
	defer func() {
		if p := recover(); p != nil {
			s.state = saved
			panic(p)
		}
		if err != nil {
			s.state = saved
		}
	}()

	return fn(ctx, s.repositories(false))
}

func (s *Store) repositories(guarded bool) repository.Repositories {
	b := base{store: s, guarded: guarded}
	return repository.Repositories{
		Logbooks:    &logbookRepository{base: b},
		Entries:     &entryRepository{base: b},
		Locks:       &lockRepository{base: b},
		Attachments: &attachmentRepository{base: b},
	}
}

type base struct {
	store   *Store
	guarded bool
}

// acquire locks the store unless the caller already holds it through Within.
func (b base) acquire() func() {
	if !b.guarded {
		return func() {}
	}
	b.store.mu.Lock()
	return b.store.mu.Unlock
}

func (b base) st() *state {
	return b.store.state
}
