package repository

import (
	"context"
	"time"

	"github.com/rpattn/logbook/internal/domain"
)

// LogbookRepository defines the interface for logbook operations
type LogbookRepository interface {
	Create(ctx context.Context, logbook domain.Logbook) (domain.Logbook, error)
	GetByID(ctx context.Context, id int64) (domain.Logbook, error)
	// GetForUpdate loads the logbook and holds it against concurrent writers
	// until the surrounding unit of work ends.
	GetForUpdate(ctx context.Context, id int64) (domain.Logbook, error)
	List(ctx context.Context) ([]domain.Logbook, error)
	ListChildren(ctx context.Context, parentID *int64) ([]domain.Logbook, error)
	Update(ctx context.Context, logbook domain.Logbook) (domain.Logbook, error)

	AppendChange(ctx context.Context, change domain.Change) (domain.Change, error)
	ListChanges(ctx context.Context, logbookID int64) ([]domain.Change, error)
}

// EntryRepository defines the interface for entry operations
type EntryRepository interface {
	Create(ctx context.Context, entry domain.Entry) (domain.Entry, error)
	GetByID(ctx context.Context, id int64) (domain.Entry, error)
	GetForUpdate(ctx context.Context, id int64) (domain.Entry, error)
	// ListByLogbooks returns entries owned by any of logbookIDs. A nil slice
	// means every logbook.
	ListByLogbooks(ctx context.Context, logbookIDs []int64, includeArchived bool) ([]domain.Entry, error)
	Update(ctx context.Context, entry domain.Entry) (domain.Entry, error)

	AppendChange(ctx context.Context, change domain.Change) (domain.Change, error)
	ListChanges(ctx context.Context, entryID int64) ([]domain.Change, error)
}

// LockRepository defines the interface for entry lock operations
type LockRepository interface {
	// GetActive returns the lock active at now, or nil.
	GetActive(ctx context.Context, entryID int64, now time.Time) (*domain.EntryLock, error)
	GetByID(ctx context.Context, id int64) (domain.EntryLock, error)
	Create(ctx context.Context, lock domain.EntryLock) (domain.EntryLock, error)
	Cancel(ctx context.Context, id int64, at time.Time, by string) (domain.EntryLock, error)
}

// AttachmentRepository defines the interface for attachment operations
type AttachmentRepository interface {
	Create(ctx context.Context, attachment domain.Attachment) (domain.Attachment, error)
	GetByID(ctx context.Context, id int64) (domain.Attachment, error)
	AssignEntry(ctx context.Context, attachmentIDs []int64, entryID int64) error
	ListByEntries(ctx context.Context, entryIDs []int64) ([]domain.Attachment, error)
}

// Repositories groups the stores bound to one unit of work.
type Repositories struct {
	Logbooks    LogbookRepository
	Entries     EntryRepository
	Locks       LockRepository
	Attachments AttachmentRepository
}

// UnitOfWork runs fn against repositories whose writes are applied together
// or not at all.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Store is a complete storage backend.
type Store interface {
	UnitOfWork
	Repositories() Repositories
}
