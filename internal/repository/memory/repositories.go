package memory

import (
	"context"
	"sort"
	"time"

	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/repository"
)

var (
	_ repository.LogbookRepository    = (*logbookRepository)(nil)
	_ repository.EntryRepository      = (*entryRepository)(nil)
	_ repository.LockRepository       = (*lockRepository)(nil)
	_ repository.AttachmentRepository = (*attachmentRepository)(nil)
)

type logbookRepository struct{ base }

func (r *logbookRepository) Create(ctx context.Context, logbook domain.Logbook) (domain.Logbook, error) {
	defer r.acquire()()
	st := r.st()

	stored := logbook.Clone()
	stored.ID = st.nextID("logbooks")
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.store.now()
	}
	st.logbooks[stored.ID] = stored
	return stored.Clone(), nil
}

func (r *logbookRepository) GetByID(ctx context.Context, id int64) (domain.Logbook, error) {
	defer r.acquire()()
	logbook, ok := r.st().logbooks[id]
	if !ok {
		return domain.Logbook{}, domain.NewNotFound("logbook", id)
	}
	return logbook.Clone(), nil
}

func (r *logbookRepository) GetForUpdate(ctx context.Context, id int64) (domain.Logbook, error) {
	return r.GetByID(ctx, id)
}

func (r *logbookRepository) List(ctx context.Context) ([]domain.Logbook, error) {
	defer r.acquire()()
	out := make([]domain.Logbook, 0, len(r.st().logbooks))
	for _, logbook := range r.st().logbooks {
		out = append(out, logbook.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *logbookRepository) ListChildren(ctx context.Context, parentID *int64) ([]domain.Logbook, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Logbook, 0)
	for _, logbook := range all {
		switch {
		case parentID == nil && logbook.ParentID == nil:
			out = append(out, logbook)
		case parentID != nil && logbook.ParentID != nil && *logbook.ParentID == *parentID:
			out = append(out, logbook)
		}
	}
	return out, nil
}

func (r *logbookRepository) Update(ctx context.Context, logbook domain.Logbook) (domain.Logbook, error) {
	defer r.acquire()()
	st := r.st()
	if _, ok := st.logbooks[logbook.ID]; !ok {
		return domain.Logbook{}, domain.NewNotFound("logbook", logbook.ID)
	}
	st.logbooks[logbook.ID] = logbook.Clone()
	return logbook.Clone(), nil
}

func (r *logbookRepository) AppendChange(ctx context.Context, change domain.Change) (domain.Change, error) {
	defer r.acquire()()
	st := r.st()
	if _, ok := st.logbooks[change.RecordID]; !ok {
		return domain.Change{}, domain.NewNotFound("logbook", change.RecordID)
	}
	change.ID = st.nextID("logbook_changes")
	st.logbookChanges[change.RecordID] = append(st.logbookChanges[change.RecordID], change)
	return change, nil
}

func (r *logbookRepository) ListChanges(ctx context.Context, logbookID int64) ([]domain.Change, error) {
	defer r.acquire()()
	return append([]domain.Change{}, r.st().logbookChanges[logbookID]...), nil
}

type entryRepository struct{ base }

func (r *entryRepository) Create(ctx context.Context, entry domain.Entry) (domain.Entry, error) {
	defer r.acquire()()
	st := r.st()
	if _, ok := st.logbooks[entry.LogbookID]; !ok {
		return domain.Entry{}, domain.NewNotFound("logbook", entry.LogbookID)
	}

	stored := entry.Clone()
	stored.ID = st.nextID("entries")
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.store.now()
	}
	st.entries[stored.ID] = stored
	return stored.Clone(), nil
}

func (r *entryRepository) GetByID(ctx context.Context, id int64) (domain.Entry, error) {
	defer r.acquire()()
	entry, ok := r.st().entries[id]
	if !ok {
		return domain.Entry{}, domain.NewNotFound("entry", id)
	}
	return entry.Clone(), nil
}

func (r *entryRepository) GetForUpdate(ctx context.Context, id int64) (domain.Entry, error) {
	return r.GetByID(ctx, id)
}

func (r *entryRepository) ListByLogbooks(ctx context.Context, logbookIDs []int64, includeArchived bool) ([]domain.Entry, error) {
	defer r.acquire()()

	var scope map[int64]struct{}
	if logbookIDs != nil {
		scope = make(map[int64]struct{}, len(logbookIDs))
		for _, id := range logbookIDs {
			scope[id] = struct{}{}
		}
	}

	out := make([]domain.Entry, 0)
	for _, entry := range r.st().entries {
		if scope != nil {
			if _, ok := scope[entry.LogbookID]; !ok {
				continue
			}
		}
		if entry.Archived && !includeArchived {
			continue
		}
		out = append(out, entry.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *entryRepository) Update(ctx context.Context, entry domain.Entry) (domain.Entry, error) {
	defer r.acquire()()
	st := r.st()
	if _, ok := st.entries[entry.ID]; !ok {
		return domain.Entry{}, domain.NewNotFound("entry", entry.ID)
	}
	st.entries[entry.ID] = entry.Clone()
	return entry.Clone(), nil
}

func (r *entryRepository) AppendChange(ctx context.Context, change domain.Change) (domain.Change, error) {
	defer r.acquire()()
	st := r.st()
	if _, ok := st.entries[change.RecordID]; !ok {
		return domain.Change{}, domain.NewNotFound("entry", change.RecordID)
	}
	change.ID = st.nextID("entry_changes")
	st.entryChanges[change.RecordID] = append(st.entryChanges[change.RecordID], change)
	return change, nil
}

func (r *entryRepository) ListChanges(ctx context.Context, entryID int64) ([]domain.Change, error) {
	defer r.acquire()()
	return append([]domain.Change{}, r.st().entryChanges[entryID]...), nil
}

type lockRepository struct{ base }

func (r *lockRepository) GetActive(ctx context.Context, entryID int64, now time.Time) (*domain.EntryLock, error) {
	defer r.acquire()()
	var found *domain.EntryLock
	for _, lock := range r.st().locks {
		if lock.EntryID != entryID || !lock.Active(now) {
			continue
		}
		if found == nil || lock.ID > found.ID {
			l := lock
			found = &l
		}
	}
	return found, nil
}

func (r *lockRepository) GetByID(ctx context.Context, id int64) (domain.EntryLock, error) {
	defer r.acquire()()
	lock, ok := r.st().locks[id]
	if !ok {
		return domain.EntryLock{}, domain.NewNotFound("lock", id)
	}
	return lock, nil
}

func (r *lockRepository) Create(ctx context.Context, lock domain.EntryLock) (domain.EntryLock, error) {
	defer r.acquire()()
	st := r.st()
	if _, ok := st.entries[lock.EntryID]; !ok {
		return domain.EntryLock{}, domain.NewNotFound("entry", lock.EntryID)
	}
	lock.ID = st.nextID("entry_locks")
	st.locks[lock.ID] = lock
	return lock, nil
}

func (r *lockRepository) Cancel(ctx context.Context, id int64, at time.Time, by string) (domain.EntryLock, error) {
	defer r.acquire()()
	st := r.st()
	lock, ok := st.locks[id]
	if !ok {
		return domain.EntryLock{}, domain.NewNotFound("lock", id)
	}
	cancelledBy := by
	lock.CancelledAt = &at
	lock.CancelledBy = &cancelledBy
	st.locks[id] = lock
	return lock, nil
}

type attachmentRepository struct{ base }

func (r *attachmentRepository) Create(ctx context.Context, attachment domain.Attachment) (domain.Attachment, error) {
	defer r.acquire()()
	st := r.st()
	attachment.ID = st.nextID("attachments")
	if attachment.Timestamp.IsZero() {
		attachment.Timestamp = r.store.now()
	}
	attachment.Metadata = attachment.Metadata.Clone()
	st.attachments[attachment.ID] = attachment
	return attachment, nil
}

func (r *attachmentRepository) GetByID(ctx context.Context, id int64) (domain.Attachment, error) {
	defer r.acquire()()
	attachment, ok := r.st().attachments[id]
	if !ok {
		return domain.Attachment{}, domain.NewNotFound("attachment", id)
	}
	return attachment, nil
}

func (r *attachmentRepository) AssignEntry(ctx context.Context, attachmentIDs []int64, entryID int64) error {
	defer r.acquire()()
	st := r.st()
	if _, ok := st.entries[entryID]; !ok {
		return domain.NewNotFound("entry", entryID)
	}
	for _, id := range attachmentIDs {
		attachment, ok := st.attachments[id]
		if !ok {
			return domain.NewNotFound("attachment", id)
		}
		owner := entryID
		attachment.EntryID = &owner
		st.attachments[id] = attachment
	}
	return nil
}

func (r *attachmentRepository) ListByEntries(ctx context.Context, entryIDs []int64) ([]domain.Attachment, error) {
	defer r.acquire()()
	wanted := make(map[int64]struct{}, len(entryIDs))
	for _, id := range entryIDs {
		wanted[id] = struct{}{}
	}
	out := make([]domain.Attachment, 0)
	for _, attachment := range r.st().attachments {
		if attachment.EntryID == nil {
			continue
		}
		if _, ok := wanted[*attachment.EntryID]; ok {
			out = append(out, attachment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
