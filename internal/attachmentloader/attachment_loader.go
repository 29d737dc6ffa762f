package attachmentloader

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/repository"

	"github.com/graph-gophers/dataloader"
)

// AttachmentLoader batches attachment lookups by entry id within a request.
type AttachmentLoader struct {
	Loader *dataloader.Loader
}

func NewAttachmentLoader(repo repository.AttachmentRepository) *AttachmentLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]int64, len(keys))
		for i, k := range keys {
			id, err := strconv.ParseInt(k.String(), 10, 64)
			if err != nil {
				return failAll(len(keys), fmt.Errorf("invalid entry id %q: %w", k.String(), err))
			}
			ids[i] = id
		}

		attachments, err := repo.ListByEntries(ctx, ids)
		if err != nil {
			return failAll(len(keys), err)
		}

		byEntry := make(map[int64][]domain.Attachment, len(ids))
		for _, a := range attachments {
			if a.EntryID != nil {
				byEntry[*a.EntryID] = append(byEntry[*a.EntryID], a)
			}
		}

		// Results follow key order.
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			list := byEntry[id]
			if list == nil {
				list = []domain.Attachment{}
			}
			results[i] = &dataloader.Result{Data: list}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))
	return &AttachmentLoader{Loader: loader}
}

func failAll(n int, err error) []*dataloader.Result {
	results := make([]*dataloader.Result, n)
	for i := range results {
		results[i] = &dataloader.Result{Error: err}
	}
	return results
}

// Load returns the attachments of entryID, batched with concurrent calls.
func (l *AttachmentLoader) Load(ctx context.Context, entryID int64) ([]domain.Attachment, error) {
	data, err := l.Loader.Load(ctx, dataloader.StringKey(strconv.FormatInt(entryID, 10)))()
	if err != nil {
		return nil, err
	}
	return data.([]domain.Attachment), nil
}

// LoadMany returns attachments for every id in entryIDs, keyed by entry.
func (l *AttachmentLoader) LoadMany(ctx context.Context, entryIDs []int64) (map[int64][]domain.Attachment, error) {
	keys := make(dataloader.Keys, len(entryIDs))
	for i, id := range entryIDs {
		keys[i] = dataloader.StringKey(strconv.FormatInt(id, 10))
	}
	data, errs := l.Loader.LoadMany(ctx, keys)()
	out := make(map[int64][]domain.Attachment, len(entryIDs))
	for i, id := range entryIDs {
		if len(errs) > i && errs[i] != nil {
			return nil, errs[i]
		}
		out[id] = data[i].([]domain.Attachment)
	}
	return out, nil
}
