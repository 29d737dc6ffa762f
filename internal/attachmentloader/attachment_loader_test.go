package attachmentloader

import (
	"context"
	"sync"
	"testing"

	"github.com/rpattn/logbook/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	mu      sync.Mutex
	batches [][]int64
	byEntry map[int64][]domain.Attachment
}

func (r *countingRepo) Create(ctx context.Context, a domain.Attachment) (domain.Attachment, error) {
	return a, nil
}

func (r *countingRepo) GetByID(ctx context.Context, id int64) (domain.Attachment, error) {
	return domain.Attachment{}, domain.NewNotFound("attachment", id)
}

func (r *countingRepo) AssignEntry(ctx context.Context, ids []int64, entryID int64) error {
	return nil
}

func (r *countingRepo) ListByEntries(ctx context.Context, ids []int64) ([]domain.Attachment, error) {
	r.mu.Lock()
	r.batches = append(r.batches, append([]int64(nil), ids...))
	r.mu.Unlock()
	var out []domain.Attachment
	for _, id := range ids {
		out = append(out, r.byEntry[id]...)
	}
	return out, nil
}

func entryID(id int64) *int64 { return &id }

func TestConcurrentLoads(t *testing.T) {
	repo := &countingRepo{byEntry: map[int64][]domain.Attachment{
		1: {{ID: 10, EntryID: entryID(1), Filename: "a.png"}},
		2: {{ID: 11, EntryID: entryID(2)}, {ID: 12, EntryID: entryID(2)}},
	}}
	loader := NewAttachmentLoader(repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([][]domain.Attachment, 3)
	for i, id := range []int64{1, 2, 3} {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			list, err := loader.Load(ctx, id)
			assert.NoError(t, err)
			results[i] = list
		}(i, id)
	}
	wg.Wait()

	loaded := 0
	for _, batch := range repo.batches {
		loaded += len(batch)
	}
	assert.Equal(t, 3, loaded)
	assert.Len(t, results[0], 1)
	assert.Len(t, results[1], 2)
	assert.Empty(t, results[2])
}

func TestLoadMany(t *testing.T) {
	repo := &countingRepo{byEntry: map[int64][]domain.Attachment{
		5: {{ID: 1, EntryID: entryID(5)}},
	}}
	loader := NewAttachmentLoader(repo)

	got, err := loader.LoadMany(context.Background(), []int64{5, 6})
	require.NoError(t, err)
	assert.Len(t, got[5], 1)
	assert.Empty(t, got[6])
	assert.Len(t, repo.batches, 1)
}
