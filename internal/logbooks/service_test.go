package logbooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/repository/memory"
	"github.com/rpattn/logbook/internal/search"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *Service {
	t.Helper()
	store := memory.NewStore()
	clock := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	return NewService(store, search.NewEngine(store.Repositories()), WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
}

func ptr[T any](v T) *T { return &v }

func TestCreateDefaultsAndParent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, CreateInput{Name: "  Operations  "})
	require.NoError(t, err)
	assert.Equal(t, "Operations", root.Name)
	assert.Equal(t, "text/html", root.TemplateContentType)

	child, err := svc.Create(ctx, CreateInput{Name: "Shift", ParentID: &root.ID})
	require.NoError(t, err)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, root.ID, *child.ParentID)

	children, err := svc.Children(ctx, &root.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)

	roots, err := svc.Children(ctx, nil)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, root.ID, roots[0].ID)
}

func TestCreateValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: ""})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = svc.Create(ctx, CreateInput{Name: "x", ParentID: ptr(int64(99))})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = svc.Create(ctx, CreateInput{Name: "x", Attributes: domain.AttributeSchema{
		{Name: "a", Type: domain.AttributeTypeOption},
	}})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestUpdateRecordsRevisions(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	lb, err := svc.Create(ctx, CreateInput{Name: "Ops", Description: "first"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, lb.ID, UpdateInput{Description: ptr("second"), ChangeComment: "typo"}, "10.0.0.1")
	require.NoError(t, err)
	updated, err := svc.Update(ctx, lb.ID, UpdateInput{Name: ptr("Operations")}, "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, "Operations", updated.Name)
	assert.Equal(t, "second", updated.Description)
	require.NotNil(t, updated.LastChangedAt)

	first, err := svc.Revision(ctx, lb.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "Ops", first.Record.Name)
	assert.Equal(t, "first", first.Record.Description)
	assert.Equal(t, 2, first.Count)
	require.NotNil(t, first.Change)
	assert.Equal(t, "typo", first.Change.Comment)
	assert.Equal(t, "10.0.0.1", first.Change.IP)

	live, err := svc.Revision(ctx, lb.ID, 2)
	require.NoError(t, err)
	assert.True(t, live.IsLive())
	assert.Equal(t, "Operations", live.Record.Name)

	_, err = svc.Revision(ctx, lb.ID, 3)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	summaries, err := svc.Revisions(ctx, lb.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Len(t, summaries[0].Fields, 1)
	assert.Equal(t, "description", summaries[0].Fields[0].Field)
	assert.NotEmpty(t, summaries[0].Fields[0].Patch)
}

func TestUpdateRejectsCyclicParent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateInput{Name: "a"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, CreateInput{Name: "b", ParentID: &a.ID})
	require.NoError(t, err)
	c, err := svc.Create(ctx, CreateInput{Name: "c", ParentID: &b.ID})
	require.NoError(t, err)

	_, err = svc.Update(ctx, a.ID, UpdateInput{ParentID: &c.ID}, "")
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = svc.Update(ctx, a.ID, UpdateInput{ParentID: &a.ID}, "")
	assert.True(t, errors.Is(err, domain.ErrValidation))

	changes, err := svc.Revisions(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, changes)

	moved, err := svc.Update(ctx, c.ID, UpdateInput{MoveToRoot: true}, "")
	require.NoError(t, err)
	assert.Nil(t, moved.ParentID)

	chain, err := svc.Ancestors(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, a.ID, chain[0].ID)
}

func TestUpdateUnknownLogbook(t *testing.T) {
	svc := newService(t)
	_, err := svc.Update(context.Background(), 42, UpdateInput{Name: ptr("x")}, "")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
