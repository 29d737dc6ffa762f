package entries

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/rpattn/logbook/internal/attachments"
	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/lock"
	"github.com/rpattn/logbook/internal/repository/memory"
	"github.com/rpattn/logbook/internal/search"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *memory.Store
	service *Service
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:   t,
		ctx: context.Background(),
		now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.store = memory.NewStore(memory.WithClock(clock))
	locks := lock.NewManager(f.store, lock.WithClock(clock))
	files := attachments.NewStore(t.TempDir(), zerolog.Nop())
	f.service = NewService(f.store, search.NewEngine(f.store.Repositories()), locks, files)
	return f
}

func (f *fixture) tick(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) logbook(name string, attrs ...domain.AttributeDefinition) domain.Logbook {
	f.t.Helper()
	lb := domain.NewLogbook(name, "", nil).WithAttributes(attrs)
	created, err := f.store.Repositories().Logbooks.Create(f.ctx, lb)
	require.NoError(f.t, err)
	return created
}

func ptr[T any](v T) *T { return &v }

func TestScenarioRevisionOfEditedTitle(t *testing.T) {
	f := newFixture(t)
	ops := f.logbook("Ops")

	entry, err := f.service.Create(f.ctx, ops.ID, CreateInput{Title: "A", Content: "hello"})
	require.NoError(t, err)
	f.tick(time.Minute)

	_, err = f.service.Update(f.ctx, entry.ID, UpdateInput{Title: ptr("B")}, Requester{Owner: "alice"})
	require.NoError(t, err)

	first, err := f.service.Revision(f.ctx, entry.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "A", first.Record.Title)
	assert.Equal(t, "hello", first.Record.Content)

	current, err := f.service.Revision(f.ctx, entry.ID, 1)
	require.NoError(t, err)
	assert.True(t, current.IsLive())
	assert.Equal(t, "B", current.Record.Title)
	assert.Equal(t, 1, current.Count)

	_, err = f.service.Revision(f.ctx, entry.ID, 2)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCreateConvertsAttributes(t *testing.T) {
	f := newFixture(t)
	lb := f.logbook("Ops",
		domain.AttributeDefinition{Name: "priority", Type: domain.AttributeTypeNumber, Required: true},
		domain.AttributeDefinition{Name: "systems", Type: domain.AttributeTypeMultiOption, Options: []string{"rf", "vac"}},
		domain.AttributeDefinition{Name: "note", Type: domain.AttributeTypeText},
	)

	entry, err := f.service.Create(f.ctx, lb.ID, CreateInput{
		Title: "t",
		Attributes: domain.Values{
			"priority": domain.TextValue("5"),
			"systems":  domain.TextValue("rf"),
			"note":     domain.TextValue(""),
		},
	})
	require.NoError(t, err)

	priority, ok := entry.Attributes["priority"].Number()
	require.True(t, ok)
	assert.Equal(t, 5.0, priority)
	systems, ok := entry.Attributes["systems"].StringList()
	require.True(t, ok)
	assert.Equal(t, []string{"rf"}, systems)
	assert.NotContains(t, entry.Attributes, "note")
}

func TestCreateReportsEveryAttributeProblem(t *testing.T) {
	f := newFixture(t)
	lb := f.logbook("Ops",
		domain.AttributeDefinition{Name: "priority", Type: domain.AttributeTypeNumber},
		domain.AttributeDefinition{Name: "shift", Type: domain.AttributeTypeText, Required: true},
	)

	_, err := f.service.Create(f.ctx, lb.ID, CreateInput{Attributes: domain.Values{
		"priority": domain.TextValue("high"),
		"colour":   domain.TextValue("red"),
	}})
	var verrs domain.ValidationErrors
	require.True(t, errors.As(err, &verrs))

	fields := map[string]bool{}
	for _, fe := range verrs {
		fields[fe.Field] = true
	}
	assert.True(t, fields["attributes.priority"])
	assert.True(t, fields["attributes.colour"])
	assert.True(t, fields["attributes.shift"])

	result, err := f.service.Search(f.ctx, domain.EntryQuery{})
	require.NoError(t, err)
	assert.Zero(t, result.Total)
}

func TestFollowupAttachesToThreadRoot(t *testing.T) {
	f := newFixture(t)
	lb := f.logbook("Ops")
	other := f.logbook("Other")

	root, err := f.service.Create(f.ctx, lb.ID, CreateInput{Title: "root"})
	require.NoError(t, err)
	first, err := f.service.Create(f.ctx, lb.ID, CreateInput{FollowsID: &root.ID})
	require.NoError(t, err)
	second, err := f.service.Create(f.ctx, lb.ID, CreateInput{FollowsID: &first.ID})
	require.NoError(t, err)
	require.NotNil(t, second.FollowsID)
	assert.Equal(t, root.ID, *second.FollowsID)

	_, err = f.service.Create(f.ctx, other.ID, CreateInput{FollowsID: &root.ID})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = f.service.Create(f.ctx, lb.ID, CreateInput{FollowsID: ptr(int64(999))})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	result, err := f.service.Search(f.ctx, domain.EntryQuery{LogbookID: &lb.ID})
	require.NoError(t, err)
	require.Len(t, result.Threads, 1)
	assert.Equal(t, 2, result.Threads[0].NFollowups)
}

func TestCreateInUnknownLogbook(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Create(f.ctx, 12, CreateInput{Title: "x"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestUpdateLockPolicy(t *testing.T) {
	f := newFixture(t)
	lb := f.logbook("Ops")
	entry, err := f.service.Create(f.ctx, lb.ID, CreateInput{Title: "A"})
	require.NoError(t, err)

	held, err := f.service.AcquireLock(f.ctx, entry.ID, "alice", false)
	require.NoError(t, err)

	t.Run("other owner is blocked with proposed entry", func(t *testing.T) {
		_, err := f.service.Update(f.ctx, entry.ID, UpdateInput{Title: ptr("by bob")}, Requester{Owner: "bob"})
		var locked *domain.LockedError
		require.True(t, errors.As(err, &locked))
		assert.Equal(t, held.ID, locked.Lock.ID)
		require.NotNil(t, locked.Proposed)
		assert.Equal(t, "by bob", locked.Proposed.Title)

		live, err := f.service.Get(f.ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, "A", live.Title)
	})

	t.Run("unlock acknowledgment overrides", func(t *testing.T) {
		_, err := f.service.Update(f.ctx, entry.ID, UpdateInput{Title: ptr("by bob")},
			Requester{Owner: "bob", UnlockID: &entry.ID})
		require.NoError(t, err)

		current, err := f.service.Lock(f.ctx, entry.ID)
		require.NoError(t, err)
		assert.Nil(t, current)
	})

	t.Run("owner edit releases own lock", func(t *testing.T) {
		_, err := f.service.AcquireLock(f.ctx, entry.ID, "carol", false)
		require.NoError(t, err)
		_, err = f.service.Update(f.ctx, entry.ID, UpdateInput{Title: ptr("by carol")}, Requester{Owner: "carol"})
		require.NoError(t, err)

		current, err := f.service.Lock(f.ctx, entry.ID)
		require.NoError(t, err)
		assert.Nil(t, current)
	})

	t.Run("expired lock does not block", func(t *testing.T) {
		_, err := f.service.AcquireLock(f.ctx, entry.ID, "dave", false)
		require.NoError(t, err)
		f.tick(domain.DefaultLockTTL + time.Second)
		_, err = f.service.Update(f.ctx, entry.ID, UpdateInput{Title: ptr("late")}, Requester{Owner: "erin"})
		require.NoError(t, err)
	})

	revisions, err := f.service.Revisions(f.ctx, entry.ID)
	require.NoError(t, err)
	assert.Len(t, revisions, 3)
}

func TestReleaseLockByID(t *testing.T) {
	f := newFixture(t)
	lb := f.logbook("Ops")
	entry, err := f.service.Create(f.ctx, lb.ID, CreateInput{Title: "A"})
	require.NoError(t, err)

	held, err := f.service.AcquireLock(f.ctx, entry.ID, "alice", false)
	require.NoError(t, err)

	released, err := f.service.ReleaseLock(f.ctx, entry.ID, "bob", nil)
	require.NoError(t, err)
	assert.Nil(t, released)

	_, err = f.service.ReleaseLock(f.ctx, entry.ID, "bob", ptr(held.ID+1))
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	cancelled, err := f.service.ReleaseLock(f.ctx, entry.ID, "bob", &held.ID)
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, "bob", *cancelled.CancelledBy)

	stolen, err := f.service.AcquireLock(f.ctx, entry.ID, "carol", true)
	require.NoError(t, err)
	assert.Equal(t, "carol", stolen.OwnedBy)
}

func TestEmbeddedImagesBecomeAttachments(t *testing.T) {
	f := newFixture(t)
	lb := f.logbook("Ops")
	img := base64.StdEncoding.EncodeToString([]byte("gif-bytes"))

	entry, err := f.service.Create(f.ctx, lb.ID, CreateInput{
		Title:   "plot",
		Content: `<p>see</p><img src="data:image/gif;base64,` + img + `">`,
	})
	require.NoError(t, err)
	assert.NotContains(t, entry.Content, "base64")

	list, err := f.service.Attachments(f.ctx, []int64{entry.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Embedded)
	assert.Equal(t, "image/gif", list[0].ContentType)
	assert.Contains(t, entry.Content, list[0].Path)
}

func TestMalformedEmbeddedImageKeepsContent(t *testing.T) {
	f := newFixture(t)
	lb := f.logbook("Ops")
	content := `<img src="data:image/png;base64,%%%">`

	entry, err := f.service.Create(f.ctx, lb.ID, CreateInput{Content: content})
	require.NoError(t, err)
	assert.Equal(t, content, entry.Content)

	list, err := f.service.Attachments(f.ctx, []int64{entry.ID})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubmittedAttachmentsAreLinked(t *testing.T) {
	f := newFixture(t)
	lb := f.logbook("Ops")
	upload, err := f.store.Repositories().Attachments.Create(f.ctx, domain.Attachment{Filename: "log.txt", Path: "x/log.txt"})
	require.NoError(t, err)

	entry, err := f.service.Create(f.ctx, lb.ID, CreateInput{Title: "t", AttachmentIDs: []int64{upload.ID}})
	require.NoError(t, err)

	list, err := f.service.Attachments(f.ctx, []int64{entry.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, upload.ID, list[0].ID)

	_, err = f.service.Create(f.ctx, lb.ID, CreateInput{Title: "t", AttachmentIDs: []int64{404}})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestNextAndPreviousByID(t *testing.T) {
	f := newFixture(t)
	lb := f.logbook("Ops")
	first, err := f.service.Create(f.ctx, lb.ID, CreateInput{Title: "1"})
	require.NoError(t, err)
	f.tick(time.Minute)
	second, err := f.service.Create(f.ctx, lb.ID, CreateInput{Title: "2"})
	require.NoError(t, err)

	next, err := f.service.Next(f.ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, second.ID, next.ID)

	prev, err := f.service.Previous(f.ctx, first.ID)
	require.NoError(t, err)
	assert.Nil(t, prev)
}
