// Package entries manages logbook entries: writes guarded by edit locks,
// attribute conversion, revisions and searches.
package entries

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rpattn/logbook/internal/attachments"
	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/lock"
	"github.com/rpattn/logbook/internal/media"
	"github.com/rpattn/logbook/internal/metrics"
	"github.com/rpattn/logbook/internal/repository"
	"github.com/rpattn/logbook/internal/revision"
	"github.com/rpattn/logbook/internal/search"
	"github.com/rpattn/logbook/pkg/validator"

	"github.com/rs/zerolog"
)

const defaultContentType = "text/html"

// CreateInput is the payload for a new entry or followup.
type CreateInput struct {
	Title         string          `json:"title" validate:"max=255"`
	Authors       []domain.Author `json:"authors" validate:"dive"`
	Content       string          `json:"content"`
	ContentType   string          `json:"contentType" validate:"content_type"`
	Attributes    domain.Values   `json:"attributes"`
	Metadata      domain.Values   `json:"metadata"`
	FollowsID     *int64          `json:"followsId"`
	AttachmentIDs []int64         `json:"attachments"`

	// CreatedAt backdates imported entries. Zero means now.
	CreatedAt time.Time `json:"-"`
}

// UpdateInput changes the fields that are set.
type UpdateInput struct {
	Title         *string         `json:"title" validate:"omitempty,max=255"`
	Authors       []domain.Author `json:"authors" validate:"omitempty,dive"`
	Content       *string         `json:"content"`
	ContentType   *string         `json:"contentType" validate:"omitempty,content_type"`
	Attributes    domain.Values   `json:"attributes"`
	Metadata      domain.Values   `json:"metadata"`
	Archived      *bool           `json:"archived"`
	AttachmentIDs []int64         `json:"attachments"`

	ChangeAuthors []domain.Author `json:"changeAuthors"`
	ChangeComment string          `json:"changeComment"`
}

// Requester identifies who submits an edit. UnlockID acknowledges and
// overrides a lock held by someone else when it equals the entry id.
type Requester struct {
	Owner    string
	IP       string
	UnlockID *int64
}

// Service implements entry operations.
type Service struct {
	store        repository.Store
	engine       *search.Engine
	locks        *lock.Manager
	files        *attachments.Store
	validate     *validator.Validator
	defaultLimit int
	logger       zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger.With().Str("component", "entries").Logger()
	}
}

// WithDefaultLimit sets the page size used when a search names none.
func WithDefaultLimit(limit int) Option {
	return func(s *Service) {
		s.defaultLimit = limit
	}
}

// NewService creates an entry service. Timestamps come from the lock
// manager's clock.
func NewService(store repository.Store, engine *search.Engine, locks *lock.Manager, files *attachments.Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		engine:       engine,
		locks:        locks,
		files:        files,
		validate:     validator.New(),
		defaultLimit: 50,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultLimit is the page size used when a search names none.
func (s *Service) DefaultLimit() int {
	return s.defaultLimit
}

// Create stores a new entry in logbookID. A followup is attached to the root
// of the thread it follows, which must live in the same logbook.
func (s *Service) Create(ctx context.Context, logbookID int64, input CreateInput) (domain.Entry, error) {
	if err := s.validate.Struct(input); err != nil {
		return domain.Entry{}, err
	}

	var created domain.Entry
	err := s.store.Within(ctx, func(ctx context.Context, repos repository.Repositories) error {
		logbook, err := repos.Logbooks.GetByID(ctx, logbookID)
		if err != nil {
			return err
		}

		now := s.locks.Now()
		entry := domain.Entry{
			LogbookID:   logbookID,
			Title:       strings.TrimSpace(input.Title),
			Authors:     input.Authors,
			Content:     input.Content,
			ContentType: input.ContentType,
			Metadata:    input.Metadata.Clone(),
			CreatedAt:   now,
		}
		if !input.CreatedAt.IsZero() {
			entry.CreatedAt = input.CreatedAt
		}
		if entry.ContentType == "" {
			entry.ContentType = defaultContentType
		}
		if entry.Metadata == nil {
			entry.Metadata = domain.Values{}
		}

		if input.FollowsID != nil {
			rootID, err := s.threadRoot(ctx, repos, logbookID, *input.FollowsID)
			if err != nil {
				return err
			}
			entry.FollowsID = &rootID
		}

		entry.Attributes, err = convertAttributes(logbook.Attributes, input.Attributes)
		if err != nil {
			return err
		}

		embedded, err := s.extractMedia(ctx, repos, &entry)
		if err != nil {
			return err
		}

		created, err = repos.Entries.Create(ctx, entry)
		if err != nil {
			return err
		}
		return assignAttachments(ctx, repos, created.ID, input.AttachmentIDs, embedded)
	})
	if err != nil {
		return domain.Entry{}, err
	}

	s.logger.Info().Int64("entry_id", created.ID).Int64("logbook_id", logbookID).Msg("entry created")
	return created, nil
}

func (s *Service) threadRoot(ctx context.Context, repos repository.Repositories, logbookID, followsID int64) (int64, error) {
	followed, err := repos.Entries.GetByID(ctx, followsID)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, domain.NewValidationError("followsId", fmt.Sprintf("entry %d does not exist", followsID))
	}
	if err != nil {
		return 0, err
	}
	root := followed
	if !followed.IsThreadRoot() {
		if root, err = repos.Entries.GetByID(ctx, followed.ThreadID()); err != nil {
			return 0, err
		}
	}
	if root.LogbookID != logbookID {
		return 0, domain.NewValidationError("followsId",
			fmt.Sprintf("entry %d belongs to logbook %d", root.ID, root.LogbookID))
	}
	return root.ID, nil
}

// Update applies input to entry id on behalf of req. The edit goes through
// the lock policy first; when blocked, the LockedError carries the entry as
// it would have been stored.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput, req Requester) (domain.Entry, error) {
	if err := s.validate.Struct(input); err != nil {
		return domain.Entry{}, err
	}

	var updated domain.Entry
	err := s.store.Within(ctx, func(ctx context.Context, repos repository.Repositories) error {
		live, err := repos.Entries.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		logbook, err := repos.Logbooks.GetByID(ctx, live.LogbookID)
		if err != nil {
			return err
		}

		proposed, err := apply(live, logbook.Attributes, input)
		if err != nil {
			return err
		}

		if err := s.locks.AdmitEdit(ctx, repos.Locks, id, req.Owner, req.UnlockID); err != nil {
			var locked *domain.LockedError
			if errors.As(err, &locked) {
				locked.Proposed = &proposed
			}
			return err
		}

		embedded, err := s.extractMedia(ctx, repos, &proposed)
		if err != nil {
			return err
		}

		now := s.locks.Now()
		change, err := revision.Record(live, proposed, domain.ChangeInfo{
			Authors: input.ChangeAuthors,
			Comment: input.ChangeComment,
			IP:      req.IP,
		}, now)
		if err != nil {
			return err
		}
		change.RecordID = id
		if _, err := repos.Entries.AppendChange(ctx, change); err != nil {
			return fmt.Errorf("failed to record change: %w", err)
		}

		proposed.LastChangedAt = &now
		if updated, err = repos.Entries.Update(ctx, proposed); err != nil {
			return err
		}
		return assignAttachments(ctx, repos, id, input.AttachmentIDs, embedded)
	})
	if err != nil {
		return domain.Entry{}, err
	}

	metrics.ChangesRecorded.WithLabelValues("entry").Inc()
	s.logger.Info().Int64("entry_id", id).Str("owner", req.Owner).Msg("entry updated")
	return updated, nil
}

func apply(live domain.Entry, schema domain.AttributeSchema, input UpdateInput) (domain.Entry, error) {
	proposed := live.Clone()
	if input.Title != nil {
		proposed.Title = strings.TrimSpace(*input.Title)
	}
	if input.Authors != nil {
		proposed.Authors = append([]domain.Author(nil), input.Authors...)
	}
	if input.Content != nil {
		proposed.Content = *input.Content
	}
	if input.ContentType != nil && *input.ContentType != "" {
		proposed.ContentType = *input.ContentType
	}
	if input.Metadata != nil {
		proposed.Metadata = input.Metadata.Clone()
	}
	if input.Archived != nil {
		proposed.Archived = *input.Archived
	}
	if input.Attributes != nil {
		attrs, err := convertAttributes(schema, input.Attributes)
		if err != nil {
			return domain.Entry{}, err
		}
		proposed.Attributes = attrs
	}
	return proposed, nil
}

// convertAttributes converts every submitted value through schema and checks
// that required attributes are present. Problems are collected per attribute.
func convertAttributes(schema domain.AttributeSchema, raw domain.Values) (domain.Values, error) {
	var problems domain.ValidationErrors
	out := make(domain.Values, len(raw))

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, err := schema.Convert(name, raw[name])
		var verrs domain.ValidationErrors
		switch {
		case errors.Is(err, domain.ErrNotFound):
			problems = append(problems, domain.FieldError{Field: "attributes." + name, Message: "unknown attribute"})
		case errors.As(err, &verrs):
			problems = append(problems, verrs...)
		case err != nil:
			return nil, err
		case value.IsSet():
			out[name] = value
		}
	}

	for _, def := range schema {
		if _, submitted := raw[def.Name]; def.Required && !submitted {
			problems = append(problems, domain.FieldError{Field: "attributes." + def.Name, Message: "value is required"})
		}
	}

	if len(problems) > 0 {
		return nil, problems
	}
	return out, nil
}

// extractMedia moves inline images of HTML content into attachments and
// returns their ids. Content that cannot be parsed is stored as submitted.
func (s *Service) extractMedia(ctx context.Context, repos repository.Repositories, entry *domain.Entry) ([]int64, error) {
	if s.files == nil || entry.ContentType != defaultContentType {
		return nil, nil
	}

	now := s.locks.Now()
	save := func(ctx context.Context, data []byte, filename, contentType string) (domain.Attachment, error) {
		return s.files.Save(ctx, repos.Attachments, attachments.Upload{
			Data:        data,
			Filename:    filename,
			ContentType: contentType,
			Timestamp:   now,
			Embedded:    true,
		})
	}

	content, saved, err := media.ExtractEmbedded(ctx, entry.Content, save)
	switch {
	case errors.Is(err, media.ErrMalformedContent):
		metrics.MediaExtraction.WithLabelValues("malformed").Inc()
		s.logger.Warn().Err(err).Int64("entry_id", entry.ID).Msg("keeping content with undecodable inline images")
		return nil, nil
	case err != nil:
		metrics.MediaExtraction.WithLabelValues("failed").Inc()
		return nil, err
	}
	if len(saved) == 0 {
		return nil, nil
	}

	metrics.MediaExtraction.WithLabelValues("extracted").Add(float64(len(saved)))
	entry.Content = content
	ids := make([]int64, len(saved))
	for i, a := range saved {
		ids[i] = a.ID
	}
	return ids, nil
}

func assignAttachments(ctx context.Context, repos repository.Repositories, entryID int64, submitted, embedded []int64) error {
	ids := make([]int64, 0, len(submitted)+len(embedded))
	ids = append(append(ids, submitted...), embedded...)
	if len(ids) == 0 {
		return nil
	}
	err := repos.Attachments.AssignEntry(ctx, ids, entryID)
	var missing *domain.NotFoundError
	if errors.As(err, &missing) && missing.Resource == "attachment" {
		return domain.NewValidationError("attachments", err.Error())
	}
	return err
}

// Get returns the live entry.
func (s *Service) Get(ctx context.Context, id int64) (domain.Entry, error) {
	return s.store.Repositories().Entries.GetByID(ctx, id)
}

// Attachments returns the attachments of the given entries.
func (s *Service) Attachments(ctx context.Context, entryIDs []int64) ([]domain.Attachment, error) {
	return s.store.Repositories().Attachments.ListByEntries(ctx, entryIDs)
}

// Revision returns entry id as of revision number version.
func (s *Service) Revision(ctx context.Context, id int64, version int) (domain.Revision[domain.Entry], error) {
	repos := s.store.Repositories()
	live, err := repos.Entries.GetByID(ctx, id)
	if err != nil {
		return domain.Revision[domain.Entry]{}, err
	}
	changes, err := repos.Entries.ListChanges(ctx, id)
	if err != nil {
		return domain.Revision[domain.Entry]{}, err
	}
	return revision.Reconstruct(live, changes, version)
}

// Revisions lists every recorded change of entry id with content patches.
func (s *Service) Revisions(ctx context.Context, id int64) ([]revision.Summary, error) {
	repos := s.store.Repositories()
	live, err := repos.Entries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	changes, err := repos.Entries.ListChanges(ctx, id)
	if err != nil {
		return nil, err
	}
	fields, err := live.Snapshot()
	if err != nil {
		return nil, err
	}
	return revision.Summaries(changes, fields, "title", "content"), nil
}

// Search runs q through the search engine.
func (s *Service) Search(ctx context.Context, q domain.EntryQuery) (domain.SearchResult, error) {
	return s.engine.Search(ctx, q)
}

// Count returns the number of results q matches.
func (s *Service) Count(ctx context.Context, q domain.EntryQuery) (int, error) {
	return s.engine.Count(ctx, q)
}

// Histogram counts matching threads per day.
func (s *Service) Histogram(ctx context.Context, q domain.EntryQuery) ([]domain.HistogramBucket, error) {
	return s.engine.Histogram(ctx, q)
}

// Next returns the following thread in the entry's logbook, or nil.
func (s *Service) Next(ctx context.Context, id int64) (*domain.Entry, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.engine.Next(ctx, entry)
}

// Previous returns the preceding thread in the entry's logbook, or nil.
func (s *Service) Previous(ctx context.Context, id int64) (*domain.Entry, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.engine.Previous(ctx, entry)
}

// Lock returns the active lock on entry id, or nil.
func (s *Service) Lock(ctx context.Context, id int64) (*domain.EntryLock, error) {
	return s.locks.Current(ctx, id)
}

// AcquireLock locks entry id for owner, cancelling another owner's lock when
// steal is set.
func (s *Service) AcquireLock(ctx context.Context, id int64, owner string, steal bool) (domain.EntryLock, error) {
	if steal {
		return s.locks.Steal(ctx, id, owner)
	}
	return s.locks.Acquire(ctx, id, owner)
}

// ReleaseLock releases owner's lock on entry id. With lockID set, the named
// lock is cancelled whoever owns it, provided it is the active one.
func (s *Service) ReleaseLock(ctx context.Context, id int64, owner string, lockID *int64) (*domain.EntryLock, error) {
	if lockID == nil {
		return s.locks.Release(ctx, id, owner)
	}

	current, err := s.locks.Current(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil || current.ID != *lockID {
		return nil, domain.NewNotFound("lock", *lockID)
	}
	return s.locks.Cancel(ctx, id, owner)
}
