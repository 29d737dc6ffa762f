// Package logbooks manages the logbook hierarchy and its revision history.
package logbooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/metrics"
	"github.com/rpattn/logbook/internal/repository"
	"github.com/rpattn/logbook/internal/revision"
	schemavalidator "github.com/rpattn/logbook/internal/schema/validator"
	"github.com/rpattn/logbook/internal/search"
	"github.com/rpattn/logbook/pkg/validator"

	"github.com/rs/zerolog"
)

// CreateInput is the payload for a new logbook.
type CreateInput struct {
	ParentID            *int64                 `json:"parentId"`
	Name                string                 `json:"name" validate:"required,max=255"`
	Description         string                 `json:"description"`
	Template            string                 `json:"template"`
	TemplateContentType string                 `json:"templateContentType" validate:"content_type"`
	Attributes          domain.AttributeSchema `json:"attributes"`
	Metadata            domain.Values          `json:"metadata"`
}

// UpdateInput changes the fields that are set. MoveToRoot detaches the
// logbook from its parent.
type UpdateInput struct {
	ParentID            *int64                  `json:"parentId"`
	MoveToRoot          bool                    `json:"moveToRoot"`
	Name                *string                 `json:"name" validate:"omitempty,min=1,max=255"`
	Description         *string                 `json:"description"`
	Template            *string                 `json:"template"`
	TemplateContentType *string                 `json:"templateContentType" validate:"omitempty,content_type"`
	Attributes          *domain.AttributeSchema `json:"attributes"`
	Metadata            domain.Values           `json:"metadata"`
	Archived            *bool                   `json:"archived"`

	ChangeAuthors []domain.Author `json:"changeAuthors"`
	ChangeComment string          `json:"changeComment"`
}

// Service implements logbook operations on top of a store.
type Service struct {
	store    repository.Store
	engine   *search.Engine
	validate *validator.Validator
	now      func() time.Time
	logger   zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for change timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger.With().Str("component", "logbooks").Logger()
	}
}

// NewService creates a logbook service. engine's logbook cache is invalidated
// on every write.
func NewService(store repository.Store, engine *search.Engine, opts ...Option) *Service {
	s := &Service{
		store:    store,
		engine:   engine,
		validate: validator.New(),
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new logbook.
func (s *Service) Create(ctx context.Context, input CreateInput) (domain.Logbook, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := s.validate.Struct(input); err != nil {
		return domain.Logbook{}, err
	}
	if err := schemavalidator.ValidateAttributes(input.Attributes); err != nil {
		return domain.Logbook{}, err
	}

	logbook := domain.NewLogbook(input.Name, input.Description, input.ParentID)
	logbook.Template = input.Template
	if input.TemplateContentType != "" {
		logbook.TemplateContentType = input.TemplateContentType
	}
	logbook = logbook.WithAttributes(input.Attributes)
	if input.Metadata != nil {
		logbook.Metadata = input.Metadata.Clone()
	}
	logbook.CreatedAt = s.now()

	var created domain.Logbook
	err := s.store.Within(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if input.ParentID != nil {
			if _, err := repos.Logbooks.GetByID(ctx, *input.ParentID); err != nil {
				return parentError(*input.ParentID, err)
			}
		}
		var err error
		created, err = repos.Logbooks.Create(ctx, logbook)
		return err
	})
	if err != nil {
		return domain.Logbook{}, err
	}

	s.engine.Invalidate()
	s.logger.Info().Int64("logbook_id", created.ID).Str("name", created.Name).Msg("logbook created")
	return created, nil
}

// Update applies input to logbook id and records the change.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput, ip string) (domain.Logbook, error) {
	if err := s.validate.Struct(input); err != nil {
		return domain.Logbook{}, err
	}
	if input.Attributes != nil {
		if err := schemavalidator.ValidateAttributes(*input.Attributes); err != nil {
			return domain.Logbook{}, err
		}
	}
	if input.MoveToRoot && input.ParentID != nil {
		return domain.Logbook{}, domain.NewValidationError("parentId", "cannot be combined with moveToRoot")
	}

	var updated domain.Logbook
	err := s.store.Within(ctx, func(ctx context.Context, repos repository.Repositories) error {
		live, err := repos.Logbooks.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		proposed := apply(live, input)
		if input.ParentID != nil {
			if err := s.checkParent(ctx, repos, id, *input.ParentID); err != nil {
				return err
			}
		}

		now := s.now()
		change, err := revision.Record(live, proposed, domain.ChangeInfo{
			Authors: input.ChangeAuthors,
			Comment: input.ChangeComment,
			IP:      ip,
		}, now)
		if err != nil {
			return err
		}
		change.RecordID = id
		if _, err := repos.Logbooks.AppendChange(ctx, change); err != nil {
			return fmt.Errorf("failed to record change: %w", err)
		}

		proposed.LastChangedAt = &now
		updated, err = repos.Logbooks.Update(ctx, proposed)
		return err
	})
	if err != nil {
		return domain.Logbook{}, err
	}

	metrics.ChangesRecorded.WithLabelValues("logbook").Inc()
	s.engine.Invalidate()
	s.logger.Info().Int64("logbook_id", id).Msg("logbook updated")
	return updated, nil
}

func apply(live domain.Logbook, input UpdateInput) domain.Logbook {
	proposed := live.Clone()
	switch {
	case input.MoveToRoot:
		proposed.ParentID = nil
	case input.ParentID != nil:
		parent := *input.ParentID
		proposed.ParentID = &parent
	}
	if input.Name != nil {
		proposed.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		proposed.Description = *input.Description
	}
	if input.Template != nil {
		proposed.Template = *input.Template
	}
	if input.TemplateContentType != nil {
		proposed.TemplateContentType = *input.TemplateContentType
	}
	if input.Attributes != nil {
		proposed = proposed.WithAttributes(*input.Attributes)
	}
	if input.Metadata != nil {
		proposed.Metadata = input.Metadata.Clone()
	}
	if input.Archived != nil {
		proposed.Archived = *input.Archived
	}
	return proposed
}

// checkParent rejects a parent that is missing or that lies below id.
func (s *Service) checkParent(ctx context.Context, repos repository.Repositories, id, parentID int64) error {
	if _, err := repos.Logbooks.GetByID(ctx, parentID); err != nil {
		return parentError(parentID, err)
	}
	all, err := repos.Logbooks.List(ctx)
	if err != nil {
		return err
	}
	below, err := search.NewIndex(all).IsDescendant(id, parentID)
	if err != nil {
		return err
	}
	if below {
		return domain.NewValidationError("parentId",
			fmt.Sprintf("logbook %d is %d itself or one of its descendants", parentID, id))
	}
	return nil
}

func parentError(parentID int64, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewValidationError("parentId", fmt.Sprintf("logbook %d does not exist", parentID))
	}
	return err
}

// Get returns the live logbook.
func (s *Service) Get(ctx context.Context, id int64) (domain.Logbook, error) {
	return s.store.Repositories().Logbooks.GetByID(ctx, id)
}

// List returns every logbook.
func (s *Service) List(ctx context.Context) ([]domain.Logbook, error) {
	return s.store.Repositories().Logbooks.List(ctx)
}

// Children returns the direct children of parentID, or the top-level
// logbooks when parentID is nil.
func (s *Service) Children(ctx context.Context, parentID *int64) ([]domain.Logbook, error) {
	if parentID != nil {
		if _, err := s.Get(ctx, *parentID); err != nil {
			return nil, err
		}
	}
	return s.store.Repositories().Logbooks.ListChildren(ctx, parentID)
}

// Ancestors returns the parent chain of id, outermost first.
func (s *Service) Ancestors(ctx context.Context, id int64) ([]domain.Logbook, error) {
	idx, err := s.engine.IndexFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return idx.Ancestors(id)
}

// Revision returns logbook id as of revision number version.
func (s *Service) Revision(ctx context.Context, id int64, version int) (domain.Revision[domain.Logbook], error) {
	repos := s.store.Repositories()
	live, err := repos.Logbooks.GetByID(ctx, id)
	if err != nil {
		return domain.Revision[domain.Logbook]{}, err
	}
	changes, err := repos.Logbooks.ListChanges(ctx, id)
	if err != nil {
		return domain.Revision[domain.Logbook]{}, err
	}
	return revision.Reconstruct(live, changes, version)
}

// Revisions lists every recorded change of logbook id.
func (s *Service) Revisions(ctx context.Context, id int64) ([]revision.Summary, error) {
	repos := s.store.Repositories()
	live, err := repos.Logbooks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	changes, err := repos.Logbooks.ListChanges(ctx, id)
	if err != nil {
		return nil, err
	}
	fields, err := live.Snapshot()
	if err != nil {
		return nil, err
	}
	return revision.Summaries(changes, fields, "description", "template"), nil
}
