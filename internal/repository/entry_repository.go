package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/logbook/internal/db"
	"github.com/rpattn/logbook/internal/domain"
)

const entryColumns = `id, logbook_id, title, authors, content, content_type, attributes,
	metadata, follows_id, archived, created_at, last_changed_at`

// entryRepository implements EntryRepository interface
type entryRepository struct {
	q db.DBTX
}

// NewEntryRepository creates a new entry repository
func NewEntryRepository(q db.DBTX) EntryRepository {
	return &entryRepository{q: q}
}

// Create inserts a new entry
func (r *entryRepository) Create(ctx context.Context, entry domain.Entry) (domain.Entry, error) {
	authors, attributes, metadata, err := entryJSON(entry)
	if err != nil {
		return domain.Entry{}, err
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO entries (logbook_id, title, authors, content, content_type, attributes,
			metadata, follows_id, archived, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10::timestamptz, now()))
		RETURNING `+entryColumns,
		entry.LogbookID, entry.Title, authors, entry.Content, entry.ContentType, attributes,
		metadata, entry.FollowsID, entry.Archived, optionalTime(entry.CreatedAt),
	)

	created, err := buildEntry(row)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("failed to create entry: %w", err)
	}
	return created, nil
}

// GetByID retrieves an entry by ID
func (r *entryRepository) GetByID(ctx context.Context, id int64) (domain.Entry, error) {
	row := r.q.QueryRow(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = $1`, id)
	entry, err := buildEntry(row)
	if err != nil {
		return domain.Entry{}, notFound(err, "entry", id)
	}
	return entry, nil
}

// GetForUpdate retrieves an entry and locks its row for the transaction.
// Lock acquisition and edits of the same entry serialize on this row.
func (r *entryRepository) GetForUpdate(ctx context.Context, id int64) (domain.Entry, error) {
	row := r.q.QueryRow(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = $1 FOR UPDATE`, id)
	entry, err := buildEntry(row)
	if err != nil {
		return domain.Entry{}, notFound(err, "entry", id)
	}
	return entry, nil
}

// ListByLogbooks returns the entries of the given logbooks ordered by id
func (r *entryRepository) ListByLogbooks(ctx context.Context, logbookIDs []int64, includeArchived bool) ([]domain.Entry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE ($1::bigint[] IS NULL OR logbook_id = ANY($1::bigint[]))
		  AND ($2 OR NOT archived)
		ORDER BY id`, logbookIDs, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.Entry, 0)
	for rows.Next() {
		entry, err := buildEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

// Update overwrites the versioned fields of an entry
func (r *entryRepository) Update(ctx context.Context, entry domain.Entry) (domain.Entry, error) {
	authors, attributes, metadata, err := entryJSON(entry)
	if err != nil {
		return domain.Entry{}, err
	}

	row := r.q.QueryRow(ctx, `
		UPDATE entries
		SET logbook_id = $2, title = $3, authors = $4, content = $5, content_type = $6,
			attributes = $7, metadata = $8, follows_id = $9, archived = $10,
			last_changed_at = $11
		WHERE id = $1
		RETURNING `+entryColumns,
		entry.ID, entry.LogbookID, entry.Title, authors, entry.Content, entry.ContentType,
		attributes, metadata, entry.FollowsID, entry.Archived, entry.LastChangedAt,
	)

	updated, err := buildEntry(row)
	if err != nil {
		return domain.Entry{}, notFound(err, "entry", entry.ID)
	}
	return updated, nil
}

// AppendChange stores an entry change
func (r *entryRepository) AppendChange(ctx context.Context, change domain.Change) (domain.Change, error) {
	return appendChange(ctx, r.q, "entry_changes", "entry_id", change)
}

// ListChanges returns the changes of an entry, oldest first
func (r *entryRepository) ListChanges(ctx context.Context, entryID int64) ([]domain.Change, error) {
	return listChanges(ctx, r.q, "entry_changes", "entry_id", entryID)
}

func entryJSON(entry domain.Entry) (authors, attributes, metadata []byte, err error) {
	authorList := entry.Authors
	if authorList == nil {
		authorList = []domain.Author{}
	}
	if authors, err = marshalJSONB(authorList); err != nil {
		return nil, nil, nil, err
	}
	attrs := entry.Attributes
	if attrs == nil {
		attrs = domain.Values{}
	}
	if attributes, err = marshalJSONB(attrs); err != nil {
		return nil, nil, nil, err
	}
	meta := entry.Metadata
	if meta == nil {
		meta = domain.Values{}
	}
	if metadata, err = marshalJSONB(meta); err != nil {
		return nil, nil, nil, err
	}
	return authors, attributes, metadata, nil
}

func buildEntry(row scanner) (domain.Entry, error) {
	var (
		entry          domain.Entry
		authorsJSON    []byte
		attributesJSON []byte
		metadataJSON   []byte
	)
	if err := row.Scan(
		&entry.ID, &entry.LogbookID, &entry.Title, &authorsJSON, &entry.Content, &entry.ContentType,
		&attributesJSON, &metadataJSON, &entry.FollowsID, &entry.Archived, &entry.CreatedAt,
		&entry.LastChangedAt,
	); err != nil {
		return domain.Entry{}, err
	}
	if err := unmarshalJSONB(authorsJSON, &entry.Authors); err != nil {
		return domain.Entry{}, err
	}
	if err := unmarshalJSONB(attributesJSON, &entry.Attributes); err != nil {
		return domain.Entry{}, err
	}
	if err := unmarshalJSONB(metadataJSON, &entry.Metadata); err != nil {
		return domain.Entry{}, err
	}
	return entry, nil
}
