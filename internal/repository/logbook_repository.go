package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/logbook/internal/db"
	"github.com/rpattn/logbook/internal/domain"
)

const logbookColumns = `id, parent_id, name, description, template, template_content_type,
	attributes, metadata, archived, created_at, last_changed_at`

// logbookRepository implements LogbookRepository interface
type logbookRepository struct {
	q db.DBTX
}

// NewLogbookRepository creates a new logbook repository
func NewLogbookRepository(q db.DBTX) LogbookRepository {
	return &logbookRepository{q: q}
}

// Create inserts a new logbook
func (r *logbookRepository) Create(ctx context.Context, logbook domain.Logbook) (domain.Logbook, error) {
	attributes, metadata, err := logbookJSON(logbook)
	if err != nil {
		return domain.Logbook{}, err
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO logbooks (parent_id, name, description, template, template_content_type,
			attributes, metadata, archived, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9::timestamptz, now()))
		RETURNING `+logbookColumns,
		logbook.ParentID, logbook.Name, logbook.Description, logbook.Template,
		logbook.TemplateContentType, attributes, metadata, logbook.Archived,
		optionalTime(logbook.CreatedAt),
	)

	created, err := buildLogbook(row)
	if err != nil {
		return domain.Logbook{}, fmt.Errorf("failed to create logbook: %w", err)
	}
	return created, nil
}

// GetByID retrieves a logbook by ID
func (r *logbookRepository) GetByID(ctx context.Context, id int64) (domain.Logbook, error) {
	row := r.q.QueryRow(ctx, `SELECT `+logbookColumns+` FROM logbooks WHERE id = $1`, id)
	logbook, err := buildLogbook(row)
	if err != nil {
		return domain.Logbook{}, notFound(err, "logbook", id)
	}
	return logbook, nil
}

// GetForUpdate retrieves a logbook and locks its row for the transaction
func (r *logbookRepository) GetForUpdate(ctx context.Context, id int64) (domain.Logbook, error) {
	row := r.q.QueryRow(ctx, `SELECT `+logbookColumns+` FROM logbooks WHERE id = $1 FOR UPDATE`, id)
	logbook, err := buildLogbook(row)
	if err != nil {
		return domain.Logbook{}, notFound(err, "logbook", id)
	}
	return logbook, nil
}

// List returns every logbook ordered by id
func (r *logbookRepository) List(ctx context.Context) ([]domain.Logbook, error) {
	return r.query(ctx, `SELECT `+logbookColumns+` FROM logbooks ORDER BY id`)
}

// ListChildren returns the direct children of parentID, or the root logbooks
// when parentID is nil
func (r *logbookRepository) ListChildren(ctx context.Context, parentID *int64) ([]domain.Logbook, error) {
	return r.query(ctx, `
		SELECT `+logbookColumns+`
		FROM logbooks
		WHERE parent_id IS NOT DISTINCT FROM $1::bigint
		ORDER BY id`, parentID)
}

// Update overwrites the versioned fields of a logbook
func (r *logbookRepository) Update(ctx context.Context, logbook domain.Logbook) (domain.Logbook, error) {
	attributes, metadata, err := logbookJSON(logbook)
	if err != nil {
		return domain.Logbook{}, err
	}

	row := r.q.QueryRow(ctx, `
		UPDATE logbooks
		SET parent_id = $2, name = $3, description = $4, template = $5,
			template_content_type = $6, attributes = $7, metadata = $8,
			archived = $9, last_changed_at = $10
		WHERE id = $1
		RETURNING `+logbookColumns,
		logbook.ID, logbook.ParentID, logbook.Name, logbook.Description, logbook.Template,
		logbook.TemplateContentType, attributes, metadata, logbook.Archived, logbook.LastChangedAt,
	)

	updated, err := buildLogbook(row)
	if err != nil {
		return domain.Logbook{}, notFound(err, "logbook", logbook.ID)
	}
	return updated, nil
}

// AppendChange stores a logbook change
func (r *logbookRepository) AppendChange(ctx context.Context, change domain.Change) (domain.Change, error) {
	return appendChange(ctx, r.q, "logbook_changes", "logbook_id", change)
}

// ListChanges returns the changes of a logbook, oldest first
func (r *logbookRepository) ListChanges(ctx context.Context, logbookID int64) ([]domain.Change, error) {
	return listChanges(ctx, r.q, "logbook_changes", "logbook_id", logbookID)
}

func (r *logbookRepository) query(ctx context.Context, sql string, args ...any) ([]domain.Logbook, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list logbooks: %w", err)
	}
	defer rows.Close()

	logbooks := make([]domain.Logbook, 0)
	for rows.Next() {
		logbook, err := buildLogbook(rows)
		if err != nil {
			return nil, err
		}
		logbooks = append(logbooks, logbook)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate logbooks: %w", err)
	}
	return logbooks, nil
}

func logbookJSON(logbook domain.Logbook) ([]byte, []byte, error) {
	attributes := logbook.Attributes
	if attributes == nil {
		attributes = domain.AttributeSchema{}
	}
	attributesJSON, err := marshalJSONB(attributes)
	if err != nil {
		return nil, nil, err
	}
	metadata := logbook.Metadata
	if metadata == nil {
		metadata = domain.Values{}
	}
	metadataJSON, err := marshalJSONB(metadata)
	if err != nil {
		return nil, nil, err
	}
	return attributesJSON, metadataJSON, nil
}

func buildLogbook(row scanner) (domain.Logbook, error) {
	var (
		logbook        domain.Logbook
		attributesJSON []byte
		metadataJSON   []byte
	)
	if err := row.Scan(
		&logbook.ID, &logbook.ParentID, &logbook.Name, &logbook.Description, &logbook.Template,
		&logbook.TemplateContentType, &attributesJSON, &metadataJSON, &logbook.Archived,
		&logbook.CreatedAt, &logbook.LastChangedAt,
	); err != nil {
		return domain.Logbook{}, err
	}
	if err := unmarshalJSONB(attributesJSON, &logbook.Attributes); err != nil {
		return domain.Logbook{}, err
	}
	if err := unmarshalJSONB(metadataJSON, &logbook.Metadata); err != nil {
		return domain.Logbook{}, err
	}
	return logbook, nil
}
