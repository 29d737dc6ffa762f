package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/logbook/internal/db"
	"github.com/rpattn/logbook/internal/domain"
)

const attachmentColumns = `id, entry_id, filename, path, content_type, embedded, archived,
	metadata, timestamp`

// attachmentRepository implements AttachmentRepository interface
type attachmentRepository struct {
	q db.DBTX
}

// NewAttachmentRepository creates a new attachment repository
func NewAttachmentRepository(q db.DBTX) AttachmentRepository {
	return &attachmentRepository{q: q}
}

// Create inserts a new attachment record
func (r *attachmentRepository) Create(ctx context.Context, attachment domain.Attachment) (domain.Attachment, error) {
	metadata := attachment.Metadata
	if metadata == nil {
		metadata = domain.Values{}
	}
	metadataJSON, err := marshalJSONB(metadata)
	if err != nil {
		return domain.Attachment{}, err
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO attachments (entry_id, filename, path, content_type, embedded, archived,
			metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+attachmentColumns,
		attachment.EntryID, attachment.Filename, attachment.Path, attachment.ContentType,
		attachment.Embedded, attachment.Archived, metadataJSON, attachment.Timestamp,
	)

	created, err := buildAttachment(row)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("failed to create attachment: %w", err)
	}
	return created, nil
}

// GetByID retrieves an attachment by ID
func (r *attachmentRepository) GetByID(ctx context.Context, id int64) (domain.Attachment, error) {
	row := r.q.QueryRow(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = $1`, id)
	attachment, err := buildAttachment(row)
	if err != nil {
		return domain.Attachment{}, notFound(err, "attachment", id)
	}
	return attachment, nil
}

// AssignEntry links the attachments to an entry
func (r *attachmentRepository) AssignEntry(ctx context.Context, attachmentIDs []int64, entryID int64) error {
	if len(attachmentIDs) == 0 {
		return nil
	}
	tag, err := r.q.Exec(ctx, `UPDATE attachments SET entry_id = $2 WHERE id = ANY($1::bigint[])`,
		attachmentIDs, entryID)
	if err != nil {
		return fmt.Errorf("failed to assign attachments: %w", err)
	}
	if int(tag.RowsAffected()) != len(attachmentIDs) {
		return &domain.NotFoundError{Resource: "attachment"}
	}
	return nil
}

// ListByEntries returns the attachments linked to any of entryIDs
func (r *attachmentRepository) ListByEntries(ctx context.Context, entryIDs []int64) ([]domain.Attachment, error) {
	if len(entryIDs) == 0 {
		return []domain.Attachment{}, nil
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+attachmentColumns+`
		FROM attachments
		WHERE entry_id = ANY($1::bigint[])
		ORDER BY id`, entryIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	attachments := make([]domain.Attachment, 0)
	for rows.Next() {
		attachment, err := buildAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, attachment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachments: %w", err)
	}
	return attachments, nil
}

func buildAttachment(row scanner) (domain.Attachment, error) {
	var (
		attachment   domain.Attachment
		metadataJSON []byte
	)
	if err := row.Scan(&attachment.ID, &attachment.EntryID, &attachment.Filename, &attachment.Path,
		&attachment.ContentType, &attachment.Embedded, &attachment.Archived, &metadataJSON,
		&attachment.Timestamp); err != nil {
		return domain.Attachment{}, err
	}
	if err := unmarshalJSONB(metadataJSON, &attachment.Metadata); err != nil {
		return domain.Attachment{}, err
	}
	return attachment, nil
}
