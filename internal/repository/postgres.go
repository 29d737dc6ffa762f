package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/logbook/internal/db"
	"github.com/rpattn/logbook/internal/domain"

	"github.com/jackc/pgx/v5"
)

// postgresStore implements Store on top of a pgx connection pool.
type postgresStore struct {
	conn *db.Connection
}

// NewPostgresStore creates a Store backed by Postgres.
func NewPostgresStore(conn *db.Connection) Store {
	return &postgresStore{conn: conn}
}

// Repositories returns repositories that run each call on the pool.
func (s *postgresStore) Repositories() Repositories {
	return newRepositories(s.conn.Pool)
}

// Within runs fn inside a single database transaction.
func (s *postgresStore) Within(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, newRepositories(tx))
	})
}

func newRepositories(q db.DBTX) Repositories {
	return Repositories{
		Logbooks:    NewLogbookRepository(q),
		Entries:     NewEntryRepository(q),
		Locks:       NewLockRepository(q),
		Attachments: NewAttachmentRepository(q),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func notFound(err error, resource string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewNotFound(resource, id)
	}
	return err
}

// optionalTime maps the zero time to NULL so the database default applies.
func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func marshalJSONB(value any) ([]byte, error) {
	if value == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jsonb value: %w", err)
	}
	return data, nil
}

func unmarshalJSONB(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal jsonb value: %w", err)
	}
	return nil
}

func appendChange(ctx context.Context, q db.DBTX, table, recordColumn string, change domain.Change) (domain.Change, error) {
	changed, err := marshalJSONB(change.Changed)
	if err != nil {
		return domain.Change{}, err
	}
	authors := change.Authors
	if authors == nil {
		authors = []domain.Author{}
	}
	authorsJSON, err := marshalJSONB(authors)
	if err != nil {
		return domain.Change{}, err
	}

	// table and recordColumn are package constants, never caller input.
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, changed, timestamp, change_authors, change_comment, change_ip)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`, table, recordColumn)

	if err := q.QueryRow(ctx, query,
		change.RecordID, changed, change.Timestamp, authorsJSON, change.Comment, change.IP,
	).Scan(&change.ID); err != nil {
		return domain.Change{}, fmt.Errorf("failed to append change: %w", err)
	}
	return change, nil
}

func listChanges(ctx context.Context, q db.DBTX, table, recordColumn string, recordID int64) ([]domain.Change, error) {
	query := fmt.Sprintf(`
		SELECT id, %[2]s, changed, timestamp, change_authors, change_comment, change_ip
		FROM %[1]s
		WHERE %[2]s = $1
		ORDER BY id ASC`, table, recordColumn)

	rows, err := q.Query(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	defer rows.Close()

	changes := make([]domain.Change, 0)
	for rows.Next() {
		var (
			change      domain.Change
			changedJSON []byte
			authorsJSON []byte
		)
		if err := rows.Scan(&change.ID, &change.RecordID, &changedJSON, &change.Timestamp,
			&authorsJSON, &change.Comment, &change.IP); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		if err := unmarshalJSONB(changedJSON, &change.Changed); err != nil {
			return nil, err
		}
		if err := unmarshalJSONB(authorsJSON, &change.Authors); err != nil {
			return nil, err
		}
		if change.Changed == nil {
			change.Changed = domain.FieldSet{}
		}
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate changes: %w", err)
	}
	return changes, nil
}
