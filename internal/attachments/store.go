// Package attachments persists uploaded files and records them as attachments.
package attachments

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Upload is a file to be stored.
type Upload struct {
	Data        []byte
	Filename    string
	ContentType string
	Timestamp   time.Time
	EntryID     *int64
	Embedded    bool
}

// Store writes attachment files below a root directory.
type Store struct {
	root   string
	logger zerolog.Logger
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, logger zerolog.Logger) *Store {
	return &Store{root: dir, logger: logger.With().Str("component", "attachments").Logger()}
}

// Save writes the file and creates its attachment record through repo. The
// returned path is relative to the store root.
func (s *Store) Save(ctx context.Context, repo repository.AttachmentRepository, upload Upload) (domain.Attachment, error) {
	if upload.Timestamp.IsZero() {
		upload.Timestamp = time.Now()
	}
	filename := sanitizeFilename(upload.Filename)
	rel := path.Join(
		upload.Timestamp.UTC().Format("2006/01/02"),
		uuid.NewString()+"-"+filename,
	)

	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return domain.Attachment{}, fmt.Errorf("failed to create attachment directory: %w", err)
	}
	if err := os.WriteFile(full, upload.Data, 0o644); err != nil {
		return domain.Attachment{}, fmt.Errorf("failed to write attachment: %w", err)
	}

	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	attachment, err := repo.Create(ctx, domain.Attachment{
		EntryID:     upload.EntryID,
		Filename:    filename,
		Path:        rel,
		ContentType: contentType,
		Embedded:    upload.Embedded,
		Metadata:    domain.Values{"size": domain.NumberValue(float64(len(upload.Data)))},
		Timestamp:   upload.Timestamp,
	})
	if err != nil {
		if rmErr := os.Remove(full); rmErr != nil {
			s.logger.Warn().Err(rmErr).Str("path", rel).Msg("failed to remove orphaned attachment file")
		}
		return domain.Attachment{}, err
	}

	s.logger.Debug().Int64("attachment_id", attachment.ID).Str("path", rel).Msg("stored attachment")
	return attachment, nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == 0:
			return -1
		case r < 32:
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "attachment"
	}
	return name
}
