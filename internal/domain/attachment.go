package domain

import "time"

// Attachment references a stored file, optionally linked to an entry.
type Attachment struct {
	ID          int64     `json:"id"`
	EntryID     *int64    `json:"entryId,omitempty"`
	Filename    string    `json:"filename"`
	Path        string    `json:"path"`
	ContentType string    `json:"contentType"`
	Embedded    bool      `json:"embedded"`
	Archived    bool      `json:"archived"`
	Metadata    Values    `json:"metadata,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
