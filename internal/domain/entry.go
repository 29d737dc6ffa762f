package domain

import (
	"time"
)

// Author is a person credited on an entry or a change.
type Author struct {
	Name  string `json:"name"`
	Login string `json:"login,omitempty"`
}

// Entry is a single logged record, possibly a followup to a thread root.
type Entry struct {
	ID            int64      `json:"id"`
	LogbookID     int64      `json:"logbookId"`
	Title         string     `json:"title"`
	Authors       []Author   `json:"authors"`
	Content       string     `json:"content"`
	ContentType   string     `json:"contentType"`
	Attributes    Values     `json:"attributes"`
	Metadata      Values     `json:"metadata,omitempty"`
	FollowsID     *int64     `json:"followsId,omitempty"`
	Archived      bool       `json:"archived"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastChangedAt *time.Time `json:"lastChangedAt,omitempty"`
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	e.Authors = append([]Author(nil), e.Authors...)
	e.Attributes = e.Attributes.Clone()
	e.Metadata = e.Metadata.Clone()
	e.FollowsID = copyID(e.FollowsID)
	e.LastChangedAt = copyTime(e.LastChangedAt)
	return e
}

// IsThreadRoot reports whether the entry does not follow another entry.
func (e Entry) IsThreadRoot() bool {
	return e.FollowsID == nil
}

// ThreadID returns the id of the thread root the entry belongs to.
func (e Entry) ThreadID() int64 {
	if e.FollowsID != nil {
		return *e.FollowsID
	}
	return e.ID
}

// Timestamp is the last activity time of the entry itself.
func (e Entry) Timestamp() time.Time {
	if e.LastChangedAt != nil {
		return *e.LastChangedAt
	}
	return e.CreatedAt
}

// Snapshot implements Versioned.
func (e Entry) Snapshot() (FieldSet, error) {
	authors := e.Authors
	if authors == nil {
		authors = []Author{}
	}
	return snapshotFields(map[string]any{
		"logbook_id":   e.LogbookID,
		"title":        e.Title,
		"authors":      authors,
		"content":      e.Content,
		"content_type": e.ContentType,
		"attributes":   nonNilValues(e.Attributes),
		"metadata":     nonNilValues(e.Metadata),
		"follows_id":   e.FollowsID,
		"archived":     e.Archived,
	})
}

// Restore implements Versioned.
func (e Entry) Restore(fields FieldSet) (Entry, error) {
	out := e.Clone()
	for name, raw := range fields {
		var err error
		switch name {
		case "logbook_id":
			err = decodeField(name, raw, &out.LogbookID)
		case "title":
			err = decodeField(name, raw, &out.Title)
		case "authors":
			out.Authors = nil
			err = decodeField(name, raw, &out.Authors)
		case "content":
			err = decodeField(name, raw, &out.Content)
		case "content_type":
			err = decodeField(name, raw, &out.ContentType)
		case "attributes":
			out.Attributes = nil
			err = decodeField(name, raw, &out.Attributes)
		case "metadata":
			out.Metadata = nil
			err = decodeField(name, raw, &out.Metadata)
		case "follows_id":
			out.FollowsID = nil
			err = decodeField(name, raw, &out.FollowsID)
		case "archived":
			err = decodeField(name, raw, &out.Archived)
		}
		if err != nil {
			return Entry{}, err
		}
	}
	return out, nil
}
