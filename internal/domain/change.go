package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// FieldSet holds JSON encoded values of a record's versioned fields.
type FieldSet map[string]json.RawMessage

// Versioned is implemented by records whose edits are tracked as changes.
// Snapshot returns the versioned fields, Restore returns a copy of the record
// with the given fields overwritten and every other field passed through.
type Versioned[T any] interface {
	Snapshot() (FieldSet, error)
	Restore(FieldSet) (T, error)
}

// Change records the pre-image of the fields altered by one edit.
type Change struct {
	ID        int64     `json:"id"`
	RecordID  int64     `json:"recordId"`
	Changed   FieldSet  `json:"changed"`
	Timestamp time.Time `json:"timestamp"`
	Authors   []Author  `json:"changeAuthors,omitempty"`
	Comment   string    `json:"changeComment,omitempty"`
	IP        string    `json:"changeIp,omitempty"`
}

// ChangeInfo is the caller supplied metadata recorded with a change.
type ChangeInfo struct {
	Authors []Author
	Comment string
	IP      string
}

// Revision is a record as of a revision number. Change is nil for the live
// revision.
type Revision[T any] struct {
	Record T       `json:"record"`
	Number int     `json:"revision"`
	Count  int     `json:"revisionCount"`
	Change *Change `json:"change,omitempty"`
}

// IsLive reports whether the revision is the current state of the record.
func (r Revision[T]) IsLive() bool {
	return r.Change == nil
}

func snapshotFields(fields map[string]any) (FieldSet, error) {
	out := make(FieldSet, len(fields))
	for name, value := range fields {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", name, err)
		}
		out[name] = raw
	}
	return out, nil
}

func decodeField(name string, raw json.RawMessage, target any) error {
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode field %s: %w", name, err)
	}
	return nil
}
