// Package revision reconstructs historical record state from a log of
// pre-image changes.
//
// Every change stores the values its fields had before the edit. The value of
// a field as of change i is therefore either that pre-image, or, if change i
// did not touch the field, the pre-image stored by the next later change that
// did, or, if no later change touched it, the live value.
package revision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rpattn/logbook/internal/domain"
)

// Diff returns, for each field of proposed whose value differs from current,
// the current value. Unchanged fields are left out.
func Diff(current, proposed domain.FieldSet) domain.FieldSet {
	changed := domain.FieldSet{}
	for name, next := range proposed {
		prev, ok := current[name]
		if ok && equalJSON(prev, next) {
			continue
		}
		if !ok {
			prev = json.RawMessage("null")
		}
		changed[name] = prev
	}
	return changed
}

// Record computes the change that turns live into proposed.
func Record[T domain.Versioned[T]](live, proposed T, info domain.ChangeInfo, at time.Time) (domain.Change, error) {
	current, err := live.Snapshot()
	if err != nil {
		return domain.Change{}, err
	}
	next, err := proposed.Snapshot()
	if err != nil {
		return domain.Change{}, err
	}

	return domain.Change{
		Changed:   Diff(current, next),
		Timestamp: at,
		Authors:   append([]domain.Author(nil), info.Authors...),
		Comment:   info.Comment,
		IP:        info.IP,
	}, nil
}

// Field returns the value field had immediately before changes[index] was
// applied. changes must be ordered oldest first.
func Field(changes []domain.Change, index int, field string, live domain.FieldSet) json.RawMessage {
	for i := index; i < len(changes); i++ {
		if old, ok := changes[i].Changed[field]; ok {
			return old
		}
	}
	return live[field]
}

// NewValue returns the value field had immediately after changes[index].
func NewValue(changes []domain.Change, index int, field string, live domain.FieldSet) json.RawMessage {
	return Field(changes, index+1, field, live)
}

// Reconstruct returns the record as of version. Version len(changes) is the
// live record.
func Reconstruct[T domain.Versioned[T]](live T, changes []domain.Change, version int) (domain.Revision[T], error) {
	n := len(changes)
	if version == n {
		return domain.Revision[T]{Record: live, Number: n, Count: n}, nil
	}
	if version < 0 || version > n {
		return domain.Revision[T]{}, &domain.NotFoundError{Resource: "revision", ID: fmt.Sprintf("%d", version)}
	}

	current, err := live.Snapshot()
	if err != nil {
		return domain.Revision[T]{}, err
	}

	historical := make(domain.FieldSet, len(current))
	for name := range current {
		historical[name] = Field(changes, version, name, current)
	}

	record, err := live.Restore(historical)
	if err != nil {
		return domain.Revision[T]{}, fmt.Errorf("failed to restore revision %d: %w", version, err)
	}

	change := changes[version]
	return domain.Revision[T]{Record: record, Number: version, Count: n, Change: &change}, nil
}

func equalJSON(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
