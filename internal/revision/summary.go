package revision

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/rpattn/logbook/internal/domain"

	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// FieldChange holds the values of one field around a change. Patch is set for
// text fields and holds a patch from Old to New.
type FieldChange struct {
	Field string          `json:"field"`
	Old   json.RawMessage `json:"old"`
	New   json.RawMessage `json:"new"`
	Patch string          `json:"patch,omitempty"`
}

// Summary describes one recorded change.
type Summary struct {
	Number    int             `json:"revision"`
	Timestamp time.Time       `json:"timestamp"`
	Authors   []domain.Author `json:"changeAuthors,omitempty"`
	Comment   string          `json:"changeComment,omitempty"`
	IP        string          `json:"changeIp,omitempty"`
	Fields    []FieldChange   `json:"changed"`
}

// Summaries lists every change with old and new values of the fields it
// touched. Fields named in textFields get a text patch.
func Summaries(changes []domain.Change, live domain.FieldSet, textFields ...string) []Summary {
	isText := make(map[string]bool, len(textFields))
	for _, name := range textFields {
		isText[name] = true
	}

	out := make([]Summary, 0, len(changes))
	for i, change := range changes {
		names := make([]string, 0, len(change.Changed))
		for name := range change.Changed {
			names = append(names, name)
		}
		sort.Strings(names)

		fields := make([]FieldChange, 0, len(names))
		for _, name := range names {
			fc := FieldChange{
				Field: name,
				Old:   change.Changed[name],
				New:   NewValue(changes, i, name, live),
			}
			if isText[name] {
				fc.Patch = textPatch(fc.Old, fc.New)
			}
			fields = append(fields, fc)
		}

		out = append(out, Summary{
			Number:    i,
			Timestamp: change.Timestamp,
			Authors:   change.Authors,
			Comment:   change.Comment,
			IP:        change.IP,
			Fields:    fields,
		})
	}
	return out
}

func textPatch(oldRaw, newRaw json.RawMessage) string {
	var before, after string
	if json.Unmarshal(oldRaw, &before) != nil || json.Unmarshal(newRaw, &after) != nil {
		return ""
	}
	dmp := diffpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.PatchToText(dmp.PatchMake(before, diffs))
}
