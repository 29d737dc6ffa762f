package entries

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/httpapi"
)

// QueryFromRequest reads search parameters from r. Attribute filters are
// given as repeated attribute=name:value pairs.
func QueryFromRequest(r *http.Request, logbookID *int64, defaultLimit int) (domain.EntryQuery, error) {
	params := r.URL.Query()
	q := domain.EntryQuery{
		LogbookID:          logbookID,
		IncludeDescendants: httpapi.QueryBool(r, "descendants"),
		IncludeArchived:    httpapi.QueryBool(r, "archived"),
		IgnoreCase:         httpapi.QueryBool(r, "ignore_case"),
		Content:            params.Get("content"),
		Title:              params.Get("title"),
		Author:             params.Get("authors"),
		AttachmentPath:     params.Get("attachments"),
	}

	var err error
	if q.Limit, err = httpapi.QueryInt(r, "n", defaultLimit); err != nil {
		return domain.EntryQuery{}, err
	}
	if q.Limit < 0 {
		return domain.EntryQuery{}, domain.NewValidationError("n", "must not be negative")
	}
	if q.Offset, err = httpapi.QueryInt(r, "offset", 0); err != nil {
		return domain.EntryQuery{}, err
	}
	if q.Offset < 0 {
		return domain.EntryQuery{}, domain.NewValidationError("offset", "must not be negative")
	}

	for _, raw := range params["attribute"] {
		name, value, ok := strings.Cut(raw, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return domain.EntryQuery{}, domain.NewValidationError("attribute", "expected name:value, got "+raw)
		}
		q.Attributes = append(q.Attributes, domain.AttributeFilter{
			Name:  strings.TrimSpace(name),
			Value: filterValue(value),
		})
	}
	return q, nil
}

// filterValue reads a JSON literal (false, 3, ["a","b"]) and falls back to
// plain text.
func filterValue(raw string) domain.Value {
	var v domain.Value
	if err := json.Unmarshal([]byte(raw), &v); err != nil || !v.IsSet() {
		return domain.TextValue(raw)
	}
	return v
}
