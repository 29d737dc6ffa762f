// Package httpapi holds the JSON response helpers shared by the HTTP handlers.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/logbook/internal/domain"

	"github.com/rs/zerolog"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error    string              `json:"error"`
	Fields   []domain.FieldError `json:"fields,omitempty"`
	Lock     *domain.EntryLock   `json:"lock,omitempty"`
	Proposed *domain.Entry       `json:"proposed,omitempty"`
}

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError maps err onto a status code and writes it as JSON.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verrs  domain.ValidationErrors
		locked *domain.LockedError
	)
	switch {
	case errors.As(err, &verrs):
		WriteJSON(w, http.StatusBadRequest, ErrorBody{Error: "validation failed", Fields: verrs})
	case errors.As(err, &locked):
		lock := locked.Lock
		WriteJSON(w, http.StatusConflict, ErrorBody{Error: err.Error(), Lock: &lock, Proposed: locked.Proposed})
	case errors.Is(err, domain.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, ErrorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrHierarchyCycle):
		WriteJSON(w, http.StatusConflict, ErrorBody{Error: err.Error()})
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		WriteJSON(w, http.StatusInternalServerError, ErrorBody{Error: "internal error"})
	}
}

// DecodeJSON decodes the request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("body", "invalid payload: "+err.Error())
	}
	return nil
}

// PathID parses the named path value as a record id.
func PathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError(name, "invalid id "+strconv.Quote(raw))
	}
	return id, nil
}

// QueryInt parses an optional integer query parameter.
func QueryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be an integer")
	}
	return n, nil
}

// QueryID parses an optional id query parameter.
func QueryID(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, domain.NewValidationError(name, "invalid id "+strconv.Quote(raw))
	}
	return &id, nil
}

// QueryBool reports whether the query parameter is set to a true value.
func QueryBool(r *http.Request, name string) bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && b
}

// PathInt parses the named path value as an integer.
func PathInt(r *http.Request, name string) (int, error) {
	raw := r.PathValue(name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be an integer")
	}
	return n, nil
}
