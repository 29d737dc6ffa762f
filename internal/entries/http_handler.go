package entries

import (
	"context"
	"net/http"

	"github.com/rpattn/logbook/internal/auth"
	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/httpapi"
	"github.com/rpattn/logbook/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the entry routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/entries", h.handleSearch)
	mux.HandleFunc("GET /api/logbooks/{logbook}/entries", h.handleSearch)
	mux.HandleFunc("POST /api/logbooks/{logbook}/entries", h.handleCreate)
	mux.HandleFunc("GET /api/logbooks/{logbook}/histogram", h.handleHistogram)

	mux.HandleFunc("GET /api/entries/{id}", h.handleGet)
	mux.HandleFunc("PUT /api/entries/{id}", h.handleUpdate)
	mux.HandleFunc("GET /api/entries/{id}/next", h.handleNext)
	mux.HandleFunc("GET /api/entries/{id}/previous", h.handlePrevious)
	mux.HandleFunc("GET /api/entries/{id}/revisions", h.handleRevisions)
	mux.HandleFunc("GET /api/entries/{id}/revisions/{n}", h.handleRevision)

	mux.HandleFunc("GET /api/entries/{id}/lock", h.handleGetLock)
	mux.HandleFunc("POST /api/entries/{id}/lock", h.handleAcquireLock)
	mux.HandleFunc("DELETE /api/entries/{id}/lock", h.handleReleaseLock)
}

// EntryView is an entry together with its attachments and active lock.
type EntryView struct {
	domain.Entry
	Attachments []domain.Attachment `json:"attachments"`
	Lock        *domain.EntryLock   `json:"lock,omitempty"`
}

// ThreadView is a search result row with the root entry's attachments.
type ThreadView struct {
	domain.ThreadSummary
	Attachments []domain.Attachment `json:"attachments"`
}

type searchResponse struct {
	Entries []ThreadView `json:"entries"`
	Count   int          `json:"count"`
}

type countResponse struct {
	Count int `json:"count"`
}

func owner(r *http.Request) string {
	if o, ok := auth.OwnerFromContext(r.Context()); ok {
		return o
	}
	return auth.OwnerFromRequest(r)
}

func optionalLogbook(r *http.Request) (*int64, error) {
	if r.PathValue("logbook") == "" {
		return nil, nil
	}
	id, err := httpapi.PathID(r, "logbook")
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (h *Handler) attachments(ctx context.Context, entryIDs []int64) (map[int64][]domain.Attachment, error) {
	if loader := middleware.AttachmentLoaderFromContext(ctx); loader != nil {
		return loader.LoadMany(ctx, entryIDs)
	}
	list, err := h.service.Attachments(ctx, entryIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]domain.Attachment, len(entryIDs))
	for _, id := range entryIDs {
		out[id] = []domain.Attachment{}
	}
	for _, a := range list {
		out[*a.EntryID] = append(out[*a.EntryID], a)
	}
	return out, nil
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	logbookID, err := optionalLogbook(r)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	q, err := QueryFromRequest(r, logbookID, h.service.DefaultLimit())
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}

	if httpapi.QueryBool(r, "count") {
		n, err := h.service.Count(r.Context(), q)
		if err != nil {
			httpapi.WriteError(w, r, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, countResponse{Count: n})
		return
	}

	result, err := h.service.Search(r.Context(), q)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	ids := make([]int64, len(result.Threads))
	for i, t := range result.Threads {
		ids[i] = t.Entry.ID
	}
	byEntry, err := h.attachments(r.Context(), ids)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}

	rows := make([]ThreadView, len(result.Threads))
	for i, t := range result.Threads {
		rows[i] = ThreadView{ThreadSummary: t, Attachments: byEntry[t.Entry.ID]}
	}
	httpapi.WriteJSON(w, http.StatusOK, searchResponse{Entries: rows, Count: result.Total})
}

func (h *Handler) handleHistogram(w http.ResponseWriter, r *http.Request) {
	logbookID, err := optionalLogbook(r)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	q, err := QueryFromRequest(r, logbookID, 0)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	buckets, err := h.service.Histogram(r.Context(), q)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, buckets)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	logbookID, err := httpapi.PathID(r, "logbook")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	var input CreateInput
	if err := httpapi.DecodeJSON(r, &input); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	entry, err := h.service.Create(r.Context(), logbookID, input)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	byEntry, err := h.attachments(r.Context(), []int64{id})
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	lock, err := h.service.Lock(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, EntryView{Entry: entry, Attachments: byEntry[id], Lock: lock})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	unlockID, err := httpapi.QueryID(r, "unlock")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	var input UpdateInput
	if err := httpapi.DecodeJSON(r, &input); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}

	who := owner(r)
	entry, err := h.service.Update(r.Context(), id, input, Requester{Owner: who, IP: who, UnlockID: unlockID})
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	h.handleSibling(w, r, h.service.Next)
}

func (h *Handler) handlePrevious(w http.ResponseWriter, r *http.Request) {
	h.handleSibling(w, r, h.service.Previous)
}

func (h *Handler) handleSibling(w http.ResponseWriter, r *http.Request, find func(context.Context, int64) (*domain.Entry, error)) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	sibling, err := find(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	if sibling == nil {
		httpapi.WriteError(w, r, &domain.NotFoundError{Resource: "sibling entry"})
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, sibling)
}

func (h *Handler) handleRevisions(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	summaries, err := h.service.Revisions(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleRevision(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	version, err := httpapi.PathInt(r, "n")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	rev, err := h.service.Revision(r.Context(), id, version)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, rev)
}

func (h *Handler) handleGetLock(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	lock, err := h.service.Lock(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	if lock == nil {
		httpapi.WriteError(w, r, &domain.NotFoundError{Resource: "lock"})
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, lock)
}

func (h *Handler) handleAcquireLock(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	lock, err := h.service.AcquireLock(r.Context(), id, owner(r), httpapi.QueryBool(r, "steal"))
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, lock)
}

func (h *Handler) handleReleaseLock(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	lockID, err := httpapi.QueryID(r, "lock_id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	released, err := h.service.ReleaseLock(r.Context(), id, owner(r), lockID)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	if released == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, released)
}
