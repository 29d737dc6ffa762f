package logbooks

import (
	"net/http"

	"github.com/rpattn/logbook/internal/auth"
	"github.com/rpattn/logbook/internal/httpapi"
)

type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the logbook routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/logbooks", h.handleList)
	mux.HandleFunc("POST /api/logbooks", h.handleCreate)
	mux.HandleFunc("GET /api/logbooks/{id}", h.handleGet)
	mux.HandleFunc("PUT /api/logbooks/{id}", h.handleUpdate)
	mux.HandleFunc("GET /api/logbooks/{id}/ancestors", h.handleAncestors)
	mux.HandleFunc("GET /api/logbooks/{id}/revisions", h.handleRevisions)
	mux.HandleFunc("GET /api/logbooks/{id}/revisions/{n}", h.handleRevision)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	parentID, err := httpapi.QueryID(r, "parent")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	logbooks, err := h.service.Children(r.Context(), parentID)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, logbooks)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpapi.DecodeJSON(r, &input); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	logbook, err := h.service.Create(r.Context(), input)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, logbook)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	logbook, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, logbook)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	var input UpdateInput
	if err := httpapi.DecodeJSON(r, &input); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	logbook, err := h.service.Update(r.Context(), id, input, auth.OwnerFromRequest(r))
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, logbook)
}

func (h *Handler) handleAncestors(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	chain, err := h.service.Ancestors(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, chain)
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
