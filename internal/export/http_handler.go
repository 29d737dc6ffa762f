package export

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/rpattn/logbook/internal/entries"
	"github.com/rpattn/logbook/internal/httpapi"
	"github.com/rpattn/logbook/internal/repository"
)

type Handler struct {
	service  *Service
	logbooks repository.LogbookRepository
}

func NewHTTPHandler(service *Service, logbooks repository.LogbookRepository) *Handler {
	return &Handler{service: service, logbooks: logbooks}
}

// Register mounts the export route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/logbooks/{id}/export", h.handleExport)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	logbook, err := h.logbooks.GetByID(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	q, err := entries.QueryFromRequest(r, &id, 0)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = FormatCSV
	}

	// Buffer so that a failed export still gets a JSON error response.
	var buf bytes.Buffer
	if _, err := h.service.Export(r.Context(), q, format, &buf); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", FileName(logbook.Name, format)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
