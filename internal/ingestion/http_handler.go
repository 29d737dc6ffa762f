package ingestion

import (
	"net/http"

	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/httpapi"
)

// Handler exposes ingestion as an HTTP endpoint.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with a POST endpoint.
func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the import route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/logbooks/{id}/import", h.handleImport)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	logbookID, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httpapi.WriteError(w, r, domain.NewValidationError("file", "invalid form data: "+err.Error()))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpapi.WriteError(w, r, domain.NewValidationError("file", "file required: "+err.Error()))
		return
	}
	defer file.Close()

	summary, err := h.service.Ingest(r.Context(), Request{
		LogbookID: logbookID,
		FileName:  header.Filename,
		Data:      file,
	})
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, summary)
}
