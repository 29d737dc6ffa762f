package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rpattn/logbook/internal/auth"
	"github.com/rpattn/logbook/internal/repository/memory"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Debug().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entries", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/api/entries"`)
	assert.Contains(t, buf.String(), `"inside"`)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestLoggingMiddlewareKeepsIncomingRequestID(t *testing.T) {
	var buf bytes.Buffer
	h := LoggingMiddleware(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/logbooks", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
}

func TestOwnerAndLoaderAreInjected(t *testing.T) {
	store := memory.NewStore()
	var owner string
	var hasLoader bool

	h := OwnerMiddleware(DataLoaderMiddleware(store.Repositories().Attachments)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, _ = auth.OwnerFromContext(r.Context())
			hasLoader = AttachmentLoaderFromContext(r.Context()) != nil
		})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.2.3.4:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "10.2.3.4", owner)
	assert.True(t, hasLoader)
}
