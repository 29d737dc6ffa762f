package logbooks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rpattn/logbook/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMux(t *testing.T) *http.ServeMux {
	mux := http.NewServeMux()
	NewHTTPHandler(newService(t)).Register(mux)
	return mux
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHTTPCreateGetUpdate(t *testing.T) {
	mux := newMux(t)

	rec := do(mux, http.MethodPost, "/api/logbooks", `{"name":"Ops","description":"d"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created domain.Logbook
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(mux, http.MethodPut, "/api/logbooks/1", `{"name":"Operations"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(mux, http.MethodGet, "/api/logbooks/1/revisions/0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Ops"`)

	rec = do(mux, http.MethodGet, "/api/logbooks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Operations"`)
}

func TestHTTPErrors(t *testing.T) {
	mux := newMux(t)

	rec := do(mux, http.MethodGet, "/api/logbooks/7", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(mux, http.MethodPost, "/api/logbooks", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"name"`)

	rec = do(mux, http.MethodPost, "/api/logbooks", `{"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(mux, http.MethodGet, "/api/logbooks/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
