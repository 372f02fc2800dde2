package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAPIHandler(t *testing.T) {
	t.Parallel()

	h, err := NewOpenAPIHandler()
	require.NoError(t, err)
	r := mux.NewRouter()
	h.RegisterRoutes(r)

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/openapi.yaml", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "openapi: 3.0.3")
	})

	t.Run("json documents every admin route", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/openapi.json", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var doc struct {
			Paths map[string]any `json:"paths"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		for _, route := range []string{"status", "enable", "disable", "config", "run-now"} {
			assert.Contains(t, doc.Paths, "/users/{user_id}/"+route)
		}
	})
}
