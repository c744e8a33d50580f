package db

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttachAdminRoutes_TailSQL(t *testing.T) {
	d := newTestDB(t)
	mux := http.NewServeMux()
	d.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tailsql")
}
