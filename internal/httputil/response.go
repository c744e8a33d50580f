// Package httputil holds the JSON response helpers shared by the API
// handlers.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/banshee-data/packetlink/internal/monitoring"
)

// ErrorResponse is the body of every JSON error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
	}
}

// WriteJSONError writes {"error": msg} with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

func WriteJSONOK(w http.ResponseWriter, data any) { WriteJSON(w, http.StatusOK, data) }

func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func BadRequest(w http.ResponseWriter, msg string) { WriteJSONError(w, http.StatusBadRequest, msg) }

func NotFound(w http.ResponseWriter, msg string) { WriteJSONError(w, http.StatusNotFound, msg) }

func Conflict(w http.ResponseWriter, msg string) { WriteJSONError(w, http.StatusConflict, msg) }

func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}
