// Package api provides the HTTP handlers for seat commands, lost-item
// results and the event journal.
package api

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Status: false, Message: message})
}
