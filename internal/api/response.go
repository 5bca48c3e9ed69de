package api

import (
	"encoding/json"
	"net/http"
)

// respondJSON writes data as JSON with the given status code.
// A nil data writes only the status and Content-Type header.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError writes {"error": code}.
func respondError(w http.ResponseWriter, status int, code string) {
	respondJSON(w, status, map[string]string{"error": code})
}

// respondErrorMessage writes {"error": code, "message": message}.
func respondErrorMessage(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"error": code, "message": message})
}
