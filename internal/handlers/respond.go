package handlers

import (
	"encoding/json"
	"net/http"
)

// maxBodyBytes bounds request bodies accepted by the API
const maxBodyBytes = 1 << 20

// ErrorResponse is the body sent with non-2xx API responses
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
