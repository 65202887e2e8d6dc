package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body of every error produced by the sidecar
// itself. Upstream error bodies are passed through in Message.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes a single error.
type ErrorBody struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError writes an ErrorResponse with the given status code.
func WriteError(w http.ResponseWriter, r *http.Request, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorBody{
		Type:      errType,
		Message:   message,
		RequestID: GetRequestID(r.Context()),
	}})
}
