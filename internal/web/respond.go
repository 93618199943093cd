package web

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeAuthFailed         = "SPOTIFY_AUTH_FAILED"
	CodeAPIError           = "SPOTIFY_API_ERROR"
	CodeParseFailure       = "SPOTIFY_RESPONSE_PARSE_FAILURE"
	CodeUnexpectedResponse = "SPOTIFY_UNEXPECTED_RESPONSE"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details,omitempty"`
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
