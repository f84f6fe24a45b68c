package http

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`             // Machine-readable error code
	Message string `json:"message"`           // Human-readable message
	Status  int    `json:"status"`            // HTTP status, echoed for client convenience
	Details string `json:"details,omitempty"` // Optional additional context
}

// AccountLockedResponse is the ACCOUNT_LOCKED error envelope. Remaining
// attempts are always zero once locked; TimeLeft is milliseconds until the
// lockout window elapses.
type AccountLockedResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	Status            int    `json:"status"`
	TimeLeft          int64  `json:"timeLeft"`
	RemainingAttempts int    `json:"remainingAttempts"`
}

// RateLimitedResponse is the 429 body attached alongside the rate headers.
type RateLimitedResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, "")
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error:   errorCode,
		Message: message,
		Status:  statusCode,
		Details: details,
	}

	// Log encoding errors but don't expose them to client
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteAccountLocked writes the ACCOUNT_LOCKED envelope. The message is
// phrased in terms of time remaining only, never account existence.
func WriteAccountLocked(w http.ResponseWriter, timeLeftMs int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	_ = json.NewEncoder(w).Encode(AccountLockedResponse{
		Error:             "ACCOUNT_LOCKED",
		Message:           "Too many failed login attempts. Please try again later.",
		Status:            http.StatusTooManyRequests,
		TimeLeft:          timeLeftMs,
		RemainingAttempts: 0,
	})
}

// WriteRateLimited writes the 429 body for API rate-limit denials. Rate
// headers are set by the limiter before this is called.
func WriteRateLimited(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	_ = json.NewEncoder(w).Encode(RateLimitedResponse{
		Error:      "Too many requests",
		RetryAfter: retryAfterSeconds,
	})
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
