package json

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dgellow/bid-front/internal/log"
)

// RequestIDHeader carries the id that correlates an error response with server logs.
const RequestIDHeader = "x-request-id"

// AuthRequiredCode is the stable code protected APIs return when no session is present.
const AuthRequiredCode = "AUTH_REQUIRED"

const (
	authRequiredMessage    = "Authentication is required to access this resource."
	authRequiredSuggestion = "Sign in again and retry the request."
)

// ErrorResponse represents a standard JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// AuthRequiredResponse is the 401 body shared by the edge gate and protected route handlers.
// Clients key their retry logic off the status code alone; the body is for humans and logs.
type AuthRequiredResponse struct {
	OK      bool            `json:"ok"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Error   AuthErrorDetail `json:"error"`
}

// AuthErrorDetail is the nested error object of AuthRequiredResponse.
type AuthErrorDetail struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"requestId"`
	Timestamp  string `json:"timestamp"`
	Suggestion string `json:"suggestion"`
}

// WriteResponse writes a JSON response with the given status code
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.LogError("Failed to encode JSON response: %v", err)
		return err
	}
	return nil
}

// Write writes a JSON response with 200 OK status
func Write(w http.ResponseWriter, data any) error {
	return WriteResponse(w, http.StatusOK, data)
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, statusCode int, error string, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}

	if err := WriteResponse(w, statusCode, response); err != nil {
		// Fallback to plain text error if JSON encoding fails
		http.Error(w, error+": "+message, statusCode)
	}
}

// NewAuthRequired builds the AUTH_REQUIRED body for requestID.
func NewAuthRequired(requestID string, now time.Time) AuthRequiredResponse {
	return AuthRequiredResponse{
		OK:      false,
		Code:    AuthRequiredCode,
		Message: authRequiredMessage,
		Error: AuthErrorDetail{
			Code:       AuthRequiredCode,
			Message:    authRequiredMessage,
			RequestID:  requestID,
			Timestamp:  now.UTC().Format(time.RFC3339Nano),
			Suggestion: authRequiredSuggestion,
		},
	}
}

// WriteAuthRequired writes the structured 401 and the x-request-id header.
// Never a bare 401: every auth failure on an API surface carries a request id.
func WriteAuthRequired(w http.ResponseWriter, requestID string) {
	w.Header().Set(RequestIDHeader, requestID)
	w.Header().Set("Cache-Control", "no-store")
	if err := WriteResponse(w, http.StatusUnauthorized, NewAuthRequired(requestID, time.Now())); err != nil {
		http.Error(w, AuthRequiredCode, http.StatusUnauthorized)
	}
}

func WriteInternalServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_server_error", message)
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "too_many_requests", message)
}

func WriteBadGateway(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, "bad_gateway", message)
}
