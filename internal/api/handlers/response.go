// Package handlers provides the HTTP handlers of the Quietwire API.
package handlers

import (
	"encoding/json"
	"net/http"
)

// Response is the envelope every API response is wrapped in.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// genericAuthError is the one body every authentication failure renders,
// regardless of cause. Unknown user, bad signature, expired token, and
// revoked device are indistinguishable to the caller.
const genericAuthError = "Authentication failed"

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteSuccess writes a 200 OK success envelope.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// WriteCreated writes a 201 Created success envelope.
func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, Response{Success: true, Data: data})
}

// WriteError writes an error envelope with the given status code.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Response{Success: false, Error: message})
}

// BadRequest writes a 400 Bad Request error envelope.
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// AuthFailed writes the generic 401 body used for every authentication
// failure.
func AuthFailed(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, genericAuthError)
}

// NotFound writes a 404 Not Found error envelope.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

// Conflict writes a 409 Conflict error envelope.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message)
}

// InternalError writes a 500 Internal Server Error envelope.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}
