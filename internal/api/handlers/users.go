package handlers

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quietwire/quietwire/pkg/relay/models"
	"github.com/quietwire/quietwire/pkg/relay/store"
)

const maxUsernameLength = 255

// UserHandler handles user registration and lookup endpoints.
type UserHandler struct {
	store store.UserStore
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(s store.UserStore) *UserHandler {
	return &UserHandler{store: s}
}

// RegisterRequest is the request body for POST /api/users/register.
type RegisterRequest struct {
	Username          string `json:"username"`
	IdentityPublicKey string `json:"identity_public_key"`
	RegistrationID    uint32 `json:"registration_id"`
}

// RotateIdentityRequest is the request body for PUT /api/users/{id}/identity.
type RotateIdentityRequest struct {
	IdentityPublicKey string `json:"identity_public_key"`
	RegistrationID    uint32 `json:"registration_id"`
}

// UserResponse is the public representation of a user.
type UserResponse struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	IdentityPublicKey string `json:"identity_public_key"`
	RegistrationID    uint32 `json:"registration_id"`
}

func userToResponse(user *models.User) UserResponse {
	return UserResponse{
		ID:                user.ID,
		Username:          user.Username,
		IdentityPublicKey: user.IdentityPublicKey,
		RegistrationID:    user.RegistrationID,
	}
}

// validIdentityKey reports whether the value is base64 of an Ed25519
// public key.
func validIdentityKey(keyB64 string) bool {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	return err == nil && len(key) == ed25519.PublicKeySize
}

// Register handles POST /api/users/register.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Username == "" || len(req.Username) > maxUsernameLength {
		BadRequest(w, "Invalid username")
		return
	}
	if !validIdentityKey(req.IdentityPublicKey) {
		BadRequest(w, "Invalid identity public key")
		return
	}

	user := &models.User{
		Username:          req.Username,
		IdentityPublicKey: req.IdentityPublicKey,
		RegistrationID:    req.RegistrationID,
	}
	if _, err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, models.ErrDuplicateUser) {
			Conflict(w, "Username already taken")
			return
		}
		InternalError(w, "Failed to register user")
		return
	}

	WriteCreated(w, userToResponse(user))
}

// GetByUsername handles GET /api/users/by-username/{username}.
func (h *UserHandler) GetByUsername(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	user, err := h.store.GetUser(r.Context(), username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			NotFound(w, "User not found")
			return
		}
		InternalError(w, "Failed to fetch user")
		return
	}

	WriteSuccess(w, userToResponse(user))
}

// GetByID handles GET /api/users/{id}.
func (h *UserHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			NotFound(w, "User not found")
			return
		}
		InternalError(w, "Failed to fetch user")
		return
	}

	WriteSuccess(w, userToResponse(user))
}

// RotateIdentity handles PUT /api/users/{id}/identity.
func (h *UserHandler) RotateIdentity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req RotateIdentityRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if !validIdentityKey(req.IdentityPublicKey) {
		BadRequest(w, "Invalid identity public key")
		return
	}

	if err := h.store.UpdateIdentityKey(r.Context(), id, req.IdentityPublicKey, req.RegistrationID); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			NotFound(w, "User not found")
			return
		}
		InternalError(w, "Failed to rotate identity key")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		InternalError(w, "Failed to fetch user")
		return
	}

	WriteSuccess(w, userToResponse(user))
}
