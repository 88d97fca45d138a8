package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quietwire/quietwire/internal/api/middleware"
	"github.com/quietwire/quietwire/pkg/relay/models"
	"github.com/quietwire/quietwire/pkg/relay/store"
)

// maxOneTimeKeyBatch bounds a single one-time pre-key upload.
const maxOneTimeKeyBatch = 200

// KeyHandler handles the pre-key directory endpoints.
type KeyHandler struct {
	store store.Store
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(s store.Store) *KeyHandler {
	return &KeyHandler{store: s}
}

// SignedPreKeyRequest is the request body for POST /api/keys/signed-pre-key.
type SignedPreKeyRequest struct {
	KeyID     uint32 `json:"key_id"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// OneTimePreKeyUpload is one entry of a one-time pre-key batch.
type OneTimePreKeyUpload struct {
	KeyID     uint32 `json:"key_id"`
	PublicKey string `json:"public_key"`
}

// OneTimePreKeysRequest is the request body for POST /api/keys/one-time-pre-keys.
type OneTimePreKeysRequest struct {
	Keys []OneTimePreKeyUpload `json:"keys"`
}

// SignedPreKeyResponse is the bundle representation of a signed pre-key.
type SignedPreKeyResponse struct {
	KeyID     uint32 `json:"key_id"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// OneTimePreKeyResponse is the bundle representation of a one-time pre-key.
type OneTimePreKeyResponse struct {
	KeyID     uint32 `json:"key_id"`
	PublicKey string `json:"public_key"`
}

// PreKeyBundle is everything a sender needs to start an X3DH handshake
// with the user. The one-time pre-key is present only while the user has
// unconsumed keys; fetching the bundle consumes it.
type PreKeyBundle struct {
	UserID            string                 `json:"user_id"`
	Username          string                 `json:"username"`
	RegistrationID    uint32                 `json:"registration_id"`
	IdentityPublicKey string                 `json:"identity_public_key"`
	SignedPreKey      SignedPreKeyResponse   `json:"signed_pre_key"`
	OneTimePreKey     *OneTimePreKeyResponse `json:"one_time_pre_key,omitempty"`
}

// CountResponse is the response body for the one-time pre-key count.
type CountResponse struct {
	Count int64 `json:"count"`
}

// UploadSignedPreKey handles POST /api/keys/signed-pre-key.
func (h *KeyHandler) UploadSignedPreKey(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		AuthFailed(w)
		return
	}

	var req SignedPreKeyRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.PublicKey == "" || req.Signature == "" {
		BadRequest(w, "Public key and signature are required")
		return
	}

	key := &models.SignedPreKey{
		UserID:    identity.UserID,
		KeyID:     req.KeyID,
		PublicKey: req.PublicKey,
		Signature: req.Signature,
	}
	if err := h.store.UpsertSignedPreKey(r.Context(), key); err != nil {
		InternalError(w, "Failed to store signed pre-key")
		return
	}

	WriteCreated(w, SignedPreKeyResponse{
		KeyID:     key.KeyID,
		PublicKey: key.PublicKey,
		Signature: key.Signature,
	})
}

// UploadOneTimePreKeys handles POST /api/keys/one-time-pre-keys.
func (h *KeyHandler) UploadOneTimePreKeys(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		AuthFailed(w)
		return
	}

	var req OneTimePreKeysRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if len(req.Keys) == 0 || len(req.Keys) > maxOneTimeKeyBatch {
		BadRequest(w, "Key batch must contain between 1 and 200 entries")
		return
	}

	keys := make([]*models.OneTimePreKey, 0, len(req.Keys))
	for _, upload := range req.Keys {
		if upload.PublicKey == "" {
			BadRequest(w, "Every key needs a public key")
			return
		}
		keys = append(keys, &models.OneTimePreKey{
			UserID:    identity.UserID,
			KeyID:     upload.KeyID,
			PublicKey: upload.PublicKey,
		})
	}

	if err := h.store.CreateOneTimePreKeys(r.Context(), keys); err != nil {
		if errors.Is(err, models.ErrDuplicatePreKey) {
			Conflict(w, "Duplicate key ID")
			return
		}
		InternalError(w, "Failed to store one-time pre-keys")
		return
	}

	WriteCreated(w, CountResponse{Count: int64(len(keys))})
}

// GetBundle handles GET /api/keys/bundle/{userId}.
//
// Assembles the target user's pre-key bundle. The one-time pre-key, when
// available, is consumed atomically: concurrent fetches for the same user
// receive distinct keys until the supply runs out.
func (h *KeyHandler) GetBundle(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "userId")

	user, err := h.store.GetUserByID(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			NotFound(w, "User not found")
			return
		}
		InternalError(w, "Failed to fetch bundle")
		return
	}

	signedPreKey, err := h.store.GetLatestSignedPreKey(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, models.ErrSignedPreKeyNotFound) {
			NotFound(w, "User has no signed pre-key")
			return
		}
		InternalError(w, "Failed to fetch bundle")
		return
	}

	bundle := PreKeyBundle{
		UserID:            user.ID,
		Username:          user.Username,
		RegistrationID:    user.RegistrationID,
		IdentityPublicKey: user.IdentityPublicKey,
		SignedPreKey: SignedPreKeyResponse{
			KeyID:     signedPreKey.KeyID,
			PublicKey: signedPreKey.PublicKey,
			Signature: signedPreKey.Signature,
		},
	}

	oneTimeKey, err := h.store.TakeOneTimePreKey(r.Context(), user.ID)
	if err != nil {
		InternalError(w, "Failed to fetch bundle")
		return
	}
	if oneTimeKey != nil {
		bundle.OneTimePreKey = &OneTimePreKeyResponse{
			KeyID:     oneTimeKey.KeyID,
			PublicKey: oneTimeKey.PublicKey,
		}
	}

	WriteSuccess(w, bundle)
}

// CountOneTimePreKeys handles GET /api/keys/one-time-pre-keys/count/{userId}.
func (h *KeyHandler) CountOneTimePreKeys(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "userId")

	if _, err := h.store.GetUserByID(r.Context(), targetID); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			NotFound(w, "User not found")
			return
		}
		InternalError(w, "Failed to count keys")
		return
	}

	count, err := h.store.CountOneTimePreKeys(r.Context(), targetID)
	if err != nil {
		InternalError(w, "Failed to count keys")
		return
	}

	WriteSuccess(w, CountResponse{Count: count})
}
