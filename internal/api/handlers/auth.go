package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/quietwire/quietwire/internal/api/auth"
	"github.com/quietwire/quietwire/internal/api/middleware"
	"github.com/quietwire/quietwire/internal/crypto"
	"github.com/quietwire/quietwire/internal/logger"
	"github.com/quietwire/quietwire/pkg/metrics"
	"github.com/quietwire/quietwire/pkg/relay/models"
	"github.com/quietwire/quietwire/pkg/relay/store"
)

const (
	// challengeTTL is how long a login nonce stays valid.
	challengeTTL = 120 * time.Second

	// maxDeviceIDLength bounds the client-generated device identifier.
	maxDeviceIDLength = 255

	// DefaultLowKeyThreshold is the one-time pre-key count below which the
	// verify response asks the client to replenish.
	DefaultLowKeyThreshold = 20

	// signatureSize is the length of a raw Ed25519 signature.
	signatureSize = 64
)

var fcmTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{1,512}$`)

// AuthHandler handles challenge-response authentication endpoints.
type AuthHandler struct {
	store           store.Store
	tokens          *auth.TokenService
	lowKeyThreshold int64
}

// NewAuthHandler creates a new AuthHandler. A lowKeyThreshold of zero or
// less falls back to DefaultLowKeyThreshold.
func NewAuthHandler(s store.Store, tokens *auth.TokenService, lowKeyThreshold int64) *AuthHandler {
	if lowKeyThreshold <= 0 {
		lowKeyThreshold = DefaultLowKeyThreshold
	}
	return &AuthHandler{
		store:           s,
		tokens:          tokens,
		lowKeyThreshold: lowKeyThreshold,
	}
}

// ChallengeRequest is the request body for POST /api/auth/challenge.
type ChallengeRequest struct {
	Username string `json:"username"`
	DeviceID string `json:"deviceId"`
}

// ChallengeResponse is the response body for POST /api/auth/challenge.
type ChallengeResponse struct {
	Nonce string `json:"nonce"`
}

// VerifyRequest is the request body for POST /api/auth/verify.
type VerifyRequest struct {
	Username   string `json:"username"`
	Signature  string `json:"signature"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName,omitempty"`
	FCMToken   string `json:"fcmToken,omitempty"`
}

// VerifyResponse is the response body for POST /api/auth/verify.
type VerifyResponse struct {
	Token                    string       `json:"token"`
	User                     UserResponse `json:"user"`
	RemainingOneTimeKeyCount int64        `json:"remaining_one_time_key_count"`
	LowKeyWarning            bool         `json:"low_key_warning"`
}

// Challenge handles POST /api/auth/challenge.
//
// Issues a fresh login nonce for the user, replacing any prior challenge.
// An unknown username produces the same generic failure as every other
// authentication error so the endpoint cannot be used to probe for
// accounts.
func (h *AuthHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Username == "" {
		BadRequest(w, "Username is required")
		return
	}
	if req.DeviceID == "" || len(req.DeviceID) > maxDeviceIDLength {
		BadRequest(w, "Invalid device ID")
		return
	}

	user, err := h.store.GetUser(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			AuthFailed(w)
			return
		}
		InternalError(w, "Failed to issue challenge")
		return
	}

	nonce, err := crypto.GenerateNonce()
	if err != nil {
		InternalError(w, "Failed to issue challenge")
		return
	}

	challenge := &models.AuthChallenge{
		UserID:    user.ID,
		Nonce:     nonce,
		ExpiresAt: time.Now().Add(challengeTTL),
	}
	if err := h.store.CreateChallenge(r.Context(), challenge); err != nil {
		InternalError(w, "Failed to issue challenge")
		return
	}

	WriteSuccess(w, ChallengeResponse{Nonce: nonce})
}

// Verify handles POST /api/auth/verify.
//
// Consumes the user's pending challenge regardless of the signature
// outcome, so a nonce can only ever be attempted once. On success all
// prior device rows are replaced (logging out any previous session) and a
// session token for the new device is minted.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Username == "" {
		BadRequest(w, "Username is required")
		return
	}
	if req.DeviceID == "" || len(req.DeviceID) > maxDeviceIDLength {
		BadRequest(w, "Invalid device ID")
		return
	}
	if sig, err := base64.StdEncoding.DecodeString(req.Signature); err != nil || len(sig) != signatureSize {
		BadRequest(w, "Invalid signature format")
		return
	}
	if req.FCMToken != "" && !fcmTokenPattern.MatchString(req.FCMToken) {
		BadRequest(w, "Invalid FCM token")
		return
	}

	user, err := h.store.GetUser(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			metrics.ObserveAuth(false)
			AuthFailed(w)
			return
		}
		InternalError(w, "Authentication failed")
		return
	}

	// The challenge is removed here no matter what happens next; a failed
	// signature burns the nonce.
	challenge, err := h.store.TakeChallenge(r.Context(), user.ID, time.Now())
	if err != nil {
		if errors.Is(err, models.ErrChallengeNotFound) {
			metrics.ObserveAuth(false)
			AuthFailed(w)
			return
		}
		InternalError(w, "Authentication failed")
		return
	}

	valid, err := crypto.VerifySignature(user.IdentityPublicKey, challenge.Nonce, req.Signature)
	if err != nil || !valid {
		if err != nil {
			logger.WarnCtx(r.Context(), "challenge signature verification errored", "username", req.Username)
		}
		metrics.ObserveAuth(false)
		AuthFailed(w)
		return
	}

	now := time.Now()
	device := &models.Device{
		UserID:            user.ID,
		DeviceID:          req.DeviceID,
		IdentityPublicKey: user.IdentityPublicKey,
		RegistrationID:    user.RegistrationID,
		DeviceName:        req.DeviceName,
		FCMToken:          req.FCMToken,
		LastSeenAt:        &now,
	}
	if err := h.store.ReplaceDevice(r.Context(), device); err != nil {
		InternalError(w, "Authentication failed")
		return
	}

	token, err := h.tokens.GenerateToken(user.ID, req.DeviceID)
	if err != nil {
		InternalError(w, "Authentication failed")
		return
	}

	keyCount, err := h.store.CountOneTimePreKeys(r.Context(), user.ID)
	if err != nil {
		logger.WarnCtx(r.Context(), "failed to count one-time pre-keys", "error", err)
		keyCount = 0
	}

	metrics.ObserveAuth(true)
	logger.InfoCtx(r.Context(), "session established", "username", user.Username, "device_id", req.DeviceID)

	WriteSuccess(w, VerifyResponse{
		Token:                    token,
		User:                     userToResponse(user),
		RemainingOneTimeKeyCount: keyCount,
		LowKeyWarning:            keyCount < h.lowKeyThreshold,
	})
}

// Logout handles POST /api/auth/logout.
//
// Deletes the caller's device row, invalidating the session token. The
// operation is idempotent.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		AuthFailed(w)
		return
	}

	if err := h.store.DeleteDevice(r.Context(), identity.UserID, identity.DeviceID); err != nil {
		InternalError(w, "Logout failed")
		return
	}

	WriteJSON(w, http.StatusOK, Response{Success: true, Message: "Logged out"})
}
