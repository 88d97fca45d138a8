package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/quietwire/quietwire/internal/api/middleware"
	"github.com/quietwire/quietwire/internal/logger"
	"github.com/quietwire/quietwire/pkg/metrics"
	"github.com/quietwire/quietwire/pkg/relay/models"
	"github.com/quietwire/quietwire/pkg/relay/registry"
	"github.com/quietwire/quietwire/pkg/relay/store"
)

const (
	// maxCiphertextLength bounds the base64 ciphertext of one message.
	maxCiphertextLength = 65536

	// queuedMessageTTL is how long an undelivered message stays queued.
	queuedMessageTTL = 30 * 24 * time.Hour

	// maxOfflineLimit caps a single offline drain.
	maxOfflineLimit = 100

	// maxFileReferenceLength matches the queued_messages column size.
	maxFileReferenceLength = 512
)

var ciphertextPattern = regexp.MustCompile(`^[A-Za-z0-9+/]*={0,2}$`)

// MessageHandler implements the relay: live push to connected recipients,
// store-and-forward for everyone else.
type MessageHandler struct {
	store    store.Store
	registry *registry.Registry
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(s store.Store, reg *registry.Registry) *MessageHandler {
	return &MessageHandler{
		store:    s,
		registry: reg,
	}
}

// SendRequest is the request body for POST /api/messages/send.
// FileReference is an opaque handle from a prior file upload; the relay
// passes it through without interpreting it.
type SendRequest struct {
	RecipientID   string `json:"recipient_id"`
	Ciphertext    string `json:"ciphertext"`
	MessageType   string `json:"message_type,omitempty"`
	FileReference string `json:"file_reference,omitempty"`
}

// SendResponse is the response body for POST /api/messages/send.
type SendResponse struct {
	Delivered bool   `json:"delivered"`
	MessageID string `json:"message_id,omitempty"`
}

// OfflineMessage is the transport representation of one queued message.
type OfflineMessage struct {
	ID            string             `json:"id"`
	SenderID      string             `json:"sender_id"`
	Ciphertext    string             `json:"ciphertext"`
	MessageType   models.MessageType `json:"message_type"`
	FileReference string             `json:"file_reference,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// BatchDeleteRequest is the request body for DELETE /api/messages/batch.
type BatchDeleteRequest struct {
	MessageIDs []string `json:"message_ids"`
}

// BatchDeleteResponse is the response body for DELETE /api/messages/batch.
type BatchDeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

// NewMessageEvent is the payload of the new_message WebSocket event.
type NewMessageEvent struct {
	SenderID      string             `json:"sender_id"`
	Ciphertext    string             `json:"ciphertext"`
	MessageType   models.MessageType `json:"message_type"`
	FileReference string             `json:"file_reference,omitempty"`
	Timestamp     string             `json:"timestamp"`
}

// Send handles POST /api/messages/send.
//
// If the recipient has a live socket the ciphertext is pushed immediately;
// otherwise (or when the socket turns out to be stale) it is queued for
// their next connect. The queue write commits before the response, so a
// message lost to the stale-socket race is recovered on the next fetch.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		AuthFailed(w)
		return
	}

	var req SendRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.RecipientID == "" {
		BadRequest(w, "Recipient is required")
		return
	}
	if req.RecipientID == identity.UserID {
		BadRequest(w, "Cannot send a message to yourself")
		return
	}
	if req.Ciphertext == "" || len(req.Ciphertext) > maxCiphertextLength || !ciphertextPattern.MatchString(req.Ciphertext) {
		BadRequest(w, "Invalid ciphertext")
		return
	}
	if len(req.FileReference) > maxFileReferenceLength {
		BadRequest(w, "Invalid file reference")
		return
	}

	messageType := models.MessageType(req.MessageType)
	if req.MessageType == "" {
		messageType = models.MessageTypeSignal
	}
	if !messageType.IsValid() {
		BadRequest(w, "Invalid message type")
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.Ciphertext)
	if err != nil {
		BadRequest(w, "Invalid ciphertext")
		return
	}

	// The recipient must have registered a device at some point; a user
	// with no device row cannot possibly receive or fetch anything.
	if _, err := h.store.GetAnyDevice(r.Context(), req.RecipientID); err != nil {
		if errors.Is(err, models.ErrDeviceNotFound) {
			NotFound(w, "Recipient not found")
			return
		}
		InternalError(w, "Failed to send message")
		return
	}

	if session := h.registry.GetByUser(req.RecipientID); session != nil && session.Conn.Alive() {
		event := NewMessageEvent{
			SenderID:      identity.UserID,
			Ciphertext:    req.Ciphertext,
			MessageType:   messageType,
			FileReference: req.FileReference,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		}
		if err := session.Conn.Send("new_message", event); err == nil {
			metrics.ObserveDelivery(true)
			WriteSuccess(w, SendResponse{Delivered: true})
			return
		}
		// Stale socket: fall through to queueing.
		logger.DebugCtx(r.Context(), "live push failed, queueing", "recipient_id", req.RecipientID)
	}

	msg := &models.QueuedMessage{
		RecipientID:      req.RecipientID,
		SenderID:         identity.UserID,
		EncryptedPayload: payload,
		MessageType:      messageType,
		FileReference:    req.FileReference,
		ExpiresAt:        time.Now().Add(queuedMessageTTL),
	}
	messageID, err := h.store.EnqueueMessage(r.Context(), msg)
	if err != nil {
		InternalError(w, "Failed to queue message")
		return
	}

	metrics.ObserveDelivery(false)
	WriteSuccess(w, SendResponse{Delivered: false, MessageID: messageID})
}

// FetchOffline handles GET /api/messages/offline.
//
// Atomically drains up to limit queued messages for the caller, oldest
// first. Rows are deleted as they are returned, so a message is handed out
// at most once.
func (h *MessageHandler) FetchOffline(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		AuthFailed(w)
		return
	}

	limit := maxOfflineLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxOfflineLimit {
			BadRequest(w, "Limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	drained, err := h.store.DrainMessages(r.Context(), identity.UserID, limit)
	if err != nil {
		InternalError(w, "Failed to fetch messages")
		return
	}

	messages := make([]OfflineMessage, len(drained))
	for i, msg := range drained {
		messages[i] = OfflineMessage{
			ID:            msg.ID,
			SenderID:      msg.SenderID,
			Ciphertext:    base64.StdEncoding.EncodeToString(msg.EncryptedPayload),
			MessageType:   msg.MessageType,
			FileReference: msg.FileReference,
			CreatedAt:     msg.CreatedAt,
		}
	}

	metrics.ObserveDrain(len(messages))
	WriteSuccess(w, messages)
}

// BatchDelete handles DELETE /api/messages/batch.
//
// Deletes only rows addressed to the caller; IDs belonging to other users
// are silently skipped by the ownership filter in the store.
func (h *MessageHandler) BatchDelete(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		AuthFailed(w)
		return
	}

	var req BatchDeleteRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if len(req.MessageIDs) == 0 {
		BadRequest(w, "Message IDs are required")
		return
	}
	for _, id := range req.MessageIDs {
		if !store.ValidMessageID(id) {
			BadRequest(w, "Invalid message ID")
			return
		}
	}

	deleted, err := h.store.DeleteMessages(r.Context(), identity.UserID, req.MessageIDs)
	if err != nil {
		InternalError(w, "Failed to delete messages")
		return
	}

	WriteSuccess(w, BatchDeleteResponse{Deleted: deleted})
}
