// Package registry tracks which client sockets are currently connected.
// The relay consults it to decide between live push and offline queueing.
//
// The registry is pure in-memory state: a socket that is not registered is
// simply treated as offline. All mutations go through one mutex; the map is
// read-heavy and writes happen only on connect and disconnect.
package registry

import (
	"sync"
)

// Conn is the transport-side handle the registry keeps per session. The
// WebSocket layer implements it; tests substitute lightweight fakes.
type Conn interface {
	// ID returns a unique identifier for this socket instance.
	ID() string

	// Send pushes a named event with a JSON-marshalable payload.
	Send(event string, payload any) error

	// Alive reports whether the underlying socket is still connected.
	Alive() bool

	// Close tears the socket down. It must be safe to call more than once.
	Close() error
}

// Session is a registered (user, device, socket) triple.
type Session struct {
	UserID   string
	DeviceID string
	Conn     Conn
}

// Registry is the in-memory map of connected clients keyed by user+device.
type Registry struct {
	mu sync.RWMutex

	// byKey maps userID+":"+deviceID to the current session.
	byKey map[string]*Session

	// byUser maps userID to the same session. Under the single-session
	// model each user has at most one entry.
	byUser map[string]*Session
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byKey:  make(map[string]*Session),
		byUser: make(map[string]*Session),
	}
}

func sessionKey(userID, deviceID string) string {
	return userID + ":" + deviceID
}

// Register inserts the session, forcibly disconnecting any socket already
// registered for the same user. The replaced connection is returned so the
// caller can log the takeover; it has already been closed.
func (r *Registry) Register(userID, deviceID string, conn Conn) (replaced Conn) {
	key := sessionKey(userID, deviceID)

	r.mu.Lock()
	// A user reconnecting from a different device still only gets one
	// live session, so evict by user, not just by key.
	if old := r.byUser[userID]; old != nil {
		delete(r.byKey, sessionKey(old.UserID, old.DeviceID))
		delete(r.byUser, userID)
		replaced = old.Conn
	}

	session := &Session{UserID: userID, DeviceID: deviceID, Conn: conn}
	r.byKey[key] = session
	r.byUser[userID] = session
	r.mu.Unlock()

	if replaced != nil {
		_ = replaced.Close()
	}
	return replaced
}

// Unregister removes the session for (user, device), but only when the
// currently registered socket is the one given. A stale disconnect event
// from a replaced socket must not evict its successor.
func (r *Registry) Unregister(userID, deviceID, socketID string) bool {
	key := sessionKey(userID, deviceID)

	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.byKey[key]
	if session == nil || session.Conn.ID() != socketID {
		return false
	}

	delete(r.byKey, key)
	delete(r.byUser, userID)
	return true
}

// Get returns the session for (user, device), or nil when offline.
func (r *Registry) Get(userID, deviceID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byKey[sessionKey(userID, deviceID)]
}

// GetByUser returns the user's session regardless of device, or nil. Under
// the single-session model this is the at-most-one entry.
func (r *Registry) GetByUser(userID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

// IsOnline reports whether (user, device) has a live registered socket.
func (r *Registry) IsOnline(userID, deviceID string) bool {
	session := r.Get(userID, deviceID)
	return session != nil && session.Conn.Alive()
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}
