package registry

import (
	"sync"
	"testing"
)

// fakeConn is a minimal Conn for registry tests.
type fakeConn struct {
	id string

	mu     sync.Mutex
	closed bool
	events []string
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestRegister(t *testing.T) {
	t.Run("register and lookup", func(t *testing.T) {
		r := New()
		conn := newFakeConn("s1")

		if replaced := r.Register("alice", "dev-1", conn); replaced != nil {
			t.Errorf("expected no replacement, got %v", replaced.ID())
		}

		session := r.Get("alice", "dev-1")
		if session == nil || session.Conn.ID() != "s1" {
			t.Fatal("expected session for (alice, dev-1)")
		}
		if !r.IsOnline("alice", "dev-1") {
			t.Error("expected alice to be online")
		}
		if r.Len() != 1 {
			t.Errorf("expected 1 session, got %d", r.Len())
		}
	})

	t.Run("new device evicts old session", func(t *testing.T) {
		r := New()
		old := newFakeConn("s1")
		r.Register("alice", "dev-1", old)

		replaced := r.Register("alice", "dev-2", newFakeConn("s2"))
		if replaced == nil || replaced.ID() != "s1" {
			t.Fatal("expected s1 to be replaced")
		}
		if old.Alive() {
			t.Error("expected replaced connection to be closed")
		}

		if r.Get("alice", "dev-1") != nil {
			t.Error("expected old device session to be gone")
		}
		if r.Len() != 1 {
			t.Errorf("expected 1 session, got %d", r.Len())
		}
	})

	t.Run("reconnect on same device replaces socket", func(t *testing.T) {
		r := New()
		r.Register("alice", "dev-1", newFakeConn("s1"))
		replaced := r.Register("alice", "dev-1", newFakeConn("s2"))

		if replaced == nil || replaced.ID() != "s1" {
			t.Fatal("expected s1 to be replaced")
		}
		if got := r.Get("alice", "dev-1"); got == nil || got.Conn.ID() != "s2" {
			t.Error("expected s2 to be the live socket")
		}
	})
}

func TestUnregister(t *testing.T) {
	t.Run("removes the matching socket", func(t *testing.T) {
		r := New()
		r.Register("alice", "dev-1", newFakeConn("s1"))

		if !r.Unregister("alice", "dev-1", "s1") {
			t.Error("expected unregister to succeed")
		}
		if r.GetByUser("alice") != nil {
			t.Error("expected alice to be offline")
		}
	})

	t.Run("stale socket id does not evict successor", func(t *testing.T) {
		r := New()
		r.Register("alice", "dev-1", newFakeConn("s1"))
		r.Register("alice", "dev-1", newFakeConn("s2"))

		// The old socket's disconnect handler fires after the takeover.
		if r.Unregister("alice", "dev-1", "s1") {
			t.Error("expected stale unregister to be rejected")
		}
		if got := r.GetByUser("alice"); got == nil || got.Conn.ID() != "s2" {
			t.Error("expected s2 to survive the stale disconnect")
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		r := New()
		if r.Unregister("ghost", "dev-1", "s1") {
			t.Error("expected unregister of unknown session to fail")
		}
	})
}

func TestGetByUser(t *testing.T) {
	r := New()
	if r.GetByUser("alice") != nil {
		t.Error("expected nil for unknown user")
	}

	r.Register("alice", "dev-1", newFakeConn("s1"))
	session := r.GetByUser("alice")
	if session == nil || session.DeviceID != "dev-1" {
		t.Fatal("expected session for alice")
	}
}

func TestConcurrentRegistration(t *testing.T) {
	r := New()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conn := newFakeConn("socket")
			r.Register("alice", "dev-1", conn)
		}(i)
	}
	wg.Wait()

	// Whatever the interleaving, exactly one session survives.
	if r.Len() != 1 {
		t.Errorf("expected 1 session after concurrent registrations, got %d", r.Len())
	}
}
