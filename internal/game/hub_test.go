package game

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	closed   bool
	failures int
	written  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{written: make(chan struct{}, 100)}
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("broken pipe")
	}
	f.messages = append(f.messages, data)
	f.written <- struct{}{}
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) Messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = string(m)
	}
	return out
}

func (f *fakeConn) waitWrite(t *testing.T) {
	t.Helper()
	select {
	case <-f.written:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for websocket write")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.clients == nil || hub.broadcast == nil || hub.register == nil || hub.unregister == nil {
		t.Error("hub channels and maps must be initialised")
	}
	if count := hub.GetClientCount(); count != 0 {
		t.Errorf("GetClientCount() = %v, want 0", count)
	}
}

func TestHub_RenderRoutesBySession(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	a, b := newFakeConn(), newFakeConn()
	hub.RegisterClient(a, "session-a")
	hub.RegisterClient(b, "session-b")
	waitUntil(t, func() bool { return hub.GetClientCount() == 2 })

	hub.Render(Snapshot{SessionID: "session-a", Balance: 900, Phase: PhaseSpinning})
	a.waitWrite(t)

	msgs := a.Messages()
	if len(msgs) != 1 {
		t.Fatalf("session-a got %d messages, want 1", len(msgs))
	}
	if !strings.Contains(msgs[0], `"type":"state"`) || !strings.Contains(msgs[0], `"balance":900`) {
		t.Errorf("unexpected frame: %s", msgs[0])
	}

	time.Sleep(10 * time.Millisecond)
	if len(b.Messages()) != 0 {
		t.Error("session-b should not receive session-a frames")
	}
}

func TestHub_UnregisterClosesConn(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	conn := newFakeConn()
	client := hub.RegisterClient(conn, "s1")
	waitUntil(t, func() bool { return hub.sessionClientCount("s1") == 1 })

	hub.UnregisterClient(client)
	waitUntil(t, func() bool { return hub.GetClientCount() == 0 })

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if !conn.closed {
		t.Error("unregistered connection should be closed")
	}
}

func TestHub_BroadcastChannelFull(t *testing.T) {
	hub := NewHub(nil)

	// Hub not running, so the buffer fills up.
	for i := 0; i < BROADCAST_BUFFER; i++ {
		hub.Render(Snapshot{SessionID: "s"})
	}

	done := make(chan bool, 1)
	go func() {
		hub.Render(Snapshot{SessionID: "s"})
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Render() blocked when channel was full")
	}
}

func TestHub_StoppedHubDoesNotBlockRegistration(t *testing.T) {
	hub := NewHub(nil)
	hub.Stop()

	done := make(chan struct{})
	go func() {
		c := hub.RegisterClient(newFakeConn(), "s")
		hub.UnregisterClient(c)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("RegisterClient blocked on a stopped hub")
	}
}

func TestClient_SendSurvivesWriteError(t *testing.T) {
	conn := newFakeConn()
	conn.failures = 1
	c := newClient(conn, "s", NewHub(nil).log)
	defer c.close()

	c.Send(WSMessage{Type: "pong"})
	c.Send(WSMessage{Type: "pong"})
	conn.waitWrite(t)

	if got := conn.Messages(); len(got) != 1 || got[0] != `{"type":"pong"}` {
		t.Errorf("messages = %v", got)
	}
}

func TestHub_RenderKeepsFrameOrder(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	const frames = 20
	for round := 0; round < 50; round++ {
		conn := newFakeConn()
		client := hub.RegisterClient(conn, "s1")
		waitUntil(t, func() bool { return hub.sessionClientCount("s1") == 1 })

		for i := 0; i < frames; i++ {
			hub.Render(Snapshot{SessionID: "s1", Balance: int64(i)})
		}
		for i := 0; i < frames; i++ {
			conn.waitWrite(t)
		}

		for i, raw := range conn.Messages() {
			var msg struct {
				Data Snapshot `json:"data"`
			}
			if err := json.Unmarshal([]byte(raw), &msg); err != nil {
				t.Fatal(err)
			}
			if msg.Data.Balance != int64(i) {
				t.Fatalf("round %d: frame %d has balance %d, frames arrived out of order", round, i, msg.Data.Balance)
			}
		}
		hub.UnregisterClient(client)
	}
}

func TestHub_SendAndRenderShareOneQueue(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	conn := newFakeConn()
	client := hub.RegisterClient(conn, "s1")
	waitUntil(t, func() bool { return hub.sessionClientCount("s1") == 1 })

	client.Send(WSMessage{Type: "initial_state"})
	hub.Render(Snapshot{SessionID: "s1", Phase: PhaseSpinning})
	conn.waitWrite(t)
	conn.waitWrite(t)

	msgs := conn.Messages()
	if !strings.Contains(msgs[0], "initial_state") || !strings.Contains(msgs[1], `"phase":"SPINNING"`) {
		t.Errorf("messages = %v", msgs)
	}
}

// stuckConn blocks every write until release is closed.
type stuckConn struct {
	*fakeConn
	release chan struct{}
}

func (c *stuckConn) WriteMessage(mt int, data []byte) error {
	<-c.release
	return c.fakeConn.WriteMessage(mt, data)
}

func TestHub_SlowClientIsDisconnected(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	conn := &stuckConn{fakeConn: newFakeConn(), release: make(chan struct{})}
	hub.RegisterClient(conn, "s1")
	waitUntil(t, func() bool { return hub.sessionClientCount("s1") == 1 })

	// One frame is held by the blocked writer, the rest fill the queue.
	for i := 0; i < CLIENT_BUFFER+5; i++ {
		hub.Render(Snapshot{SessionID: "s1", Balance: int64(i)})
	}
	waitUntil(t, func() bool { return hub.sessionClientCount("s1") == 0 })
	close(conn.release)

	waitUntil(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.closed
	})
}

func BenchmarkHub_Render(b *testing.B) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	snap := Snapshot{SessionID: "bench", Balance: 1000, Phase: PhaseIdle}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Render(snap)
	}
}
