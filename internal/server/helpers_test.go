package server

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// memoryAppender collects records in memory so tests can assert on what the
// sink persisted.
type memoryAppender struct {
	mu      sync.Mutex
	records []Record
	fail    bool
}

func (m *memoryAppender) Append(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return ErrNotRegistered
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryAppender) byKind(kind string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

func (m *memoryAppender) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// testAccounts keeps the bcrypt work per test small.
func testAccounts() []Credential {
	return []Credential{
		{Username: "test", Password: "test", DisplayName: "Usuario Test"},
		{Username: "ana", Password: "abcdef", DisplayName: "Ana"},
	}
}

// newTestHub builds a hub with dev-mode auth, a small account fixture, and a
// memory-backed audit sink. The hub's Run loop is not started; tests drive
// registration and dispatch directly.
func newTestHub(t *testing.T, devMode bool) (*Hub, *memoryAppender) {
	t.Helper()

	cfg := NewConfig()
	cfg.Auth.DevMode = devMode
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Accounts = testAccounts()
	SetConfig(cfg)
	t.Cleanup(func() { SetConfig(nil) })

	mem := &memoryAppender{}
	sink := NewSink(mem, 64)
	go sink.Run()
	t.Cleanup(sink.Close)

	return NewHub(sink), mem
}

// newTestClient returns a connection-less client registered with nothing.
func newTestClient() *Client {
	return &Client{
		send: make(chan []byte, 32),
		addr: "127.0.0.1",
		port: 49152,
	}
}

// testFrame is the decoded shape of any outbound frame.
type testFrame struct {
	Type string `json:"type"`
	Body string `json:"body"`
	From string `json:"from"`
	Room string `json:"room"`
}

// recvFrame decodes the next frame enqueued for the client.
func recvFrame(t *testing.T, c *Client) testFrame {
	t.Helper()
	select {
	case raw := <-c.send:
		var frame testFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("failed to decode enqueued frame %q: %v", raw, err)
		}
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for enqueued frame")
		return testFrame{}
	}
}

// expectNoFrameQueued asserts the client's send queue stays empty.
func expectNoFrameQueued(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("expected no frame, got %q", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

// mustMarshal encodes an envelope as a raw inbound frame.
func mustMarshal(t *testing.T, env Envelope) []byte {
	t.Helper()
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("failed to marshal envelope: %v", err)
	}
	return raw
}

// waitFor polls until the condition holds or the timeout elapses.
func waitFor(t *testing.T, cond func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(message)
}
