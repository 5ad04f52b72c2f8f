package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/zackyviriot/study-buddy-backend/internal/models"
)

// mockConn is an in-memory ChatConn. Frames are fed with push and collected
// writes inspected with written / waitForEvent.
type mockConn struct {
	in chan []byte

	mu    sync.Mutex
	wrote []wirePacket

	closed    chan struct{}
	closeOnce sync.Once
}

// wirePacket is the decoded form of an outbound frame.
type wirePacket struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	AckID string          `json:"ackId"`
}

func newMockConn() *mockConn {
	return &mockConn{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case b, ok := <-c.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return 1, b, nil
	case <-c.closed:
		return 0, nil, io.ErrClosedPipe
	}
}

func (c *mockConn) WriteJSON(v interface{}) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var p wirePacket
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}

	c.mu.Lock()
	c.wrote = append(c.wrote, p)
	c.mu.Unlock()
	return nil
}

func (c *mockConn) SetReadDeadline(time.Time) error { return nil }

func (c *mockConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// push feeds one client frame.
func (c *mockConn) push(t *testing.T, event string, data interface{}, ackID string) {
	t.Helper()
	pkt := map[string]interface{}{"event": event, "ackId": ackID}
	if data != nil {
		pkt["data"] = data
	}
	b, err := json.Marshal(pkt)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	select {
	case c.in <- b:
	case <-time.After(time.Second):
		t.Fatalf("push: input buffer full")
	}
}

// disconnect simulates a transport-level drop.
func (c *mockConn) disconnect() {
	c.Close()
}

func (c *mockConn) written() []wirePacket {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wirePacket, len(c.wrote))
	copy(out, c.wrote)
	return out
}

// eventsOf returns all written packets with the given event type.
func (c *mockConn) eventsOf(event string) []wirePacket {
	var out []wirePacket
	for _, p := range c.written() {
		if p.Event == event {
			out = append(out, p)
		}
	}
	return out
}

// waitForEvent blocks until at least n packets with the event type were
// written, failing the test after two seconds.
func (c *mockConn) waitForEvent(t *testing.T, event string, n int) []wirePacket {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := c.eventsOf(event); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q events; wrote: %+v", n, event, c.written())
	return nil
}

// stubStore is an in-memory GatewayStore.
type stubStore struct {
	mu         sync.Mutex
	appended   []*models.Message
	reads      map[string][]string // messageID -> reader IDs
	failAppend error
	appendWait time.Duration // simulates a slow store write
}

func newStubStore() *stubStore {
	return &stubStore{reads: make(map[string][]string)}
}

func (s *stubStore) Append(ctx context.Context, msg *models.Message) (*models.StoredMessage, error) {
	if s.appendWait > 0 {
		select {
		case <-time.After(s.appendWait):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrPersistence, ctx.Err())
		}
	}
	if s.failAppend != nil {
		return nil, s.failAppend
	}
	if err := ValidateMessage(msg); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	msg.ID = primitive.NewObjectID()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	s.appended = append(s.appended, msg)
	return &models.StoredMessage{Message: *msg, Sender: models.SenderInfo{ID: msg.SenderID}}, nil
}

func (s *stubStore) MarkRead(ctx context.Context, messageID, readerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[messageID] = append(s.reads[messageID], readerID)
	return nil
}

func (s *stubStore) appendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appended)
}

// stubVerifier maps known tokens to user IDs.
type stubVerifier struct {
	ids map[string]string
}

func (v *stubVerifier) Verify(ctx context.Context, token string) (string, error) {
	if id, ok := v.ids[token]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: invalid token", ErrAuthentication)
}
