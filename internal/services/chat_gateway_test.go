package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/zackyviriot/study-buddy-backend/internal/models"
)

type testClient struct {
	conn *mockConn
	done chan struct{}
}

// connect runs ServeConn for a fresh mock connection in the background.
func connect(g *ChatGateway, handshakeToken string) *testClient {
	c := &testClient{conn: newMockConn(), done: make(chan struct{})}
	go func() {
		g.ServeConn(c.conn, handshakeToken)
		close(c.done)
	}()
	return c
}

func (c *testClient) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConn did not return")
	}
}

// join issues joinRoom and waits for its ack so later events are ordered
// after the membership change.
func (c *testClient) join(t *testing.T, roomType, roomID string) {
	t.Helper()
	ackID := "join-" + roomType + "-" + roomID
	c.conn.push(t, EventJoinRoom, RoomPayload{RoomID: roomID, RoomType: roomType}, ackID)
	waitForAck(t, c.conn, ackID)
}

func waitForAck(t *testing.T, c *mockConn, ackID string) wirePacket {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, p := range c.eventsOf(EventAck) {
			if p.AckID == ackID {
				return p
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for ack %q; wrote: %+v", ackID, c.written())
	return wirePacket{}
}

func newTestGateway(store GatewayStore, userIDs ...string) (*ChatGateway, map[string]string) {
	tokens := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		tokens["token-"+id] = id
	}
	g := NewChatGateway(NewChatHub(), store, &stubVerifier{ids: tokens}, NewPresenceService(nil))
	out := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		out[id] = "token-" + id
	}
	return g, out
}

func TestGatewayAuthViaHandshakeToken(t *testing.T) {
	userID := primitive.NewObjectID().Hex()
	g, tokens := newTestGateway(newStubStore(), userID)

	c := connect(g, tokens[userID])
	got := c.conn.waitForEvent(t, EventConnected, 1)

	var data ConnectedData
	require.NoError(t, json.Unmarshal(got[0].Data, &data))
	assert.Equal(t, userID, data.UserID)

	c.conn.disconnect()
	c.waitDone(t)
}

func TestGatewayAuthViaAuthPacket(t *testing.T) {
	userID := primitive.NewObjectID().Hex()
	g, tokens := newTestGateway(newStubStore(), userID)

	c := connect(g, "")
	c.conn.push(t, EventAuth, AuthPayload{Token: tokens[userID]}, "")
	got := c.conn.waitForEvent(t, EventConnected, 1)

	var data ConnectedData
	require.NoError(t, json.Unmarshal(got[0].Data, &data))
	assert.Equal(t, userID, data.UserID)

	c.conn.disconnect()
	c.waitDone(t)
}

func TestGatewayRejectsMissingToken(t *testing.T) {
	store := newStubStore()
	g, _ := newTestGateway(store)

	// First frame is a room event, not an auth packet, and the handshake
	// carried no token
	c := connect(g, "")
	c.conn.push(t, EventJoinRoom, RoomPayload{RoomID: "g1", RoomType: "study-group"}, "")

	c.conn.waitForEvent(t, EventError, 1)
	c.waitDone(t)

	assert.Empty(t, g.Hub().MembersOf(models.MakeRoomKey("study-group", "g1")))
	assert.Zero(t, store.appendCount())
	assert.Empty(t, c.conn.eventsOf(EventConnected))
}

func TestGatewayRejectsInvalidToken(t *testing.T) {
	g, _ := newTestGateway(newStubStore())

	c := connect(g, "bogus")
	got := c.conn.waitForEvent(t, EventError, 1)
	c.waitDone(t)

	var data ErrorData
	require.NoError(t, json.Unmarshal(got[0].Data, &data))
	assert.Equal(t, "Authentication failed", data.Message)
}

func TestGatewayUnauthenticatedEventsAreRejected(t *testing.T) {
	store := newStubStore()
	g, _ := newTestGateway(store)

	conn := newMockConn()
	s := NewSession(conn)
	go s.writeLoop()
	defer s.Close()

	for _, event := range []string{EventJoinRoom, EventLeaveRoom, EventSendMessage, EventTyping, EventMarkRead} {
		g.Dispatch(s, &ClientPacket{Event: event, AckID: event})
	}

	errs := conn.waitForEvent(t, EventError, 5)
	for _, p := range errs {
		var data ErrorData
		require.NoError(t, json.Unmarshal(p.Data, &data))
		assert.Equal(t, "Not authenticated", data.Message)
	}
	assert.Zero(t, store.appendCount())
	assert.Equal(t, 0, g.Hub().RoomCount())
}

func TestGatewaySendMessageBroadcastsToRoom(t *testing.T) {
	sender := primitive.NewObjectID().Hex()
	receiver := primitive.NewObjectID().Hex()
	store := newStubStore()
	g, tokens := newTestGateway(store, sender, receiver)

	a := connect(g, tokens[sender])
	b := connect(g, tokens[receiver])
	a.conn.waitForEvent(t, EventConnected, 1)
	b.conn.waitForEvent(t, EventConnected, 1)

	a.join(t, "study-group", "g1")
	b.join(t, "study-group", "g1")

	a.conn.push(t, EventSendMessage, SendMessagePayload{Content: "hello", RoomID: "g1", RoomType: "study-group"}, "send-1")

	ack := waitForAck(t, a.conn, "send-1")
	var ackData AckData
	require.NoError(t, json.Unmarshal(ack.Data, &ackData))
	assert.True(t, ackData.Success)

	// Both members receive the broadcast; the sender relies on the echo
	gotA := a.conn.waitForEvent(t, EventNewMessage, 1)
	gotB := b.conn.waitForEvent(t, EventNewMessage, 1)

	var msgA, msgB models.StoredMessage
	require.NoError(t, json.Unmarshal(gotA[0].Data, &msgA))
	require.NoError(t, json.Unmarshal(gotB[0].Data, &msgB))

	assert.Equal(t, "hello", msgA.Content)
	assert.Equal(t, msgA.ID, msgB.ID)
	assert.Equal(t, sender, msgA.SenderID.Hex())
	assert.Equal(t, "g1", msgA.RoomID)
	assert.Equal(t, "study-group", msgA.RoomType)
	assert.Equal(t, 1, store.appendCount())

	a.conn.disconnect()
	b.conn.disconnect()
	a.waitDone(t)
	b.waitDone(t)
}

func TestGatewaySendWithoutJoinStillDelivers(t *testing.T) {
	sender := primitive.NewObjectID().Hex()
	receiver := primitive.NewObjectID().Hex()
	store := newStubStore()
	g, tokens := newTestGateway(store, sender, receiver)

	a := connect(g, tokens[sender])
	b := connect(g, tokens[receiver])
	a.conn.waitForEvent(t, EventConnected, 1)
	b.conn.waitForEvent(t, EventConnected, 1)

	// Only the receiver is in the room; join and send are decoupled
	b.join(t, "team", "t1")
	a.conn.push(t, EventSendMessage, SendMessagePayload{Content: "drive-by", RoomID: "t1", RoomType: "team"}, "send-1")

	waitForAck(t, a.conn, "send-1")
	b.conn.waitForEvent(t, EventNewMessage, 1)

	// The sender is not a member, so no echo arrives
	assert.Empty(t, a.conn.eventsOf(EventNewMessage))
	assert.Equal(t, 1, store.appendCount())

	a.conn.disconnect()
	b.conn.disconnect()
	a.waitDone(t)
	b.waitDone(t)
}

func TestGatewayStoreFailureSuppressesBroadcast(t *testing.T) {
	sender := primitive.NewObjectID().Hex()
	receiver := primitive.NewObjectID().Hex()
	store := newStubStore()
	store.failAppend = ErrPersistence
	g, tokens := newTestGateway(store, sender, receiver)

	a := connect(g, tokens[sender])
	b := connect(g, tokens[receiver])
	a.conn.waitForEvent(t, EventConnected, 1)
	b.conn.waitForEvent(t, EventConnected, 1)

	a.join(t, "study-group", "g1")
	b.join(t, "study-group", "g1")

	a.conn.push(t, EventSendMessage, SendMessagePayload{Content: "doomed", RoomID: "g1", RoomType: "study-group"}, "send-1")

	// Failure reaches the sender only
	errs := a.conn.waitForEvent(t, EventError, 1)
	var data ErrorData
	require.NoError(t, json.Unmarshal(errs[0].Data, &data))
	assert.Equal(t, "failed to persist message", data.Message)

	assert.Empty(t, a.conn.eventsOf(EventNewMessage))
	assert.Empty(t, b.conn.eventsOf(EventNewMessage))
	assert.Empty(t, b.conn.eventsOf(EventError))

	a.conn.disconnect()
	b.conn.disconnect()
	a.waitDone(t)
	b.waitDone(t)
}

func TestGatewaySlowStoreWriteFailsVisibly(t *testing.T) {
	sender := primitive.NewObjectID().Hex()
	store := newStubStore()
	store.appendWait = 500 * time.Millisecond
	g, tokens := newTestGateway(store, sender)
	g.storeTimeout = 50 * time.Millisecond

	a := connect(g, tokens[sender])
	a.conn.waitForEvent(t, EventConnected, 1)
	a.join(t, "team", "t1")

	a.conn.push(t, EventSendMessage, SendMessagePayload{Content: "slow", RoomID: "t1", RoomType: "team"}, "send-1")

	a.conn.waitForEvent(t, EventError, 1)
	assert.Empty(t, a.conn.eventsOf(EventNewMessage))

	a.conn.disconnect()
	a.waitDone(t)
}

func TestGatewayPerRoomOrdering(t *testing.T) {
	sender := primitive.NewObjectID().Hex()
	receiver := primitive.NewObjectID().Hex()
	store := newStubStore()
	g, tokens := newTestGateway(store, sender, receiver)

	a := connect(g, tokens[sender])
	b := connect(g, tokens[receiver])
	a.conn.waitForEvent(t, EventConnected, 1)
	b.conn.waitForEvent(t, EventConnected, 1)

	a.join(t, "study-group", "g1")
	b.join(t, "study-group", "g1")

	contents := []string{"first", "second", "third"}
	for _, content := range contents {
		a.conn.push(t, EventSendMessage, SendMessagePayload{Content: content, RoomID: "g1", RoomType: "study-group"}, "send-"+content)
	}

	got := b.conn.waitForEvent(t, EventNewMessage, len(contents))
	for i, p := range got {
		var msg models.StoredMessage
		require.NoError(t, json.Unmarshal(p.Data, &msg))
		assert.Equal(t, contents[i], msg.Content, "messages must arrive in append order")
	}

	a.conn.disconnect()
	b.conn.disconnect()
	a.waitDone(t)
	b.waitDone(t)
}

func TestGatewayRoomTypeIsolation(t *testing.T) {
	sender := primitive.NewObjectID().Hex()
	receiver := primitive.NewObjectID().Hex()
	store := newStubStore()
	g, tokens := newTestGateway(store, sender, receiver)

	a := connect(g, tokens[sender])
	b := connect(g, tokens[receiver])
	a.conn.waitForEvent(t, EventConnected, 1)
	b.conn.waitForEvent(t, EventConnected, 1)

	// Same numeric room ID, different room types: distinct rooms
	b.join(t, "study-group", "5")
	a.conn.push(t, EventSendMessage, SendMessagePayload{Content: "team talk", RoomID: "5", RoomType: "team"}, "send-1")
	waitForAck(t, a.conn, "send-1")

	assert.Empty(t, b.conn.eventsOf(EventNewMessage))

	a.conn.disconnect()
	b.conn.disconnect()
	a.waitDone(t)
	b.waitDone(t)
}

func TestGatewayTypingFanOut(t *testing.T) {
	sender := primitive.NewObjectID().Hex()
	receiver := primitive.NewObjectID().Hex()
	store := newStubStore()
	g, tokens := newTestGateway(store, sender, receiver)

	a := connect(g, tokens[sender])
	b := connect(g, tokens[receiver])
	a.conn.waitForEvent(t, EventConnected, 1)
	b.conn.waitForEvent(t, EventConnected, 1)

	a.join(t, "team", "t1")
	b.join(t, "team", "t1")

	a.conn.push(t, EventTyping, TypingPayload{RoomID: "t1", RoomType: "team", IsTyping: true}, "typing-1")
	got := b.conn.waitForEvent(t, EventUserTyping, 1)

	var data UserTypingData
	require.NoError(t, json.Unmarshal(got[0].Data, &data))
	assert.Equal(t, sender, data.UserID)
	assert.True(t, data.IsTyping)
	// Nothing is persisted for typing
	assert.Zero(t, store.appendCount())

	a.conn.disconnect()
	b.conn.disconnect()
	a.waitDone(t)
	b.waitDone(t)
}

func TestGatewayMarkRead(t *testing.T) {
	reader := primitive.NewObjectID().Hex()
	store := newStubStore()
	g, tokens := newTestGateway(store, reader)

	c := connect(g, tokens[reader])
	c.conn.waitForEvent(t, EventConnected, 1)

	messageID := primitive.NewObjectID().Hex()
	c.conn.push(t, EventMarkRead, MarkReadPayload{MessageID: messageID}, "read-1")
	waitForAck(t, c.conn, "read-1")

	store.mu.Lock()
	assert.Equal(t, []string{reader}, store.reads[messageID])
	store.mu.Unlock()

	c.conn.disconnect()
	c.waitDone(t)
}

func TestGatewayValidationFailureHasNoEffect(t *testing.T) {
	sender := primitive.NewObjectID().Hex()
	store := newStubStore()
	g, tokens := newTestGateway(store, sender)

	c := connect(g, tokens[sender])
	c.conn.waitForEvent(t, EventConnected, 1)

	// Unknown room type and empty content are both rejected up front
	c.conn.push(t, EventSendMessage, map[string]interface{}{"content": "", "roomId": "g1", "roomType": "study-group"}, "bad-1")
	c.conn.push(t, EventJoinRoom, map[string]interface{}{"roomId": "g1", "roomType": "dorm"}, "bad-2")

	c.conn.waitForEvent(t, EventError, 2)
	assert.Zero(t, store.appendCount())
	assert.Equal(t, 0, g.Hub().RoomCount())

	c.conn.disconnect()
	c.waitDone(t)
}

func TestGatewayPurgeOnDisconnect(t *testing.T) {
	userID := primitive.NewObjectID().Hex()
	g, tokens := newTestGateway(newStubStore(), userID)

	c := connect(g, tokens[userID])
	c.conn.waitForEvent(t, EventConnected, 1)

	c.join(t, "team", "t1")
	c.join(t, "study-group", "g1")
	require.Len(t, g.Hub().MembersOf(models.MakeRoomKey("team", "t1")), 1)

	c.conn.disconnect()
	c.waitDone(t)

	assert.Empty(t, g.Hub().MembersOf(models.MakeRoomKey("team", "t1")))
	assert.Empty(t, g.Hub().MembersOf(models.MakeRoomKey("study-group", "g1")))
	assert.Equal(t, 0, g.Hub().RoomCount())
}
