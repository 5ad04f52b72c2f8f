package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/zackyviriot/study-buddy-backend/internal/models"
)

// GatewayStore is the slice of the message store the gateway uses.
type GatewayStore interface {
	Append(ctx context.Context, msg *models.Message) (*models.StoredMessage, error)
	MarkRead(ctx context.Context, messageID, readerID string) error
}

// TokenVerifier authenticates a bearer token. Implemented by TokenService.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Presence tracks online users. Implemented by PresenceService.
type Presence interface {
	SetOnline(ctx context.Context, userID string)
	SetOffline(ctx context.Context, userID string)
}

// ChatGateway orchestrates the realtime room protocol: it authenticates
// sessions, routes their events to the room registry and the message store,
// and fans server events out to room members.
type ChatGateway struct {
	hub      *ChatHub
	store    GatewayStore
	tokens   TokenVerifier
	presence Presence
	validate *validator.Validate

	// authWait bounds how long a connection without a handshake token may
	// take to send its auth packet.
	authWait time.Duration
	// storeTimeout bounds a single store write so a slow append fails
	// visibly instead of hanging the connection's event loop.
	storeTimeout time.Duration
	// readTimeout is the idle deadline, refreshed on every inbound frame.
	readTimeout time.Duration

	// roomLocks serializes append+broadcast per room so every member
	// observes messages in append-completion order. Rooms are independent;
	// no cross-room ordering exists.
	roomLocks sync.Map // models.RoomKey -> *sync.Mutex
}

func NewChatGateway(hub *ChatHub, store GatewayStore, tokens TokenVerifier, presence Presence) *ChatGateway {
	return &ChatGateway{
		hub:          hub,
		store:        store,
		tokens:       tokens,
		presence:     presence,
		validate:     validator.New(),
		authWait:     10 * time.Second,
		storeTimeout: 5 * time.Second,
		readTimeout:  90 * time.Second,
	}
}

// Hub exposes the room registry (used by tests and diagnostics).
func (g *ChatGateway) Hub() *ChatHub {
	return g.hub
}

// ServeConn runs one connection to completion: authenticate, then read and
// dispatch events until the transport drops. handshakeToken carries the
// Authorization-header or query-parameter token from the upgrade request
// ("" when neither was supplied, in which case the first frame must be an
// auth packet). On any exit path the session is purged from every room
// exactly once.
func (g *ChatGateway) ServeConn(conn ChatConn, handshakeToken string) {
	s := NewSession(conn)
	defer func() {
		s.Close()
		g.hub.Purge(s)
		if uid := s.UserID(); uid != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			g.presence.SetOffline(ctx, uid)
			cancel()
		}
	}()

	userID, err := g.authenticateConn(s, handshakeToken)
	if err != nil {
		// Pre-auth the serve goroutine is the only writer, so this write
		// is flushed before the close.
		_ = conn.WriteJSON(&ServerPacket{Event: EventError, Data: ErrorData{Message: errorMessage(err)}})
		return
	}

	_ = conn.WriteJSON(&ServerPacket{Event: EventConnected, Data: ConnectedData{UserID: userID}})
	log.Printf("chat: session %s authenticated for user %s", s.ID, userID)

	onlineCtx, onlineCancel := context.WithTimeout(context.Background(), 2*time.Second)
	g.presence.SetOnline(onlineCtx, userID)
	onlineCancel()

	go s.writeLoop()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(g.readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var pkt ClientPacket
		if err := json.Unmarshal(data, &pkt); err != nil {
			s.Send(&ServerPacket{Event: EventError, Data: ErrorData{Message: "malformed packet"}})
			continue
		}
		g.Dispatch(s, &pkt)
	}
}

// authenticateConn resolves the bearer token and binds the identity. Token
// sources in precedence order: an explicit auth packet (awaited when the
// handshake carried no token), the Authorization header, the token query
// parameter (the latter two arrive merged in handshakeToken). A handshake
// token takes effect without waiting for a possible auth packet: waiting
// would need a read deadline, and an expired read deadline is a permanent
// error on a gorilla connection.
func (g *ChatGateway) authenticateConn(s *Session, handshakeToken string) (string, error) {
	token := handshakeToken
	if token == "" {
		_ = s.conn.SetReadDeadline(time.Now().Add(g.authWait))
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("%w: no token provided", ErrAuthentication)
		}

		var pkt ClientPacket
		if err := json.Unmarshal(data, &pkt); err != nil || pkt.Event != EventAuth {
			return "", fmt.Errorf("%w: no token provided", ErrAuthentication)
		}
		var payload AuthPayload
		if err := g.decode(pkt.Data, &payload); err != nil {
			return "", fmt.Errorf("%w: no token provided", ErrAuthentication)
		}
		token = payload.Token
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.storeTimeout)
	defer cancel()

	userID, err := g.tokens.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	if !s.Authenticate(userID) {
		return "", fmt.Errorf("%w: session already closed", ErrAuthentication)
	}
	return userID, nil
}

// Dispatch routes one inbound event. Events on a session that never
// completed authentication are rejected before any registry or store
// mutation.
func (g *ChatGateway) Dispatch(s *Session, pkt *ClientPacket) {
	if pkt.Event == EventAuth {
		// Identity is bound at most once; late auth packets are ignored.
		return
	}
	if !s.Authenticated() {
		g.sendError(s, pkt.AckID, fmt.Errorf("%w", ErrNotAuthenticated))
		return
	}

	switch pkt.Event {
	case EventJoinRoom:
		var p RoomPayload
		if err := g.decode(pkt.Data, &p); err != nil {
			g.sendError(s, pkt.AckID, err)
			return
		}
		g.hub.Join(s, models.MakeRoomKey(p.RoomType, p.RoomID))
		g.sendAck(s, pkt.AckID, nil)

	case EventLeaveRoom:
		var p RoomPayload
		if err := g.decode(pkt.Data, &p); err != nil {
			g.sendError(s, pkt.AckID, err)
			return
		}
		g.hub.Leave(s, models.MakeRoomKey(p.RoomType, p.RoomID))
		g.sendAck(s, pkt.AckID, nil)

	case EventSendMessage:
		g.handleSendMessage(s, pkt)

	case EventTyping:
		g.handleTyping(s, pkt)

	case EventMarkRead:
		var p MarkReadPayload
		if err := g.decode(pkt.Data, &p); err != nil {
			g.sendError(s, pkt.AckID, err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), g.storeTimeout)
		err := g.store.MarkRead(ctx, p.MessageID, s.UserID())
		cancel()
		if err != nil {
			g.sendError(s, pkt.AckID, err)
			return
		}
		g.sendAck(s, pkt.AckID, nil)

	case EventPing:
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		g.presence.SetOnline(ctx, s.UserID())
		cancel()

	default:
		// Unknown events are ignored
	}
}

// handleSendMessage persists the message and fans it out to every current
// room member, the sender included (clients rely on the echo for UI
// confirmation). The room lock is held across append and broadcast so all
// members observe a room's messages in the same order. A store failure or
// timeout reaches the sender only; nothing is broadcast.
func (g *ChatGateway) handleSendMessage(s *Session, pkt *ClientPacket) {
	var p SendMessagePayload
	if err := g.decode(pkt.Data, &p); err != nil {
		g.sendError(s, pkt.AckID, err)
		return
	}

	senderID, err := primitive.ObjectIDFromHex(s.UserID())
	if err != nil {
		g.sendError(s, pkt.AckID, fmt.Errorf("%w: invalid senderId", ErrValidation))
		return
	}

	msg := &models.Message{
		Content:     p.Content,
		SenderID:    senderID,
		RoomID:      p.RoomID,
		RoomType:    p.RoomType,
		Attachments: p.Attachments,
	}

	key := models.MakeRoomKey(p.RoomType, p.RoomID)
	lock := g.roomLock(key)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), g.storeTimeout)
	stored, err := g.store.Append(ctx, msg)
	cancel()
	if err != nil {
		log.Printf("chat: append failed for room %s: %v", key, err)
		g.sendError(s, pkt.AckID, err)
		return
	}

	broadcast := &ServerPacket{Event: EventNewMessage, Data: stored}
	for _, member := range g.hub.MembersOf(key) {
		member.Send(broadcast)
	}
	g.sendAck(s, pkt.AckID, stored)
}

// handleTyping relays a typing indicator to the room. Ephemeral: nothing is
// persisted and no ordering is guaranteed.
func (g *ChatGateway) handleTyping(s *Session, pkt *ClientPacket) {
	var p TypingPayload
	if err := g.decode(pkt.Data, &p); err != nil {
		g.sendError(s, pkt.AckID, err)
		return
	}

	out := &ServerPacket{Event: EventUserTyping, Data: UserTypingData{UserID: s.UserID(), IsTyping: p.IsTyping}}
	for _, member := range g.hub.MembersOf(models.MakeRoomKey(p.RoomType, p.RoomID)) {
		member.Send(out)
	}
	g.sendAck(s, pkt.AckID, nil)
}

func (g *ChatGateway) roomLock(key models.RoomKey) *sync.Mutex {
	v, _ := g.roomLocks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (g *ChatGateway) decode(data json.RawMessage, dst interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing event payload", ErrValidation)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: malformed event payload", ErrValidation)
	}
	if err := g.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (g *ChatGateway) sendAck(s *Session, ackID string, message interface{}) {
	s.Send(&ServerPacket{Event: EventAck, AckID: ackID, Data: AckData{Success: true, Message: message}})
}

func (g *ChatGateway) sendError(s *Session, ackID string, err error) {
	s.Send(&ServerPacket{Event: EventError, AckID: ackID, Data: ErrorData{Message: errorMessage(err)}})
}

// errorMessage maps the error taxonomy to client-facing text. Errors only
// ever reach the originating connection.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return "Not authenticated"
	case errors.Is(err, ErrAuthentication):
		return "Authentication failed"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		return err.Error()
	case errors.Is(err, ErrPersistence):
		return "failed to persist message"
	default:
		return "internal error"
	}
}
