package services

import "encoding/json"

// Client→server events.
const (
	EventAuth        = "auth"
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "sendMessage"
	EventTyping      = "typing"
	EventMarkRead    = "markRead"
	EventPing        = "ping"
)

// Server→client events.
const (
	EventConnected  = "connected"
	EventError      = "error"
	EventAck        = "ack"
	EventNewMessage = "newMessage"
	EventUserTyping = "userTyping"
)

// ClientPacket is one inbound websocket frame. AckID, when set, is echoed on
// the ack or error the event produces.
type ClientPacket struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ackId,omitempty"`
}

// ServerPacket is one outbound websocket frame.
type ServerPacket struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
	AckID string      `json:"ackId,omitempty"`
}

// Event payloads. Validated with go-playground/validator before any
// registry or store mutation.

type AuthPayload struct {
	Token string `json:"token" validate:"required"`
}

type RoomPayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	RoomType string `json:"roomType" validate:"required,oneof=team study-group"`
}

type SendMessagePayload struct {
	Content     string   `json:"content" validate:"required"`
	RoomID      string   `json:"roomId" validate:"required"`
	RoomType    string   `json:"roomType" validate:"required,oneof=team study-group"`
	Attachments []string `json:"attachments,omitempty"`
}

type TypingPayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	RoomType string `json:"roomType" validate:"required,oneof=team study-group"`
	IsTyping bool   `json:"isTyping"`
}

type MarkReadPayload struct {
	MessageID string `json:"messageId" validate:"required"`
}

// Server event payloads.

type ConnectedData struct {
	UserID string `json:"userId"`
}

type ErrorData struct {
	Message string `json:"message"`
}

type AckData struct {
	Success bool        `json:"success"`
	Message interface{} `json:"message,omitempty"`
}

type UserTypingData struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}
