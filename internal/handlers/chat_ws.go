package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zackyviriot/study-buddy-backend/internal/middleware"
	"github.com/zackyviriot/study-buddy-backend/internal/services"
)

var chatGateway *services.ChatGateway

// InitChatGateway wires the websocket handler to the gateway. Called once
// from main.
func InitChatGateway(g *services.ChatGateway) {
	chatGateway = g
}

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS for WebSocket is handled at the HTTP layer already.
		return true
	},
}

// ChatWebSocket upgrades the connection and hands it to the realtime
// gateway. The upgrade itself is unauthenticated: credential verification
// happens after the handshake, from an auth packet, the Authorization
// header, or the token query parameter.
func ChatWebSocket(w http.ResponseWriter, r *http.Request) {
	token := middleware.ExtractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		// Fallback for browser WebSocket clients that cannot set headers
		token = r.URL.Query().Get("token")
	}

	conn, err := chatUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 * 1024)
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	chatGateway.ServeConn(conn, token)
}
