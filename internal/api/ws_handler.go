package api

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/vdavid/cqmail/internal/auth"
	"github.com/vdavid/cqmail/internal/models"
	ws "github.com/vdavid/cqmail/internal/websocket"
)

// TokenValidator validates bearer tokens. Implemented by auth.Verifier.
type TokenValidator interface {
	ValidateToken(token string) (models.Identity, error)
}

// WebSocketHandler handles the /api/v1/ws endpoint for mail events.
type WebSocketHandler struct {
	tokens TokenValidator
	hub    *ws.Hub
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(tokens TokenValidator, hub *ws.Hub) *WebSocketHandler {
	return &WebSocketHandler{tokens: tokens, hub: hub}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Deployed behind a reverse proxy in a trusted environment.
		return true
	},
}

// Handle upgrades the HTTP connection to a WebSocket and registers it with the Hub.
// Browsers cannot set headers on WebSocket connections, so the token comes from
// ?token=... with the Authorization header as a fallback.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = auth.BearerToken(r.Header.Get("Authorization"))
	}

	if token == "" {
		log.Printf("WebSocketHandler: No token provided (neither query parameter nor Authorization header)")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	identity, err := h.tokens.ValidateToken(token)
	if err != nil {
		log.Printf("WebSocketHandler: Token validation failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocketHandler: failed to upgrade connection for user %s: %v", identity.UserID, err)
		return
	}

	client := h.hub.Register(identity.UserID, conn)
	if client == nil {
		log.Printf("WebSocketHandler: Connection rejected for user %s (max connections exceeded)", identity.UserID)
		return
	}

	go h.readLoop(identity.UserID, client)
}

// readLoop drains the connection until it closes, then unregisters the client.
func (h *WebSocketHandler) readLoop(userID string, client *ws.Client) {
	conn := client.Conn()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.hub.Unregister(userID, client)
}
