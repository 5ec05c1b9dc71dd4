// Package realtime доставляет сообщения чата подключенным WebSocket клиентам.
package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rajivgeraev/swaply-api/internal/auth"
	"github.com/rajivgeraev/swaply-api/internal/logger"
	"github.com/rajivgeraev/swaply-api/internal/middleware"
	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/reqctx"
	"github.com/rajivgeraev/swaply-api/internal/services/chat"
	"github.com/rajivgeraev/swaply-api/internal/validation"
)

// Типы событий WebSocket
const (
	EventConnect = "user:connect"
	EventSend    = "message:send"
	EventSent    = "message:sent"
	EventReceive = "message:receive"
	EventError   = "message:error"
)

// Envelope представляет структуру сообщения для WebSocket
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MessageSender сохраняет сообщение; реализуется chat.ChatService
type MessageSender interface {
	Send(ctx context.Context, senderID uuid.UUID, in chat.SendInput) (*models.Message, error)
}

// Hub представляет центральный менеджер всех WebSocket соединений, по несколько на пользователя
type Hub struct {
	authn     auth.Authenticator
	messages  MessageSender
	validator *validation.Validator
	timeout   time.Duration
	upgrader  websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	users   map[uuid.UUID]map[uuid.UUID]*Client
}

// NewHub создает новый экземпляр Hub. timeout ограничивает обработку одного входящего события.
func NewHub(authn auth.Authenticator, messages MessageSender, validator *validation.Validator, timeout time.Duration) *Hub {
	return &Hub{
		authn:     authn,
		messages:  messages,
		validator: validator,
		timeout:   timeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[uuid.UUID]*Client),
		users:   make(map[uuid.UUID]map[uuid.UUID]*Client),
	}
}

// ServeHTTP проверяет токен из параметра token (или заголовка Bearer) и
// переключает соединение на WebSocket
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.Default().WithField("remote_addr", r.RemoteAddr)

	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Missing token")
		return
	}

	u, err := h.authn.Verify(reqctx.WithAccessToken(r.Context(), token), token)
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	case errors.Is(err, auth.ErrInactive):
		writeError(w, http.StatusForbidden, "Account is deactivated")
		return
	case err != nil:
		log.WithError(err).Error("websocket token verification failed")
		writeError(w, http.StatusBadGateway, "Could not verify token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	// Сокет живет дольше access-токена, поэтому хранилище вызывается от
	// сервисной учетной записи, а в контексте только пользователь.
	entry := log.WithField("user_id", u.ID.String())
	ctx := reqctx.WithIdentity(context.Background(), reqctx.Identity{UserID: u.ID, Email: u.Email, Role: u.Role})
	ctx = logger.WithContext(ctx, entry)

	c := newClient(ctx, h, u.ID, conn, entry)
	h.add(c)
	go c.writePump()
	go c.readPump()
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	if h.users[c.UserID] == nil {
		h.users[c.UserID] = make(map[uuid.UUID]*Client)
	}
	h.users[c.UserID][c.ID] = c
	h.mu.Unlock()

	c.log.WithField("client_id", c.ID).Info("websocket client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	if set, ok := h.users[c.UserID]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(h.users, c.UserID)
		}
	}
	h.mu.Unlock()

	c.log.WithField("client_id", c.ID).Info("websocket client disconnected")
}

// Connections возвращает число открытых сокетов userID
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// SendToUser отправляет событие всем соединениям userID и возвращает, сколько
// из них его приняли
func (h *Hub) SendToUser(userID uuid.UUID, event string, data any) int {
	frame, err := encode(event, data)
	if err != nil {
		logger.Default().WithError(err).WithField("event", event).Error("encode websocket event")
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.users[userID]))
	for _, c := range h.users[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.enqueue(frame) {
			sent++
		}
	}
	return sent
}

// Deliver отправляет сохраненное сообщение в соединения получателя
func (h *Hub) Deliver(msg *models.Message) {
	n := h.SendToUser(msg.ReceiverID, EventReceive, msg)
	logger.Default().WithFields(logrus.Fields{
		"message_id": msg.ID,
		"sockets":    n,
	}).Debug("message delivered")
}

// Shutdown корректно закрывает все соединения
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[uuid.UUID]*Client)
	h.users = make(map[uuid.UUID]map[uuid.UUID]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
