package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rajivgeraev/swaply-api/internal/apperr"
	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/services/chat"
	"github.com/rajivgeraev/swaply-api/internal/validation"
)

const (
	// время ожидания следующего pong
	pongWait = 60 * time.Second

	// период отправки ping, должен быть меньше pongWait
	pingPeriod = (pongWait * 9) / 10

	writeWait = 10 * time.Second

	maxMessageSize = 64 * 1024

	// размер очереди клиента, после которого он считается медленным
	sendBufferSize = 256
)

// Client представляет собой отдельное WebSocket соединение пользователя
type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	ctx  context.Context
	log  *logrus.Entry

	done      chan struct{}
	closeOnce sync.Once
}

type connectAck struct {
	UserID uuid.UUID `json:"user_id"`
}

type sentPayload struct {
	Message   *models.Message `json:"message"`
	ClientRef string          `json:"client_ref,omitempty"`
}

type errorPayload struct {
	Error     string `json:"error"`
	ClientRef string `json:"client_ref,omitempty"`
}

func newClient(ctx context.Context, hub *Hub, userID uuid.UUID, conn *websocket.Conn, log *logrus.Entry) *Client {
	return &Client{
		ID:     uuid.New(),
		UserID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		ctx:    ctx,
		log:    log,
		done:   make(chan struct{}),
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// enqueue ставит кадр в очередь без блокировки. Клиент с переполненным буфером
// отключается.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.log.WithField("client_id", c.ID).Warn("send buffer full, dropping client")
		c.hub.remove(c)
		c.close()
		return false
	}
}

func (c *Client) emit(event string, data any) {
	frame, err := encode(event, data)
	if err != nil {
		c.log.WithError(err).WithField("event", event).Error("encode websocket event")
		return
	}
	c.enqueue(frame)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Debug("websocket closed unexpectedly")
			}
			return
		}
		c.handle(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.WithError(err).Debug("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Client) handle(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.emit(EventError, errorPayload{Error: "Malformed event"})
		return
	}

	switch env.Event {
	case EventConnect:
		// пользователь всегда берется из проверенного токена
		c.emit(EventConnect, connectAck{UserID: c.UserID})
	case EventSend:
		c.handleSend(env.Data)
	default:
		c.emit(EventError, errorPayload{Error: "Unknown event " + env.Event})
	}
}

func (c *Client) handleSend(data json.RawMessage) {
	var in chat.SendInput
	if len(data) == 0 || json.Unmarshal(data, &in) != nil {
		c.emit(EventError, errorPayload{Error: "Malformed message"})
		return
	}
	if err := c.hub.validator.ValidateBytes(validation.Message, data); err != nil {
		c.emit(EventError, errorPayload{Error: clientMessage(err), ClientRef: in.ClientRef})
		return
	}

	ctx := c.ctx
	if c.hub.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.hub.timeout)
		defer cancel()
	}

	msg, err := c.hub.messages.Send(ctx, c.UserID, in)
	if err != nil {
		if apperr.StatusOf(err) >= 500 {
			c.log.WithError(err).Error("websocket message failed")
		}
		c.emit(EventError, errorPayload{Error: clientMessage(err), ClientRef: in.ClientRef})
		return
	}

	c.emit(EventSent, sentPayload{Message: msg, ClientRef: in.ClientRef})
	c.hub.Deliver(msg)
}

// clientMessage возвращает часть ошибки, которую можно показать клиенту
func clientMessage(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "Could not send message"
}
