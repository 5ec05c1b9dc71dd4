package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/swaply-api/internal/apperr"
	"github.com/rajivgeraev/swaply-api/internal/events"
	"github.com/rajivgeraev/swaply-api/internal/logger"
	"github.com/rajivgeraev/swaply-api/internal/middleware"
	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/services/params"
	"github.com/rajivgeraev/swaply-api/internal/store"
	"github.com/rajivgeraev/swaply-api/internal/validation"
)

const (
	maxTextLength      = 2000
	defaultHistorySize = 50
	maxHistorySize     = 200
)

// Deliverer доставляет сохраненное сообщение в активные соединения получателя
type Deliverer interface {
	Deliver(msg *models.Message)
}

// ChatService сохраняет и выдает личные сообщения
type ChatService struct {
	store     store.Store
	events    events.Publisher
	validator *validation.Validator
	deliverer Deliverer
	now       func() time.Time
}

// NewChatService создает новый экземпляр ChatService
func NewChatService(st store.Store, publisher events.Publisher, validator *validation.Validator) *ChatService {
	return &ChatService{store: st, events: publisher, validator: validator, now: time.Now}
}

// SetDeliverer подключает WebSocket хаб
func (s *ChatService) SetDeliverer(d Deliverer) {
	s.deliverer = d
}

// SendInput это сообщение в том виде, в котором его присылает клиент (REST или WebSocket)
type SendInput struct {
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"text"`
	TradeID    string `json:"trade_id,omitempty"`
	ClientRef  string `json:"client_ref,omitempty"`
}

type historyResponse struct {
	Peer     *models.PublicUser `json:"peer"`
	Messages []models.Message   `json:"messages"`
}

// Send сохраняет сообщение от senderID, но не доставляет его
func (s *ChatService) Send(ctx context.Context, senderID uuid.UUID, in SendInput) (*models.Message, error) {
	receiverID, err := params.ParseUUID(in.ReceiverID, "receiver_id")
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, apperr.Invalid("Message text is required")
	}
	if utf8.RuneCountInString(text) > maxTextLength {
		return nil, apperr.Invalid("Message text is too long")
	}
	if receiverID == senderID {
		return nil, apperr.Invalid("You cannot message yourself")
	}

	receiver, err := s.store.GetUser(ctx, receiverID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !receiver.IsActive) {
		return nil, apperr.NotFound("Receiver not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Could not load receiver")
	}

	msg := &models.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		CreatedAt:  s.now().UTC(),
	}

	if in.TradeID != "" {
		tradeID, err := params.ParseUUID(in.TradeID, "trade_id")
		if err != nil {
			return nil, err
		}
		t, err := s.store.GetTrade(ctx, tradeID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("Trade not found")
		}
		if err != nil {
			return nil, apperr.Internal(err, "Could not load trade")
		}
		if !t.IsParticipant(senderID) || !t.IsParticipant(receiverID) {
			return nil, apperr.Forbidden("Both users must take part in the trade")
		}
		msg.TradeID = &tradeID
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, apperr.Internal(err, "Could not save message")
	}
	logger.FromContext(ctx).WithField("message_id", msg.ID).Debug("message stored")
	s.events.Publish(ctx, events.New(events.MessageSent, msg.ID, senderID, msg))
	return msg, nil
}

// Conversations возвращает чаты пользователя, по одному на собеседника, сначала новые
func (s *ChatService) Conversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	msgs, err := s.store.ListMessagesOf(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err, "Could not load messages")
	}

	convs := []models.Conversation{}
	index := map[uuid.UUID]int{}
	for i := range msgs {
		m := &msgs[i]
		peer := m.Peer(userID)
		pos, ok := index[peer]
		if !ok {
			pos = len(convs)
			index[peer] = pos
			convs = append(convs, models.Conversation{PeerID: peer, LastMessage: m})
		}
		if m.ReceiverID == userID && !m.IsRead {
			convs[pos].UnreadCount++
		}
	}
	for i := range convs {
		if u, err := s.store.GetUser(ctx, convs[i].PeerID); err == nil {
			convs[i].Peer = u.Public()
		}
	}
	return convs, nil
}

// History возвращает последние сообщения с peerID (сначала старые) и отмечает
// сообщения собеседника для userID как прочитанные
func (s *ChatService) History(ctx context.Context, userID, peerID uuid.UUID, limit int) (*models.PublicUser, []models.Message, error) {
	peer, err := s.store.GetUser(ctx, peerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, nil, apperr.Internal(err, "Could not load user")
	}

	msgs, err := s.store.ListConversation(ctx, userID, peerID, store.Page(limit, defaultHistorySize, maxHistorySize))
	if err != nil {
		return nil, nil, apperr.Internal(err, "Could not load messages")
	}
	n, err := s.store.MarkRead(ctx, userID, peerID)
	if err != nil {
		return nil, nil, apperr.Internal(err, "Could not mark messages as read")
	}
	if n > 0 {
		for i := range msgs {
			if msgs[i].ReceiverID == userID {
				msgs[i].IsRead = true
			}
		}
	}
	return peer.Public(), msgs, nil
}

// SendMessage обрабатывает POST /api/messages
func (s *ChatService) SendMessage(c fiber.Ctx) error {
	var in SendInput
	if err := s.validator.Bind(c, validation.Message, &in); err != nil {
		return err
	}
	msg, err := s.Send(middleware.Context(c), middleware.UserID(c), in)
	if err != nil {
		return err
	}
	if s.deliverer != nil {
		s.deliverer.Deliver(msg)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// GetConversations обрабатывает GET /api/messages/conversations
func (s *ChatService) GetConversations(c fiber.Ctx) error {
	convs, err := s.Conversations(middleware.Context(c), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"conversations": convs})
}

// GetHistory обрабатывает GET /api/messages/with/:userId
func (s *ChatService) GetHistory(c fiber.Ctx) error {
	peerID, err := params.UUID(c, "userId")
	if err != nil {
		return err
	}
	limit, err := params.Int(c, "limit", defaultHistorySize)
	if err != nil {
		return err
	}
	peer, msgs, err := s.History(middleware.Context(c), middleware.UserID(c), peerID, limit)
	if err != nil {
		return err
	}
	return c.JSON(historyResponse{Peer: peer, Messages: msgs})
}
