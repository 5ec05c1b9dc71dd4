package models

import (
	"time"

	"github.com/google/uuid"
)

// Message представляет личное сообщение между двумя пользователями (mensaje)
type Message struct {
	ID         uuid.UUID  `json:"id"`
	SenderID   uuid.UUID  `json:"sender_id"`
	ReceiverID uuid.UUID  `json:"receiver_id"`
	TradeID    *uuid.UUID `json:"trade_id,omitempty"`
	Text       string     `json:"text"`
	IsRead     bool       `json:"is_read"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Peer возвращает собеседника с точки зрения userID
func (m *Message) Peer(userID uuid.UUID) uuid.UUID {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Conversation представляет сводку переписки с одним собеседником
type Conversation struct {
	PeerID      uuid.UUID   `json:"peer_id"`
	Peer        *PublicUser `json:"peer,omitempty"`
	LastMessage *Message    `json:"last_message"`
	UnreadCount int         `json:"unread_count"`
}
