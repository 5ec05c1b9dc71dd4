package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Статусы обмена
const (
	TradePending   = "pending"
	TradeAccepted  = "accepted"
	TradeRejected  = "rejected"
	TradeCanceled  = "canceled"
	TradeCompleted = "completed"
)

// TradeAction определяет действие участника над обменом
type TradeAction string

const (
	ActionAccept  TradeAction = "accept"
	ActionReject  TradeAction = "reject"
	ActionCancel  TradeAction = "cancel"
	ActionConfirm TradeAction = "confirm"
)

var (
	ErrNotParticipant    = errors.New("user is not a participant of the trade")
	ErrWrongParticipant  = errors.New("this participant cannot perform the action")
	ErrInvalidTransition = errors.New("action not allowed in the current trade status")
	ErrAlreadyConfirmed  = errors.New("participant already confirmed the trade")
	ErrUnknownAction     = errors.New("unknown trade action")
)

// Trade представляет предложение обмена (trueque): инициатор предлагает свой
// товар в обмен на товар получателя.
type Trade struct {
	ID                 uuid.UUID  `json:"id"`
	ProposerID         uuid.UUID  `json:"proposer_id"`
	ReceiverID         uuid.UUID  `json:"receiver_id"`
	OfferedProductID   uuid.UUID  `json:"offered_product_id"`
	RequestedProductID uuid.UUID  `json:"requested_product_id"`
	Message            string     `json:"message,omitempty"`
	Status             string     `json:"status"`
	ProposerConfirmed  bool       `json:"proposer_confirmed"`
	ReceiverConfirmed  bool       `json:"receiver_confirmed"`
	Version            int        `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`

	OfferedProduct   *Product    `json:"offered_product,omitempty"`
	RequestedProduct *Product    `json:"requested_product,omitempty"`
	Proposer         *PublicUser `json:"proposer,omitempty"`
	Receiver         *PublicUser `json:"receiver,omitempty"`
}

// ActionForStatus возвращает действие, ведущее к запрошенному статусу
func ActionForStatus(status string) (TradeAction, bool) {
	switch status {
	case TradeAccepted:
		return ActionAccept, true
	case TradeRejected:
		return ActionReject, true
	case TradeCanceled:
		return ActionCancel, true
	}
	return "", false
}

// IsParticipant проверяет, является ли пользователь инициатором или получателем
func (t *Trade) IsParticipant(userID uuid.UUID) bool {
	return t.ProposerID == userID || t.ReceiverID == userID
}

// Counterpart возвращает второго участника
func (t *Trade) Counterpart(userID uuid.UUID) uuid.UUID {
	if t.ProposerID == userID {
		return t.ReceiverID
	}
	return t.ProposerID
}

// IsTerminal сообщает, что дальнейшие действия невозможны
func (t *Trade) IsTerminal() bool {
	switch t.Status {
	case TradeRejected, TradeCanceled, TradeCompleted:
		return true
	}
	return false
}

// Involves проверяет, участвует ли товар в обмене
func (t *Trade) Involves(productID uuid.UUID) bool {
	return t.OfferedProductID == productID || t.RequestedProductID == productID
}

// Apply выполняет действие от имени actor. При успехе статус, флаги
// подтверждения, версия и время обновляются на месте; при ошибке
// обмен не меняется.
//
//	pending  --accept(receiver)--> accepted --confirm(both)--> completed
//	pending  --reject(receiver)--> rejected
//	pending  --cancel(proposer)--> canceled
//	accepted --cancel(either)----> canceled
func (t *Trade) Apply(action TradeAction, actor uuid.UUID, now time.Time) error {
	if !t.IsParticipant(actor) {
		return ErrNotParticipant
	}
	if t.IsTerminal() {
		return ErrInvalidTransition
	}

	isProposer := actor == t.ProposerID

	switch action {
	case ActionAccept, ActionReject:
		if t.Status != TradePending {
			return ErrInvalidTransition
		}
		if isProposer {
			return ErrWrongParticipant
		}
		if action == ActionAccept {
			t.Status = TradeAccepted
		} else {
			t.Status = TradeRejected
		}

	case ActionCancel:
		if t.Status == TradePending && !isProposer {
			return ErrWrongParticipant
		}
		t.Status = TradeCanceled

	case ActionConfirm:
		if t.Status != TradeAccepted {
			return ErrInvalidTransition
		}
		if isProposer {
			if t.ProposerConfirmed {
				return ErrAlreadyConfirmed
			}
			t.ProposerConfirmed = true
		} else {
			if t.ReceiverConfirmed {
				return ErrAlreadyConfirmed
			}
			t.ReceiverConfirmed = true
		}
		if t.ProposerConfirmed && t.ReceiverConfirmed {
			t.Status = TradeCompleted
			completed := now
			t.CompletedAt = &completed
		}

	default:
		return ErrUnknownAction
	}

	t.Version++
	t.UpdatedAt = now
	return nil
}
