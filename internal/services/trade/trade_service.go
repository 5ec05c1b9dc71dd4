package trade

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rajivgeraev/swaply-api/internal/apperr"
	"github.com/rajivgeraev/swaply-api/internal/events"
	"github.com/rajivgeraev/swaply-api/internal/logger"
	"github.com/rajivgeraev/swaply-api/internal/middleware"
	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/services/listing"
	"github.com/rajivgeraev/swaply-api/internal/services/params"
	"github.com/rajivgeraev/swaply-api/internal/store"
	"github.com/rajivgeraev/swaply-api/internal/validation"
)

// acceptedNote открывает переписку по принятому обмену
const acceptedNote = "Trade accepted. Use this conversation to arrange the exchange."

// TradeService представляет сервис для работы с обменами
type TradeService struct {
	store     store.Store
	events    events.Publisher
	validator *validation.Validator
	now       func() time.Time
}

// NewTradeService создает новый экземпляр TradeService
func NewTradeService(st store.Store, publisher events.Publisher, validator *validation.Validator) *TradeService {
	return &TradeService{store: st, events: publisher, validator: validator, now: time.Now}
}

// Proposal это тело запроса на новый обмен
type Proposal struct {
	OfferedProductID   string `json:"offered_product_id"`
	RequestedProductID string `json:"requested_product_id"`
	Message            string `json:"message"`
}

type statusRequest struct {
	Status string `json:"status"`
}

var eventForStatus = map[string]string{
	models.TradeAccepted:  events.TradeAccepted,
	models.TradeRejected:  events.TradeRejected,
	models.TradeCanceled:  events.TradeCanceled,
	models.TradeCompleted: events.TradeCompleted,
}

func (s *TradeService) product(ctx context.Context, id uuid.UUID, role string) (*models.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("%s product not found", role)
	}
	if err != nil {
		return nil, apperr.Internal(err, "Could not load product")
	}
	return p, nil
}

// Propose создает предложение обмена своего товара на чужой
func (s *TradeService) Propose(ctx context.Context, proposerID uuid.UUID, in Proposal) (*models.Trade, error) {
	offeredID, err := params.ParseUUID(in.OfferedProductID, "offered_product_id")
	if err != nil {
		return nil, err
	}
	requestedID, err := params.ParseUUID(in.RequestedProductID, "requested_product_id")
	if err != nil {
		return nil, err
	}

	offered, err := s.product(ctx, offeredID, "Offered")
	if err != nil {
		return nil, err
	}
	if offered.OwnerID != proposerID {
		return nil, apperr.Forbidden("You can only offer your own products")
	}
	requested, err := s.product(ctx, requestedID, "Requested")
	if err != nil {
		return nil, err
	}
	if requested.OwnerID == proposerID {
		return nil, apperr.Invalid("You cannot trade with yourself")
	}
	if offered.Status != models.ProductAvailable || requested.Status != models.ProductAvailable {
		return nil, apperr.Conflict("Both products must be available")
	}

	receiver, err := s.store.GetUser(ctx, requested.OwnerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Internal(err, "Could not load user")
	}
	if err != nil || !receiver.IsActive {
		return nil, apperr.Conflict("The owner of the requested product is not available")
	}

	pending, err := s.store.ListTrades(ctx, store.TradeFilter{ProductID: &offeredID, Status: models.TradePending})
	if err != nil {
		return nil, apperr.Internal(err, "Could not check existing trades")
	}
	for _, t := range pending {
		if t.OfferedProductID == offeredID && t.RequestedProductID == requestedID {
			return nil, apperr.Conflict("This trade has already been proposed")
		}
	}

	now := s.now().UTC()
	t := &models.Trade{
		ID:                 uuid.New(),
		ProposerID:         proposerID,
		ReceiverID:         requested.OwnerID,
		OfferedProductID:   offeredID,
		RequestedProductID: requestedID,
		Message:            in.Message,
		Status:             models.TradePending,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateTrade(ctx, t); err != nil {
		return nil, apperr.Internal(err, "Could not save trade")
	}

	logger.FromContext(ctx).WithField("trade_id", t.ID).Info("trade proposed")
	s.events.Publish(ctx, events.New(events.TradeProposed, t.ID, proposerID, t))
	return s.enrich(ctx, t), nil
}

// List возвращает входящие и/или исходящие обмены пользователя с фильтром по статусу
func (s *TradeService) List(ctx context.Context, userID uuid.UUID, direction, status string) ([]models.Trade, error) {
	switch direction {
	case "", store.DirectionAll, store.DirectionIncoming, store.DirectionOutgoing:
	default:
		return nil, apperr.Invalid("type must be all, incoming or outgoing")
	}
	switch status {
	case "all":
		status = ""
	case "", models.TradePending, models.TradeAccepted, models.TradeRejected, models.TradeCanceled, models.TradeCompleted:
	default:
		return nil, apperr.Invalid("Invalid status")
	}

	trades, err := s.store.ListTrades(ctx, store.TradeFilter{UserID: &userID, Direction: direction, Status: status})
	if err != nil {
		return nil, apperr.Internal(err, "Could not load trades")
	}
	for i := range trades {
		trades[i] = *s.enrich(ctx, &trades[i])
	}
	return trades, nil
}

// loadForParticipant получает обмен, в котором участвует пользователь
func (s *TradeService) loadForParticipant(ctx context.Context, userID, tradeID uuid.UUID) (*models.Trade, error) {
	t, err := s.store.GetTrade(ctx, tradeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Trade not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Could not load trade")
	}
	if !t.IsParticipant(userID) {
		return nil, apperr.Forbidden("You are not part of this trade")
	}
	return t, nil
}

// Get возвращает обмен одному из его участников
func (s *TradeService) Get(ctx context.Context, userID, tradeID uuid.UUID) (*models.Trade, error) {
	t, err := s.loadForParticipant(ctx, userID, tradeID)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, t), nil
}

func transitionError(err error) error {
	switch {
	case errors.Is(err, models.ErrNotParticipant):
		return apperr.Forbidden("You are not part of this trade")
	case errors.Is(err, models.ErrWrongParticipant):
		return apperr.Forbidden("You cannot perform this action on this trade")
	case errors.Is(err, models.ErrInvalidTransition):
		return apperr.Conflict("This action is not allowed in the current trade status")
	case errors.Is(err, models.ErrAlreadyConfirmed):
		return apperr.Conflict("You already confirmed this trade")
	case errors.Is(err, models.ErrUnknownAction):
		return apperr.Invalid("Unknown trade action")
	}
	return apperr.Internal(err, "Could not update trade")
}

// Act выполняет действие от имени userID и меняет статусы товаров
func (s *TradeService) Act(ctx context.Context, userID, tradeID uuid.UUID, action models.TradeAction) (*models.Trade, error) {
	t, err := s.loadForParticipant(ctx, userID, tradeID)
	if err != nil {
		return nil, err
	}
	before := t.Status
	version := t.Version

	if err := t.Apply(action, userID, s.now().UTC()); err != nil {
		return nil, transitionError(err)
	}
	products := []uuid.UUID{t.OfferedProductID, t.RequestedProductID}
	if action == models.ActionAccept {
		if err := s.reserve(ctx, products); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateTrade(ctx, t, version); err != nil {
		if action == models.ActionAccept {
			s.moveProducts(ctx, logger.FromContext(ctx), models.ProductReserved, models.ProductAvailable, products...)
		}
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.Conflict("The trade was changed by someone else, reload and try again")
		}
		return nil, apperr.Internal(err, "Could not update trade")
	}

	log := logger.FromContext(ctx).WithField("trade_id", t.ID).WithField("status", t.Status)
	log.Info("trade updated")

	switch {
	case t.Status == models.TradeAccepted:
		s.rejectCompeting(ctx, log, t)
		s.openConversation(ctx, log, t)
	case t.Status == models.TradeCompleted:
		s.moveProducts(ctx, log, models.ProductReserved, models.ProductTraded, products...)
	case t.Status == models.TradeCanceled && before == models.TradeAccepted:
		s.moveProducts(ctx, log, models.ProductReserved, models.ProductAvailable, products...)
	}

	if typ, ok := eventForStatus[t.Status]; ok && t.Status != before {
		s.events.Publish(ctx, events.New(typ, t.ID, userID, t))
	}
	return s.enrich(ctx, t), nil
}

// reserve снимает с каталога все товары обмена или ни одного. Смена статуса
// условная, поэтому из двух одновременных принятий одного товара проходит только одно.
func (s *TradeService) reserve(ctx context.Context, ids []uuid.UUID) error {
	now := s.now().UTC()
	for i, id := range ids {
		err := s.store.SetProductStatus(ctx, id, models.ProductAvailable, models.ProductReserved, now)
		if err == nil {
			continue
		}
		s.moveProducts(ctx, logger.FromContext(ctx), models.ProductReserved, models.ProductAvailable, ids[:i]...)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return apperr.Conflict("A product of this trade no longer exists")
		case errors.Is(err, store.ErrConflict):
			return apperr.Conflict("A product of this trade is no longer available")
		}
		return apperr.Internal(err, "Could not reserve product")
	}
	return nil
}

// moveProducts переводит товары из одного статуса в другой; ошибка только
// логируется, сам обмен уже сохранен
func (s *TradeService) moveProducts(ctx context.Context, log *logrus.Entry, from, to string, ids ...uuid.UUID) {
	now := s.now().UTC()
	for _, id := range ids {
		if err := s.store.SetProductStatus(ctx, id, from, to, now); err != nil {
			log.WithError(err).WithField("product_id", id).Warnf("product not moved from %s to %s", from, to)
		}
	}
}

// rejectCompeting отклоняет остальные ожидающие обмены с товарами принятого
func (s *TradeService) rejectCompeting(ctx context.Context, log *logrus.Entry, accepted *models.Trade) {
	seen := map[uuid.UUID]bool{accepted.ID: true}
	for _, productID := range []uuid.UUID{accepted.OfferedProductID, accepted.RequestedProductID} {
		id := productID
		pending, err := s.store.ListTrades(ctx, store.TradeFilter{ProductID: &id, Status: models.TradePending})
		if err != nil {
			log.WithError(err).Warn("competing trades not rejected")
			continue
		}
		for i := range pending {
			other := &pending[i]
			if seen[other.ID] {
				continue
			}
			seen[other.ID] = true

			version := other.Version
			other.Status = models.TradeRejected
			other.Version++
			other.UpdatedAt = s.now().UTC()
			if err := s.store.UpdateTrade(ctx, other, version); err != nil {
				log.WithError(err).WithField("other_trade_id", other.ID).Warn("competing trade not rejected")
				continue
			}
			s.events.Publish(ctx, events.New(events.TradeRejected, other.ID, accepted.ReceiverID, other))
		}
	}
}

// openConversation оставляет первое сообщение от получателя инициатору
func (s *TradeService) openConversation(ctx context.Context, log *logrus.Entry, t *models.Trade) {
	tradeID := t.ID
	msg := &models.Message{
		ID:         uuid.New(),
		SenderID:   t.ReceiverID,
		ReceiverID: t.ProposerID,
		TradeID:    &tradeID,
		Text:       acceptedNote,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		log.WithError(err).Warn("trade conversation not opened")
	}
}

// enrich добавляет оба товара и обоих участников
func (s *TradeService) enrich(ctx context.Context, t *models.Trade) *models.Trade {
	products := make([]models.Product, 0, 2)
	for _, id := range []uuid.UUID{t.OfferedProductID, t.RequestedProductID} {
		if p, err := s.store.GetProduct(ctx, id); err == nil {
			products = append(products, *p)
		}
	}
	listing.AttachOwners(ctx, s.store, products)
	for i := range products {
		p := products[i]
		switch p.ID {
		case t.OfferedProductID:
			t.OfferedProduct = &p
		case t.RequestedProductID:
			t.RequestedProduct = &p
		}
	}
	if u, err := s.store.GetUser(ctx, t.ProposerID); err == nil {
		t.Proposer = u.Public()
	}
	if u, err := s.store.GetUser(ctx, t.ReceiverID); err == nil {
		t.Receiver = u.Public()
	}
	return t
}

// CreateTrade создает новое предложение обмена
func (s *TradeService) CreateTrade(c fiber.Ctx) error {
	var in Proposal
	if err := s.validator.Bind(c, validation.TradeProposal, &in); err != nil {
		return err
	}
	t, err := s.Propose(middleware.Context(c), middleware.UserID(c), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

// GetMyTrades возвращает список входящих и исходящих предложений обмена
func (s *TradeService) GetMyTrades(c fiber.Ctx) error {
	trades, err := s.List(middleware.Context(c), middleware.UserID(c), c.Query("type", store.DirectionAll), c.Query("status"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"trades": trades, "count": len(trades)})
}

// GetTrade возвращает обмен по id
func (s *TradeService) GetTrade(c fiber.Ctx) error {
	id, err := params.UUID(c, "id")
	if err != nil {
		return err
	}
	t, err := s.Get(middleware.Context(c), middleware.UserID(c), id)
	if err != nil {
		return err
	}
	return c.JSON(t)
}

// UpdateTradeStatus обновляет статус предложения обмена (принятие/отклонение/отмена)
func (s *TradeService) UpdateTradeStatus(c fiber.Ctx) error {
	id, err := params.UUID(c, "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := s.validator.Bind(c, validation.TradeStatus, &req); err != nil {
		return err
	}
	action, ok := models.ActionForStatus(req.Status)
	if !ok {
		return apperr.Invalid("Invalid status")
	}
	t, err := s.Act(middleware.Context(c), middleware.UserID(c), id, action)
	if err != nil {
		return err
	}
	return c.JSON(t)
}

// ConfirmTrade подтверждает, что обмен состоялся
func (s *TradeService) ConfirmTrade(c fiber.Ctx) error {
	id, err := params.UUID(c, "id")
	if err != nil {
		return err
	}
	t, err := s.Act(middleware.Context(c), middleware.UserID(c), id, models.ActionConfirm)
	if err != nil {
		return err
	}
	return c.JSON(t)
}
