package chat_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/swaply-api/internal/events"
	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/server/servertest"
)

type history struct {
	Peer     *models.PublicUser `json:"peer"`
	Messages []models.Message   `json:"messages"`
}

type conversations struct {
	Conversations []models.Conversation `json:"conversations"`
}

func sendMessage(h *servertest.Harness, from servertest.Account, to uuid.UUID, text string) (int, *models.Message) {
	var m models.Message
	status := h.JSON(http.MethodPost, "/api/messages", from.Token, map[string]any{
		"receiver_id": to,
		"text":        text,
	}, &m)
	return status, &m
}

func TestSendMessage(t *testing.T) {
	h := servertest.New(t)
	alice, bob := h.Signup("Alice"), h.Signup("Bob")

	status, m := sendMessage(h, alice, bob.User.ID, " hola ")
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "hola", m.Text)
	assert.Equal(t, alice.User.ID, m.SenderID)
	assert.False(t, m.IsRead)
	assert.Equal(t, []string{events.MessageSent}, h.Events.Types())

	status, _ = sendMessage(h, alice, alice.User.ID, "yo")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = sendMessage(h, alice, uuid.New(), "nadie")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = sendMessage(h, alice, bob.User.ID, "   ")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = h.Do(http.MethodPost, "/api/messages", alice.Token, map[string]any{"text": "sin destino"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSendMessage_TradeParticipants(t *testing.T) {
	h := servertest.New(t)
	alice, bob, carol := h.Signup("Alice"), h.Signup("Bob"), h.Signup("Carol")
	bike := h.CreateProduct(alice, "Bicicleta", "deportes", "")
	guitar := h.CreateProduct(bob, "Guitarra", "musica", "")

	var trade models.Trade
	require.Equal(t, http.StatusCreated, h.JSON(http.MethodPost, "/api/trueques", alice.Token, map[string]any{
		"offered_product_id":   bike.ID,
		"requested_product_id": guitar.ID,
	}, &trade))

	var m models.Message
	status := h.JSON(http.MethodPost, "/api/messages", alice.Token, map[string]any{
		"receiver_id": bob.User.ID, "text": "sobre el trueque", "trade_id": trade.ID,
	}, &m)
	require.Equal(t, http.StatusCreated, status)
	require.NotNil(t, m.TradeID)
	assert.Equal(t, trade.ID, *m.TradeID)

	status, _ = h.Do(http.MethodPost, "/api/messages", alice.Token, map[string]any{
		"receiver_id": carol.User.ID, "text": "mira", "trade_id": trade.ID,
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.Do(http.MethodPost, "/api/messages", alice.Token, map[string]any{
		"receiver_id": bob.User.ID, "text": "mira", "trade_id": uuid.New(),
	})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestConversationsAndHistory(t *testing.T) {
	h := servertest.New(t)
	alice, bob, carol := h.Signup("Alice"), h.Signup("Bob"), h.Signup("Carol")

	sendMessage(h, bob, alice.User.ID, "uno")
	sendMessage(h, bob, alice.User.ID, "dos")
	sendMessage(h, alice, bob.User.ID, "tres")
	sendMessage(h, carol, alice.User.ID, "hola alice")

	var convs conversations
	require.Equal(t, http.StatusOK, h.JSON(http.MethodGet, "/api/messages/conversations", alice.Token, nil, &convs))
	require.Len(t, convs.Conversations, 2)
	assert.Equal(t, carol.User.ID, convs.Conversations[0].PeerID)
	assert.Equal(t, 1, convs.Conversations[0].UnreadCount)
	require.NotNil(t, convs.Conversations[0].Peer)
	assert.Equal(t, "Carol", convs.Conversations[0].Peer.Name)
	assert.Equal(t, bob.User.ID, convs.Conversations[1].PeerID)
	assert.Equal(t, "tres", convs.Conversations[1].LastMessage.Text)
	assert.Equal(t, 2, convs.Conversations[1].UnreadCount)

	var hist history
	require.Equal(t, http.StatusOK, h.JSON(http.MethodGet, "/api/messages/with/"+bob.User.ID.String(), alice.Token, nil, &hist))
	require.Len(t, hist.Messages, 3)
	assert.Equal(t, "uno", hist.Messages[0].Text)
	assert.Equal(t, "tres", hist.Messages[2].Text)
	assert.True(t, hist.Messages[0].IsRead)
	assert.Equal(t, "Bob", hist.Peer.Name)

	require.Equal(t, http.StatusOK, h.JSON(http.MethodGet, "/api/messages/conversations", alice.Token, nil, &convs))
	assert.Equal(t, 0, convs.Conversations[1].UnreadCount)

	// bob has not read alice's reply
	require.Equal(t, http.StatusOK, h.JSON(http.MethodGet, "/api/messages/conversations", bob.Token, nil, &convs))
	require.Len(t, convs.Conversations, 1)
	assert.Equal(t, 1, convs.Conversations[0].UnreadCount)

	require.Equal(t, http.StatusOK, h.JSON(http.MethodGet, "/api/messages/with/"+bob.User.ID.String()+"?limit=2", alice.Token, nil, &hist))
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, "dos", hist.Messages[0].Text)

	status, _ := h.Do(http.MethodGet, "/api/messages/with/"+uuid.NewString(), alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = h.Do(http.MethodGet, "/api/messages/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}
