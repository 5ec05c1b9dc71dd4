package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTrade(status string) (*Trade, uuid.UUID, uuid.UUID) {
	proposer, receiver := uuid.New(), uuid.New()
	return &Trade{
		ID:                 uuid.New(),
		ProposerID:         proposer,
		ReceiverID:         receiver,
		OfferedProductID:   uuid.New(),
		RequestedProductID: uuid.New(),
		Status:             status,
		Version:            1,
	}, proposer, receiver
}

func TestTradeApply_Transitions(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		status   string
		action   TradeAction
		byRecv   bool
		want     string
		wantErr  error
		stranger bool
	}{
		{name: "receiver accepts", status: TradePending, action: ActionAccept, byRecv: true, want: TradeAccepted},
		{name: "receiver rejects", status: TradePending, action: ActionReject, byRecv: true, want: TradeRejected},
		{name: "proposer cannot accept", status: TradePending, action: ActionAccept, wantErr: ErrWrongParticipant},
		{name: "proposer cannot reject", status: TradePending, action: ActionReject, wantErr: ErrWrongParticipant},
		{name: "proposer cancels pending", status: TradePending, action: ActionCancel, want: TradeCanceled},
		{name: "receiver cannot cancel pending", status: TradePending, action: ActionCancel, byRecv: true, wantErr: ErrWrongParticipant},
		{name: "receiver cancels accepted", status: TradeAccepted, action: ActionCancel, byRecv: true, want: TradeCanceled},
		{name: "proposer cancels accepted", status: TradeAccepted, action: ActionCancel, want: TradeCanceled},
		{name: "accept twice", status: TradeAccepted, action: ActionAccept, byRecv: true, wantErr: ErrInvalidTransition},
		{name: "confirm pending", status: TradePending, action: ActionConfirm, wantErr: ErrInvalidTransition},
		{name: "rejected is terminal", status: TradeRejected, action: ActionCancel, wantErr: ErrInvalidTransition},
		{name: "completed is terminal", status: TradeCompleted, action: ActionConfirm, wantErr: ErrInvalidTransition},
		{name: "stranger", status: TradePending, action: ActionAccept, stranger: true, wantErr: ErrNotParticipant},
		{name: "unknown action", status: TradePending, action: "swap", wantErr: ErrUnknownAction},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trade, proposer, receiver := newTrade(tc.status)
			actor := proposer
			if tc.byRecv {
				actor = receiver
			}
			if tc.stranger {
				actor = uuid.New()
			}

			err := trade.Apply(tc.action, actor, now)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, tc.status, trade.Status)
				assert.Equal(t, 1, trade.Version)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, trade.Status)
			assert.Equal(t, 2, trade.Version)
			assert.Equal(t, now, trade.UpdatedAt)
		})
	}
}

func TestTradeApply_CompletionNeedsBothConfirmations(t *testing.T) {
	now := time.Now()
	trade, proposer, receiver := newTrade(TradeAccepted)

	require.NoError(t, trade.Apply(ActionConfirm, proposer, now))
	assert.Equal(t, TradeAccepted, trade.Status)
	assert.True(t, trade.ProposerConfirmed)
	assert.Nil(t, trade.CompletedAt)

	assert.ErrorIs(t, trade.Apply(ActionConfirm, proposer, now), ErrAlreadyConfirmed)

	require.NoError(t, trade.Apply(ActionConfirm, receiver, now))
	assert.Equal(t, TradeCompleted, trade.Status)
	require.NotNil(t, trade.CompletedAt)
	assert.Equal(t, now, *trade.CompletedAt)
	assert.Equal(t, 3, trade.Version)
}

func TestTradeHelpers(t *testing.T) {
	trade, proposer, receiver := newTrade(TradePending)

	assert.Equal(t, receiver, trade.Counterpart(proposer))
	assert.Equal(t, proposer, trade.Counterpart(receiver))
	assert.True(t, trade.Involves(trade.OfferedProductID))
	assert.False(t, trade.Involves(uuid.New()))

	action, ok := ActionForStatus(TradeRejected)
	assert.True(t, ok)
	assert.Equal(t, ActionReject, action)
	_, ok = ActionForStatus(TradeCompleted)
	assert.False(t, ok)
}

func TestComputeReputation(t *testing.T) {
	assert.Equal(t, Reputation{}, ComputeReputation(nil))

	ratings := []Rating{{Score: 5}, {Score: 4}, {Score: 4}}
	assert.Equal(t, Reputation{Average: 4.33, Count: 3}, ComputeReputation(ratings))
}
