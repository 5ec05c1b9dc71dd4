package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/swaply-api/internal/apperr"
)

func detailsOf(t *testing.T, err error) []FieldError {
	t.Helper()
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.Status)
	details, _ := appErr.Details.([]FieldError)
	return details
}

func TestNew_CompilesAllSchemas(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	for _, name := range []string{Signup, Login, Refresh, ProfileUpdate, ProductCreate,
		ProductUpdate, TradeProposal, TradeStatus, Rating, Message, Favorite, UserStatus} {
		assert.True(t, v.HasSchema(name), name)
	}
	assert.False(t, v.HasSchema("condition"))
	assert.Equal(t, "https://swaply.app/schemas/rating.json", ID(Rating))
}

func TestValidateBytes(t *testing.T) {
	v := MustNew()

	tests := []struct {
		name    string
		schema  string
		doc     string
		wantErr bool
		field   string
	}{
		{name: "valid signup", schema: Signup, doc: `{"email":"ana@example.com","password":"secret123","name":"Ana"}`},
		{name: "missing name", schema: Signup, doc: `{"email":"ana@example.com","password":"secret123"}`, wantErr: true, field: "name"},
		{name: "bad email", schema: Signup, doc: `{"email":"nope","password":"secret123","name":"Ana"}`, wantErr: true, field: "email"},
		{name: "short password", schema: Signup, doc: `{"email":"ana@example.com","password":"x","name":"Ana"}`, wantErr: true, field: "password"},
		{name: "condition via ref", schema: ProductCreate, doc: `{"title":"Bike","category":"sports","condition":"like_new"}`},
		{name: "unknown condition", schema: ProductCreate, doc: `{"title":"Bike","category":"sports","condition":"broken"}`, wantErr: true, field: "condition"},
		{name: "long title", schema: ProductCreate, doc: `{"title":"` + strings.Repeat("a", 121) + `","category":"x"}`, wantErr: true, field: "title"},
		{name: "unknown create field", schema: ProductCreate, doc: `{"title":"Bike","category":"sports","status":"traded"}`, wantErr: true},
		{name: "unknown update field", schema: ProductUpdate, doc: `{"owner_id":"1f1b6b5e-4b8a-4c54-9d1e-3f2d1a0c9b7e"}`, wantErr: true},
		{name: "empty update", schema: ProductUpdate, doc: `{}`, wantErr: true},
		{name: "trade uuid format", schema: TradeProposal, doc: `{"offered_product_id":"1","requested_product_id":"2"}`, wantErr: true},
		{name: "trade status completed is not settable", schema: TradeStatus, doc: `{"status":"completed"}`, wantErr: true, field: "status"},
		{name: "score out of range", schema: Rating, doc: `{"trade_id":"1f1b6b5e-4b8a-4c54-9d1e-3f2d1a0c9b7e","score":6}`, wantErr: true, field: "score"},
		{name: "empty message text", schema: Message, doc: `{"receiver_id":"1f1b6b5e-4b8a-4c54-9d1e-3f2d1a0c9b7e","text":""}`, wantErr: true, field: "text"},
		{name: "empty body", schema: Login, doc: ``, wantErr: true},
		{name: "garbage body", schema: Login, doc: `{"email":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateBytes(tt.schema, []byte(tt.doc))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			details := detailsOf(t, err)
			if tt.field != "" {
				require.NotEmpty(t, details)
				assert.Equal(t, tt.field, details[0].Field)
			}
		})
	}
}

func TestValidateValue(t *testing.T) {
	v := MustNew()

	assert.NoError(t, v.ValidateValue(ProductCreate, map[string]any{"title": "Lamp", "category": "home"}))
	assert.Error(t, v.ValidateValue(ProductCreate, map[string]any{"title": "Lamp"}))
}
