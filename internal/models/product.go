package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы товара
const (
	ProductAvailable = "available"
	ProductReserved  = "reserved"
	ProductTraded    = "traded"
)

// Состояние товара
const (
	ConditionNew         = "new"
	ConditionLikeNew     = "like_new"
	ConditionGood        = "good"
	ConditionUsed        = "used"
	ConditionNeedsRepair = "needs_repair"
)

var validConditions = map[string]bool{
	ConditionNew: true, ConditionLikeNew: true, ConditionGood: true,
	ConditionUsed: true, ConditionNeedsRepair: true,
}

// ValidCondition проверяет, что c известное состояние товара
func ValidCondition(c string) bool {
	return validConditions[c]
}

// Product представляет товар для обмена (producto)
type Product struct {
	ID            uuid.UUID `json:"id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	Condition     string    `json:"condition"`
	Wanted        string    `json:"wanted,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	ImagePublicID string    `json:"image_public_id,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Owner *PublicUser `json:"owner,omitempty"`
}

// Editable сообщает, может ли владелец еще изменить или удалить товар
func (p *Product) Editable() bool {
	return p.Status == ProductAvailable
}
