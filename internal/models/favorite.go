package models

import (
	"time"

	"github.com/google/uuid"
)

// Favorite отмечает товар, за которым следит пользователь
type Favorite struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`

	Product *Product `json:"product,omitempty"`
}

// FavoriteResponse представляет страницу избранного
type FavoriteResponse struct {
	Favorites []Favorite `json:"favorites"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}
