package models

import (
	"time"

	"github.com/google/uuid"
)

// Роли пользователей
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User представляет участника маркетплейса (usuario)
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Bio          string    `json:"bio,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	Location     string    `json:"location,omitempty"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin проверяет, что у пользователя роль администратора
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Public возвращает профиль, который видят другие пользователи
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		Location:  u.Location,
		Bio:       u.Bio,
	}
}

// PublicUser представляет минимальные данные пользователя для объявлений, обменов и чатов
type PublicUser struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Location  string    `json:"location,omitempty"`
	Bio       string    `json:"bio,omitempty"`
}
