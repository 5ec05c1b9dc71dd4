package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rajivgeraev/swaply-api/internal/models"
)

// Типы токенов
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims это claims локально выданных токенов. Оба токена пары и все пары,
// полученные через refresh, имеют один id сессии.
type Claims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	Kind      string `json:"kind"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// UserID возвращает subject как UUID
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenService создает и проверяет HS256 токены
type TokenService struct {
	secretKey  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService создает новый экземпляр TokenService
func NewTokenService(secretKey string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		secretKey:  []byte(secretKey),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue создает пару access и refresh токенов для новой сессии пользователя
func (s *TokenService) Issue(u *models.User) (access, refresh string, expiresAt time.Time, err error) {
	return s.IssueFor(u, uuid.NewString())
}

// IssueFor создает пару токенов, продолжающую сессию sid
func (s *TokenService) IssueFor(u *models.User, sid string) (access, refresh string, expiresAt time.Time, err error) {
	now := s.now()
	expiresAt = now.Add(s.accessTTL)

	access, err = s.sign(u, sid, KindAccess, now, expiresAt)
	if err != nil {
		return "", "", time.Time{}, err
	}
	refresh, err = s.sign(u, sid, KindRefresh, now, now.Add(s.refreshTTL))
	if err != nil {
		return "", "", time.Time{}, err
	}
	return access, refresh, expiresAt, nil
}

// RefreshTTL возвращает срок жизни refresh-токена
func (s *TokenService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

func (s *TokenService) sign(u *models.User, sid, kind string, now, exp time.Time) (string, error) {
	claims := Claims{
		Email:     u.Email,
		Role:      u.Role,
		Kind:      kind,
		SessionID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Validate разбирает tokenString и проверяет подпись, срок действия и тип
func (s *TokenService) Validate(tokenString, kind string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if claims.Kind != kind || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
