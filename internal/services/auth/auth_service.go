package auth

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/swaply-api/internal/apperr"
	"github.com/rajivgeraev/swaply-api/internal/auth"
	"github.com/rajivgeraev/swaply-api/internal/captcha"
	"github.com/rajivgeraev/swaply-api/internal/logger"
	"github.com/rajivgeraev/swaply-api/internal/middleware"
	"github.com/rajivgeraev/swaply-api/internal/validation"
)

// AuthService отвечает за регистрацию, вход и сессии
type AuthService struct {
	authn     auth.Authenticator
	captcha   *captcha.Verifier
	validator *validation.Validator
}

// NewAuthService создает новый экземпляр AuthService
func NewAuthService(authn auth.Authenticator, verifier *captcha.Verifier, validator *validation.Validator) *AuthService {
	return &AuthService{authn: authn, captcha: verifier, validator: validator}
}

type signupRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	CaptchaToken string `json:"captcha_token"`
}

type loginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// mapAuthError превращает ошибки аутентификатора в ответы клиенту
func mapAuthError(err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apperr.Unauthorized("Invalid email or password")
	case errors.Is(err, auth.ErrInvalidToken):
		return apperr.Unauthorized("Invalid or expired token")
	case errors.Is(err, auth.ErrInactive):
		return apperr.Forbidden("Account is deactivated")
	case errors.Is(err, auth.ErrEmailTaken):
		return apperr.Conflict("Email already registered")
	}
	return apperr.Upstream(err, "Authentication service unavailable")
}

func (s *AuthService) checkCaptcha(c fiber.Ctx, token string) error {
	err := s.captcha.Verify(middleware.Context(c), token, c.IP())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, captcha.ErrMissing):
		return apperr.Invalid("Captcha token is required")
	case errors.Is(err, captcha.ErrRejected):
		return apperr.Invalid("Captcha verification failed")
	}
	return apperr.Upstream(err, "Captcha verification unavailable")
}

// Signup создает аккаунт и возвращает первую сессию
func (s *AuthService) Signup(c fiber.Ctx) error {
	var req signupRequest
	if err := s.validator.Bind(c, validation.Signup, &req); err != nil {
		return err
	}
	if err := s.checkCaptcha(c, req.CaptchaToken); err != nil {
		return err
	}

	session, err := s.authn.Signup(middleware.Context(c), req.Email, req.Password, req.Name)
	if err != nil {
		return mapAuthError(err)
	}
	logger.FromFiber(c).WithField("user_id", session.User.ID).Info("user signed up")
	return c.Status(fiber.StatusCreated).JSON(session)
}

// Login обменивает email и пароль на сессию
func (s *AuthService) Login(c fiber.Ctx) error {
	var req loginRequest
	if err := s.validator.Bind(c, validation.Login, &req); err != nil {
		return err
	}
	if err := s.checkCaptcha(c, req.CaptchaToken); err != nil {
		return err
	}

	session, err := s.authn.Login(middleware.Context(c), req.Email, req.Password)
	if err != nil {
		return mapAuthError(err)
	}
	return c.JSON(session)
}

// Refresh выдает новые токены по refresh-токену
func (s *AuthService) Refresh(c fiber.Ctx) error {
	var req refreshRequest
	if err := s.validator.Bind(c, validation.Refresh, &req); err != nil {
		return err
	}
	session, err := s.authn.Refresh(middleware.Context(c), req.RefreshToken)
	if err != nil {
		return mapAuthError(err)
	}
	return c.JSON(session)
}

// Logout завершает сессию переданного access-токена
func (s *AuthService) Logout(c fiber.Ctx) error {
	token, _ := middleware.BearerToken(c.Get("Authorization"))
	if err := s.authn.Logout(middleware.Context(c), token); err != nil {
		return mapAuthError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Verify сообщает, кому принадлежит токен
func (s *AuthService) Verify(c fiber.Ctx) error {
	u := middleware.CurrentUser(c)
	return c.JSON(fiber.Map{
		"valid":   true,
		"user_id": u.ID,
		"role":    u.Role,
	})
}

// Me возвращает текущего пользователя
func (s *AuthService) Me(c fiber.Ctx) error {
	return c.JSON(middleware.CurrentUser(c))
}
