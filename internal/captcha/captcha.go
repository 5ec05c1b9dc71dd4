// Package captcha verifies Google reCAPTCHA tokens.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3/client"

	"github.com/rajivgeraev/swaply-api/internal/config"
	"github.com/rajivgeraev/swaply-api/internal/logger"
)

var (
	// ErrMissing is returned when verification is enabled and no token was sent
	ErrMissing = errors.New("captcha token is required")
	// ErrRejected is returned when Google does not accept the token
	ErrRejected = errors.New("captcha verification failed")
)

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// Verifier checks tokens against the siteverify endpoint
type Verifier struct {
	http      *client.Client
	secret    string
	verifyURL string
}

// New creates a verifier; with an empty secret every token is accepted
func New(cfg config.RecaptchaConfig) *Verifier {
	cc := client.New()
	cc.SetJSONUnmarshal(json.Unmarshal)
	cc.SetTimeout(5 * time.Second)
	return &Verifier{http: cc, secret: cfg.Secret, verifyURL: cfg.VerifyURL}
}

// Enabled reports whether tokens are checked
func (v *Verifier) Enabled() bool {
	return v.secret != ""
}

// Verify checks token, passing remoteIP along when known
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if !v.Enabled() {
		return nil
	}
	if token == "" {
		return ErrMissing
	}

	r := v.http.R().SetContext(ctx).
		SetFormData("secret", v.secret).
		SetFormData("response", token)
	if remoteIP != "" {
		r.SetFormData("remoteip", remoteIP)
	}
	resp, err := r.Post(v.verifyURL)
	if err != nil {
		return fmt.Errorf("captcha: siteverify: %w", err)
	}
	defer resp.Close()

	if resp.StatusCode() != 200 {
		return fmt.Errorf("captcha: siteverify status %d", resp.StatusCode())
	}
	var out siteverifyResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return fmt.Errorf("captcha: decode siteverify response: %w", err)
	}
	if !out.Success {
		logger.FromContext(ctx).WithField("codes", out.ErrorCodes).Info("captcha rejected")
		return ErrRejected
	}
	return nil
}
