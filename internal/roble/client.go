// Package roble is a client for the hosted ROBLE auth and database API.
package roble

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3/client"

	"github.com/rajivgeraev/swaply-api/internal/config"
	"github.com/rajivgeraev/swaply-api/internal/logger"
)

// APIError is a non-2xx answer from ROBLE
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("roble: status %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// IsUnauthorized reports whether ROBLE rejected the credential
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

// Tokens is the pair returned by login and refresh
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// User is the account as ROBLE knows it
type User struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// TokenInfo is the answer of verify-token
type TokenInfo struct {
	Valid bool `json:"valid"`
	User  struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

// InsertResult lists the records ROBLE stored and the ones it skipped
type InsertResult struct {
	Inserted []map[string]any `json:"inserted"`
	Skipped  []map[string]any `json:"skipped"`
}

// Client talks to one ROBLE database
type Client struct {
	http    *client.Client
	baseURL string
	dbName  string
}

// NewClient creates a client for cfg.DBName
func NewClient(cfg config.RobleConfig) *Client {
	cc := client.New()
	cc.SetJSONMarshal(json.Marshal)
	cc.SetJSONUnmarshal(json.Unmarshal)
	if cfg.Timeout > 0 {
		cc.SetTimeout(cfg.Timeout)
	}
	return &Client{
		http:    cc,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		dbName:  cfg.DBName,
	}
}

func (c *Client) authURL(op string) string {
	return fmt.Sprintf("%s/auth/%s/%s", c.baseURL, c.dbName, op)
}

func (c *Client) dbURL(op string) string {
	return fmt.Sprintf("%s/database/%s/%s", c.baseURL, c.dbName, op)
}

type call struct {
	method string
	url    string
	token  string
	body   any
	params map[string]string
}

// do sends the call and decodes a 2xx body into out (when out is not nil)
func (c *Client) do(ctx context.Context, req call, out any) error {
	r := c.http.R().SetContext(ctx)
	if req.token != "" {
		r.SetHeader("Authorization", "Bearer "+req.token)
	}
	if req.body != nil {
		r.SetJSON(req.body)
	}
	for k, v := range req.params {
		r.SetParam(k, v)
	}

	start := time.Now()
	var (
		resp *client.Response
		err  error
	)
	switch req.method {
	case http.MethodGet:
		resp, err = r.Get(req.url)
	case http.MethodPost:
		resp, err = r.Post(req.url)
	case http.MethodPut:
		resp, err = r.Put(req.url)
	case http.MethodDelete:
		resp, err = r.Delete(req.url)
	default:
		return fmt.Errorf("roble: unsupported method %s", req.method)
	}
	if err != nil {
		return fmt.Errorf("roble %s %s: %w", req.method, req.url, err)
	}
	defer resp.Close()

	status := resp.StatusCode()
	body := append([]byte(nil), resp.Body()...)
	logger.FromContext(ctx).WithField("status", status).
		WithField("duration", time.Since(start)).
		Debugf("roble %s %s", req.method, req.url)

	if status < 200 || status > 299 {
		return &APIError{Status: status, Message: errorMessage(body)}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("roble: decode %s response: %w", req.url, err)
	}
	return nil
}

// errorMessage extracts the message ROBLE puts in error bodies
func errorMessage(body []byte) string {
	var payload struct {
		Message any    `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch m := payload.Message.(type) {
		case string:
			if m != "" {
				return m
			}
		case []any:
			parts := make([]string, 0, len(m))
			for _, p := range m {
				parts = append(parts, fmt.Sprint(p))
			}
			return strings.Join(parts, "; ")
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// SignupDirect creates an account without email verification
func (c *Client) SignupDirect(ctx context.Context, email, password, name string) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		url:    c.authURL("signup-direct"),
		body:   map[string]string{"email": email, "password": password, "name": name},
	}, nil)
}

// Login exchanges credentials for a token pair
func (c *Client) Login(ctx context.Context, email, password string) (*Tokens, error) {
	var tokens Tokens
	err := c.do(ctx, call{
		method: http.MethodPost,
		url:    c.authURL("login"),
		body:   map[string]string{"email": email, "password": password},
	}, &tokens)
	if err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" {
		return nil, errors.New("roble: login returned no access token")
	}
	return &tokens, nil
}

// Refresh exchanges a refresh token for a new access token
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	var tokens Tokens
	err := c.do(ctx, call{
		method: http.MethodPost,
		url:    c.authURL("refresh-token"),
		body:   map[string]string{"refreshToken": refreshToken},
	}, &tokens)
	if err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" {
		return nil, errors.New("roble: refresh returned no access token")
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return &tokens, nil
}

// VerifyToken checks an access token
func (c *Client) VerifyToken(ctx context.Context, token string) (*TokenInfo, error) {
	var info TokenInfo
	err := c.do(ctx, call{
		method: http.MethodGet,
		url:    c.authURL("verify-token"),
		token:  token,
	}, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Logout revokes the access token
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		url:    c.authURL("logout"),
		token:  token,
	}, nil)
}

// Insert stores records in table
func (c *Client) Insert(ctx context.Context, token, table string, records []map[string]any) (*InsertResult, error) {
	var result InsertResult
	err := c.do(ctx, call{
		method: http.MethodPost,
		url:    c.dbURL("insert"),
		token:  token,
		body:   map[string]any{"tableName": table, "records": records},
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Read returns the rows of table whose fields equal the filters
func (c *Client) Read(ctx context.Context, token, table string, filters map[string]string) ([]map[string]any, error) {
	params := map[string]string{"tableName": table}
	for k, v := range filters {
		params[k] = v
	}
	var rows []map[string]any
	err := c.do(ctx, call{
		method: http.MethodGet,
		url:    c.dbURL("read"),
		token:  token,
		params: params,
	}, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Update merges updates into the row where idColumn equals idValue
func (c *Client) Update(ctx context.Context, token, table, idColumn, idValue string, updates map[string]any) error {
	return c.do(ctx, call{
		method: http.MethodPut,
		url:    c.dbURL("update"),
		token:  token,
		body: map[string]any{
			"tableName": table,
			"idColumn":  idColumn,
			"idValue":   idValue,
			"updates":   updates,
		},
	}, nil)
}

// Delete removes the row where idColumn equals idValue
func (c *Client) Delete(ctx context.Context, token, table, idColumn, idValue string) error {
	return c.do(ctx, call{
		method: http.MethodDelete,
		url:    c.dbURL("delete"),
		token:  token,
		body: map[string]any{
			"tableName": table,
			"idColumn":  idColumn,
			"idValue":   idValue,
		},
	}, nil)
}
