// Package robletest runs an in-memory imitation of the ROBLE API for tests.
package robletest

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const signingKey = "robletest"

type account struct {
	id       string
	email    string
	name     string
	password string
}

// Server is a fake ROBLE instance serving a single database
type Server struct {
	*httptest.Server
	DBName string

	// AccessTTL is the lifetime of issued access tokens
	AccessTTL time.Duration

	mu       sync.Mutex
	accounts map[string]*account
	access   map[string]string
	refresh  map[string]string
	tables   map[string][]map[string]any

	failRefresh atomic.Bool
	logins      atomic.Int64
	refreshes   atomic.Int64
}

// NewServer starts a fake ROBLE serving database dbName. Call Close when done.
func NewServer(dbName string) *Server {
	s := &Server{
		DBName:    dbName,
		AccessTTL: 15 * time.Minute,
		accounts:  make(map[string]*account),
		access:    make(map[string]string),
		refresh:   make(map[string]string),
		tables:    make(map[string][]map[string]any),
	}

	app := fiber.New(fiber.Config{JSONEncoder: json.Marshal, JSONDecoder: json.Unmarshal})
	authAPI := app.Group("/auth/" + dbName)
	authAPI.Post("/signup-direct", s.signup)
	authAPI.Post("/login", s.login)
	authAPI.Post("/refresh-token", s.refreshToken)
	authAPI.Get("/verify-token", s.verify)
	authAPI.Post("/logout", s.logout)

	dbAPI := app.Group("/database/"+dbName, s.requireToken)
	dbAPI.Post("/insert", s.insert)
	dbAPI.Get("/read", s.read)
	dbAPI.Put("/update", s.update)
	dbAPI.Delete("/delete", s.delete)

	s.Server = httptest.NewServer(adaptor.FiberApp(app))
	return s
}

// AddAccount registers an account as signup-direct would
func (s *Server) AddAccount(email, password, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(email)
	s.accounts[email] = &account{id: uuid.NewString(), email: email, name: name, password: password}
}

// ExpireTokens revokes every issued access token; refresh tokens stay valid
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]string)
}

// FailRefresh makes refresh-token answer 401
func (s *Server) FailRefresh(fail bool) {
	s.failRefresh.Store(fail)
}

// Logins counts successful login calls
func (s *Server) Logins() int64 {
	return s.logins.Load()
}

// Refreshes counts successful refresh calls
func (s *Server) Refreshes() int64 {
	return s.refreshes.Load()
}

// Rows returns a copy of a table's rows
func (s *Server) Rows(table string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.tables[table]))
	for _, row := range s.tables[table] {
		out = append(out, copyRow(row))
	}
	return out
}

// IssueToken returns a valid access token for an existing account
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[strings.ToLower(email)]
	if acc == nil {
		return ""
	}
	token, _ := s.issueLocked(acc)
	return token
}

func (s *Server) issueLocked(acc *account) (string, string) {
	claims := jwt.MapClaims{
		"sub":   acc.id,
		"email": acc.email,
		"role":  "user",
		"jti":   uuid.NewString(),
		"exp":   time.Now().Add(s.AccessTTL).Unix(),
	}
	access, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	refresh := uuid.NewString()
	s.access[access] = acc.email
	s.refresh[refresh] = acc.email
	return access, refresh
}

func errorJSON(c fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"message": msg, "statusCode": status})
}

func (s *Server) signup(c fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil || req.Email == "" || req.Password == "" {
		return errorJSON(c, fiber.StatusBadRequest, "email and password are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(req.Email)
	if _, ok := s.accounts[email]; ok {
		return errorJSON(c, fiber.StatusBadRequest, "User already exists")
	}
	s.accounts[email] = &account{id: uuid.NewString(), email: email, name: req.Name, password: req.Password}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "User created"})
}

func (s *Server) login(c fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid body")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[strings.ToLower(req.Email)]
	if acc == nil || acc.password != req.Password {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid credentials")
	}
	access, refresh := s.issueLocked(acc)
	s.logins.Add(1)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"accessToken":  access,
		"refreshToken": refresh,
		"user":         fiber.Map{"id": acc.id, "email": acc.email, "name": acc.name},
	})
}

func (s *Server) refreshToken(c fiber.Ctx) error {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid body")
	}
	if s.failRefresh.Load() {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid refresh token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.refresh[req.RefreshToken]
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid refresh token")
	}
	access, _ := s.issueLocked(s.accounts[email])
	s.refreshes.Add(1)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"accessToken": access})
}

func bearer(c fiber.Ctx) string {
	return strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
}

func (s *Server) emailFor(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.access[token]
	return email, ok
}

func (s *Server) verify(c fiber.Ctx) error {
	email, ok := s.emailFor(bearer(c))
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid token")
	}
	s.mu.Lock()
	acc := s.accounts[email]
	s.mu.Unlock()
	return c.JSON(fiber.Map{
		"valid": true,
		"user":  fiber.Map{"sub": acc.id, "email": acc.email, "role": "user"},
	})
}

func (s *Server) logout(c fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.access, bearer(c))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Logged out"})
}

func (s *Server) requireToken(c fiber.Ctx) error {
	if _, ok := s.emailFor(bearer(c)); !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	return c.Next()
}

func (s *Server) insert(c fiber.Ctx) error {
	var req struct {
		TableName string           `json:"tableName"`
		Records   []map[string]any `json:"records"`
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil || req.TableName == "" {
		return errorJSON(c, fiber.StatusBadRequest, "tableName and records are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := make([]map[string]any, 0, len(req.Records))
	for _, rec := range req.Records {
		row := copyRow(rec)
		if _, ok := row["_id"]; !ok {
			row["_id"] = uuid.NewString()
		}
		s.tables[req.TableName] = append(s.tables[req.TableName], row)
		inserted = append(inserted, copyRow(row))
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"inserted": inserted, "skipped": []any{}})
}

func (s *Server) read(c fiber.Ctx) error {
	filters := c.Queries()
	table := filters["tableName"]
	if table == "" {
		return errorJSON(c, fiber.StatusBadRequest, "tableName is required")
	}
	delete(filters, "tableName")

	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]map[string]any, 0)
	for _, row := range s.tables[table] {
		if matches(row, filters) {
			rows = append(rows, copyRow(row))
		}
	}
	return c.JSON(rows)
}

type mutation struct {
	TableName string         `json:"tableName"`
	IDColumn  string         `json:"idColumn"`
	IDValue   any            `json:"idValue"`
	Updates   map[string]any `json:"updates"`
}

func (s *Server) update(c fiber.Ctx) error {
	var req mutation
	if err := json.Unmarshal(c.Body(), &req); err != nil || req.TableName == "" || req.IDColumn == "" {
		return errorJSON(c, fiber.StatusBadRequest, "tableName, idColumn and idValue are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.tables[req.TableName] {
		if fmt.Sprint(row[req.IDColumn]) == fmt.Sprint(req.IDValue) {
			for k, v := range req.Updates {
				row[k] = v
			}
			return c.JSON(copyRow(row))
		}
	}
	return errorJSON(c, fiber.StatusNotFound, "Record not found")
}

func (s *Server) delete(c fiber.Ctx) error {
	var req mutation
	if err := json.Unmarshal(c.Body(), &req); err != nil || req.TableName == "" || req.IDColumn == "" {
		return errorJSON(c, fiber.StatusBadRequest, "tableName, idColumn and idValue are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.tables[req.TableName]
	for i, row := range rows {
		if fmt.Sprint(row[req.IDColumn]) == fmt.Sprint(req.IDValue) {
			s.tables[req.TableName] = append(rows[:i:i], rows[i+1:]...)
			return c.JSON(copyRow(row))
		}
	}
	return errorJSON(c, fiber.StatusNotFound, "Record not found")
}

func matches(row map[string]any, filters map[string]string) bool {
	for k, want := range filters {
		if fmt.Sprint(row[k]) != want {
			return false
		}
	}
	return true
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
