// Package validation checks request bodies against the embedded JSON schemas.
package validation

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/xeipuuv/gojsonschema"

	"github.com/rajivgeraev/swaply-api/internal/apperr"
)

//go:embed schemas
var schemaFS embed.FS

const idPrefix = "https://swaply.app/schemas/"

// Schema names
const (
	Signup        = "signup"
	Login         = "login"
	Refresh       = "refresh"
	ProfileUpdate = "profile_update"
	ProductCreate = "product_create"
	ProductUpdate = "product_update"
	TradeProposal = "trade_proposal"
	TradeStatus   = "trade_status"
	Rating        = "rating"
	Message       = "message"
	Favorite      = "favorite"
	UserStatus    = "user_status"
)

// FieldError describes one violation
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator holds the compiled schemas by name
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// New compiles the embedded schemas. Files under schemas/refs are only
// available as $ref targets.
func New() (*Validator, error) {
	top, err := readDir("schemas")
	if err != nil {
		return nil, err
	}
	refs, err := readDir("schemas/refs")
	if err != nil {
		return nil, err
	}

	v := &Validator{schemas: make(map[string]*gojsonschema.Schema)}
	for name, raw := range top {
		sl := gojsonschema.NewSchemaLoader()
		for refName, ref := range refs {
			if err := sl.AddSchemas(gojsonschema.NewBytesLoader(ref)); err != nil {
				return nil, fmt.Errorf("cannot add ref %s: %w", refName, err)
			}
		}
		schema, err := sl.Compile(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("cannot compile schema %s: %w", name, err)
		}
		v.schemas[name] = schema
	}
	return v, nil
}

// MustNew is New for package initialisation; it panics on a broken schema
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

func readDir(dir string) (map[string][]byte, error) {
	entries, err := fs.ReadDir(schemaFS, dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read dir %s: %w", dir, err)
	}
	out := make(map[string][]byte)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		raw, err := schemaFS.ReadFile(path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("cannot read file %s: %w", e.Name(), err)
		}
		out[strings.TrimSuffix(e.Name(), ".json")] = raw
	}
	return out, nil
}

// ID returns the $id a schema name is published under
func ID(name string) string {
	return idPrefix + name + ".json"
}

// HasSchema reports whether name is known
func (v *Validator) HasSchema(name string) bool {
	_, ok := v.schemas[name]
	return ok
}

// ValidateBytes validates a raw JSON document. Violations are returned as a
// 400 apperr with per-field details.
func (v *Validator) ValidateBytes(name string, doc []byte) error {
	if len(doc) == 0 {
		return apperr.Invalid("Request body is required")
	}
	if !json.Valid(doc) {
		return apperr.Invalid("Request body is not valid JSON")
	}
	return v.validate(name, gojsonschema.NewBytesLoader(doc))
}

// ValidateValue validates an already decoded document, such as multipart fields
func (v *Validator) ValidateValue(name string, doc any) error {
	return v.validate(name, gojsonschema.NewGoLoader(doc))
}

func (v *Validator) validate(name string, loader gojsonschema.JSONLoader) error {
	schema, ok := v.schemas[name]
	if !ok {
		return apperr.Internal(fmt.Errorf("there is no schema %s", name), "Validation failed")
	}

	result, err := schema.Validate(loader)
	if err != nil {
		return apperr.Invalid("Request body is not valid JSON")
	}
	if result.Valid() {
		return nil
	}

	details := make([]FieldError, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		field := e.Field()
		if prop, ok := e.Details()["property"].(string); ok && e.Type() == "required" {
			field = prop
		}
		details = append(details, FieldError{Field: field, Message: e.Description()})
	}
	return apperr.Invalid("Validation failed").WithDetails(details)
}

// Bind validates the request body against the schema and decodes it into dst
func (v *Validator) Bind(c fiber.Ctx, name string, dst any) error {
	body := c.Body()
	if err := v.ValidateBytes(name, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.Invalid("Request body does not match the expected shape")
	}
	return nil
}
