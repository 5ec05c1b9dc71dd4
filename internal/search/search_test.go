package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/swaply-api/internal/config"
	"github.com/rajivgeraev/swaply-api/internal/models"
)

var base = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func product(title, category, description string, age time.Duration) models.Product {
	return models.Product{
		ID:          uuid.New(),
		Title:       title,
		Category:    category,
		Description: description,
		Status:      models.ProductAvailable,
		CreatedAt:   base.Add(-age),
	}
}

func catalog() []models.Product {
	return []models.Product{
		product("Bicicleta de montaña", "deportes", "Rin 29, poco uso", time.Hour),
		product("Canción de hielo y fuego", "libros", "Novela completa en tapa dura", 2*time.Hour),
		product("iPhone 11", "electrónica", "Teléfono con cargador", 3*time.Hour),
		product("PlayStation 5 slim", "videojuegos", "Con dos controles", 4*time.Hour),
		product("Libro de cocina", "libros", "Recetas caribeñas", 5*time.Hour),
	}
}

func titles(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Product.Title)
	}
	return out
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	syn, err := LoadSynonyms("")
	require.NoError(t, err)
	return NewEngine(syn)
}

func TestFoldAndTokenize(t *testing.T) {
	assert.Equal(t, "cancion electronica", fold("Canción ELECTRÓNICA"))
	assert.Equal(t, []string{"celular", "libro", "bafl"}, tokenize("Celulares, libros y bafles!"))
	assert.Equal(t, tokenize("bafle"), tokenize("bafles"))
}

func TestEngine_AccentsAndPlurals(t *testing.T) {
	e := newEngine(t)

	results := e.Search("cancion", catalog())
	require.NotEmpty(t, results)
	assert.Equal(t, "Canción de hielo y fuego", results[0].Product.Title)

	results = e.Search("LIBROS", catalog())
	// category hit on both books, title hit only on the cookbook
	assert.Equal(t, []string{"Libro de cocina", "Canción de hielo y fuego"}, titles(results)[:2])
}

func TestEngine_Synonyms(t *testing.T) {
	e := newEngine(t)

	results := e.Search("celular", catalog())
	require.NotEmpty(t, results)
	assert.Equal(t, "iPhone 11", results[0].Product.Title)
	assert.InDelta(t, weightTitle*synonymFactor+weightDescription*synonymFactor, results[0].Score, 0.001)

	results = e.Search("bici", catalog())
	require.NotEmpty(t, results)
	assert.Equal(t, "Bicicleta de montaña", results[0].Product.Title)
}

func TestEngine_FuzzyTitles(t *testing.T) {
	e := newEngine(t)
	results := e.Search("ps5", catalog())
	require.NotEmpty(t, results)
	assert.Equal(t, "PlayStation 5 slim", results[0].Product.Title)
	assert.NotContains(t, titles(results), "Libro de cocina")
}

func TestEngine_NoMatchAndTies(t *testing.T) {
	e := newEngine(t)
	assert.Empty(t, e.Search("zzzz", catalog()))
	assert.Empty(t, e.Search("  ", catalog()))

	older := product("Guitarra acústica", "música", "", 10*time.Hour)
	newer := product("Guitarra eléctrica", "música", "", time.Hour)
	results := e.Search("guitarra", []models.Product{older, newer})
	assert.Equal(t, []string{"Guitarra eléctrica", "Guitarra acústica"}, titles(results))
}

func TestLoadSynonyms_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syn.yaml")
	require.NoError(t, os.WriteFile(path, []byte("groups:\n  - [sofá, mueble]\n"), 0o600))

	syn, err := LoadSynonyms(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"muebl"}, syn.Expand("sofa"))

	_, err = LoadSynonyms(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseSynonyms([]byte("groups: [[unterminated"))
	assert.Error(t, err)
}

func fakeNLP(t *testing.T, handler func(req nlpRequest) (int, any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		var req nlpRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, body := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearcher_UsesNLP(t *testing.T) {
	products := catalog()
	srv := fakeNLP(t, func(req nlpRequest) (int, any) {
		assert.Equal(t, "algo para leer", req.Query)
		assert.Len(t, req.Items, len(products))
		return http.StatusOK, map[string]any{"results": []map[string]any{
			{"id": products[1].ID, "score": 0.92},
			{"id": products[4].ID, "score": 0.80},
			{"id": uuid.New(), "score": 0.70},
			{"id": products[0].ID, "score": 0},
		}}
	})

	s := NewSearcher(NewNLPClient(config.NLPConfig{URL: srv.URL, Timeout: time.Second}), newEngine(t))
	resp := s.Search(context.Background(), "algo para leer", products, 10)
	assert.Equal(t, SourceNLP, resp.Source)
	assert.Equal(t, []string{"Canción de hielo y fuego", "Libro de cocina"}, titles(resp.Results))
}

func TestSearcher_FallsBackToLocal(t *testing.T) {
	srv := fakeNLP(t, func(nlpRequest) (int, any) {
		return http.StatusServiceUnavailable, map[string]string{"error": "model loading"}
	})

	s := NewSearcher(NewNLPClient(config.NLPConfig{URL: srv.URL, Timeout: time.Second}), newEngine(t))
	resp := s.Search(context.Background(), "libros", catalog(), 1)
	assert.Equal(t, SourceLocal, resp.Source)
	assert.Equal(t, []string{"Libro de cocina"}, titles(resp.Results))
}

func TestSearcher_Unconfigured(t *testing.T) {
	assert.Nil(t, NewNLPClient(config.NLPConfig{}))
	s := NewSearcher(nil, newEngine(t))
	resp := s.Search(context.Background(), "iphone", catalog(), 0)
	assert.Equal(t, SourceLocal, resp.Source)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "iPhone 11", resp.Results[0].Product.Title)
}
