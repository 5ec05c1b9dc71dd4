package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3/client"
	"github.com/google/uuid"

	"github.com/rajivgeraev/swaply-api/internal/config"
	"github.com/rajivgeraev/swaply-api/internal/models"
)

type nlpItem struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Wanted      string    `json:"wanted,omitempty"`
}

type nlpRequest struct {
	Query string    `json:"query"`
	Items []nlpItem `json:"items"`
}

type nlpResponse struct {
	Results []struct {
		ID    uuid.UUID `json:"id"`
		Score float64   `json:"score"`
	} `json:"results"`
}

// NLPClient asks the semantic search microservice to rank candidates
type NLPClient struct {
	http *client.Client
	url  string
}

// NewNLPClient returns nil when no service URL is configured
func NewNLPClient(cfg config.NLPConfig) *NLPClient {
	if cfg.URL == "" {
		return nil
	}
	cc := client.New()
	cc.SetJSONMarshal(json.Marshal)
	cc.SetJSONUnmarshal(json.Unmarshal)
	if cfg.Timeout > 0 {
		cc.SetTimeout(cfg.Timeout)
	}
	return &NLPClient{http: cc, url: strings.TrimRight(cfg.URL, "/") + "/search"}
}

// Rank returns the candidates the service considers relevant, in its order
func (n *NLPClient) Rank(ctx context.Context, query string, products []models.Product) ([]Result, error) {
	req := nlpRequest{Query: query, Items: make([]nlpItem, 0, len(products))}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		req.Items = append(req.Items, nlpItem{
			ID: p.ID, Title: p.Title, Description: p.Description, Category: p.Category, Wanted: p.Wanted,
		})
		byID[p.ID] = p
	}

	resp, err := n.http.R().SetContext(ctx).SetJSON(req).Post(n.url)
	if err != nil {
		return nil, fmt.Errorf("nlp search: %w", err)
	}
	defer resp.Close()
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("nlp search: status %d", resp.StatusCode())
	}

	var out nlpResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("nlp search: decode: %w", err)
	}
	results := make([]Result, 0, len(out.Results))
	for _, r := range out.Results {
		if p, ok := byID[r.ID]; ok && r.Score > 0 {
			results = append(results, Result{Product: p, Score: r.Score})
		}
	}
	return results, nil
}
