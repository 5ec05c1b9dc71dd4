// Package search ranks catalog products for a free text query, using the NLP
// microservice when it answers and a local synonym engine otherwise.
package search

import (
	"context"

	"github.com/rajivgeraev/swaply-api/internal/logger"
	"github.com/rajivgeraev/swaply-api/internal/models"
)

// Result sources
const (
	SourceNLP   = "nlp"
	SourceLocal = "local"
)

// Response is a ranked page of results and where the ranking came from
type Response struct {
	Query   string   `json:"query"`
	Source  string   `json:"source"`
	Results []Result `json:"results"`
}

type ranker interface {
	Rank(ctx context.Context, query string, products []models.Product) ([]Result, error)
}

// Searcher combines the NLP client and the local engine
type Searcher struct {
	nlp   ranker
	local *Engine
}

// NewSearcher creates a searcher; nlp may be nil
func NewSearcher(nlp *NLPClient, local *Engine) *Searcher {
	s := &Searcher{local: local}
	if nlp != nil {
		s.nlp = nlp
	}
	return s
}

// Search ranks products for query and keeps the first limit results
func (s *Searcher) Search(ctx context.Context, query string, products []models.Product, limit int) *Response {
	resp := &Response{Query: query, Source: SourceLocal}

	var results []Result
	if s.nlp != nil {
		ranked, err := s.nlp.Rank(ctx, query, products)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warn("nlp search failed, using local engine")
		} else {
			results, resp.Source = ranked, SourceNLP
		}
	}
	if resp.Source == SourceLocal {
		results = s.local.Search(query, products)
	}

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	resp.Results = results
	return resp
}
