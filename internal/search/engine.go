package search

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/rajivgeraev/swaply-api/internal/models"
)

// Field weights of the local engine
const (
	weightTitle       = 3.0
	weightCategory    = 2.0
	weightDescription = 1.0
	synonymFactor     = 0.5
	fuzzyBoost        = 1.0
)

// Result is a product with its relevance score
type Result struct {
	Product models.Product `json:"product"`
	Score   float64        `json:"score"`
}

// Engine is the keyword and synonym search used when the NLP service is unavailable
type Engine struct {
	synonyms Synonyms
}

// NewEngine creates an engine over the given synonym table
func NewEngine(synonyms Synonyms) *Engine {
	if synonyms == nil {
		synonyms = Synonyms{}
	}
	return &Engine{synonyms: synonyms}
}

type indexed struct {
	title    map[string]bool
	category map[string]bool
	body     map[string]bool
}

func wordSet(texts ...string) map[string]bool {
	set := map[string]bool{}
	for _, text := range texts {
		for _, t := range tokenize(text) {
			set[t] = true
		}
	}
	return set
}

// Search scores every product against query and returns the matches, best first.
// Products that score zero are left out; ties go to the newest product.
func (e *Engine) Search(query string, products []models.Product) []Result {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return []Result{}
	}

	scores := make([]float64, len(products))
	for i := range products {
		p := &products[i]
		doc := indexed{
			title:    wordSet(p.Title),
			category: wordSet(p.Category),
			body:     wordSet(p.Description, p.Wanted),
		}
		for _, t := range tokens {
			scores[i] += e.tokenScore(t, doc)
		}
	}

	for i, boost := range e.fuzzyTitles(query, products) {
		scores[i] += boost
	}

	results := []Result{}
	for i, score := range scores {
		if score > 0 {
			results = append(results, Result{Product: products[i], Score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Product.CreatedAt.After(results[j].Product.CreatedAt)
	})
	return results
}

func (e *Engine) tokenScore(token string, doc indexed) float64 {
	fields := []struct {
		words  map[string]bool
		weight float64
	}{
		{doc.title, weightTitle},
		{doc.category, weightCategory},
		{doc.body, weightDescription},
	}

	score := 0.0
	for _, f := range fields {
		if f.words[token] {
			score += f.weight
			continue
		}
		for _, syn := range e.synonyms.Expand(token) {
			if f.words[syn] {
				score += f.weight * synonymFactor
				break
			}
		}
	}
	return score
}

// fuzzyTitles boosts titles containing the query's letters in order, so
// abbreviations like "bici mtb" or "ps5" still surface their items
func (e *Engine) fuzzyTitles(query string, products []models.Product) map[int]float64 {
	pattern := strings.ReplaceAll(fold(query), " ", "")
	if len(pattern) < 2 {
		return nil
	}
	titles := make([]string, len(products))
	for i := range products {
		titles[i] = fold(products[i].Title)
	}

	boosts := map[int]float64{}
	for _, m := range fuzzy.Find(pattern, titles) {
		if m.Score > 0 {
			boosts[m.Index] = fuzzyBoost
		}
	}
	return boosts
}
