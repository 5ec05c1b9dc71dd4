// Package recommend suggests catalog products to a user with additive,
// deterministic heuristics.
package recommend

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/search"
	"github.com/rajivgeraev/swaply-api/internal/store"
)

const (
	DefaultLimit = 10
	// catalogWindow caps how many available products are scored per request
	catalogWindow = 500
	recentWindow  = 7 * 24 * time.Hour
)

// Reasons a product scored
const (
	ReasonFavoriteCategory = "favorite_category"
	ReasonWantedCategory   = "matches_what_you_want"
	ReasonTrustedOwner     = "trusted_owner"
	ReasonRecent           = "recent"
	ReasonWantsYourItems   = "wants_what_you_offer"
)

// Recommendation is a scored product
type Recommendation struct {
	Product models.Product `json:"product"`
	Score   int            `json:"score"`
	Reasons []string       `json:"reasons"`
}

// Input is everything the scoring looks at
type Input struct {
	UserID     uuid.UUID
	Candidates []models.Product
	Favorites  []models.Product
	Own        []models.Product
	Reputation map[uuid.UUID]models.Reputation
	Now        time.Time
}

func categorySet(products []models.Product) map[string]bool {
	set := map[string]bool{}
	for _, p := range products {
		set[key(p.Category)] = true
	}
	return set
}

func key(category string) string {
	return strings.Join(search.Tokenize(category), " ")
}

// mentions reports whether every word of category appears in words
func mentions(words map[string]bool, category string) bool {
	tokens := search.Tokenize(category)
	if len(tokens) == 0 {
		return false
	}
	for _, t := range tokens {
		if !words[t] {
			return false
		}
	}
	return true
}

// Rank scores the candidates and returns the best limit of them
func Rank(in Input, limit int) []Recommendation {
	if limit <= 0 {
		limit = DefaultLimit
	}

	favoriteCategories := categorySet(in.Favorites)
	offeredCategories := categorySet(in.Own)
	wantedWords := map[string]bool{}
	for _, p := range in.Own {
		for _, t := range search.Tokenize(p.Wanted) {
			wantedWords[t] = true
		}
	}

	recs := []Recommendation{}
	for _, p := range in.Candidates {
		if p.OwnerID == in.UserID || p.Status != models.ProductAvailable {
			continue
		}
		rec := Recommendation{Product: p, Reasons: []string{}}
		add := func(points int, reason string) {
			rec.Score += points
			rec.Reasons = append(rec.Reasons, reason)
		}

		if favoriteCategories[key(p.Category)] {
			add(3, ReasonFavoriteCategory)
		}
		if mentions(wantedWords, p.Category) {
			add(2, ReasonWantedCategory)
		}
		if rep, ok := in.Reputation[p.OwnerID]; ok && rep.Count > 0 && rep.Average >= 4 {
			add(1, ReasonTrustedOwner)
		}
		if in.Now.Sub(p.CreatedAt) <= recentWindow {
			add(1, ReasonRecent)
		}
		theirWants := map[string]bool{}
		for _, t := range search.Tokenize(p.Wanted) {
			theirWants[t] = true
		}
		for category := range offeredCategories {
			if mentions(theirWants, category) {
				add(1, ReasonWantsYourItems)
				break
			}
		}

		if rec.Score > 0 {
			recs = append(recs, rec)
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Product.CreatedAt.After(recs[j].Product.CreatedAt)
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

// Recommender loads the inputs of Rank from the store
type Recommender struct {
	store store.Store
	now   func() time.Time
}

// New creates a Recommender
func New(st store.Store) *Recommender {
	return &Recommender{store: st, now: time.Now}
}

// For returns recommendations for userID
func (r *Recommender) For(ctx context.Context, userID uuid.UUID, limit int) ([]Recommendation, error) {
	candidates, _, err := r.store.ListProducts(ctx, store.ProductFilter{
		ExcludeOwner: &userID,
		Statuses:     []string{models.ProductAvailable},
		Limit:        catalogWindow,
	})
	if err != nil {
		return nil, err
	}
	own, _, err := r.store.ListProducts(ctx, store.ProductFilter{OwnerID: &userID})
	if err != nil {
		return nil, err
	}

	favs, err := r.store.ListFavorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	favorites := make([]models.Product, 0, len(favs))
	for _, f := range favs {
		p, err := r.store.GetProduct(ctx, f.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		favorites = append(favorites, *p)
	}

	reputation := map[uuid.UUID]models.Reputation{}
	for _, p := range candidates {
		if _, done := reputation[p.OwnerID]; done {
			continue
		}
		ratings, err := r.store.ListRatingsFor(ctx, p.OwnerID)
		if err != nil {
			return nil, err
		}
		reputation[p.OwnerID] = models.ComputeReputation(ratings)
	}

	return Rank(Input{
		UserID:     userID,
		Candidates: candidates,
		Favorites:  favorites,
		Own:        own,
		Reputation: reputation,
		Now:        r.now(),
	}, limit), nil
}
