package recommend

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/store/memstore"
	"github.com/rajivgeraev/swaply-api/internal/store/storetest"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func titlesOf(recs []Recommendation) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Product.Title)
	}
	return out
}

func TestRank_Scoring(t *testing.T) {
	me, seller, trusted := uuid.New(), uuid.New(), uuid.New()
	old := now.Add(-30 * 24 * time.Hour)

	mine := *storetest.NewProduct(me, "Guitarra", "Música", old)
	mine.Wanted = "Busco libros o una bicicleta"

	book := *storetest.NewProduct(seller, "Cien años de soledad", "Libros", old)
	phone := *storetest.NewProduct(trusted, "Moto G", "Electrónica", old)
	lamp := *storetest.NewProduct(seller, "Lámpara", "Hogar", now.Add(-time.Hour))
	wantsMusic := *storetest.NewProduct(seller, "Silla", "Muebles", old)
	wantsMusic.Wanted = "algo de música"
	ignored := *storetest.NewProduct(seller, "Mesa vieja", "Muebles", old)
	reserved := *storetest.NewProduct(seller, "Bicicleta", "Libros", now)
	reserved.Status = models.ProductReserved

	favorite := *storetest.NewProduct(trusted, "Tablet", "Electrónica", old)

	recs := Rank(Input{
		UserID:     me,
		Candidates: []models.Product{book, phone, lamp, wantsMusic, ignored, reserved, mine},
		Favorites:  []models.Product{favorite},
		Own:        []models.Product{mine},
		Reputation: map[uuid.UUID]models.Reputation{
			trusted: {Average: 4.5, Count: 2},
			seller:  {Average: 3, Count: 4},
		},
		Now: now,
	}, 0)

	require.Len(t, recs, 4)
	// favorite category (3) + trusted owner (1)
	assert.Equal(t, "Moto G", recs[0].Product.Title)
	assert.Equal(t, 4, recs[0].Score)
	assert.Equal(t, []string{ReasonFavoriteCategory, ReasonTrustedOwner}, recs[0].Reasons)

	assert.Equal(t, "Cien años de soledad", recs[1].Product.Title)
	assert.Equal(t, 2, recs[1].Score)
	assert.Equal(t, []string{ReasonWantedCategory}, recs[1].Reasons)

	// recent (1) and wants-what-you-offer (1) tie, the newer one first
	assert.Equal(t, []string{"Lámpara", "Silla"}, titlesOf(recs[2:]))
	assert.Equal(t, []string{ReasonWantsYourItems}, recs[3].Reasons)
}

func TestRank_Limit(t *testing.T) {
	me, other := uuid.New(), uuid.New()
	var candidates []models.Product
	for i := 0; i < 15; i++ {
		candidates = append(candidates, *storetest.NewProduct(other, "Item", "Varios", now.Add(-time.Duration(i)*time.Minute)))
	}

	recs := Rank(Input{UserID: me, Candidates: candidates, Now: now}, 0)
	assert.Len(t, recs, DefaultLimit)
	assert.Equal(t, candidates[0].ID, recs[0].Product.ID)

	assert.Len(t, Rank(Input{UserID: me, Candidates: candidates, Now: now}, 3), 3)
	assert.Empty(t, Rank(Input{UserID: me, Candidates: candidates, Now: now.Add(30 * 24 * time.Hour)}, 0))
}

func TestRecommender_For(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()

	me, seller := storetest.NewUser("me"), storetest.NewUser("seller")
	require.NoError(t, st.CreateUser(ctx, me))
	require.NoError(t, st.CreateUser(ctx, seller))

	old := now.Add(-60 * 24 * time.Hour)
	mine := storetest.NewProduct(me.ID, "Guitarra", "Música", old)
	mine.Wanted = "libros"
	book := storetest.NewProduct(seller.ID, "Novela", "Libros", old)
	chair := storetest.NewProduct(seller.ID, "Silla", "Muebles", old)
	faved := storetest.NewProduct(seller.ID, "Sofá", "Muebles", old)
	for _, p := range []*models.Product{mine, book, chair, faved} {
		require.NoError(t, st.CreateProduct(ctx, p))
	}
	require.NoError(t, st.AddFavorite(ctx, &models.Favorite{ID: uuid.New(), UserID: me.ID, ProductID: faved.ID, CreatedAt: old}))

	r := New(st)
	r.now = func() time.Time { return now }

	recs, err := r.For(ctx, me.ID, 5)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.ElementsMatch(t, []string{"Silla", "Sofá"}, titlesOf(recs[:2]))
	assert.Equal(t, "Novela", recs[2].Product.Title)
}
