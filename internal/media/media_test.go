package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/swaply-api/internal/config"
)

var testConfig = config.CloudinaryConfig{
	CloudName:    "demo",
	APIKey:       "key",
	APISecret:    "secret",
	UploadFolder: "swaply",
}

func newCloudinary(t *testing.T, handler http.HandlerFunc) *Cloudinary {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := New(testConfig)
	require.NoError(t, err)
	c := s.(*Cloudinary)
	c.cld.Config.API.UploadPrefix = srv.URL
	return c
}

func TestNew_DisabledWithoutCredentials(t *testing.T) {
	s, err := New(config.CloudinaryConfig{CloudName: "demo"})
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	_, err = s.Upload(context.Background(), strings.NewReader("x"), uuid.New())
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = s.SignedParams(uuid.New())
	assert.ErrorIs(t, err, ErrDisabled)
	assert.NoError(t, s.Destroy(context.Background(), uuid.New(), "anything"))
	assert.False(t, s.Owns(uuid.New(), "swaply/x/y"))
}

func TestCloudinary_SignedParams(t *testing.T) {
	s, err := New(testConfig)
	require.NoError(t, err)
	c := s.(*Cloudinary)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	owner := uuid.New()
	params, err := c.SignedParams(owner)
	require.NoError(t, err)
	assert.Equal(t, "1700000000", params.Timestamp)
	assert.Equal(t, "swaply/"+owner.String(), params.Folder)
	assert.Equal(t, "key", params.APIKey)

	expected, err := api.SignParameters(url.Values{
		"folder":    {params.Folder},
		"public_id": {params.PublicID},
		"timestamp": {params.Timestamp},
	}, "secret")
	require.NoError(t, err)
	assert.Equal(t, expected, params.Signature)
}

func TestCloudinary_UploadAndDestroy(t *testing.T) {
	owner := uuid.New()
	publicID := "swaply/" + owner.String() + "/img1"
	var paths []string
	c := newCloudinary(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/upload"):
			_, _ = w.Write([]byte(`{"public_id":"` + publicID + `","secure_url":"https://res.cloudinary.com/demo/image/upload/img1.jpg"}`))
		case strings.HasSuffix(r.URL.Path, "/destroy"):
			_, _ = w.Write([]byte(`{"result":"ok"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	img, err := c.Upload(context.Background(), strings.NewReader("fake image bytes"), owner)
	require.NoError(t, err)
	assert.Equal(t, publicID, img.PublicID)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/img1.jpg", img.URL)

	require.NoError(t, c.Destroy(context.Background(), owner, img.PublicID))
	require.NoError(t, c.Destroy(context.Background(), owner, ""))
	assert.Len(t, paths, 2)
}

func TestCloudinary_DestroyRefusesForeignImages(t *testing.T) {
	var calls int
	c := newCloudinary(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	})

	owner, other := uuid.New(), uuid.New()
	for _, id := range []string{
		"swaply/" + other.String() + "/img",
		"elsewhere/img",
		"swaply/" + owner.String(),
		"swaply/" + owner.String() + "/",
		"swaply/" + owner.String() + "/../" + other.String() + "/img",
		"swaply/" + owner.String() + "x/img",
	} {
		assert.False(t, c.Owns(owner, id), id)
		assert.ErrorIs(t, c.Destroy(context.Background(), owner, id), ErrNotOwned, id)
	}
	assert.True(t, c.Owns(owner, "swaply/"+owner.String()+"/img"))
	assert.Zero(t, calls)
}

func TestCloudinary_UploadError(t *testing.T) {
	c := newCloudinary(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid image file"}}`))
	})

	_, err := c.Upload(context.Background(), strings.NewReader("not an image"), uuid.New())
	assert.ErrorContains(t, err, "Invalid image file")
}
