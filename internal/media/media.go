// Package media stores product images on Cloudinary.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"

	"github.com/rajivgeraev/swaply-api/internal/config"
	"github.com/rajivgeraev/swaply-api/internal/logger"
)

var (
	// ErrDisabled is returned by every operation when Cloudinary is not configured
	ErrDisabled = errors.New("image uploads are not configured")
	// ErrNotOwned is returned when a public id lies outside the owner's folder
	ErrNotOwned = errors.New("image does not belong to the owner")
)

// Image is a stored image
type Image struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// UploadParams lets the browser upload straight to Cloudinary
type UploadParams struct {
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
	APIKey    string `json:"api_key"`
	CloudName string `json:"cloud_name"`
	Folder    string `json:"folder"`
	PublicID  string `json:"public_id"`
}

// Store uploads and removes images
type Store interface {
	Enabled() bool
	Upload(ctx context.Context, r io.Reader, ownerID uuid.UUID) (*Image, error)
	// Owns reports whether publicID was issued into ownerID's folder
	Owns(ownerID uuid.UUID, publicID string) bool
	// Destroy removes an image of ownerID and fails with ErrNotOwned for any other id
	Destroy(ctx context.Context, ownerID uuid.UUID, publicID string) error
	SignedParams(ownerID uuid.UUID) (*UploadParams, error)
}

// InFolder reports whether publicID sits directly below folder
func InFolder(folder, publicID string) bool {
	rest, ok := strings.CutPrefix(publicID, folder+"/")
	return ok && rest != "" && !strings.Contains(rest, "/") && !strings.Contains(rest, "..")
}

// New returns a Cloudinary store, or Disabled when credentials are missing
func New(cfg config.CloudinaryConfig) (Store, error) {
	if !cfg.Enabled() {
		return Disabled{}, nil
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true
	return &Cloudinary{cld: cld, cfg: cfg, now: time.Now}, nil
}

// Cloudinary keeps images in one upload folder, one sub-folder per owner
type Cloudinary struct {
	cld *cloudinary.Cloudinary
	cfg config.CloudinaryConfig
	now func() time.Time
}

func (c *Cloudinary) Enabled() bool { return true }

func (c *Cloudinary) folder(ownerID uuid.UUID) string {
	return c.cfg.UploadFolder + "/" + ownerID.String()
}

func (c *Cloudinary) Upload(ctx context.Context, r io.Reader, ownerID uuid.UUID) (*Image, error) {
	res, err := c.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:         c.folder(ownerID),
		PublicID:       uuid.NewString(),
		ResourceType:   "image",
		AllowedFormats: api.CldAPIArray{"jpg", "jpeg", "png", "webp", "gif"},
	})
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	logger.FromContext(ctx).WithField("public_id", res.PublicID).Debug("image uploaded")
	return &Image{URL: res.SecureURL, PublicID: res.PublicID}, nil
}

func (c *Cloudinary) Owns(ownerID uuid.UUID, publicID string) bool {
	return InFolder(c.folder(ownerID), publicID)
}

func (c *Cloudinary) Destroy(ctx context.Context, ownerID uuid.UUID, publicID string) error {
	if publicID == "" {
		return nil
	}
	if !c.Owns(ownerID, publicID) {
		return ErrNotOwned
	}
	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy: %s", res.Error.Message)
	}
	logger.FromContext(ctx).WithField("public_id", publicID).WithField("result", res.Result).Debug("image destroyed")
	return nil
}

func (c *Cloudinary) SignedParams(ownerID uuid.UUID) (*UploadParams, error) {
	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	folder := c.folder(ownerID)
	publicID := uuid.NewString()

	signature, err := api.SignParameters(url.Values{
		"folder":    {folder},
		"public_id": {publicID},
		"timestamp": {timestamp},
	}, c.cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("sign upload params: %w", err)
	}
	return &UploadParams{
		Timestamp: timestamp,
		Signature: signature,
		APIKey:    c.cfg.APIKey,
		CloudName: c.cfg.CloudName,
		Folder:    folder,
		PublicID:  publicID,
	}, nil
}

// Disabled rejects uploads; products can still carry external image URLs
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Upload(context.Context, io.Reader, uuid.UUID) (*Image, error) {
	return nil, ErrDisabled
}

func (Disabled) Owns(uuid.UUID, string) bool { return false }

func (Disabled) Destroy(context.Context, uuid.UUID, string) error { return nil }

func (Disabled) SignedParams(uuid.UUID) (*UploadParams, error) {
	return nil, ErrDisabled
}
