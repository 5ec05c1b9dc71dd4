package listing

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/swaply-api/internal/apperr"
	"github.com/rajivgeraev/swaply-api/internal/logger"
	"github.com/rajivgeraev/swaply-api/internal/media"
	"github.com/rajivgeraev/swaply-api/internal/middleware"
	"github.com/rajivgeraev/swaply-api/internal/models"
	"github.com/rajivgeraev/swaply-api/internal/recommend"
	"github.com/rajivgeraev/swaply-api/internal/search"
	"github.com/rajivgeraev/swaply-api/internal/services/params"
	"github.com/rajivgeraev/swaply-api/internal/store"
	"github.com/rajivgeraev/swaply-api/internal/validation"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// searchWindow ограничивает число товаров, среди которых ищет поиск
	searchWindow = 500
)

// ListingService управляет каталогом товаров
type ListingService struct {
	store       store.Store
	media       media.Store
	searcher    *search.Searcher
	recommender *recommend.Recommender
	validator   *validation.Validator
	now         func() time.Time
}

// NewListingService создает новый экземпляр ListingService
func NewListingService(st store.Store, images media.Store, searcher *search.Searcher, recommender *recommend.Recommender, validator *validation.Validator) *ListingService {
	return &ListingService{
		store:       st,
		media:       images,
		searcher:    searcher,
		recommender: recommender,
		validator:   validator,
		now:         time.Now,
	}
}

type productInput struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Category      *string `json:"category"`
	Condition     *string `json:"condition"`
	Wanted        *string `json:"wanted"`
	ImageURL      *string `json:"image_url"`
	ImagePublicID *string `json:"image_public_id"`
}

type listResponse struct {
	Products []models.Product `json:"products"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// AttachOwners заполняет публичный профиль владельца каждого товара
func AttachOwners(ctx context.Context, users store.Users, products []models.Product) {
	owners := map[uuid.UUID]*models.PublicUser{}
	for i := range products {
		id := products[i].OwnerID
		owner, seen := owners[id]
		if !seen {
			if u, err := users.GetUser(ctx, id); err == nil {
				owner = u.Public()
			}
			owners[id] = owner
		}
		products[i].Owner = owner
	}
}

// loadProduct получает товар или возвращает 404
func (s *ListingService) loadProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Product not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Could not load product")
	}
	return p, nil
}

// ownedEditable получает товар, который пользователь может изменять
func (s *ListingService) ownedEditable(c fiber.Ctx) (*models.Product, error) {
	id, err := params.UUID(c, "id")
	if err != nil {
		return nil, err
	}
	p, err := s.loadProduct(middleware.Context(c), id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != middleware.UserID(c) {
		return nil, apperr.Forbidden("You do not own this product")
	}
	if !p.Editable() {
		return nil, apperr.Conflict("Product is %s and can no longer be changed", p.Status)
	}
	return p, nil
}

// GetProducts возвращает каталог
func (s *ListingService) GetProducts(c fiber.Ctx) error {
	limit, err := params.Int(c, "limit", defaultPageSize)
	if err != nil {
		return err
	}
	offset, err := params.Int(c, "offset", 0)
	if err != nil {
		return err
	}
	filter := store.ProductFilter{
		Category:  c.Query("category"),
		Condition: c.Query("condition"),
		Limit:     store.Page(limit, defaultPageSize, maxPageSize),
		Offset:    offset,
	}
	if filter.Condition != "" && !models.ValidCondition(filter.Condition) {
		return apperr.Invalid("Invalid condition")
	}
	if raw := c.Query("owner_id"); raw != "" {
		owner, err := params.ParseUUID(raw, "owner_id")
		if err != nil {
			return err
		}
		filter.OwnerID = &owner
	}
	switch status := c.Query("status", models.ProductAvailable); status {
	case "all":
	case models.ProductAvailable, models.ProductReserved, models.ProductTraded:
		filter.Statuses = []string{status}
	default:
		return apperr.Invalid("Invalid status")
	}

	ctx := middleware.Context(c)
	products, total, err := s.store.ListProducts(ctx, filter)
	if err != nil {
		return apperr.Internal(err, "Could not load products")
	}
	AttachOwners(ctx, s.store, products)
	return c.JSON(listResponse{Products: products, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

// Search ранжирует доступные товары по параметру q
func (s *ListingService) Search(c fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		return apperr.Invalid("Query parameter q is required")
	}
	limit, err := params.Int(c, "limit", defaultPageSize)
	if err != nil {
		return err
	}

	ctx := middleware.Context(c)
	candidates, _, err := s.store.ListProducts(ctx, store.ProductFilter{
		Statuses: []string{models.ProductAvailable},
		Category: c.Query("category"),
		Limit:    searchWindow,
	})
	if err != nil {
		return apperr.Internal(err, "Could not load products")
	}

	resp := s.searcher.Search(ctx, query, candidates, store.Page(limit, defaultPageSize, maxPageSize))
	products := make([]models.Product, len(resp.Results))
	for i, r := range resp.Results {
		products[i] = r.Product
	}
	AttachOwners(ctx, s.store, products)
	for i := range resp.Results {
		resp.Results[i].Product = products[i]
	}
	return c.JSON(resp)
}

// Recommendations подбирает товары для пользователя
func (s *ListingService) Recommendations(c fiber.Ctx) error {
	limit, err := params.Int(c, "limit", recommend.DefaultLimit)
	if err != nil {
		return err
	}
	ctx := middleware.Context(c)
	recs, err := s.recommender.For(ctx, middleware.UserID(c), store.Page(limit, recommend.DefaultLimit, maxPageSize))
	if err != nil {
		return apperr.Internal(err, "Could not compute recommendations")
	}
	products := make([]models.Product, len(recs))
	for i, r := range recs {
		products[i] = r.Product
	}
	AttachOwners(ctx, s.store, products)
	for i := range recs {
		recs[i].Product = products[i]
	}
	return c.JSON(fiber.Map{"recommendations": recs})
}

// UploadParams возвращает подписанные параметры для загрузки прямо из браузера
func (s *ListingService) UploadParams(c fiber.Ctx) error {
	p, err := s.media.SignedParams(middleware.UserID(c))
	if errors.Is(err, media.ErrDisabled) {
		return apperr.Unavailable("Image uploads are not available")
	}
	if err != nil {
		return apperr.Internal(err, "Could not sign upload")
	}
	return c.JSON(p)
}

// GetProduct возвращает товар вместе с владельцем
func (s *ListingService) GetProduct(c fiber.Ctx) error {
	id, err := params.UUID(c, "id")
	if err != nil {
		return err
	}
	ctx := middleware.Context(c)
	p, err := s.loadProduct(ctx, id)
	if err != nil {
		return err
	}
	products := []models.Product{*p}
	AttachOwners(ctx, s.store, products)
	return c.JSON(products[0])
}

// CreateProduct создает товар из JSON или multipart формы с изображением
func (s *ListingService) CreateProduct(c fiber.Ctx) error {
	in, file, err := s.readInput(c, validation.ProductCreate)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	p := &models.Product{
		ID:        uuid.New(),
		OwnerID:   middleware.UserID(c),
		Condition: models.ConditionGood,
		Status:    models.ProductAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.checkImage(in, p.OwnerID); err != nil {
		return err
	}
	in.apply(p)

	ctx := middleware.Context(c)
	if file != nil {
		img, err := s.upload(ctx, file, p.OwnerID)
		if err != nil {
			return err
		}
		p.ImageURL, p.ImagePublicID = img.URL, img.PublicID
	}

	if err := s.store.CreateProduct(ctx, p); err != nil {
		s.destroy(ctx, p.OwnerID, p.ImagePublicID)
		return apperr.Internal(err, "Could not create product")
	}
	logger.FromFiber(c).WithField("product_id", p.ID).Info("product created")
	return c.Status(fiber.StatusCreated).JSON(p)
}

// UpdateProduct изменяет доступный товар пользователя
func (s *ListingService) UpdateProduct(c fiber.Ctx) error {
	p, err := s.ownedEditable(c)
	if err != nil {
		return err
	}
	in, file, err := s.readInput(c, validation.ProductUpdate)
	if err != nil {
		return err
	}

	if err := s.checkImage(in, p.OwnerID); err != nil {
		return err
	}

	ctx := middleware.Context(c)
	oldPublicID := p.ImagePublicID
	in.apply(p)
	if file != nil {
		img, err := s.upload(ctx, file, p.OwnerID)
		if err != nil {
			return err
		}
		p.ImageURL, p.ImagePublicID = img.URL, img.PublicID
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateProduct(ctx, p); err != nil {
		return apperr.Internal(err, "Could not update product")
	}
	if oldPublicID != "" && oldPublicID != p.ImagePublicID {
		s.destroy(ctx, p.OwnerID, oldPublicID)
	}
	return c.JSON(p)
}

// DeleteProduct удаляет доступный товар пользователя
func (s *ListingService) DeleteProduct(c fiber.Ctx) error {
	p, err := s.ownedEditable(c)
	if err != nil {
		return err
	}
	ctx := middleware.Context(c)
	if err := RemoveProduct(ctx, s.store, s.media, p); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveProduct удаляет товар и его изображение
func RemoveProduct(ctx context.Context, st store.Products, images media.Store, p *models.Product) error {
	if err := st.DeleteProduct(ctx, p.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Product not found")
		}
		return apperr.Internal(err, "Could not delete product")
	}
	if p.ImagePublicID != "" {
		if err := images.Destroy(ctx, p.OwnerID, p.ImagePublicID); err != nil {
			logger.FromContext(ctx).WithError(err).WithField("public_id", p.ImagePublicID).Warn("image left behind")
		}
	}
	logger.FromContext(ctx).WithField("product_id", p.ID).Info("product deleted")
	return nil
}

// checkImage отклоняет public id не из папки владельца
func (s *ListingService) checkImage(in *productInput, owner uuid.UUID) error {
	if in.ImagePublicID == nil {
		return nil
	}
	id := strings.TrimSpace(*in.ImagePublicID)
	if id != "" && !s.media.Owns(owner, id) {
		return apperr.Invalid("image_public_id must reference one of your uploads")
	}
	return nil
}

func (in *productInput) apply(p *models.Product) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&p.Title, in.Title)
	set(&p.Description, in.Description)
	set(&p.Category, in.Category)
	set(&p.Condition, in.Condition)
	set(&p.Wanted, in.Wanted)
	set(&p.ImageURL, in.ImageURL)
	set(&p.ImagePublicID, in.ImagePublicID)
}

func isMultipart(c fiber.Ctx) bool {
	return strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm)
}

// readInput проверяет JSON тело или поля и изображение multipart формы
func (s *ListingService) readInput(c fiber.Ctx, schema string) (*productInput, *multipart.FileHeader, error) {
	in := &productInput{}
	if !isMultipart(c) {
		if err := s.validator.Bind(c, schema, in); err != nil {
			return nil, nil, err
		}
		return in, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, apperr.Invalid("Invalid multipart form")
	}
	doc := map[string]any{}
	fields := map[string]**string{
		"title":       &in.Title,
		"description": &in.Description,
		"category":    &in.Category,
		"condition":   &in.Condition,
		"wanted":      &in.Wanted,
	}
	for name, dst := range fields {
		if values := form.Value[name]; len(values) > 0 {
			v := values[0]
			doc[name] = v
			*dst = &v
		}
	}

	var file *multipart.FileHeader
	if files := form.File["image"]; len(files) > 0 {
		file = files[0]
	}
	if len(doc) == 0 && file == nil {
		return nil, nil, apperr.Invalid("Request body is required")
	}
	if len(doc) > 0 || schema == validation.ProductCreate {
		if err := s.validator.ValidateValue(schema, doc); err != nil {
			return nil, nil, err
		}
	}
	return in, file, nil
}

func (s *ListingService) upload(ctx context.Context, file *multipart.FileHeader, owner uuid.UUID) (*media.Image, error) {
	if !s.media.Enabled() {
		return nil, apperr.Unavailable("Image uploads are not available")
	}
	f, err := file.Open()
	if err != nil {
		return nil, apperr.Invalid("Could not read image")
	}
	defer f.Close()

	img, err := s.media.Upload(ctx, f, owner)
	if err != nil {
		return nil, apperr.Upstream(err, "Image upload failed")
	}
	return img, nil
}

func (s *ListingService) destroy(ctx context.Context, owner uuid.UUID, publicID string) {
	if publicID == "" {
		return
	}
	if err := s.media.Destroy(ctx, owner, publicID); err != nil {
		logger.FromContext(ctx).WithError(err).WithField("public_id", publicID).Warn("image left behind")
	}
}
