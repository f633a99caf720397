package handlers

import (
	"math"
	"mime/multipart"
	"strconv"
	"strings"

	"catalog/internal/services"
	"catalog/internal/storage"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ProductHandler handles HTTP requests for products.
type ProductHandler struct {
	service *services.ProductService
	log     *zap.Logger
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service *services.ProductService, log *zap.Logger) *ProductHandler {
	return &ProductHandler{
		service: service,
		log:     log,
	}
}

// RegisterRoutes registers the product routes with the Fiber app behind the
// given middleware.
func (h *ProductHandler) RegisterRoutes(router fiber.Router, mw ...fiber.Handler) {
	productRoutes := router.Group("/products", mw...)
	productRoutes.Get("/", h.HandleGetProducts)
	productRoutes.Get("/:id", h.HandleGetProductByID)
	productRoutes.Post("/", h.HandleCreateProduct)
	productRoutes.Put("/:id", h.HandleUpdateProduct)
	productRoutes.Delete("/:id", h.HandleDeleteProduct)
}

// HandleGetProducts lists products.
// Query: search, sortBy (name|price|createdAt), sortOrder (asc|desc),
// inStock (bool), page, limit.
func (h *ProductHandler) HandleGetProducts(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return writeError(c, h.log, err)
	}

	products, err := h.service.List(c.UserContext(), params)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, products, "Products retrieved successfully")
}

// HandleGetProductByID retrieves a single product by its ID.
func (h *ProductHandler) HandleGetProductByID(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return writeError(c, h.log, err)
	}

	product, err := h.service.GetByID(c.UserContext(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, product, "Product retrieved successfully")
}

// HandleCreateProduct creates a product from a JSON or multipart body. A
// multipart body may carry an "image" file.
func (h *ProductHandler) HandleCreateProduct(c *fiber.Ctx) error {
	input, cleanup, err := parseProductInput(c)
	defer cleanup()
	if err != nil {
		return writeError(c, h.log, err)
	}

	product, err := h.service.Create(c.UserContext(), input)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return respond(c, fiber.StatusCreated, product, "Product created successfully")
}

// HandleUpdateProduct replaces a product's fields. An optional "version"
// field makes the update conditional on that version.
func (h *ProductHandler) HandleUpdateProduct(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return writeError(c, h.log, err)
	}

	input, cleanup, err := parseProductInput(c)
	defer cleanup()
	if err != nil {
		return writeError(c, h.log, err)
	}

	product, err := h.service.Update(c.UserContext(), id, input)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, product, "Product updated successfully")
}

// HandleDeleteProduct deletes a product and its image.
func (h *ProductHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return writeError(c, h.log, err)
	}

	if err := h.service.Delete(c.UserContext(), id); err != nil {
		return writeError(c, h.log, err)
	}
	return respond(c, fiber.StatusOK, nil, "Product deleted successfully")
}

func productID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, &services.ValidationError{Errors: []string{"Invalid product ID"}}
	}
	return uint(id), nil
}

func parseListParams(c *fiber.Ctx) (services.ListParams, error) {
	var (
		p    services.ListParams
		errs []string
	)

	if v := c.Query("search"); v != "" {
		p.Search = &v
	}
	if v := c.Query("sortBy"); v != "" {
		p.SortBy = &v
	}
	if v := c.Query("sortOrder"); v != "" {
		p.SortOrder = &v
	}
	if v := c.Query("inStock"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, "inStock must be true or false")
		} else {
			p.InStock = &b
		}
	}
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, "page must be an integer")
		} else {
			p.Page = &n
		}
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, "limit must be an integer")
		} else {
			p.Limit = &n
		}
	}

	if len(errs) > 0 {
		return p, &services.ValidationError{Errors: errs}
	}
	return p, nil
}

// parseProductInput reads a product from a multipart form or a JSON body.
// The returned cleanup closes an opened upload and is always non-nil.
func parseProductInput(c *fiber.Ctx) (services.ProductInput, func(), error) {
	noop := func() {}

	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		var input services.ProductInput
		if err := c.BodyParser(&input); err != nil {
			return input, noop, &services.ValidationError{Errors: []string{"Invalid request body"}}
		}
		return input, noop, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return services.ProductInput{}, noop, &services.ValidationError{Errors: []string{"Invalid multipart form"}}
	}

	input, errs := productInputFromForm(form)
	if len(errs) > 0 {
		return input, noop, &services.ValidationError{Errors: errs}
	}

	files := form.File["image"]
	if len(files) == 0 {
		return input, noop, nil
	}

	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return input, noop, err
	}
	input.Image = &storage.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Size:        fh.Size,
		Reader:      f,
	}
	return input, func() { _ = f.Close() }, nil
}

func productInputFromForm(form *multipart.Form) (services.ProductInput, []string) {
	value := func(key string) string {
		if vs := form.Value[key]; len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
		return ""
	}

	var (
		input services.ProductInput
		errs  []string
	)
	input.Name = value("name")
	input.Description = value("description")

	if v := value("price"); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsInf(price, 0) || math.IsNaN(price) {
			errs = append(errs, "Price must be a number")
		}
		input.Price = price
	}
	if v := value("stock"); v != "" {
		stock, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, "Stock must be an integer")
		}
		input.Stock = stock
	}
	if v := value("version"); v != "" {
		version, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, "Version must be an integer")
		} else {
			input.Version = &version
		}
	}
	return input, errs
}
