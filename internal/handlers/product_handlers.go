package handlers

import (
	"net/http"

	"stockflow/internal/common"
	"stockflow/internal/middleware"
	"stockflow/internal/models"
	"stockflow/internal/services"

	"github.com/labstack/echo/v4"
)

// ProductHandlers handles product catalog HTTP requests
type ProductHandlers struct {
	productService services.ProductService
	rbacMiddleware *middleware.RBACMiddleware
}

func NewProductHandlers(productService services.ProductService, rbacMiddleware *middleware.RBACMiddleware) *ProductHandlers {
	return &ProductHandlers{
		productService: productService,
		rbacMiddleware: rbacMiddleware,
	}
}

// ProductRequest represents the product create/update payload
type ProductRequest struct {
	Name           string `json:"name"`
	SKU            string `json:"sku"`
	UnitPricePence int64  `json:"unit_price_pence"`
}

// CreateProduct handles POST /products
func (h *ProductHandlers) CreateProduct(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("products:create")(func(c echo.Context) error {
		return nil
	})(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	product := &models.Product{
		TenantID:       tenantID,
		Name:           req.Name,
		SKU:            req.SKU,
		UnitPricePence: req.UnitPricePence,
	}

	if err := h.productService.Create(ctx, product); err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusCreated, product)
}

// GetProduct handles GET /products/:id
func (h *ProductHandlers) GetProduct(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("products:read")(func(c echo.Context) error {
		return nil
	})(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	productID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	product, err := h.productService.Get(ctx, tenantID, productID)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

// GetProductBySKU handles GET /products/sku/:sku
func (h *ProductHandlers) GetProductBySKU(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("products:read")(func(c echo.Context) error {
		return nil
	})(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	sku := c.Param("sku")
	if sku == "" {
		return common.SendValidationError(c, "sku", "sku is required")
	}

	product, err := h.productService.GetBySKU(ctx, tenantID, sku)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

// UpdateProduct handles PUT /products/:id
func (h *ProductHandlers) UpdateProduct(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("products:update")(func(c echo.Context) error {
		return nil
	})(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	productID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	product, err := h.productService.Get(ctx, tenantID, productID)
	if err != nil {
		return common.HTTPError(c, err)
	}
	product.Name = req.Name
	product.SKU = req.SKU
	product.UnitPricePence = req.UnitPricePence

	if err := h.productService.Update(ctx, product); err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

// ListProducts handles GET /products
func (h *ProductHandlers) ListProducts(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("products:list")(func(c echo.Context) error {
		return nil
	})(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	limit, offset := parsePagination(c)
	products, err := h.productService.List(ctx, tenantID, limit, offset)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"products": products,
		"limit":    limit,
		"offset":   offset,
	})
}
