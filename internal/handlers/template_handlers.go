package handlers

import (
	"net/http"

	"stockflow/internal/common"
	"stockflow/internal/middleware"
	"stockflow/internal/models"
	"stockflow/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// TemplateHandlers handles transfer template HTTP requests
type TemplateHandlers struct {
	templateService services.TemplateService
	rbacMiddleware  *middleware.RBACMiddleware
}

func NewTemplateHandlers(templateService services.TemplateService, rbacMiddleware *middleware.RBACMiddleware) *TemplateHandlers {
	return &TemplateHandlers{
		templateService: templateService,
		rbacMiddleware:  rbacMiddleware,
	}
}

type templateItemRequest struct {
	ProductID  string `json:"product_id"`
	DefaultQty int    `json:"default_qty"`
}

// TemplateRequest represents the template create/update payload
type TemplateRequest struct {
	Name                string                `json:"name"`
	Description         *string               `json:"description"`
	SourceBranchID      string                `json:"source_branch_id"`
	DestinationBranchID string                `json:"destination_branch_id"`
	Items               []templateItemRequest `json:"items"`
}

func (req *TemplateRequest) toModel(c echo.Context, tenantID uuid.UUID) (*models.StockTransferTemplate, error) {
	sourceID, err := common.ValidateUUID(req.SourceBranchID, "source_branch_id")
	if err != nil {
		return nil, common.SendValidationError(c, "source_branch_id", err.Error())
	}
	destID, err := common.ValidateUUID(req.DestinationBranchID, "destination_branch_id")
	if err != nil {
		return nil, common.SendValidationError(c, "destination_branch_id", err.Error())
	}

	template := &models.StockTransferTemplate{
		TenantID:            tenantID,
		Name:                req.Name,
		Description:         req.Description,
		SourceBranchID:      sourceID,
		DestinationBranchID: destID,
	}
	for _, item := range req.Items {
		productID, err := common.ValidateUUID(item.ProductID, "product_id")
		if err != nil {
			return nil, common.SendValidationError(c, "product_id", err.Error())
		}
		template.Items = append(template.Items, &models.TemplateItem{
			ProductID:  productID,
			DefaultQty: item.DefaultQty,
		})
	}
	return template, nil
}

// CreateTemplate handles POST /templates
func (h *TemplateHandlers) CreateTemplate(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("templates:create")(func(c echo.Context) error {
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
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req TemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	template, err := req.toModel(c, tenantID)
	if err != nil {
		return err
	}
	template.CreatedByUserID = userID

	if err := h.templateService.Create(ctx, template); err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusCreated, template)
}

// GetTemplate handles GET /templates/:id
func (h *TemplateHandlers) GetTemplate(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("templates:read")(func(c echo.Context) error {
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

	templateID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	template, err := h.templateService.Get(ctx, tenantID, templateID)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, template)
}

// UpdateTemplate handles PUT /templates/:id
func (h *TemplateHandlers) UpdateTemplate(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("templates:update")(func(c echo.Context) error {
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

	templateID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req TemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	template, err := req.toModel(c, tenantID)
	if err != nil {
		return err
	}
	template.ID = templateID

	if err := h.templateService.Update(ctx, template); err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, template)
}

// ListTemplates handles GET /templates
func (h *TemplateHandlers) ListTemplates(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("templates:list")(func(c echo.Context) error {
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

	includeArchived := c.QueryParam("include_archived") == "true"
	limit, offset := parsePagination(c)

	templates, err := h.templateService.List(ctx, tenantID, includeArchived, limit, offset)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"templates": templates,
		"limit":     limit,
		"offset":    offset,
	})
}

// ArchiveTemplate handles POST /templates/:id/archive
func (h *TemplateHandlers) ArchiveTemplate(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("templates:archive")(func(c echo.Context) error {
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
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	templateID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	if err := h.templateService.Archive(ctx, tenantID, templateID, userID); err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Template archived"})
}

// RestoreTemplate handles POST /templates/:id/restore
func (h *TemplateHandlers) RestoreTemplate(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("templates:archive")(func(c echo.Context) error {
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

	templateID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	if err := h.templateService.Restore(ctx, tenantID, templateID); err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Template restored"})
}

type templateOverrideRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// CreateFromTemplateRequest represents the template-to-transfer payload
type CreateFromTemplateRequest struct {
	Priority  string                    `json:"priority"`
	Overrides []templateOverrideRequest `json:"overrides"`
	Notes     *string                   `json:"notes"`
}

// CreateTransferFromTemplate handles POST /templates/:id/transfers
func (h *TemplateHandlers) CreateTransferFromTemplate(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("transfers:create")(func(c echo.Context) error {
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
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	templateID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req CreateFromTemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	overrides := make([]services.TemplateItemOverride, 0, len(req.Overrides))
	for _, override := range req.Overrides {
		productID, err := common.ValidateUUID(override.ProductID, "product_id")
		if err != nil {
			return common.SendValidationError(c, "product_id", err.Error())
		}
		overrides = append(overrides, services.TemplateItemOverride{ProductID: productID, Qty: override.Qty})
	}

	transfer, err := h.templateService.CreateTransfer(ctx, tenantID, templateID, userID, req.Priority, overrides, req.Notes)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusCreated, transfer)
}
