package handlers

import (
	"net/http"

	"stockflow/internal/common"
	"stockflow/internal/middleware"
	"stockflow/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// StockHandlers handles stock level, lot and ledger HTTP requests
type StockHandlers struct {
	stockService   services.StockService
	rbacMiddleware *middleware.RBACMiddleware
}

func NewStockHandlers(stockService services.StockService, rbacMiddleware *middleware.RBACMiddleware) *StockHandlers {
	return &StockHandlers{
		stockService:   stockService,
		rbacMiddleware: rbacMiddleware,
	}
}

// ReceiveStockRequest represents an inbound stock booking payload
type ReceiveStockRequest struct {
	BranchID      string  `json:"branch_id"`
	ProductID     string  `json:"product_id"`
	Qty           int     `json:"qty"`
	UnitCostPence int64   `json:"unit_cost_pence"`
	SourceRef     *string `json:"source_ref"`
	Reason        *string `json:"reason"`
}

// ReceiveStock handles POST /stock/receive
func (h *StockHandlers) ReceiveStock(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("stock:receive")(func(c echo.Context) error {
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

	var req ReceiveStockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	branchID, err := common.ValidateUUID(req.BranchID, "branch_id")
	if err != nil {
		return common.SendValidationError(c, "branch_id", err.Error())
	}
	productID, err := common.ValidateUUID(req.ProductID, "product_id")
	if err != nil {
		return common.SendValidationError(c, "product_id", err.Error())
	}
	var sourceRef *uuid.UUID
	if req.SourceRef != nil && *req.SourceRef != "" {
		id, err := common.ValidateUUID(*req.SourceRef, "source_ref")
		if err != nil {
			return common.SendValidationError(c, "source_ref", err.Error())
		}
		sourceRef = &id
	}

	lot, err := h.stockService.Receive(ctx, services.ReceiveParams{
		TenantID:      tenantID,
		BranchID:      branchID,
		ProductID:     productID,
		Qty:           req.Qty,
		UnitCostPence: req.UnitCostPence,
		SourceRef:     sourceRef,
		Reason:        req.Reason,
	})
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusCreated, lot)
}

// ConsumeStockRequest represents an outbound stock booking payload
type ConsumeStockRequest struct {
	BranchID  string  `json:"branch_id"`
	ProductID string  `json:"product_id"`
	Qty       int     `json:"qty"`
	Reason    *string `json:"reason"`
}

// ConsumeStock handles POST /stock/consume
func (h *StockHandlers) ConsumeStock(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("stock:consume")(func(c echo.Context) error {
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

	var req ConsumeStockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	branchID, err := common.ValidateUUID(req.BranchID, "branch_id")
	if err != nil {
		return common.SendValidationError(c, "branch_id", err.Error())
	}
	productID, err := common.ValidateUUID(req.ProductID, "product_id")
	if err != nil {
		return common.SendValidationError(c, "product_id", err.Error())
	}

	result, err := h.stockService.Consume(ctx, services.ConsumeParams{
		TenantID:  tenantID,
		BranchID:  branchID,
		ProductID: productID,
		Qty:       req.Qty,
		Reason:    req.Reason,
	})
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// AdjustStockRequest represents a signed stock correction payload
type AdjustStockRequest struct {
	BranchID      string  `json:"branch_id"`
	ProductID     string  `json:"product_id"`
	QtyDelta      int     `json:"qty_delta"`
	UnitCostPence int64   `json:"unit_cost_pence"`
	Reason        *string `json:"reason"`
}

// AdjustStock handles POST /stock/adjust
func (h *StockHandlers) AdjustStock(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("stock:adjust")(func(c echo.Context) error {
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

	var req AdjustStockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	branchID, err := common.ValidateUUID(req.BranchID, "branch_id")
	if err != nil {
		return common.SendValidationError(c, "branch_id", err.Error())
	}
	productID, err := common.ValidateUUID(req.ProductID, "product_id")
	if err != nil {
		return common.SendValidationError(c, "product_id", err.Error())
	}

	if err := h.stockService.Adjust(ctx, tenantID, branchID, productID, req.QtyDelta, req.UnitCostPence, req.Reason); err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Stock adjusted"})
}

// GetStockLevel handles GET /branches/:branchId/stock/:productId
func (h *StockHandlers) GetStockLevel(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("stock:read")(func(c echo.Context) error {
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

	branchID, err := common.ValidateUUID(c.Param("branchId"), "branchId")
	if err != nil {
		return common.SendValidationError(c, "branchId", err.Error())
	}
	productID, err := common.ValidateUUID(c.Param("productId"), "productId")
	if err != nil {
		return common.SendValidationError(c, "productId", err.Error())
	}

	stock, err := h.stockService.GetLevel(ctx, tenantID, branchID, productID)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, stock)
}

// ListStockLevels handles GET /branches/:branchId/stock
func (h *StockHandlers) ListStockLevels(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("stock:read")(func(c echo.Context) error {
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

	branchID, err := common.ValidateUUID(c.Param("branchId"), "branchId")
	if err != nil {
		return common.SendValidationError(c, "branchId", err.Error())
	}

	limit, offset := parsePagination(c)
	levels, err := h.stockService.ListLevels(ctx, tenantID, branchID, limit, offset)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"stock":  levels,
		"limit":  limit,
		"offset": offset,
	})
}

// ListStockLots handles GET /branches/:branchId/stock/:productId/lots
func (h *StockHandlers) ListStockLots(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("stock:read")(func(c echo.Context) error {
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

	branchID, err := common.ValidateUUID(c.Param("branchId"), "branchId")
	if err != nil {
		return common.SendValidationError(c, "branchId", err.Error())
	}
	productID, err := common.ValidateUUID(c.Param("productId"), "productId")
	if err != nil {
		return common.SendValidationError(c, "productId", err.Error())
	}

	limit, offset := parsePagination(c)
	lots, err := h.stockService.ListLots(ctx, tenantID, branchID, productID, limit, offset)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"lots":   lots,
		"limit":  limit,
		"offset": offset,
	})
}

// ListStockLedger handles GET /branches/:branchId/stock/:productId/ledger
func (h *StockHandlers) ListStockLedger(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("stock:read")(func(c echo.Context) error {
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

	branchID, err := common.ValidateUUID(c.Param("branchId"), "branchId")
	if err != nil {
		return common.SendValidationError(c, "branchId", err.Error())
	}
	productID, err := common.ValidateUUID(c.Param("productId"), "productId")
	if err != nil {
		return common.SendValidationError(c, "productId", err.Error())
	}

	limit, offset := parsePagination(c)
	entries, err := h.stockService.ListLedger(ctx, tenantID, branchID, productID, limit, offset)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"entries": entries,
		"limit":   limit,
		"offset":  offset,
	})
}
