package handlers

import (
	"net/http"
	"time"

	"stockflow/internal/common"
	"stockflow/internal/middleware"
	"stockflow/internal/models"
	"stockflow/internal/services"

	"github.com/labstack/echo/v4"
)

// TransferHandlers handles stock transfer HTTP requests
type TransferHandlers struct {
	transferService services.TransferService
	rbacMiddleware  *middleware.RBACMiddleware
}

func NewTransferHandlers(transferService services.TransferService, rbacMiddleware *middleware.RBACMiddleware) *TransferHandlers {
	return &TransferHandlers{
		transferService: transferService,
		rbacMiddleware:  rbacMiddleware,
	}
}

type transferItemRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// CreateTransferRequest represents the transfer creation payload
type CreateTransferRequest struct {
	SourceBranchID      string                `json:"source_branch_id"`
	DestinationBranchID string                `json:"destination_branch_id"`
	InitiationType      string                `json:"initiation_type"`
	Priority            string                `json:"priority"`
	RequestNotes        *string               `json:"request_notes"`
	OrderNotes          *string               `json:"order_notes"`
	ExpectedDelivery    *time.Time            `json:"expected_delivery_date"`
	Items               []transferItemRequest `json:"items"`
}

// CreateTransfer handles POST /transfers
func (h *TransferHandlers) CreateTransfer(c echo.Context) error {
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

	var req CreateTransferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	sourceID, err := common.ValidateUUID(req.SourceBranchID, "source_branch_id")
	if err != nil {
		return common.SendValidationError(c, "source_branch_id", err.Error())
	}
	destID, err := common.ValidateUUID(req.DestinationBranchID, "destination_branch_id")
	if err != nil {
		return common.SendValidationError(c, "destination_branch_id", err.Error())
	}

	items := make([]services.CreateTransferItem, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := common.ValidateUUID(item.ProductID, "product_id")
		if err != nil {
			return common.SendValidationError(c, "product_id", err.Error())
		}
		items = append(items, services.CreateTransferItem{ProductID: productID, Qty: item.Qty})
	}

	transfer, err := h.transferService.Create(ctx, services.CreateTransferParams{
		TenantID:            tenantID,
		SourceBranchID:      sourceID,
		DestinationBranchID: destID,
		InitiationType:      req.InitiationType,
		Priority:            req.Priority,
		RequestedByUserID:   userID,
		RequestNotes:        req.RequestNotes,
		OrderNotes:          req.OrderNotes,
		ExpectedDelivery:    req.ExpectedDelivery,
		Items:               items,
	})
	if err != nil {
		return common.HTTPError(c, err)
	}

	return c.JSON(http.StatusCreated, transfer)
}

// GetTransfer handles GET /transfers/:id
func (h *TransferHandlers) GetTransfer(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("transfers:read")(func(c echo.Context) error {
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

	transferID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	transfer, err := h.transferService.Get(ctx, tenantID, transferID, userID)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, transfer)
}

// ListTransfersRequest represents query parameters for listing transfers
type ListTransfersRequest struct {
	Status         string `query:"status"`
	Priority       string `query:"priority"`
	SourceBranchID string `query:"source_branch_id"`
	DestBranchID   string `query:"destination_branch_id"`
	Limit          int    `query:"limit"`
	Offset         int    `query:"offset"`
}

// ListTransfers handles GET /transfers
func (h *TransferHandlers) ListTransfers(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("transfers:list")(func(c echo.Context) error {
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

	var req ListTransfersRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid query parameters")
	}

	limit, offset := common.ValidatePaginationParams(req.Limit, req.Offset)
	filter := &models.TransferSearchFilter{Limit: limit, Offset: offset}
	if req.Status != "" {
		filter.Status = &req.Status
	}
	if req.Priority != "" {
		filter.Priority = &req.Priority
	}
	if req.SourceBranchID != "" {
		id, err := common.ValidateUUID(req.SourceBranchID, "source_branch_id")
		if err != nil {
			return common.SendValidationError(c, "source_branch_id", err.Error())
		}
		filter.SourceBranchID = &id
	}
	if req.DestBranchID != "" {
		id, err := common.ValidateUUID(req.DestBranchID, "destination_branch_id")
		if err != nil {
			return common.SendValidationError(c, "destination_branch_id", err.Error())
		}
		filter.DestBranchID = &id
	}

	transfers, err := h.transferService.List(ctx, tenantID, userID, filter)
	if err != nil {
		return common.HTTPError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"transfers": transfers,
		"limit":     limit,
		"offset":    offset,
	})
}

type itemQuantityRequest struct {
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
}

func parseItemQuantities(c echo.Context, lines []itemQuantityRequest) ([]services.ItemQuantity, error) {
	parsed := make([]services.ItemQuantity, 0, len(lines))
	for _, line := range lines {
		itemID, err := common.ValidateUUID(line.ItemID, "item_id")
		if err != nil {
			return nil, common.SendValidationError(c, "item_id", err.Error())
		}
		parsed = append(parsed, services.ItemQuantity{ItemID: itemID, Qty: line.Qty})
	}
	return parsed, nil
}

// ReviewTransferRequest represents the review decision payload
type ReviewTransferRequest struct {
	Approve   bool                  `json:"approve"`
	Approvals []itemQuantityRequest `json:"approvals"`
	Notes     *string               `json:"notes"`
}

// ReviewTransfer handles POST /transfers/:id/review
func (h *TransferHandlers) ReviewTransfer(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("transfers:review")(func(c echo.Context) error {
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

	transferID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req ReviewTransferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	approvals, err := parseItemQuantities(c, req.Approvals)
	if err != nil {
		return err
	}

	transfer, err := h.transferService.Review(ctx, tenantID, transferID, userID, req.Approve, approvals, req.Notes)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, transfer)
}

// ShipTransferRequest represents one shipment batch payload
type ShipTransferRequest struct {
	Lines []itemQuantityRequest `json:"lines"`
}

// ShipTransfer handles POST /transfers/:id/ship
func (h *TransferHandlers) ShipTransfer(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("transfers:ship")(func(c echo.Context) error {
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

	transferID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req ShipTransferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	lines, err := parseItemQuantities(c, req.Lines)
	if err != nil {
		return err
	}

	transfer, err := h.transferService.Ship(ctx, tenantID, transferID, userID, lines)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, transfer)
}

// ReceiveTransferRequest represents a receipt payload
type ReceiveTransferRequest struct {
	Lines []itemQuantityRequest `json:"lines"`
}

// ReceiveTransfer handles POST /transfers/:id/receive
func (h *TransferHandlers) ReceiveTransfer(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("transfers:receive")(func(c echo.Context) error {
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

	transferID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req ReceiveTransferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	lines, err := parseItemQuantities(c, req.Lines)
	if err != nil {
		return err
	}

	transfer, err := h.transferService.Receive(ctx, tenantID, transferID, userID, lines)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, transfer)
}

// CancelTransferRequest represents a cancel payload
type CancelTransferRequest struct {
	Notes *string `json:"notes"`
}

// CancelTransfer handles POST /transfers/:id/cancel
func (h *TransferHandlers) CancelTransfer(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("transfers:cancel")(func(c echo.Context) error {
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

	transferID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req CancelTransferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	transfer, err := h.transferService.Cancel(ctx, tenantID, transferID, userID, req.Notes)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, transfer)
}

// ReverseTransferRequest represents a reversal payload
type ReverseTransferRequest struct {
	Notes *string `json:"notes"`
}

// ReverseTransfer handles POST /transfers/:id/reverse
func (h *TransferHandlers) ReverseTransfer(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("transfers:reverse")(func(c echo.Context) error {
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

	transferID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req ReverseTransferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	reversal, err := h.transferService.Reverse(ctx, tenantID, transferID, userID, req.Notes)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusCreated, reversal)
}

// UpdatePriorityRequest represents a priority change payload
type UpdatePriorityRequest struct {
	Priority string `json:"priority"`
}

// UpdatePriority handles PATCH /transfers/:id/priority
func (h *TransferHandlers) UpdatePriority(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("transfers:update")(func(c echo.Context) error {
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

	transferID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req UpdatePriorityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	transfer, err := h.transferService.UpdatePriority(ctx, tenantID, transferID, userID, req.Priority)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, transfer)
}

// ListShipments handles GET /transfers/:id/shipments
func (h *TransferHandlers) ListShipments(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("transfers:read")(func(c echo.Context) error {
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

	transferID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	batches, err := h.transferService.ListShipments(ctx, tenantID, transferID)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"shipments": batches,
	})
}

// RegenerateDispatchNote handles POST /transfers/:id/dispatch-note
func (h *TransferHandlers) RegenerateDispatchNote(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("transfers:read")(func(c echo.Context) error {
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

	transferID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	url, err := h.transferService.RegenerateDispatchNote(ctx, tenantID, transferID)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"dispatch_note_pdf_url": url,
	})
}
