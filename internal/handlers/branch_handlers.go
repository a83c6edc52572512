package handlers

import (
	"net/http"

	"stockflow/internal/common"
	"stockflow/internal/middleware"
	"stockflow/internal/models"
	"stockflow/internal/services"

	"github.com/labstack/echo/v4"
)

// BranchHandlers handles branch and branch membership HTTP requests
type BranchHandlers struct {
	branchService  services.BranchService
	rbacMiddleware *middleware.RBACMiddleware
}

func NewBranchHandlers(branchService services.BranchService, rbacMiddleware *middleware.RBACMiddleware) *BranchHandlers {
	return &BranchHandlers{
		branchService:  branchService,
		rbacMiddleware: rbacMiddleware,
	}
}

// BranchRequest represents the branch create/update payload
type BranchRequest struct {
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	Active *bool  `json:"active"`
}

// CreateBranch handles POST /branches
func (h *BranchHandlers) CreateBranch(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("branches:create")(func(c echo.Context) error {
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

	var req BranchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	branch := &models.Branch{
		TenantID: tenantID,
		Name:     req.Name,
		Slug:     req.Slug,
		Active:   true,
	}
	if req.Active != nil {
		branch.Active = *req.Active
	}

	if err := h.branchService.Create(ctx, branch); err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusCreated, branch)
}

// GetBranch handles GET /branches/:id
func (h *BranchHandlers) GetBranch(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("branches:read")(func(c echo.Context) error {
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

	branchID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	branch, err := h.branchService.Get(ctx, tenantID, branchID)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, branch)
}

// UpdateBranch handles PUT /branches/:id
func (h *BranchHandlers) UpdateBranch(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("branches:update")(func(c echo.Context) error {
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

	branchID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req BranchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	branch, err := h.branchService.Get(ctx, tenantID, branchID)
	if err != nil {
		return common.HTTPError(c, err)
	}
	branch.Name = req.Name
	branch.Slug = req.Slug
	if req.Active != nil {
		branch.Active = *req.Active
	}

	if err := h.branchService.Update(ctx, branch); err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, branch)
}

// ListBranches handles GET /branches
func (h *BranchHandlers) ListBranches(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("branches:list")(func(c echo.Context) error {
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
	branches, err := h.branchService.List(ctx, tenantID, limit, offset)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"branches": branches,
		"limit":    limit,
		"offset":   offset,
	})
}

// BranchMemberRequest represents a membership change payload
type BranchMemberRequest struct {
	UserID string `json:"user_id"`
}

// AddMember handles POST /branches/:id/members
func (h *BranchHandlers) AddMember(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("branches:manage_members")(func(c echo.Context) error {
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

	branchID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req BranchMemberRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	userID, err := common.ValidateUUID(req.UserID, "user_id")
	if err != nil {
		return common.SendValidationError(c, "user_id", err.Error())
	}

	if err := h.branchService.AddMember(ctx, tenantID, branchID, userID); err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"message": "Member added"})
}

// RemoveMember handles DELETE /branches/:id/members/:userId
func (h *BranchHandlers) RemoveMember(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("branches:manage_members")(func(c echo.Context) error {
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

	branchID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	userID, err := common.ValidateUUID(c.Param("userId"), "userId")
	if err != nil {
		return common.SendValidationError(c, "userId", err.Error())
	}

	if err := h.branchService.RemoveMember(ctx, tenantID, branchID, userID); err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Member removed"})
}
