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

// ApprovalHandlers handles approval rule and approval decision HTTP requests
type ApprovalHandlers struct {
	approvalService services.ApprovalService
	rbacMiddleware  *middleware.RBACMiddleware
}

func NewApprovalHandlers(approvalService services.ApprovalService, rbacMiddleware *middleware.RBACMiddleware) *ApprovalHandlers {
	return &ApprovalHandlers{
		approvalService: approvalService,
		rbacMiddleware:  rbacMiddleware,
	}
}

type ruleLevelRequest struct {
	LevelNumber    int     `json:"level_number"`
	RequiredRoleID *string `json:"required_role_id"`
	RequiredUserID *string `json:"required_user_id"`
}

// ApprovalRuleRequest represents the rule create/update payload
type ApprovalRuleRequest struct {
	Name         string                    `json:"name"`
	Priority     int                       `json:"priority"`
	ApprovalMode string                    `json:"approval_mode"`
	Active       *bool                     `json:"active"`
	Conditions   models.ApprovalConditions `json:"conditions"`
	Levels       []ruleLevelRequest        `json:"levels"`
}

func (req *ApprovalRuleRequest) toModel(c echo.Context, tenantID uuid.UUID) (*models.ApprovalRule, error) {
	rule := &models.ApprovalRule{
		TenantID:     tenantID,
		Name:         req.Name,
		Priority:     req.Priority,
		ApprovalMode: req.ApprovalMode,
		Active:       true,
		Conditions:   req.Conditions,
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	for _, level := range req.Levels {
		modelLevel := &models.ApprovalRuleLevel{LevelNumber: level.LevelNumber}
		if level.RequiredRoleID != nil {
			id, err := common.ValidateUUID(*level.RequiredRoleID, "required_role_id")
			if err != nil {
				return nil, common.SendValidationError(c, "required_role_id", err.Error())
			}
			modelLevel.RequiredRoleID = &id
		}
		if level.RequiredUserID != nil {
			id, err := common.ValidateUUID(*level.RequiredUserID, "required_user_id")
			if err != nil {
				return nil, common.SendValidationError(c, "required_user_id", err.Error())
			}
			modelLevel.RequiredUserID = &id
		}
		rule.Levels = append(rule.Levels, modelLevel)
	}
	return rule, nil
}

// CreateRule handles POST /approval-rules
func (h *ApprovalHandlers) CreateRule(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("approval_rules:create")(func(c echo.Context) error {
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

	var req ApprovalRuleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	rule, err := req.toModel(c, tenantID)
	if err != nil {
		return err
	}

	if err := h.approvalService.CreateRule(ctx, rule); err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusCreated, rule)
}

// UpdateRule handles PUT /approval-rules/:id
func (h *ApprovalHandlers) UpdateRule(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("approval_rules:update")(func(c echo.Context) error {
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

	ruleID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req ApprovalRuleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	rule, err := req.toModel(c, tenantID)
	if err != nil {
		return err
	}
	rule.ID = ruleID

	if err := h.approvalService.UpdateRule(ctx, rule); err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, rule)
}

// GetRule handles GET /approval-rules/:id
func (h *ApprovalHandlers) GetRule(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("approval_rules:read")(func(c echo.Context) error {
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

	ruleID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	rule, err := h.approvalService.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, rule)
}

// ListRules handles GET /approval-rules
func (h *ApprovalHandlers) ListRules(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("approval_rules:list")(func(c echo.Context) error {
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

	rules, err := h.approvalService.ListRules(ctx, tenantID, limit, offset)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"rules":  rules,
		"limit":  limit,
		"offset": offset,
	})
}

// ApprovalDecisionRequest represents an approve/reject decision payload
type ApprovalDecisionRequest struct {
	LevelNumber int     `json:"level_number"`
	Approve     bool    `json:"approve"`
	Notes       *string `json:"notes"`
}

// SubmitDecision handles POST /transfers/:id/approvals
func (h *ApprovalHandlers) SubmitDecision(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("transfers:approve")(func(c echo.Context) error {
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

	var req ApprovalDecisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	transfer, err := h.approvalService.SubmitDecision(ctx, tenantID, transferID, userID, req.LevelNumber, req.Approve, req.Notes)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, transfer)
}

// GetProgress handles GET /transfers/:id/approvals
func (h *ApprovalHandlers) GetProgress(c echo.Context) error {
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

	progress, err := h.approvalService.Progress(ctx, tenantID, transferID)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, progress)
}
