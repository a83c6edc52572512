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

// AuditLogsHandlers handles audit log HTTP requests
type AuditLogsHandlers struct {
	auditService   services.AuditLogsService
	rbacMiddleware *middleware.RBACMiddleware
}

func NewAuditLogsHandlers(auditService services.AuditLogsService, rbacMiddleware *middleware.RBACMiddleware) *AuditLogsHandlers {
	return &AuditLogsHandlers{
		auditService:   auditService,
		rbacMiddleware: rbacMiddleware,
	}
}

// GetAuditLog handles GET /audit-logs/:id
func (h *AuditLogsHandlers) GetAuditLog(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("audit_logs:read")(func(c echo.Context) error {
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

	auditLogID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	auditLog, err := h.auditService.GetAuditLog(ctx, tenantID, auditLogID)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, auditLog)
}

// ListAuditLogs handles GET /audit-logs
func (h *AuditLogsHandlers) ListAuditLogs(c echo.Context) error {
	err := h.rbacMiddleware.RequirePermission("audit_logs:list")(func(c echo.Context) error {
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

	filters := &models.AuditLogFilters{}
	if tableName := c.QueryParam("table_name"); tableName != "" {
		filters.TableName = &tableName
	}
	if recordID := c.QueryParam("record_id"); recordID != "" {
		filters.RecordID = &recordID
	}
	if action := c.QueryParam("action"); action != "" {
		filters.Action = &action
	}
	if changedBy := c.QueryParam("changed_by"); changedBy != "" {
		id, err := common.ValidateUUID(changedBy, "changed_by")
		if err != nil {
			return common.SendValidationError(c, "changed_by", err.Error())
		}
		filters.ChangedBy = &id
	}
	if startDate := c.QueryParam("start_date"); startDate != "" {
		parsed, err := time.Parse(time.RFC3339, startDate)
		if err != nil {
			return common.SendValidationError(c, "start_date", "must be RFC3339 formatted")
		}
		filters.StartDate = &parsed
	}
	if endDate := c.QueryParam("end_date"); endDate != "" {
		parsed, err := time.Parse(time.RFC3339, endDate)
		if err != nil {
			return common.SendValidationError(c, "end_date", "must be RFC3339 formatted")
		}
		filters.EndDate = &parsed
	}
	filters.Limit, filters.Offset = parsePagination(c)

	logs, err := h.auditService.ListAuditLogs(ctx, tenantID, filters)
	if err != nil {
		return common.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"audit_logs": logs,
		"limit":      filters.Limit,
		"offset":     filters.Offset,
	})
}
