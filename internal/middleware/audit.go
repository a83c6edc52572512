package middleware

import (
	"time"

	"stockflow/internal/common"
	"stockflow/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// AuditMiddleware logs mutating HTTP requests to the audit trail.
type AuditMiddleware struct {
	auditService services.AuditLogsService
}

func NewAuditMiddleware(auditService services.AuditLogsService) *AuditMiddleware {
	return &AuditMiddleware{
		auditService: auditService,
	}
}

// AuditRequest records POST/PUT/PATCH/DELETE requests and any failed
// request. Reads are not logged.
func (m *AuditMiddleware) AuditRequest() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			ctx := c.Request().Context()
			tenantID, ok := common.GetTenantIDFromContext(ctx)
			if !ok {
				return err
			}

			method := c.Request().Method
			if err == nil && method != "POST" && method != "PUT" && method != "PATCH" && method != "DELETE" {
				return err
			}

			userID, ok := common.GetUserIDFromContext(ctx)
			var userPtr *uuid.UUID
			if ok {
				userPtr = &userID
			}

			path := c.Path()
			data := map[string]interface{}{
				"method":     method,
				"path":       path,
				"user_agent": c.Request().UserAgent(),
				"ip":         c.RealIP(),
				"timestamp":  time.Now().Format(time.RFC3339),
			}
			if err != nil {
				data["error"] = err.Error()
			}

			action := method + " " + path
			if logErr := m.auditService.LogActivity(ctx, tenantID, "http_requests", path, action, userPtr, nil, data); logErr != nil {
				c.Logger().Errorf("Failed to log audit activity: %v", logErr)
			}

			return err
		}
	}
}
