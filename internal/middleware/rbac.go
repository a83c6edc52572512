package middleware

import (
	"net/http"

	"stockflow/internal/common"
	"stockflow/internal/services"

	"github.com/labstack/echo/v4"
)

// RBACMiddleware gates transfer, stock, and rule routes on tenant-scoped
// permission keys (e.g. "transfers:ship") resolved through the RBAC service.
type RBACMiddleware struct {
	rbacService services.RBACService
}

func NewRBACMiddleware(rbacService services.RBACService) *RBACMiddleware {
	return &RBACMiddleware{
		rbacService: rbacService,
	}
}

// RequirePermission rejects the request unless the authenticated user holds
// the permission in the request's tenant. Branch-membership checks stay in
// the services; this covers the action itself.
func (m *RBACMiddleware) RequirePermission(permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			userID, ok := common.GetUserIDFromContext(ctx)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
			}
			tenantID, ok := common.GetTenantIDFromContext(ctx)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Tenant not found")
			}

			hasPermission, err := m.rbacService.UserHasPermission(ctx, userID, tenantID, permission)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "Permission lookup failed")
			}
			if !hasPermission {
				return echo.NewHTTPError(http.StatusForbidden, "Missing permission "+permission)
			}

			return next(c)
		}
	}
}
