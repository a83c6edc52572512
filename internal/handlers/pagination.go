package handlers

import (
	"strconv"

	"stockflow/internal/common"

	"github.com/labstack/echo/v4"
)

// parsePagination reads limit/offset query parameters and clamps them to
// sane bounds. Unparseable values fall back to the defaults.
func parsePagination(c echo.Context) (int, int) {
	limit := 0
	offset := 0
	if limitParam := c.QueryParam("limit"); limitParam != "" {
		if l, err := strconv.Atoi(limitParam); err == nil && l > 0 {
			limit = l
		}
	}
	if offsetParam := c.QueryParam("offset"); offsetParam != "" {
		if o, err := strconv.Atoi(offsetParam); err == nil && o >= 0 {
			offset = o
		}
	}
	return common.ValidatePaginationParams(limit, offset)
}
