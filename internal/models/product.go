package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a tenant-scoped catalog entry. Prices are integers in minor
// currency units (pence); no floating-point money anywhere in the core.
type Product struct {
	ID             uuid.UUID `json:"id" db:"id"`
	TenantID       uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Name           string    `json:"name" db:"name"`
	SKU            string    `json:"sku" db:"sku"`
	UnitPricePence int64     `json:"unit_price_pence" db:"unit_price_pence"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
