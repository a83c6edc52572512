package models

import (
	"time"

	"github.com/google/uuid"
)

// StockTransferTemplate is a reusable source/destination/items preset used
// to pre-fill transfer creation. Templates are soft-archived, never deleted.
type StockTransferTemplate struct {
	ID                  uuid.UUID  `json:"id" db:"id"`
	TenantID            uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	Name                string     `json:"name" db:"name"`
	Description         *string    `json:"description,omitempty" db:"description"`
	SourceBranchID      uuid.UUID  `json:"source_branch_id" db:"source_branch_id"`
	DestinationBranchID uuid.UUID  `json:"destination_branch_id" db:"destination_branch_id"`
	CreatedByUserID     uuid.UUID  `json:"created_by_user_id" db:"created_by_user_id"`
	ArchivedAt          *time.Time `json:"archived_at,omitempty" db:"archived_at"`
	ArchivedByUserID    *uuid.UUID `json:"archived_by_user_id,omitempty" db:"archived_by_user_id"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`

	Items []*TemplateItem `json:"items,omitempty" db:"-"`
}

// IsArchived reports the template lifecycle state. The archive fields are
// only ever set together through Archive/Restore so the triplet cannot drift.
func (t *StockTransferTemplate) IsArchived() bool {
	return t.ArchivedAt != nil
}

// Archive marks the template archived by the given user at the given time.
func (t *StockTransferTemplate) Archive(by uuid.UUID, at time.Time) {
	t.ArchivedAt = &at
	t.ArchivedByUserID = &by
}

// Restore clears the archived state.
func (t *StockTransferTemplate) Restore() {
	t.ArchivedAt = nil
	t.ArchivedByUserID = nil
}

// TemplateItem is a default product/quantity line on a template.
type TemplateItem struct {
	ID         uuid.UUID `json:"id" db:"id"`
	TemplateID uuid.UUID `json:"template_id" db:"template_id"`
	ProductID  uuid.UUID `json:"product_id" db:"product_id"`
	DefaultQty int       `json:"default_qty" db:"default_qty"`
}
