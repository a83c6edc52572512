package models

import (
	"time"

	"github.com/google/uuid"
)

// Transfer statuses
const (
	TransferStatusRequested         = "REQUESTED"
	TransferStatusApproved          = "APPROVED"
	TransferStatusRejected          = "REJECTED"
	TransferStatusInTransit         = "IN_TRANSIT"
	TransferStatusPartiallyReceived = "PARTIALLY_RECEIVED"
	TransferStatusCompleted         = "COMPLETED"
	TransferStatusCancelled         = "CANCELLED"
	TransferStatusReversed          = "REVERSED"
)

// Transfer priorities
const (
	TransferPriorityUrgent = "URGENT"
	TransferPriorityHigh   = "HIGH"
	TransferPriorityNormal = "NORMAL"
	TransferPriorityLow    = "LOW"
)

// Initiation types: PUSH is initiated by the source branch, PULL by the
// destination.
const (
	TransferInitiationPush = "PUSH"
	TransferInitiationPull = "PULL"
)

// ValidTransferPriority reports whether p is a known priority value.
func ValidTransferPriority(p string) bool {
	switch p {
	case TransferPriorityUrgent, TransferPriorityHigh, TransferPriorityNormal, TransferPriorityLow:
		return true
	}
	return false
}

// StockTransfer is the central aggregate of the transfer lifecycle.
// Rows are never deleted; cancel and reject are terminal statuses.
type StockTransfer struct {
	ID                        uuid.UUID  `json:"id" db:"id"`
	TenantID                  uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	TransferNumber            string     `json:"transfer_number" db:"transfer_number"`
	SourceBranchID            uuid.UUID  `json:"source_branch_id" db:"source_branch_id"`
	DestinationBranchID       uuid.UUID  `json:"destination_branch_id" db:"destination_branch_id"`
	Status                    string     `json:"status" db:"status"`
	Priority                  string     `json:"priority" db:"priority"`
	InitiationType            string     `json:"initiation_type" db:"initiation_type"`
	RequestedByUserID         uuid.UUID  `json:"requested_by_user_id" db:"requested_by_user_id"`
	ReviewedByUserID          *uuid.UUID `json:"reviewed_by_user_id,omitempty" db:"reviewed_by_user_id"`
	ShippedByUserID           *uuid.UUID `json:"shipped_by_user_id,omitempty" db:"shipped_by_user_id"`
	RequestNotes              *string    `json:"request_notes,omitempty" db:"request_notes"`
	OrderNotes                *string    `json:"order_notes,omitempty" db:"order_notes"`
	ReviewNotes               *string    `json:"review_notes,omitempty" db:"review_notes"`
	ExpectedDeliveryDate      *time.Time `json:"expected_delivery_date,omitempty" db:"expected_delivery_date"`
	RequiresMultiLevelApproval bool      `json:"requires_multi_level_approval" db:"requires_multi_level_approval"`
	ReversalOfTransferID      *uuid.UUID `json:"reversal_of_transfer_id,omitempty" db:"reversal_of_transfer_id"`
	ReversedByTransferID      *uuid.UUID `json:"reversed_by_transfer_id,omitempty" db:"reversed_by_transfer_id"`
	DispatchNotePDFURL        *string    `json:"dispatch_note_pdf_url,omitempty" db:"dispatch_note_pdf_url"`
	RequestedAt               time.Time  `json:"requested_at" db:"requested_at"`
	ReviewedAt                *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`
	ShippedAt                 *time.Time `json:"shipped_at,omitempty" db:"shipped_at"`
	CompletedAt               *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt               *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt                 time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt                 time.Time  `json:"updated_at" db:"updated_at"`

	Items []*StockTransferItem `json:"items,omitempty" db:"-"`
}

// StockTransferItem tracks one product line through the lifecycle.
// Invariants: qty_approved <= qty_requested, qty_shipped <= qty_approved,
// qty_received <= qty_shipped. Shipped and received are cumulative across
// batches.
type StockTransferItem struct {
	ID               uuid.UUID `json:"id" db:"id"`
	TenantID         uuid.UUID `json:"tenant_id" db:"tenant_id"`
	TransferID       uuid.UUID `json:"transfer_id" db:"transfer_id"`
	ProductID        uuid.UUID `json:"product_id" db:"product_id"`
	QtyRequested     int       `json:"qty_requested" db:"qty_requested"`
	QtyApproved      *int      `json:"qty_approved,omitempty" db:"qty_approved"`
	QtyShipped       int       `json:"qty_shipped" db:"qty_shipped"`
	QtyReceived      int       `json:"qty_received" db:"qty_received"`
	AvgUnitCostPence int64     `json:"avg_unit_cost_pence" db:"avg_unit_cost_pence"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// ShipmentBatch records one discrete ship action. Batches are numbered 1..n
// per transfer in ship order.
type ShipmentBatch struct {
	ID              uuid.UUID `json:"id" db:"id"`
	TenantID        uuid.UUID `json:"tenant_id" db:"tenant_id"`
	TransferID      uuid.UUID `json:"transfer_id" db:"transfer_id"`
	BatchNumber     int       `json:"batch_number" db:"batch_number"`
	ShippedByUserID uuid.UUID `json:"shipped_by_user_id" db:"shipped_by_user_id"`
	ShippedAt       time.Time `json:"shipped_at" db:"shipped_at"`

	Items []*ShipmentBatchItem `json:"items,omitempty" db:"-"`
}

// ShipmentBatchItem is one product/quantity moved in a batch.
type ShipmentBatchItem struct {
	ID               uuid.UUID `json:"id" db:"id"`
	BatchID          uuid.UUID `json:"batch_id" db:"batch_id"`
	TransferItemID   uuid.UUID `json:"transfer_item_id" db:"transfer_item_id"`
	ProductID        uuid.UUID `json:"product_id" db:"product_id"`
	Qty              int       `json:"qty" db:"qty"`
	AvgUnitCostPence int64     `json:"avg_unit_cost_pence" db:"avg_unit_cost_pence"`
}

// TransferSearchFilter holds filter criteria for transfer list queries
type TransferSearchFilter struct {
	Status         *string    `json:"status,omitempty"`
	Priority       *string    `json:"priority,omitempty"`
	SourceBranchID *uuid.UUID `json:"source_branch_id,omitempty"`
	DestBranchID   *uuid.UUID `json:"destination_branch_id,omitempty"`
	RequestedFrom  *time.Time `json:"requested_from,omitempty"`
	RequestedTo    *time.Time `json:"requested_to,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	Offset         int        `json:"offset,omitempty"`
}
