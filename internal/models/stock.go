package models

import (
	"time"

	"github.com/google/uuid"
)

// StockLot is a FIFO cost batch. Lots are never deleted; exhausted lots
// remain with qty_remaining = 0 for audit.
type StockLot struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	TenantID      uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	BranchID      uuid.UUID  `json:"branch_id" db:"branch_id"`
	ProductID     uuid.UUID  `json:"product_id" db:"product_id"`
	QtyReceived   int        `json:"qty_received" db:"qty_received"`
	QtyRemaining  int        `json:"qty_remaining" db:"qty_remaining"`
	UnitCostPence int64      `json:"unit_cost_pence" db:"unit_cost_pence"`
	ReceivedAt    time.Time  `json:"received_at" db:"received_at"`
	SourceRef     *uuid.UUID `json:"source_ref,omitempty" db:"source_ref"`
}

// Ledger entry kinds
const (
	LedgerKindReceipt     = "RECEIPT"
	LedgerKindConsumption = "CONSUMPTION"
	LedgerKindAdjustment  = "ADJUSTMENT"
)

// StockLedgerEntry is the append-only audit trail of every quantity change.
// QtyDelta is signed: positive for inbound, negative for outbound.
type StockLedgerEntry struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	TenantID  uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	BranchID  uuid.UUID  `json:"branch_id" db:"branch_id"`
	ProductID uuid.UUID  `json:"product_id" db:"product_id"`
	LotID     *uuid.UUID `json:"lot_id,omitempty" db:"lot_id"`
	Kind      string     `json:"kind" db:"kind"`
	QtyDelta  int        `json:"qty_delta" db:"qty_delta"`
	Reason    *string    `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// ProductStock is the derived per branch/product aggregate, maintained
// transactionally alongside lot changes. Invariant: QtyOnHand equals the
// sum of remaining lot quantities and is never negative.
type ProductStock struct {
	ID           uuid.UUID `json:"id" db:"id"`
	TenantID     uuid.UUID `json:"tenant_id" db:"tenant_id"`
	BranchID     uuid.UUID `json:"branch_id" db:"branch_id"`
	ProductID    uuid.UUID `json:"product_id" db:"product_id"`
	QtyOnHand    int       `json:"qty_on_hand" db:"qty_on_hand"`
	QtyAllocated int       `json:"qty_allocated" db:"qty_allocated"`
	LastUpdated  time.Time `json:"last_updated" db:"last_updated"`
}

// LotConsumption records how much was drawn from one lot during a FIFO
// consume, at that lot's unit cost.
type LotConsumption struct {
	LotID         uuid.UUID `json:"lot_id"`
	Qty           int       `json:"qty"`
	UnitCostPence int64     `json:"unit_cost_pence"`
}

// ConsumeResult is the outcome of a FIFO consumption: the lots touched and
// the weighted-average unit cost of the consumed quantity.
type ConsumeResult struct {
	Consumed         []LotConsumption `json:"consumed"`
	TotalQty         int              `json:"total_qty"`
	AvgUnitCostPence int64            `json:"avg_unit_cost_pence"`
}
