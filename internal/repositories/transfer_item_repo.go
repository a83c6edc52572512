package repositories

import (
	"context"

	"stockflow/internal/models"

	"github.com/google/uuid"
)

type TransferItemRepository interface {
	Create(ctx context.Context, item *models.StockTransferItem) error
	ListByTransfer(ctx context.Context, tenantID, transferID uuid.UUID) ([]*models.StockTransferItem, error)
	// ListByTransferForUpdate locks item rows for the surrounding
	// transaction during ship/receive accounting.
	ListByTransferForUpdate(ctx context.Context, tenantID, transferID uuid.UUID) ([]*models.StockTransferItem, error)
	Update(ctx context.Context, item *models.StockTransferItem) error
}

type transferItemRepo struct {
	db DBTX
}

func NewTransferItemRepository(db DBTX) TransferItemRepository {
	return &transferItemRepo{db: db}
}

func (r *transferItemRepo) Create(ctx context.Context, item *models.StockTransferItem) error {
	query := `
		INSERT INTO stock_transfer_items (id, tenant_id, transfer_id, product_id,
			qty_requested, qty_approved, qty_shipped, qty_received, avg_unit_cost_pence,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		item.ID, item.TenantID, item.TransferID, item.ProductID,
		item.QtyRequested, item.QtyApproved, item.QtyShipped, item.QtyReceived, item.AvgUnitCostPence,
	)
	return err
}

const transferItemColumns = `id, tenant_id, transfer_id, product_id, qty_requested, qty_approved,
	qty_shipped, qty_received, avg_unit_cost_pence, created_at, updated_at`

func (r *transferItemRepo) listByTransfer(ctx context.Context, tenantID, transferID uuid.UUID, forUpdate bool) ([]*models.StockTransferItem, error) {
	query := `
		SELECT ` + transferItemColumns + `
		FROM stock_transfer_items
		WHERE tenant_id = $1 AND transfer_id = $2
		ORDER BY created_at ASC, id ASC
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := r.db.Query(ctx, query, tenantID, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.StockTransferItem
	for rows.Next() {
		item := &models.StockTransferItem{}
		if err := rows.Scan(
			&item.ID, &item.TenantID, &item.TransferID, &item.ProductID,
			&item.QtyRequested, &item.QtyApproved, &item.QtyShipped, &item.QtyReceived,
			&item.AvgUnitCostPence, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *transferItemRepo) ListByTransfer(ctx context.Context, tenantID, transferID uuid.UUID) ([]*models.StockTransferItem, error) {
	return r.listByTransfer(ctx, tenantID, transferID, false)
}

func (r *transferItemRepo) ListByTransferForUpdate(ctx context.Context, tenantID, transferID uuid.UUID) ([]*models.StockTransferItem, error) {
	return r.listByTransfer(ctx, tenantID, transferID, true)
}

func (r *transferItemRepo) Update(ctx context.Context, item *models.StockTransferItem) error {
	query := `
		UPDATE stock_transfer_items
		SET qty_approved = $1, qty_shipped = $2, qty_received = $3, avg_unit_cost_pence = $4, updated_at = NOW()
		WHERE tenant_id = $5 AND id = $6
	`
	_, err := r.db.Exec(ctx, query,
		item.QtyApproved, item.QtyShipped, item.QtyReceived, item.AvgUnitCostPence,
		item.TenantID, item.ID,
	)
	return err
}
