package repositories

import (
	"context"

	"stockflow/internal/models"

	"github.com/google/uuid"
)

type ShipmentBatchRepository interface {
	Create(ctx context.Context, batch *models.ShipmentBatch) error
	ListByTransfer(ctx context.Context, tenantID, transferID uuid.UUID) ([]*models.ShipmentBatch, error)
	NextBatchNumber(ctx context.Context, tenantID, transferID uuid.UUID) (int, error)
}

type shipmentBatchRepo struct {
	db DBTX
}

func NewShipmentBatchRepository(db DBTX) ShipmentBatchRepository {
	return &shipmentBatchRepo{db: db}
}

func (r *shipmentBatchRepo) Create(ctx context.Context, batch *models.ShipmentBatch) error {
	query := `
		INSERT INTO shipment_batches (id, tenant_id, transfer_id, batch_number, shipped_by_user_id, shipped_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		batch.ID, batch.TenantID, batch.TransferID, batch.BatchNumber, batch.ShippedByUserID, batch.ShippedAt,
	)
	if err != nil {
		return err
	}

	itemQuery := `
		INSERT INTO shipment_batch_items (id, batch_id, transfer_item_id, product_id, qty, avg_unit_cost_pence)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, item := range batch.Items {
		if _, err := r.db.Exec(ctx, itemQuery,
			item.ID, item.BatchID, item.TransferItemID, item.ProductID, item.Qty, item.AvgUnitCostPence,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *shipmentBatchRepo) ListByTransfer(ctx context.Context, tenantID, transferID uuid.UUID) ([]*models.ShipmentBatch, error) {
	query := `
		SELECT id, tenant_id, transfer_id, batch_number, shipped_by_user_id, shipped_at
		FROM shipment_batches
		WHERE tenant_id = $1 AND transfer_id = $2
		ORDER BY batch_number ASC
	`
	rows, err := r.db.Query(ctx, query, tenantID, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*models.ShipmentBatch
	for rows.Next() {
		batch := &models.ShipmentBatch{}
		if err := rows.Scan(
			&batch.ID, &batch.TenantID, &batch.TransferID, &batch.BatchNumber,
			&batch.ShippedByUserID, &batch.ShippedAt,
		); err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, batch := range batches {
		items, err := r.listBatchItems(ctx, batch.ID)
		if err != nil {
			return nil, err
		}
		batch.Items = items
	}
	return batches, nil
}

func (r *shipmentBatchRepo) listBatchItems(ctx context.Context, batchID uuid.UUID) ([]*models.ShipmentBatchItem, error) {
	query := `
		SELECT id, batch_id, transfer_item_id, product_id, qty, avg_unit_cost_pence
		FROM shipment_batch_items
		WHERE batch_id = $1
		ORDER BY id ASC
	`
	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.ShipmentBatchItem
	for rows.Next() {
		item := &models.ShipmentBatchItem{}
		if err := rows.Scan(
			&item.ID, &item.BatchID, &item.TransferItemID, &item.ProductID, &item.Qty, &item.AvgUnitCostPence,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *shipmentBatchRepo) NextBatchNumber(ctx context.Context, tenantID, transferID uuid.UUID) (int, error) {
	var next int
	query := `
		SELECT COALESCE(MAX(batch_number), 0) + 1
		FROM shipment_batches
		WHERE tenant_id = $1 AND transfer_id = $2
	`
	err := r.db.QueryRow(ctx, query, tenantID, transferID).Scan(&next)
	return next, err
}
