package repositories

import (
	"context"
	"fmt"

	"stockflow/internal/models"

	"github.com/google/uuid"
)

type StockLotRepository interface {
	Create(ctx context.Context, lot *models.StockLot) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.StockLot, error)
	// ListForConsume returns lots with remaining quantity for the
	// branch/product, oldest first, locking the rows for the duration of
	// the surrounding transaction.
	ListForConsume(ctx context.Context, tenantID, branchID, productID uuid.UUID) ([]*models.StockLot, error)
	DecrementRemaining(ctx context.Context, tenantID, lotID uuid.UUID, qty int) error
	ListByBranchProduct(ctx context.Context, tenantID, branchID, productID uuid.UUID, limit, offset int) ([]*models.StockLot, error)
	SumRemaining(ctx context.Context, tenantID, branchID, productID uuid.UUID) (int, error)
}

type stockLotRepo struct {
	db DBTX
}

func NewStockLotRepository(db DBTX) StockLotRepository {
	return &stockLotRepo{db: db}
}

func (r *stockLotRepo) Create(ctx context.Context, lot *models.StockLot) error {
	query := `
		INSERT INTO stock_lots (id, tenant_id, branch_id, product_id, qty_received, qty_remaining, unit_cost_pence, received_at, source_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		lot.ID, lot.TenantID, lot.BranchID, lot.ProductID,
		lot.QtyReceived, lot.QtyRemaining, lot.UnitCostPence, lot.ReceivedAt, lot.SourceRef,
	)
	return err
}

func (r *stockLotRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.StockLot, error) {
	lot := &models.StockLot{}
	query := `
		SELECT id, tenant_id, branch_id, product_id, qty_received, qty_remaining, unit_cost_pence, received_at, source_ref
		FROM stock_lots
		WHERE tenant_id = $1 AND id = $2
	`
	err := r.db.QueryRow(ctx, query, tenantID, id).Scan(
		&lot.ID, &lot.TenantID, &lot.BranchID, &lot.ProductID,
		&lot.QtyReceived, &lot.QtyRemaining, &lot.UnitCostPence, &lot.ReceivedAt, &lot.SourceRef,
	)
	if err != nil {
		return nil, err
	}
	return lot, nil
}

func (r *stockLotRepo) ListForConsume(ctx context.Context, tenantID, branchID, productID uuid.UUID) ([]*models.StockLot, error) {
	query := `
		SELECT id, tenant_id, branch_id, product_id, qty_received, qty_remaining, unit_cost_pence, received_at, source_ref
		FROM stock_lots
		WHERE tenant_id = $1 AND branch_id = $2 AND product_id = $3 AND qty_remaining > 0
		ORDER BY received_at ASC, id ASC
		FOR UPDATE
	`
	rows, err := r.db.Query(ctx, query, tenantID, branchID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []*models.StockLot
	for rows.Next() {
		lot := &models.StockLot{}
		if err := rows.Scan(
			&lot.ID, &lot.TenantID, &lot.BranchID, &lot.ProductID,
			&lot.QtyReceived, &lot.QtyRemaining, &lot.UnitCostPence, &lot.ReceivedAt, &lot.SourceRef,
		); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// DecrementRemaining reduces a lot's remaining quantity. The guard in the
// WHERE clause means a concurrent over-consume surfaces as zero rows
// affected rather than a negative balance.
func (r *stockLotRepo) DecrementRemaining(ctx context.Context, tenantID, lotID uuid.UUID, qty int) error {
	query := `
		UPDATE stock_lots
		SET qty_remaining = qty_remaining - $1
		WHERE tenant_id = $2 AND id = $3 AND qty_remaining >= $1
	`
	tag, err := r.db.Exec(ctx, query, qty, tenantID, lotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lot %s has fewer than %d remaining", lotID, qty)
	}
	return nil
}

func (r *stockLotRepo) ListByBranchProduct(ctx context.Context, tenantID, branchID, productID uuid.UUID, limit, offset int) ([]*models.StockLot, error) {
	query := `
		SELECT id, tenant_id, branch_id, product_id, qty_received, qty_remaining, unit_cost_pence, received_at, source_ref
		FROM stock_lots
		WHERE tenant_id = $1 AND branch_id = $2 AND product_id = $3
		ORDER BY received_at ASC, id ASC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.db.Query(ctx, query, tenantID, branchID, productID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []*models.StockLot
	for rows.Next() {
		lot := &models.StockLot{}
		if err := rows.Scan(
			&lot.ID, &lot.TenantID, &lot.BranchID, &lot.ProductID,
			&lot.QtyReceived, &lot.QtyRemaining, &lot.UnitCostPence, &lot.ReceivedAt, &lot.SourceRef,
		); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (r *stockLotRepo) SumRemaining(ctx context.Context, tenantID, branchID, productID uuid.UUID) (int, error) {
	var total int
	query := `
		SELECT COALESCE(SUM(qty_remaining), 0)
		FROM stock_lots
		WHERE tenant_id = $1 AND branch_id = $2 AND product_id = $3
	`
	err := r.db.QueryRow(ctx, query, tenantID, branchID, productID).Scan(&total)
	return total, err
}
