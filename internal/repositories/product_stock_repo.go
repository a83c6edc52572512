package repositories

import (
	"context"
	"fmt"

	"stockflow/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ProductStockRepository interface {
	Get(ctx context.Context, tenantID, branchID, productID uuid.UUID) (*models.ProductStock, error)
	// ApplyDelta upserts the aggregate row and shifts on-hand/allocated
	// quantities. It fails rather than let qty_on_hand go negative.
	ApplyDelta(ctx context.Context, tenantID, branchID, productID uuid.UUID, deltaOnHand, deltaAllocated int) error
	ListBelowThreshold(ctx context.Context, tenantID uuid.UUID, threshold int) ([]*models.ProductStock, error)
	List(ctx context.Context, tenantID, branchID uuid.UUID, limit, offset int) ([]*models.ProductStock, error)
}

type productStockRepo struct {
	db DBTX
}

func NewProductStockRepository(db DBTX) ProductStockRepository {
	return &productStockRepo{db: db}
}

func (r *productStockRepo) Get(ctx context.Context, tenantID, branchID, productID uuid.UUID) (*models.ProductStock, error) {
	stock := &models.ProductStock{}
	query := `
		SELECT id, tenant_id, branch_id, product_id, qty_on_hand, qty_allocated, last_updated
		FROM product_stock
		WHERE tenant_id = $1 AND branch_id = $2 AND product_id = $3
	`
	err := r.db.QueryRow(ctx, query, tenantID, branchID, productID).Scan(
		&stock.ID, &stock.TenantID, &stock.BranchID, &stock.ProductID,
		&stock.QtyOnHand, &stock.QtyAllocated, &stock.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return stock, nil
}

func (r *productStockRepo) ApplyDelta(ctx context.Context, tenantID, branchID, productID uuid.UUID, deltaOnHand, deltaAllocated int) error {
	query := `
		INSERT INTO product_stock (id, tenant_id, branch_id, product_id, qty_on_hand, qty_allocated, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (tenant_id, branch_id, product_id) DO UPDATE
		SET qty_on_hand = product_stock.qty_on_hand + EXCLUDED.qty_on_hand,
		    qty_allocated = product_stock.qty_allocated + EXCLUDED.qty_allocated,
		    last_updated = NOW()
		WHERE product_stock.qty_on_hand + EXCLUDED.qty_on_hand >= 0
	`
	tag, err := r.db.Exec(ctx, query, uuid.New(), tenantID, branchID, productID, deltaOnHand, deltaAllocated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock delta would drive qty_on_hand negative for product %s at branch %s", productID, branchID)
	}
	return nil
}

func (r *productStockRepo) ListBelowThreshold(ctx context.Context, tenantID uuid.UUID, threshold int) ([]*models.ProductStock, error) {
	query := `
		SELECT id, tenant_id, branch_id, product_id, qty_on_hand, qty_allocated, last_updated
		FROM product_stock
		WHERE tenant_id = $1 AND qty_on_hand <= $2
		ORDER BY qty_on_hand ASC
	`
	rows, err := r.db.Query(ctx, query, tenantID, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProductStockRows(rows)
}

func (r *productStockRepo) List(ctx context.Context, tenantID, branchID uuid.UUID, limit, offset int) ([]*models.ProductStock, error) {
	query := `
		SELECT id, tenant_id, branch_id, product_id, qty_on_hand, qty_allocated, last_updated
		FROM product_stock
		WHERE tenant_id = $1 AND branch_id = $2
		ORDER BY last_updated DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, tenantID, branchID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProductStockRows(rows)
}

func scanProductStockRows(rows pgx.Rows) ([]*models.ProductStock, error) {
	var stocks []*models.ProductStock
	for rows.Next() {
		stock := &models.ProductStock{}
		if err := rows.Scan(
			&stock.ID, &stock.TenantID, &stock.BranchID, &stock.ProductID,
			&stock.QtyOnHand, &stock.QtyAllocated, &stock.LastUpdated,
		); err != nil {
			return nil, err
		}
		stocks = append(stocks, stock)
	}
	return stocks, rows.Err()
}
