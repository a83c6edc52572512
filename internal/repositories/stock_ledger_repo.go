package repositories

import (
	"context"

	"stockflow/internal/models"

	"github.com/google/uuid"
)

// StockLedgerRepository is append-only: entries are written once and never
// updated or deleted.
type StockLedgerRepository interface {
	Create(ctx context.Context, entry *models.StockLedgerEntry) error
	List(ctx context.Context, tenantID, branchID, productID uuid.UUID, limit, offset int) ([]*models.StockLedgerEntry, error)
}

type stockLedgerRepo struct {
	db DBTX
}

func NewStockLedgerRepository(db DBTX) StockLedgerRepository {
	return &stockLedgerRepo{db: db}
}

func (r *stockLedgerRepo) Create(ctx context.Context, entry *models.StockLedgerEntry) error {
	query := `
		INSERT INTO stock_ledger_entries (id, tenant_id, branch_id, product_id, lot_id, kind, qty_delta, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.TenantID, entry.BranchID, entry.ProductID,
		entry.LotID, entry.Kind, entry.QtyDelta, entry.Reason,
	)
	return err
}

func (r *stockLedgerRepo) List(ctx context.Context, tenantID, branchID, productID uuid.UUID, limit, offset int) ([]*models.StockLedgerEntry, error) {
	query := `
		SELECT id, tenant_id, branch_id, product_id, lot_id, kind, qty_delta, reason, created_at
		FROM stock_ledger_entries
		WHERE tenant_id = $1 AND branch_id = $2 AND product_id = $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.db.Query(ctx, query, tenantID, branchID, productID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.StockLedgerEntry
	for rows.Next() {
		entry := &models.StockLedgerEntry{}
		if err := rows.Scan(
			&entry.ID, &entry.TenantID, &entry.BranchID, &entry.ProductID,
			&entry.LotID, &entry.Kind, &entry.QtyDelta, &entry.Reason, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
