package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stockflow/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateTransferNumber signals a transfer-number uniqueness race; the
// service retries with a fresh number.
var ErrDuplicateTransferNumber = errors.New("duplicate transfer number")

type TransferRepository interface {
	Create(ctx context.Context, transfer *models.StockTransfer) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.StockTransfer, error)
	// GetByIDForUpdate locks the transfer row for the surrounding
	// transaction so concurrent lifecycle actions serialize.
	GetByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*models.StockTransfer, error)
	Update(ctx context.Context, transfer *models.StockTransfer) error
	List(ctx context.Context, tenantID uuid.UUID, filter *models.TransferSearchFilter, accessibleBranchIDs []uuid.UUID) ([]*models.StockTransfer, error)
	ListStaleInTransit(ctx context.Context, tenantID uuid.UUID, olderThanDays int) ([]*models.StockTransfer, error)
	CountForNumberPrefix(ctx context.Context, tenantID uuid.UUID, prefix string) (int, error)
}

type transferRepo struct {
	db DBTX
}

func NewTransferRepository(db DBTX) TransferRepository {
	return &transferRepo{db: db}
}

const transferColumns = `id, tenant_id, transfer_number, source_branch_id, destination_branch_id,
	status, priority, initiation_type, requested_by_user_id, reviewed_by_user_id, shipped_by_user_id,
	request_notes, order_notes, review_notes, expected_delivery_date, requires_multi_level_approval,
	reversal_of_transfer_id, reversed_by_transfer_id, dispatch_note_pdf_url,
	requested_at, reviewed_at, shipped_at, completed_at, cancelled_at, created_at, updated_at`

func scanTransfer(row pgx.Row) (*models.StockTransfer, error) {
	t := &models.StockTransfer{}
	err := row.Scan(
		&t.ID, &t.TenantID, &t.TransferNumber, &t.SourceBranchID, &t.DestinationBranchID,
		&t.Status, &t.Priority, &t.InitiationType, &t.RequestedByUserID, &t.ReviewedByUserID, &t.ShippedByUserID,
		&t.RequestNotes, &t.OrderNotes, &t.ReviewNotes, &t.ExpectedDeliveryDate, &t.RequiresMultiLevelApproval,
		&t.ReversalOfTransferID, &t.ReversedByTransferID, &t.DispatchNotePDFURL,
		&t.RequestedAt, &t.ReviewedAt, &t.ShippedAt, &t.CompletedAt, &t.CancelledAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *transferRepo) Create(ctx context.Context, transfer *models.StockTransfer) error {
	query := `
		INSERT INTO stock_transfers (id, tenant_id, transfer_number, source_branch_id, destination_branch_id,
			status, priority, initiation_type, requested_by_user_id, request_notes, order_notes,
			expected_delivery_date, requires_multi_level_approval, reversal_of_transfer_id,
			requested_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		transfer.ID, transfer.TenantID, transfer.TransferNumber, transfer.SourceBranchID, transfer.DestinationBranchID,
		transfer.Status, transfer.Priority, transfer.InitiationType, transfer.RequestedByUserID,
		transfer.RequestNotes, transfer.OrderNotes, transfer.ExpectedDeliveryDate,
		transfer.RequiresMultiLevelApproval, transfer.ReversalOfTransferID, transfer.RequestedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "transfer_number") {
			return ErrDuplicateTransferNumber
		}
		return err
	}
	return nil
}

func (r *transferRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.StockTransfer, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_transfers WHERE tenant_id = $1 AND id = $2`, transferColumns)
	return scanTransfer(r.db.QueryRow(ctx, query, tenantID, id))
}

func (r *transferRepo) GetByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*models.StockTransfer, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_transfers WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, transferColumns)
	return scanTransfer(r.db.QueryRow(ctx, query, tenantID, id))
}

func (r *transferRepo) Update(ctx context.Context, transfer *models.StockTransfer) error {
	query := `
		UPDATE stock_transfers
		SET status = $1, priority = $2, reviewed_by_user_id = $3, shipped_by_user_id = $4,
		    review_notes = $5, requires_multi_level_approval = $6,
		    reversed_by_transfer_id = $7, dispatch_note_pdf_url = $8,
		    reviewed_at = $9, shipped_at = $10, completed_at = $11, cancelled_at = $12,
		    updated_at = NOW()
		WHERE tenant_id = $13 AND id = $14
	`
	_, err := r.db.Exec(ctx, query,
		transfer.Status, transfer.Priority, transfer.ReviewedByUserID, transfer.ShippedByUserID,
		transfer.ReviewNotes, transfer.RequiresMultiLevelApproval,
		transfer.ReversedByTransferID, transfer.DispatchNotePDFURL,
		transfer.ReviewedAt, transfer.ShippedAt, transfer.CompletedAt, transfer.CancelledAt,
		transfer.TenantID, transfer.ID,
	)
	return err
}

func (r *transferRepo) List(ctx context.Context, tenantID uuid.UUID, filter *models.TransferSearchFilter, accessibleBranchIDs []uuid.UUID) ([]*models.StockTransfer, error) {
	queryBase := fmt.Sprintf(`SELECT %s FROM stock_transfers WHERE tenant_id = $1`, transferColumns)
	args := []interface{}{tenantID}
	conditionCount := 1

	if len(accessibleBranchIDs) > 0 {
		conditionCount++
		queryBase += fmt.Sprintf(` AND (source_branch_id = ANY($%d) OR destination_branch_id = ANY($%d))`, conditionCount, conditionCount)
		args = append(args, accessibleBranchIDs)
	}
	if filter.Status != nil {
		conditionCount++
		queryBase += fmt.Sprintf(` AND status = $%d`, conditionCount)
		args = append(args, *filter.Status)
	}
	if filter.Priority != nil {
		conditionCount++
		queryBase += fmt.Sprintf(` AND priority = $%d`, conditionCount)
		args = append(args, *filter.Priority)
	}
	if filter.SourceBranchID != nil {
		conditionCount++
		queryBase += fmt.Sprintf(` AND source_branch_id = $%d`, conditionCount)
		args = append(args, *filter.SourceBranchID)
	}
	if filter.DestBranchID != nil {
		conditionCount++
		queryBase += fmt.Sprintf(` AND destination_branch_id = $%d`, conditionCount)
		args = append(args, *filter.DestBranchID)
	}
	if filter.RequestedFrom != nil {
		conditionCount++
		queryBase += fmt.Sprintf(` AND requested_at >= $%d`, conditionCount)
		args = append(args, *filter.RequestedFrom)
	}
	if filter.RequestedTo != nil {
		conditionCount++
		queryBase += fmt.Sprintf(` AND requested_at <= $%d`, conditionCount)
		args = append(args, *filter.RequestedTo)
	}

	queryBase += ` ORDER BY requested_at DESC`

	conditionCount++
	queryBase += fmt.Sprintf(` LIMIT $%d`, conditionCount)
	args = append(args, filter.Limit)
	conditionCount++
	queryBase += fmt.Sprintf(` OFFSET $%d`, conditionCount)
	args = append(args, filter.Offset)

	rows, err := r.db.Query(ctx, queryBase, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []*models.StockTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

func (r *transferRepo) ListStaleInTransit(ctx context.Context, tenantID uuid.UUID, olderThanDays int) ([]*models.StockTransfer, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM stock_transfers
		WHERE tenant_id = $1
		  AND status IN ('IN_TRANSIT', 'PARTIALLY_RECEIVED')
		  AND shipped_at < NOW() - ($2 * INTERVAL '1 day')
		ORDER BY shipped_at ASC
	`, transferColumns)
	rows, err := r.db.Query(ctx, query, tenantID, olderThanDays)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []*models.StockTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

func (r *transferRepo) CountForNumberPrefix(ctx context.Context, tenantID uuid.UUID, prefix string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM stock_transfers WHERE tenant_id = $1 AND transfer_number LIKE $2`
	err := r.db.QueryRow(ctx, query, tenantID, prefix+"%").Scan(&count)
	return count, err
}
