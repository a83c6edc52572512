package repositories

import (
	"context"

	"stockflow/internal/models"

	"github.com/google/uuid"
)

type ApprovalRecordRepository interface {
	Create(ctx context.Context, record *models.ApprovalRecord) error
	ListByTransfer(ctx context.Context, tenantID, transferID uuid.UUID) ([]*models.ApprovalRecord, error)
	ListByTransferForUpdate(ctx context.Context, tenantID, transferID uuid.UUID) ([]*models.ApprovalRecord, error)
	Update(ctx context.Context, record *models.ApprovalRecord) error
}

type approvalRecordRepo struct {
	db DBTX
}

func NewApprovalRecordRepository(db DBTX) ApprovalRecordRepository {
	return &approvalRecordRepo{db: db}
}

func (r *approvalRecordRepo) Create(ctx context.Context, record *models.ApprovalRecord) error {
	query := `
		INSERT INTO approval_records (id, tenant_id, transfer_id, rule_id, level_number, status,
			required_role_id, required_user_id, approved_by_user_id, notes, decided_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	`
	_, err := r.db.Exec(ctx, query,
		record.ID, record.TenantID, record.TransferID, record.RuleID, record.LevelNumber, record.Status,
		record.RequiredRoleID, record.RequiredUserID, record.ApprovedByUserID, record.Notes, record.DecidedAt,
	)
	return err
}

func (r *approvalRecordRepo) listByTransfer(ctx context.Context, tenantID, transferID uuid.UUID, forUpdate bool) ([]*models.ApprovalRecord, error) {
	query := `
		SELECT id, tenant_id, transfer_id, rule_id, level_number, status,
			required_role_id, required_user_id, approved_by_user_id, notes, decided_at, created_at
		FROM approval_records
		WHERE tenant_id = $1 AND transfer_id = $2
		ORDER BY level_number ASC
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := r.db.Query(ctx, query, tenantID, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.ApprovalRecord
	for rows.Next() {
		record := &models.ApprovalRecord{}
		if err := rows.Scan(
			&record.ID, &record.TenantID, &record.TransferID, &record.RuleID, &record.LevelNumber, &record.Status,
			&record.RequiredRoleID, &record.RequiredUserID, &record.ApprovedByUserID, &record.Notes,
			&record.DecidedAt, &record.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *approvalRecordRepo) ListByTransfer(ctx context.Context, tenantID, transferID uuid.UUID) ([]*models.ApprovalRecord, error) {
	return r.listByTransfer(ctx, tenantID, transferID, false)
}

func (r *approvalRecordRepo) ListByTransferForUpdate(ctx context.Context, tenantID, transferID uuid.UUID) ([]*models.ApprovalRecord, error) {
	return r.listByTransfer(ctx, tenantID, transferID, true)
}

func (r *approvalRecordRepo) Update(ctx context.Context, record *models.ApprovalRecord) error {
	query := `
		UPDATE approval_records
		SET status = $1, approved_by_user_id = $2, notes = $3, decided_at = $4
		WHERE tenant_id = $5 AND id = $6
	`
	_, err := r.db.Exec(ctx, query,
		record.Status, record.ApprovedByUserID, record.Notes, record.DecidedAt,
		record.TenantID, record.ID,
	)
	return err
}
