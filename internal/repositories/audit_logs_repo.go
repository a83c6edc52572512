package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"stockflow/internal/models"

	"github.com/google/uuid"
)

type AuditLogsRepository interface {
	Create(ctx context.Context, auditLog *models.AuditLog) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.AuditLog, error)
	List(ctx context.Context, tenantID uuid.UUID, filters *models.AuditLogFilters) ([]*models.AuditLog, error)
}

type auditLogsRepo struct {
	db DBTX
}

func NewAuditLogsRepository(db DBTX) AuditLogsRepository {
	return &auditLogsRepo{db: db}
}

func (r *auditLogsRepo) Create(ctx context.Context, auditLog *models.AuditLog) error {
	oldValues, err := json.Marshal(auditLog.OldValues)
	if err != nil {
		return err
	}
	newValues, err := json.Marshal(auditLog.NewValues)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_logs (id, tenant_id, table_name, record_id, action, old_values, new_values, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	_, err = r.db.Exec(ctx, query,
		auditLog.ID, auditLog.TenantID, auditLog.TableName, auditLog.RecordID, auditLog.Action,
		oldValues, newValues, auditLog.ChangedBy,
	)
	return err
}

func (r *auditLogsRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.AuditLog, error) {
	auditLog := &models.AuditLog{}
	var oldValues, newValues []byte
	query := `
		SELECT id, tenant_id, table_name, record_id, action, old_values, new_values, changed_by, created_at
		FROM audit_logs
		WHERE tenant_id = $1 AND id = $2
	`
	err := r.db.QueryRow(ctx, query, tenantID, id).Scan(
		&auditLog.ID, &auditLog.TenantID, &auditLog.TableName, &auditLog.RecordID, &auditLog.Action,
		&oldValues, &newValues, &auditLog.ChangedBy, &auditLog.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(oldValues) > 0 {
		if err := json.Unmarshal(oldValues, &auditLog.OldValues); err != nil {
			return nil, err
		}
	}
	if len(newValues) > 0 {
		if err := json.Unmarshal(newValues, &auditLog.NewValues); err != nil {
			return nil, err
		}
	}
	return auditLog, nil
}

func (r *auditLogsRepo) List(ctx context.Context, tenantID uuid.UUID, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	queryBase := `
		SELECT id, tenant_id, table_name, record_id, action, old_values, new_values, changed_by, created_at
		FROM audit_logs
		WHERE tenant_id = $1
	`
	args := []interface{}{tenantID}
	conditionCount := 1

	if filters.TableName != nil {
		conditionCount++
		queryBase += fmt.Sprintf(` AND table_name = $%d`, conditionCount)
		args = append(args, *filters.TableName)
	}
	if filters.RecordID != nil {
		conditionCount++
		queryBase += fmt.Sprintf(` AND record_id = $%d`, conditionCount)
		args = append(args, *filters.RecordID)
	}
	if filters.Action != nil {
		conditionCount++
		queryBase += fmt.Sprintf(` AND action = $%d`, conditionCount)
		args = append(args, *filters.Action)
	}
	if filters.ChangedBy != nil {
		conditionCount++
		queryBase += fmt.Sprintf(` AND changed_by = $%d`, conditionCount)
		args = append(args, *filters.ChangedBy)
	}
	if filters.StartDate != nil {
		conditionCount++
		queryBase += fmt.Sprintf(` AND created_at >= $%d`, conditionCount)
		args = append(args, *filters.StartDate)
	}
	if filters.EndDate != nil {
		conditionCount++
		queryBase += fmt.Sprintf(` AND created_at <= $%d`, conditionCount)
		args = append(args, *filters.EndDate)
	}

	queryBase += ` ORDER BY created_at DESC`
	conditionCount++
	queryBase += fmt.Sprintf(` LIMIT $%d`, conditionCount)
	args = append(args, filters.Limit)
	conditionCount++
	queryBase += fmt.Sprintf(` OFFSET $%d`, conditionCount)
	args = append(args, filters.Offset)

	rows, err := r.db.Query(ctx, queryBase, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		auditLog := &models.AuditLog{}
		var oldValues, newValues []byte
		if err := rows.Scan(
			&auditLog.ID, &auditLog.TenantID, &auditLog.TableName, &auditLog.RecordID, &auditLog.Action,
			&oldValues, &newValues, &auditLog.ChangedBy, &auditLog.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(oldValues) > 0 {
			if err := json.Unmarshal(oldValues, &auditLog.OldValues); err != nil {
				return nil, err
			}
		}
		if len(newValues) > 0 {
			if err := json.Unmarshal(newValues, &auditLog.NewValues); err != nil {
				return nil, err
			}
		}
		logs = append(logs, auditLog)
	}
	return logs, rows.Err()
}
