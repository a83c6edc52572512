package repositories

import (
	"context"

	"stockflow/internal/models"

	"github.com/google/uuid"
)

type BranchMembershipRepository interface {
	Create(ctx context.Context, membership *models.BranchMembership) error
	Delete(ctx context.Context, tenantID, branchID, userID uuid.UUID) error
	IsMember(ctx context.Context, tenantID, userID, branchID uuid.UUID) (bool, error)
	ListBranchIDsForUser(ctx context.Context, tenantID, userID uuid.UUID) ([]uuid.UUID, error)
}

type branchMembershipRepo struct {
	db DBTX
}

func NewBranchMembershipRepository(db DBTX) BranchMembershipRepository {
	return &branchMembershipRepo{db: db}
}

func (r *branchMembershipRepo) Create(ctx context.Context, membership *models.BranchMembership) error {
	query := `
		INSERT INTO branch_memberships (id, tenant_id, branch_id, user_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant_id, branch_id, user_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, membership.ID, membership.TenantID, membership.BranchID, membership.UserID)
	return err
}

func (r *branchMembershipRepo) Delete(ctx context.Context, tenantID, branchID, userID uuid.UUID) error {
	query := `DELETE FROM branch_memberships WHERE tenant_id = $1 AND branch_id = $2 AND user_id = $3`
	_, err := r.db.Exec(ctx, query, tenantID, branchID, userID)
	return err
}

func (r *branchMembershipRepo) IsMember(ctx context.Context, tenantID, userID, branchID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM branch_memberships
			WHERE tenant_id = $1 AND user_id = $2 AND branch_id = $3
		)
	`
	err := r.db.QueryRow(ctx, query, tenantID, userID, branchID).Scan(&exists)
	return exists, err
}

func (r *branchMembershipRepo) ListBranchIDsForUser(ctx context.Context, tenantID, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT branch_id FROM branch_memberships
		WHERE tenant_id = $1 AND user_id = $2
	`
	rows, err := r.db.Query(ctx, query, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
