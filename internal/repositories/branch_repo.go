package repositories

import (
	"context"

	"stockflow/internal/models"

	"github.com/google/uuid"
)

type BranchRepository interface {
	Create(ctx context.Context, branch *models.Branch) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Branch, error)
	GetBySlug(ctx context.Context, tenantID uuid.UUID, slug string) (*models.Branch, error)
	Update(ctx context.Context, branch *models.Branch) error
	List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Branch, error)
}

type branchRepo struct {
	db DBTX
}

func NewBranchRepository(db DBTX) BranchRepository {
	return &branchRepo{db: db}
}

func (r *branchRepo) Create(ctx context.Context, branch *models.Branch) error {
	query := `
		INSERT INTO branches (id, tenant_id, name, slug, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, branch.ID, branch.TenantID, branch.Name, branch.Slug, branch.Active)
	return err
}

func (r *branchRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Branch, error) {
	branch := &models.Branch{}
	query := `
		SELECT id, tenant_id, name, slug, active, created_at, updated_at
		FROM branches
		WHERE tenant_id = $1 AND id = $2
	`
	err := r.db.QueryRow(ctx, query, tenantID, id).Scan(
		&branch.ID, &branch.TenantID, &branch.Name, &branch.Slug, &branch.Active,
		&branch.CreatedAt, &branch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return branch, nil
}

func (r *branchRepo) GetBySlug(ctx context.Context, tenantID uuid.UUID, slug string) (*models.Branch, error) {
	branch := &models.Branch{}
	query := `
		SELECT id, tenant_id, name, slug, active, created_at, updated_at
		FROM branches
		WHERE tenant_id = $1 AND slug = $2
	`
	err := r.db.QueryRow(ctx, query, tenantID, slug).Scan(
		&branch.ID, &branch.TenantID, &branch.Name, &branch.Slug, &branch.Active,
		&branch.CreatedAt, &branch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return branch, nil
}

func (r *branchRepo) Update(ctx context.Context, branch *models.Branch) error {
	query := `
		UPDATE branches
		SET name = $1, slug = $2, active = $3, updated_at = NOW()
		WHERE tenant_id = $4 AND id = $5
	`
	_, err := r.db.Exec(ctx, query, branch.Name, branch.Slug, branch.Active, branch.TenantID, branch.ID)
	return err
}

func (r *branchRepo) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Branch, error) {
	query := `
		SELECT id, tenant_id, name, slug, active, created_at, updated_at
		FROM branches
		WHERE tenant_id = $1
		ORDER BY name ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []*models.Branch
	for rows.Next() {
		branch := &models.Branch{}
		if err := rows.Scan(
			&branch.ID, &branch.TenantID, &branch.Name, &branch.Slug, &branch.Active,
			&branch.CreatedAt, &branch.UpdatedAt,
		); err != nil {
			return nil, err
		}
		branches = append(branches, branch)
	}
	return branches, rows.Err()
}
