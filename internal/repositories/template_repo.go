package repositories

import (
	"context"

	"stockflow/internal/models"

	"github.com/google/uuid"
)

type TemplateRepository interface {
	Create(ctx context.Context, template *models.StockTransferTemplate) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.StockTransferTemplate, error)
	Update(ctx context.Context, template *models.StockTransferTemplate) error
	List(ctx context.Context, tenantID uuid.UUID, includeArchived bool, limit, offset int) ([]*models.StockTransferTemplate, error)
}

type templateRepo struct {
	db DBTX
}

func NewTemplateRepository(db DBTX) TemplateRepository {
	return &templateRepo{db: db}
}

const templateColumns = `id, tenant_id, name, description, source_branch_id, destination_branch_id,
	created_by_user_id, archived_at, archived_by_user_id, created_at, updated_at`

func (r *templateRepo) Create(ctx context.Context, template *models.StockTransferTemplate) error {
	query := `
		INSERT INTO stock_transfer_templates (id, tenant_id, name, description, source_branch_id,
			destination_branch_id, created_by_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`
	if _, err := r.db.Exec(ctx, query,
		template.ID, template.TenantID, template.Name, template.Description,
		template.SourceBranchID, template.DestinationBranchID, template.CreatedByUserID,
	); err != nil {
		return err
	}

	return r.insertItems(ctx, template)
}

func (r *templateRepo) insertItems(ctx context.Context, template *models.StockTransferTemplate) error {
	itemQuery := `
		INSERT INTO template_items (id, template_id, product_id, default_qty)
		VALUES ($1, $2, $3, $4)
	`
	for _, item := range template.Items {
		if _, err := r.db.Exec(ctx, itemQuery, item.ID, item.TemplateID, item.ProductID, item.DefaultQty); err != nil {
			return err
		}
	}
	return nil
}

func (r *templateRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.StockTransferTemplate, error) {
	template := &models.StockTransferTemplate{}
	query := `SELECT ` + templateColumns + ` FROM stock_transfer_templates WHERE tenant_id = $1 AND id = $2`
	err := r.db.QueryRow(ctx, query, tenantID, id).Scan(
		&template.ID, &template.TenantID, &template.Name, &template.Description,
		&template.SourceBranchID, &template.DestinationBranchID, &template.CreatedByUserID,
		&template.ArchivedAt, &template.ArchivedByUserID, &template.CreatedAt, &template.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	items, err := r.listItems(ctx, template.ID)
	if err != nil {
		return nil, err
	}
	template.Items = items
	return template, nil
}

func (r *templateRepo) listItems(ctx context.Context, templateID uuid.UUID) ([]*models.TemplateItem, error) {
	query := `
		SELECT id, template_id, product_id, default_qty
		FROM template_items
		WHERE template_id = $1
		ORDER BY id ASC
	`
	rows, err := r.db.Query(ctx, query, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.TemplateItem
	for rows.Next() {
		item := &models.TemplateItem{}
		if err := rows.Scan(&item.ID, &item.TemplateID, &item.ProductID, &item.DefaultQty); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *templateRepo) Update(ctx context.Context, template *models.StockTransferTemplate) error {
	query := `
		UPDATE stock_transfer_templates
		SET name = $1, description = $2, source_branch_id = $3, destination_branch_id = $4,
		    archived_at = $5, archived_by_user_id = $6, updated_at = NOW()
		WHERE tenant_id = $7 AND id = $8
	`
	if _, err := r.db.Exec(ctx, query,
		template.Name, template.Description, template.SourceBranchID, template.DestinationBranchID,
		template.ArchivedAt, template.ArchivedByUserID, template.TenantID, template.ID,
	); err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, `DELETE FROM template_items WHERE template_id = $1`, template.ID); err != nil {
		return err
	}
	return r.insertItems(ctx, template)
}

func (r *templateRepo) List(ctx context.Context, tenantID uuid.UUID, includeArchived bool, limit, offset int) ([]*models.StockTransferTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM stock_transfer_templates WHERE tenant_id = $1`
	if !includeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY name ASC LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*models.StockTransferTemplate
	for rows.Next() {
		template := &models.StockTransferTemplate{}
		if err := rows.Scan(
			&template.ID, &template.TenantID, &template.Name, &template.Description,
			&template.SourceBranchID, &template.DestinationBranchID, &template.CreatedByUserID,
			&template.ArchivedAt, &template.ArchivedByUserID, &template.CreatedAt, &template.UpdatedAt,
		); err != nil {
			return nil, err
		}
		templates = append(templates, template)
	}
	return templates, rows.Err()
}
