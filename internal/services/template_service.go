package services

import (
	"context"
	"fmt"
	"time"

	"stockflow/internal/common"
	"stockflow/internal/models"
	"stockflow/internal/repositories"
	"stockflow/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TemplateItemOverride replaces a template item's default quantity when
// instantiating a transfer. Qty 0 drops the line.
type TemplateItemOverride struct {
	ProductID uuid.UUID
	Qty       int
}

type TemplateService interface {
	Create(ctx context.Context, template *models.StockTransferTemplate) error
	Get(ctx context.Context, tenantID, templateID uuid.UUID) (*models.StockTransferTemplate, error)
	Update(ctx context.Context, template *models.StockTransferTemplate) error
	List(ctx context.Context, tenantID uuid.UUID, includeArchived bool, limit, offset int) ([]*models.StockTransferTemplate, error)
	Archive(ctx context.Context, tenantID, templateID, userID uuid.UUID) error
	Restore(ctx context.Context, tenantID, templateID uuid.UUID) error
	// CreateTransfer instantiates a transfer from the template's preset,
	// with optional per-product quantity overrides.
	CreateTransfer(ctx context.Context, tenantID, templateID, userID uuid.UUID, priority string, overrides []TemplateItemOverride, notes *string) (*models.StockTransfer, error)
}

type templateService struct {
	pool         database.TxBeginner
	templateRepo repositories.TemplateRepository
	branchRepo   repositories.BranchRepository
	productRepo  repositories.ProductRepository
	transfers    TransferService
}

func NewTemplateService(pool database.TxBeginner, templateRepo repositories.TemplateRepository, branchRepo repositories.BranchRepository, productRepo repositories.ProductRepository, transfers TransferService) TemplateService {
	return &templateService{
		pool:         pool,
		templateRepo: templateRepo,
		branchRepo:   branchRepo,
		productRepo:  productRepo,
		transfers:    transfers,
	}
}

func (s *templateService) Create(ctx context.Context, template *models.StockTransferTemplate) error {
	if err := s.validate(ctx, template); err != nil {
		return err
	}

	template.ID = uuid.New()
	for _, item := range template.Items {
		item.ID = uuid.New()
		item.TemplateID = template.ID
	}

	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return repositories.NewTemplateRepository(tx).Create(ctx, template)
	})
}

func (s *templateService) Get(ctx context.Context, tenantID, templateID uuid.UUID) (*models.StockTransferTemplate, error) {
	template, err := s.templateRepo.GetByID(ctx, tenantID, templateID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, common.NewNotFoundError("template not found")
		}
		return nil, err
	}
	return template, nil
}

func (s *templateService) Update(ctx context.Context, template *models.StockTransferTemplate) error {
	existing, err := s.Get(ctx, template.TenantID, template.ID)
	if err != nil {
		return err
	}
	if existing.IsArchived() {
		return common.NewConflictError("archived templates cannot be edited")
	}
	if err := s.validate(ctx, template); err != nil {
		return err
	}

	for _, item := range template.Items {
		item.ID = uuid.New()
		item.TemplateID = template.ID
	}

	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return repositories.NewTemplateRepository(tx).Update(ctx, template)
	})
}

func (s *templateService) List(ctx context.Context, tenantID uuid.UUID, includeArchived bool, limit, offset int) ([]*models.StockTransferTemplate, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.templateRepo.List(ctx, tenantID, includeArchived, limit, offset)
}

func (s *templateService) Archive(ctx context.Context, tenantID, templateID, userID uuid.UUID) error {
	template, err := s.Get(ctx, tenantID, templateID)
	if err != nil {
		return err
	}
	if template.IsArchived() {
		return common.NewConflictError("template is already archived")
	}

	template.Archive(userID, time.Now())
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return repositories.NewTemplateRepository(tx).Update(ctx, template)
	})
}

func (s *templateService) Restore(ctx context.Context, tenantID, templateID uuid.UUID) error {
	template, err := s.Get(ctx, tenantID, templateID)
	if err != nil {
		return err
	}
	if !template.IsArchived() {
		return common.NewConflictError("template is not archived")
	}

	template.Restore()
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return repositories.NewTemplateRepository(tx).Update(ctx, template)
	})
}

func (s *templateService) CreateTransfer(ctx context.Context, tenantID, templateID, userID uuid.UUID, priority string, overrides []TemplateItemOverride, notes *string) (*models.StockTransfer, error) {
	template, err := s.Get(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}
	if template.IsArchived() {
		return nil, common.NewConflictError("archived templates cannot create transfers")
	}

	qtyByProduct := make(map[uuid.UUID]int, len(template.Items))
	for _, item := range template.Items {
		qtyByProduct[item.ProductID] = item.DefaultQty
	}
	for _, override := range overrides {
		if _, ok := qtyByProduct[override.ProductID]; !ok {
			return nil, common.NewValidationError("product %s is not on the template", override.ProductID)
		}
		if override.Qty < 0 {
			return nil, common.NewValidationError("override quantities cannot be negative")
		}
		qtyByProduct[override.ProductID] = override.Qty
	}

	var items []CreateTransferItem
	for _, templateItem := range template.Items {
		qty := qtyByProduct[templateItem.ProductID]
		if qty == 0 {
			continue
		}
		items = append(items, CreateTransferItem{ProductID: templateItem.ProductID, Qty: qty})
	}
	if len(items) == 0 {
		return nil, common.NewValidationError("template instantiation has no items left")
	}

	return s.transfers.Create(ctx, CreateTransferParams{
		TenantID:            tenantID,
		SourceBranchID:      template.SourceBranchID,
		DestinationBranchID: template.DestinationBranchID,
		InitiationType:      models.TransferInitiationPush,
		Priority:            priority,
		RequestedByUserID:   userID,
		RequestNotes:        notes,
		Items:               items,
	})
}

func (s *templateService) validate(ctx context.Context, template *models.StockTransferTemplate) error {
	if template.Name == "" {
		return common.NewValidationError("template name is required")
	}
	if template.SourceBranchID == template.DestinationBranchID {
		return common.NewValidationError("source and destination branches must differ")
	}
	if len(template.Items) == 0 {
		return common.NewValidationError("template requires at least one item")
	}

	seen := make(map[uuid.UUID]bool, len(template.Items))
	productIDs := make([]uuid.UUID, 0, len(template.Items))
	for _, item := range template.Items {
		if item.DefaultQty <= 0 {
			return common.NewValidationError("default quantities must be positive")
		}
		if seen[item.ProductID] {
			return common.NewValidationError("duplicate product on template")
		}
		seen[item.ProductID] = true
		productIDs = append(productIDs, item.ProductID)
	}

	for _, branchID := range []uuid.UUID{template.SourceBranchID, template.DestinationBranchID} {
		if _, err := s.branchRepo.GetByID(ctx, template.TenantID, branchID); err != nil {
			if err == pgx.ErrNoRows {
				return common.NewNotFoundError(fmt.Sprintf("branch %s not found", branchID))
			}
			return err
		}
	}

	missing, err := s.productRepo.MissingIDs(ctx, template.TenantID, productIDs)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return common.NewValidationError("unknown products: %v", missing)
	}
	return nil
}
