package services

import (
	"context"
	"log"
	"time"

	"stockflow/internal/caching"
	"stockflow/internal/common"
	"stockflow/internal/models"
	"stockflow/internal/repositories"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const productCacheTTL = 10 * time.Minute

type ProductService interface {
	Create(ctx context.Context, product *models.Product) error
	Get(ctx context.Context, tenantID, productID uuid.UUID) (*models.Product, error)
	GetBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*models.Product, error)
	Update(ctx context.Context, product *models.Product) error
	List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Product, error)
}

type productService struct {
	productRepo repositories.ProductRepository
	cache       caching.CacheService
}

func NewProductService(productRepo repositories.ProductRepository, cache caching.CacheService) ProductService {
	return &productService{
		productRepo: productRepo,
		cache:       cache,
	}
}

func (s *productService) Create(ctx context.Context, product *models.Product) error {
	if err := validateProduct(product); err != nil {
		return err
	}
	if existing, err := s.productRepo.GetBySKU(ctx, product.TenantID, product.SKU); err == nil && existing != nil {
		return common.NewConflictError("a product with this SKU already exists")
	} else if err != nil && err != pgx.ErrNoRows {
		return err
	}

	product.ID = uuid.New()
	return s.productRepo.Create(ctx, product)
}

func (s *productService) Get(ctx context.Context, tenantID, productID uuid.UUID) (*models.Product, error) {
	if s.cache != nil {
		cached, err := s.cache.GetProduct(ctx, tenantID, productID)
		if err != nil {
			log.Printf("WARN: product cache read failed: %v", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	product, err := s.productRepo.GetByID(ctx, tenantID, productID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, common.NewNotFoundError("product not found")
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetProduct(ctx, tenantID, product, productCacheTTL); err != nil {
			log.Printf("WARN: product cache write failed: %v", err)
		}
	}
	return product, nil
}

func (s *productService) GetBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*models.Product, error) {
	product, err := s.productRepo.GetBySKU(ctx, tenantID, sku)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, common.NewNotFoundError("product not found")
		}
		return nil, err
	}
	return product, nil
}

func (s *productService) Update(ctx context.Context, product *models.Product) error {
	if err := validateProduct(product); err != nil {
		return err
	}
	if _, err := s.productRepo.GetByID(ctx, product.TenantID, product.ID); err != nil {
		if err == pgx.ErrNoRows {
			return common.NewNotFoundError("product not found")
		}
		return err
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.DeleteProduct(ctx, product.TenantID, product.ID); err != nil {
			log.Printf("WARN: product cache invalidation failed: %v", err)
		}
	}
	return nil
}

func (s *productService) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Product, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.productRepo.List(ctx, tenantID, limit, offset)
}

func validateProduct(product *models.Product) error {
	if product.Name == "" {
		return common.NewValidationError("product name is required")
	}
	if product.SKU == "" {
		return common.NewValidationError("product SKU is required")
	}
	if product.UnitPricePence < 0 {
		return common.NewValidationError("unit price cannot be negative")
	}
	return nil
}
