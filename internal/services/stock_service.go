package services

import (
	"context"
	"log"
	"time"

	"stockflow/internal/caching"
	"stockflow/internal/common"
	"stockflow/internal/models"
	"stockflow/internal/repositories"
	"stockflow/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ReceiveParams describes an inbound quantity that becomes a new FIFO lot.
type ReceiveParams struct {
	TenantID      uuid.UUID
	BranchID      uuid.UUID
	ProductID     uuid.UUID
	Qty           int
	UnitCostPence int64
	SourceRef     *uuid.UUID
	Reason        *string
	Kind          string // ledger kind, defaults to RECEIPT
}

// ConsumeParams describes an outbound quantity drawn from lots oldest-first.
type ConsumeParams struct {
	TenantID  uuid.UUID
	BranchID  uuid.UUID
	ProductID uuid.UUID
	Qty       int
	Reason    *string
	Kind      string // ledger kind, defaults to CONSUMPTION
}

type StockService interface {
	Receive(ctx context.Context, params ReceiveParams) (*models.StockLot, error)
	Consume(ctx context.Context, params ConsumeParams) (*models.ConsumeResult, error)
	// Adjust shifts stock by a signed quantity: positive deltas create an
	// adjustment lot at the given unit cost, negative deltas consume FIFO.
	Adjust(ctx context.Context, tenantID, branchID, productID uuid.UUID, qtyDelta int, unitCostPence int64, reason *string) error
	GetLevel(ctx context.Context, tenantID, branchID, productID uuid.UUID) (*models.ProductStock, error)
	ListLevels(ctx context.Context, tenantID, branchID uuid.UUID, limit, offset int) ([]*models.ProductStock, error)
	ListLots(ctx context.Context, tenantID, branchID, productID uuid.UUID, limit, offset int) ([]*models.StockLot, error)
	ListLedger(ctx context.Context, tenantID, branchID, productID uuid.UUID, limit, offset int) ([]*models.StockLedgerEntry, error)
}

type stockService struct {
	pool             database.TxBeginner
	lotRepo          repositories.StockLotRepository
	ledgerRepo       repositories.StockLedgerRepository
	productStockRepo repositories.ProductStockRepository
	cache            caching.CacheService
}

func NewStockService(pool database.TxBeginner, lotRepo repositories.StockLotRepository, ledgerRepo repositories.StockLedgerRepository, productStockRepo repositories.ProductStockRepository, cache caching.CacheService) StockService {
	return &stockService{
		pool:             pool,
		lotRepo:          lotRepo,
		ledgerRepo:       ledgerRepo,
		productStockRepo: productStockRepo,
		cache:            cache,
	}
}

func (s *stockService) Receive(ctx context.Context, params ReceiveParams) (*models.StockLot, error) {
	var lot *models.StockLot
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var txErr error
		lot, txErr = ReceiveStock(ctx, tx, params)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStockCache(ctx, params.TenantID, params.BranchID, params.ProductID)
	return lot, nil
}

func (s *stockService) Consume(ctx context.Context, params ConsumeParams) (*models.ConsumeResult, error) {
	var result *models.ConsumeResult
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var txErr error
		result, txErr = ConsumeStock(ctx, tx, params)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStockCache(ctx, params.TenantID, params.BranchID, params.ProductID)
	return result, nil
}

func (s *stockService) Adjust(ctx context.Context, tenantID, branchID, productID uuid.UUID, qtyDelta int, unitCostPence int64, reason *string) error {
	if qtyDelta == 0 {
		return common.NewValidationError("adjustment quantity must be non-zero")
	}

	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if qtyDelta > 0 {
			_, txErr := ReceiveStock(ctx, tx, ReceiveParams{
				TenantID:      tenantID,
				BranchID:      branchID,
				ProductID:     productID,
				Qty:           qtyDelta,
				UnitCostPence: unitCostPence,
				Reason:        reason,
				Kind:          models.LedgerKindAdjustment,
			})
			return txErr
		}
		_, txErr := ConsumeStock(ctx, tx, ConsumeParams{
			TenantID:  tenantID,
			BranchID:  branchID,
			ProductID: productID,
			Qty:       -qtyDelta,
			Reason:    reason,
			Kind:      models.LedgerKindAdjustment,
		})
		if common.IsCode(txErr, common.CodeInsufficientStock) {
			// An adjustment writing off more than exists is a bad request,
			// not a stock shortage.
			return common.NewValidationError("adjustment exceeds the quantity on hand")
		}
		return txErr
	})
	if err != nil {
		return err
	}
	s.invalidateStockCache(ctx, tenantID, branchID, productID)
	return nil
}

func (s *stockService) GetLevel(ctx context.Context, tenantID, branchID, productID uuid.UUID) (*models.ProductStock, error) {
	if s.cache != nil {
		cached, err := s.cache.GetProductStock(ctx, tenantID, branchID, productID)
		if err != nil {
			log.Printf("WARN: stock cache read failed: %v", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	stock, err := s.productStockRepo.Get(ctx, tenantID, branchID, productID)
	if err != nil {
		if err == pgx.ErrNoRows {
			// No movements yet means zero on hand, not an error.
			return &models.ProductStock{
				TenantID:  tenantID,
				BranchID:  branchID,
				ProductID: productID,
			}, nil
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetProductStock(ctx, tenantID, stock, 30*time.Second); err != nil {
			log.Printf("WARN: stock cache write failed: %v", err)
		}
	}
	return stock, nil
}

func (s *stockService) ListLevels(ctx context.Context, tenantID, branchID uuid.UUID, limit, offset int) ([]*models.ProductStock, error) {
	return s.productStockRepo.List(ctx, tenantID, branchID, limit, offset)
}

func (s *stockService) ListLots(ctx context.Context, tenantID, branchID, productID uuid.UUID, limit, offset int) ([]*models.StockLot, error) {
	return s.lotRepo.ListByBranchProduct(ctx, tenantID, branchID, productID, limit, offset)
}

func (s *stockService) ListLedger(ctx context.Context, tenantID, branchID, productID uuid.UUID, limit, offset int) ([]*models.StockLedgerEntry, error) {
	return s.ledgerRepo.List(ctx, tenantID, branchID, productID, limit, offset)
}

func (s *stockService) invalidateStockCache(ctx context.Context, tenantID, branchID, productID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteProductStock(ctx, tenantID, branchID, productID); err != nil {
		log.Printf("WARN: stock cache invalidation failed: %v", err)
	}
}

// ReceiveStock creates a lot, a RECEIPT ledger entry, and bumps the branch
// aggregate. It binds fresh repositories to db so it composes into a larger
// transaction.
func ReceiveStock(ctx context.Context, db repositories.DBTX, params ReceiveParams) (*models.StockLot, error) {
	if params.Qty <= 0 {
		return nil, common.NewValidationError("receive quantity must be positive")
	}
	if params.UnitCostPence < 0 {
		return nil, common.NewValidationError("unit cost cannot be negative")
	}

	kind := params.Kind
	if kind == "" {
		kind = models.LedgerKindReceipt
	}

	lotRepo := repositories.NewStockLotRepository(db)
	ledgerRepo := repositories.NewStockLedgerRepository(db)
	productStockRepo := repositories.NewProductStockRepository(db)

	lot := &models.StockLot{
		ID:            uuid.New(),
		TenantID:      params.TenantID,
		BranchID:      params.BranchID,
		ProductID:     params.ProductID,
		QtyReceived:   params.Qty,
		QtyRemaining:  params.Qty,
		UnitCostPence: params.UnitCostPence,
		ReceivedAt:    time.Now(),
		SourceRef:     params.SourceRef,
	}
	if err := lotRepo.Create(ctx, lot); err != nil {
		return nil, err
	}

	lotID := lot.ID
	entry := &models.StockLedgerEntry{
		ID:        uuid.New(),
		TenantID:  params.TenantID,
		BranchID:  params.BranchID,
		ProductID: params.ProductID,
		LotID:     &lotID,
		Kind:      kind,
		QtyDelta:  params.Qty,
		Reason:    params.Reason,
	}
	if err := ledgerRepo.Create(ctx, entry); err != nil {
		return nil, err
	}

	if err := productStockRepo.ApplyDelta(ctx, params.TenantID, params.BranchID, params.ProductID, params.Qty, 0); err != nil {
		return nil, err
	}

	return lot, nil
}

// ConsumeStock draws params.Qty from the branch's lots oldest-first, locking
// them for the duration of the transaction. The whole consume fails upfront
// when the remaining total is short; no partial draw happens.
func ConsumeStock(ctx context.Context, db repositories.DBTX, params ConsumeParams) (*models.ConsumeResult, error) {
	if params.Qty <= 0 {
		return nil, common.NewValidationError("consume quantity must be positive")
	}

	kind := params.Kind
	if kind == "" {
		kind = models.LedgerKindConsumption
	}

	lotRepo := repositories.NewStockLotRepository(db)
	ledgerRepo := repositories.NewStockLedgerRepository(db)
	productStockRepo := repositories.NewProductStockRepository(db)

	lots, err := lotRepo.ListForConsume(ctx, params.TenantID, params.BranchID, params.ProductID)
	if err != nil {
		return nil, err
	}

	available := 0
	for _, lot := range lots {
		available += lot.QtyRemaining
	}
	if available < params.Qty {
		return nil, common.NewInsufficientStockError(available, params.Qty)
	}

	result := &models.ConsumeResult{TotalQty: params.Qty}
	remaining := params.Qty
	var totalCostPence int64

	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		take := lot.QtyRemaining
		if take > remaining {
			take = remaining
		}

		if err := lotRepo.DecrementRemaining(ctx, params.TenantID, lot.ID, take); err != nil {
			return nil, err
		}

		lotID := lot.ID
		entry := &models.StockLedgerEntry{
			ID:        uuid.New(),
			TenantID:  params.TenantID,
			BranchID:  params.BranchID,
			ProductID: params.ProductID,
			LotID:     &lotID,
			Kind:      kind,
			QtyDelta:  -take,
			Reason:    params.Reason,
		}
		if err := ledgerRepo.Create(ctx, entry); err != nil {
			return nil, err
		}

		result.Consumed = append(result.Consumed, models.LotConsumption{
			LotID:         lot.ID,
			Qty:           take,
			UnitCostPence: lot.UnitCostPence,
		})
		totalCostPence += int64(take) * lot.UnitCostPence
		remaining -= take
	}

	if err := productStockRepo.ApplyDelta(ctx, params.TenantID, params.BranchID, params.ProductID, -params.Qty, 0); err != nil {
		return nil, err
	}

	// Weighted average rounded half up; pence stay integral end to end.
	result.AvgUnitCostPence = (totalCostPence + int64(params.Qty)/2) / int64(params.Qty)

	return result, nil
}
