package services

import (
	"context"
	"fmt"
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

const (
	transferNumberAttempts = 3
	maxNoteLength          = 2000
)

// CreateTransferParams is the request payload for opening a transfer.
type CreateTransferParams struct {
	TenantID            uuid.UUID
	SourceBranchID      uuid.UUID
	DestinationBranchID uuid.UUID
	InitiationType      string
	Priority            string
	RequestedByUserID   uuid.UUID
	RequestNotes        *string
	OrderNotes          *string
	ExpectedDelivery    *time.Time
	Items               []CreateTransferItem
}

type CreateTransferItem struct {
	ProductID uuid.UUID
	Qty       int
}

// ItemQuantity addresses one transfer item with a quantity, used by review,
// ship, and receive payloads.
type ItemQuantity struct {
	ItemID uuid.UUID
	Qty    int
}

type TransferService interface {
	Create(ctx context.Context, params CreateTransferParams) (*models.StockTransfer, error)
	Get(ctx context.Context, tenantID, transferID, userID uuid.UUID) (*models.StockTransfer, error)
	List(ctx context.Context, tenantID, userID uuid.UUID, filter *models.TransferSearchFilter) ([]*models.StockTransfer, error)
	// Review decides a single-level transfer: approve with per-item
	// quantities (capped at requested) or reject outright.
	Review(ctx context.Context, tenantID, transferID, reviewerID uuid.UUID, approve bool, approvals []ItemQuantity, notes *string) (*models.StockTransfer, error)
	// Ship moves quantities out of the source branch as one numbered batch,
	// consuming source lots FIFO.
	Ship(ctx context.Context, tenantID, transferID, shipperID uuid.UUID, lines []ItemQuantity) (*models.StockTransfer, error)
	// Receive books quantities into the destination branch at the shipped
	// weighted-average cost. A line asking for more than is in transit
	// fails validation.
	Receive(ctx context.Context, tenantID, transferID, receiverID uuid.UUID, lines []ItemQuantity) (*models.StockTransfer, error)
	Cancel(ctx context.Context, tenantID, transferID, userID uuid.UUID, notes *string) (*models.StockTransfer, error)
	// Reverse moves received stock back from destination to source via a
	// linked counter-transfer. A transfer reverses at most once.
	Reverse(ctx context.Context, tenantID, transferID, userID uuid.UUID, notes *string) (*models.StockTransfer, error)
	UpdatePriority(ctx context.Context, tenantID, transferID, userID uuid.UUID, priority string) (*models.StockTransfer, error)
	ListShipments(ctx context.Context, tenantID, transferID uuid.UUID) ([]*models.ShipmentBatch, error)
	RegenerateDispatchNote(ctx context.Context, tenantID, transferID uuid.UUID) (string, error)
}

type transferService struct {
	pool         database.TxBeginner
	transferRepo repositories.TransferRepository
	itemRepo     repositories.TransferItemRepository
	batchRepo    repositories.ShipmentBatchRepository
	ruleRepo     repositories.ApprovalRuleRepository
	productRepo  repositories.ProductRepository
	branchRepo   repositories.BranchRepository
	rbac         RBACService
	audit        AuditLogsService
	dispatchNote DispatchNoteService
	cache        caching.CacheService
}

func NewTransferService(
	pool database.TxBeginner,
	transferRepo repositories.TransferRepository,
	itemRepo repositories.TransferItemRepository,
	batchRepo repositories.ShipmentBatchRepository,
	ruleRepo repositories.ApprovalRuleRepository,
	productRepo repositories.ProductRepository,
	branchRepo repositories.BranchRepository,
	rbac RBACService,
	audit AuditLogsService,
	dispatchNote DispatchNoteService,
	cache caching.CacheService,
) TransferService {
	return &transferService{
		pool:         pool,
		transferRepo: transferRepo,
		itemRepo:     itemRepo,
		batchRepo:    batchRepo,
		ruleRepo:     ruleRepo,
		productRepo:  productRepo,
		branchRepo:   branchRepo,
		rbac:         rbac,
		audit:        audit,
		dispatchNote: dispatchNote,
		cache:        cache,
	}
}

func (s *transferService) Create(ctx context.Context, params CreateTransferParams) (*models.StockTransfer, error) {
	if params.SourceBranchID == params.DestinationBranchID {
		return nil, common.NewValidationError("source and destination branches must differ")
	}
	if len(params.Items) == 0 {
		return nil, common.NewValidationError("transfer requires at least one item")
	}
	if params.InitiationType != models.TransferInitiationPush && params.InitiationType != models.TransferInitiationPull {
		return nil, common.NewValidationError("initiation_type must be PUSH or PULL")
	}
	if params.Priority == "" {
		params.Priority = models.TransferPriorityNormal
	}
	if !models.ValidTransferPriority(params.Priority) {
		return nil, common.NewValidationError("invalid priority")
	}
	if err := common.ValidateOptionalString(params.RequestNotes, "request_notes", maxNoteLength); err != nil {
		return nil, common.NewValidationError("%s", err.Error())
	}
	if err := common.ValidateOptionalString(params.OrderNotes, "order_notes", maxNoteLength); err != nil {
		return nil, common.NewValidationError("%s", err.Error())
	}

	seen := make(map[uuid.UUID]bool, len(params.Items))
	productIDs := make([]uuid.UUID, 0, len(params.Items))
	for _, item := range params.Items {
		if item.Qty <= 0 {
			return nil, common.NewValidationError("item quantities must be positive")
		}
		if seen[item.ProductID] {
			return nil, common.NewValidationError("duplicate product in transfer items")
		}
		seen[item.ProductID] = true
		productIDs = append(productIDs, item.ProductID)
	}

	for _, branchID := range []uuid.UUID{params.SourceBranchID, params.DestinationBranchID} {
		branch, err := s.branchRepo.GetByID(ctx, params.TenantID, branchID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil, common.NewNotFoundError(fmt.Sprintf("branch %s not found", branchID))
			}
			return nil, err
		}
		if !branch.Active {
			return nil, common.NewValidationError("branch %s is inactive", branchID)
		}
	}

	missing, err := s.productRepo.MissingIDs(ctx, params.TenantID, productIDs)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, common.NewValidationError("unknown products: %v", missing)
	}

	totals := TransferTotals{}
	for _, item := range params.Items {
		product, err := s.productRepo.GetByID(ctx, params.TenantID, item.ProductID)
		if err != nil {
			return nil, err
		}
		totals.TotalQty += item.Qty
		totals.TotalValuePence += int64(item.Qty) * product.UnitPricePence
	}

	rules, err := s.ruleRepo.ListActive(ctx, params.TenantID)
	if err != nil {
		return nil, err
	}

	var transfer *models.StockTransfer
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		transferRepo := repositories.NewTransferRepository(tx)
		itemRepo := repositories.NewTransferItemRepository(tx)

		now := time.Now()
		transfer = &models.StockTransfer{
			ID:                   uuid.New(),
			TenantID:             params.TenantID,
			SourceBranchID:       params.SourceBranchID,
			DestinationBranchID:  params.DestinationBranchID,
			Status:               models.TransferStatusRequested,
			Priority:             params.Priority,
			InitiationType:       params.InitiationType,
			RequestedByUserID:    params.RequestedByUserID,
			RequestNotes:         params.RequestNotes,
			OrderNotes:           params.OrderNotes,
			ExpectedDeliveryDate: params.ExpectedDelivery,
			RequestedAt:          now,
		}

		matched := MatchApprovalRule(rules, transfer, totals)
		transfer.RequiresMultiLevelApproval = matched != nil

		created := false
		for attempt := 0; attempt < transferNumberAttempts; attempt++ {
			number, numErr := s.nextTransferNumber(ctx, transferRepo, params.TenantID, now, attempt)
			if numErr != nil {
				return numErr
			}
			transfer.TransferNumber = number
			if createErr := transferRepo.Create(ctx, transfer); createErr != nil {
				if createErr == repositories.ErrDuplicateTransferNumber {
					continue
				}
				return createErr
			}
			created = true
			break
		}
		if !created {
			return common.NewConflictError("could not allocate a unique transfer number")
		}

		for _, line := range params.Items {
			item := &models.StockTransferItem{
				ID:           uuid.New(),
				TenantID:     params.TenantID,
				TransferID:   transfer.ID,
				ProductID:    line.ProductID,
				QtyRequested: line.Qty,
			}
			if err := itemRepo.Create(ctx, item); err != nil {
				return err
			}
			transfer.Items = append(transfer.Items, item)
		}

		if matched != nil {
			if err := MaterializeApprovalRecords(ctx, tx, matched, params.TenantID, transfer.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logTransferAction(ctx, transfer, params.RequestedByUserID, "TRANSFER_REQUESTED")
	return transfer, nil
}

// nextTransferNumber allocates TRF-YYYYMMDD-NNNN. Retries bump the sequence
// past numbers taken by concurrent creates.
func (s *transferService) nextTransferNumber(ctx context.Context, repo repositories.TransferRepository, tenantID uuid.UUID, now time.Time, attempt int) (string, error) {
	prefix := fmt.Sprintf("TRF-%s-", now.Format("20060102"))
	count, err := repo.CountForNumberPrefix(ctx, tenantID, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, count+1+attempt), nil
}

func (s *transferService) Get(ctx context.Context, tenantID, transferID, userID uuid.UUID) (*models.StockTransfer, error) {
	transfer, err := s.transferRepo.GetByID(ctx, tenantID, transferID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, common.NewNotFoundError("transfer not found")
		}
		return nil, err
	}

	if err := s.authorizeBranchAccess(ctx, tenantID, userID, transfer); err != nil {
		return nil, err
	}

	items, err := s.itemRepo.ListByTransfer(ctx, tenantID, transferID)
	if err != nil {
		return nil, err
	}
	transfer.Items = items
	return transfer, nil
}

func (s *transferService) List(ctx context.Context, tenantID, userID uuid.UUID, filter *models.TransferSearchFilter) ([]*models.StockTransfer, error) {
	if filter == nil {
		filter = &models.TransferSearchFilter{}
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Status != nil && *filter.Status != "" {
		switch *filter.Status {
		case models.TransferStatusRequested, models.TransferStatusApproved, models.TransferStatusRejected,
			models.TransferStatusInTransit, models.TransferStatusPartiallyReceived,
			models.TransferStatusCompleted, models.TransferStatusCancelled, models.TransferStatusReversed:
		default:
			return nil, common.NewValidationError("unknown status filter")
		}
	}

	branchIDs, err := s.rbac.AccessibleBranchIDs(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if len(branchIDs) == 0 {
		return []*models.StockTransfer{}, nil
	}

	return s.transferRepo.List(ctx, tenantID, filter, branchIDs)
}

func (s *transferService) Review(ctx context.Context, tenantID, transferID, reviewerID uuid.UUID, approve bool, approvals []ItemQuantity, notes *string) (*models.StockTransfer, error) {
	if err := common.ValidateOptionalString(notes, "notes", maxNoteLength); err != nil {
		return nil, common.NewValidationError("%s", err.Error())
	}

	var transfer *models.StockTransfer

	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		transferRepo := repositories.NewTransferRepository(tx)
		itemRepo := repositories.NewTransferItemRepository(tx)

		var err error
		transfer, err = transferRepo.GetByIDForUpdate(ctx, tenantID, transferID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return common.NewNotFoundError("transfer not found")
			}
			return err
		}
		if transfer.Status != models.TransferStatusRequested {
			return common.NewConflictError("cannot review a %s transfer", transfer.Status)
		}
		if transfer.RequiresMultiLevelApproval {
			return common.NewConflictError("transfer is gated by an approval chain; use the approvals endpoint")
		}

		now := time.Now()
		reviewer := reviewerID
		transfer.ReviewedByUserID = &reviewer
		transfer.ReviewNotes = notes
		transfer.ReviewedAt = &now

		if !approve {
			transfer.Status = models.TransferStatusRejected
			return transferRepo.Update(ctx, transfer)
		}

		items, err := itemRepo.ListByTransferForUpdate(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		approvedByItem := make(map[uuid.UUID]int, len(approvals))
		for _, a := range approvals {
			if a.Qty < 0 {
				return common.NewValidationError("approved quantities cannot be negative")
			}
			approvedByItem[a.ItemID] = a.Qty
		}

		stockRepo := repositories.NewProductStockRepository(tx)
		for _, item := range items {
			qty, ok := approvedByItem[item.ID]
			if !ok {
				qty = item.QtyRequested
			}
			if qty > item.QtyRequested {
				return common.NewValidationError("approved quantity exceeds requested quantity")
			}
			item.QtyApproved = &qty
			if err := itemRepo.Update(ctx, item); err != nil {
				return err
			}
			// Approved quantities reserve source stock until shipped or
			// cancelled.
			if qty > 0 {
				if err := stockRepo.ApplyDelta(ctx, tenantID, transfer.SourceBranchID, item.ProductID, 0, qty); err != nil {
					return err
				}
			}
		}

		transfer.Status = models.TransferStatusApproved
		return transferRepo.Update(ctx, transfer)
	})
	if err != nil {
		return nil, err
	}

	action := "TRANSFER_REJECTED"
	if approve {
		action = "TRANSFER_APPROVED"
	}
	s.logTransferAction(ctx, transfer, reviewerID, action)
	return transfer, nil
}

func (s *transferService) Ship(ctx context.Context, tenantID, transferID, shipperID uuid.UUID, lines []ItemQuantity) (*models.StockTransfer, error) {
	var transfer *models.StockTransfer
	var fullyShipped bool

	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		transferRepo := repositories.NewTransferRepository(tx)
		itemRepo := repositories.NewTransferItemRepository(tx)
		batchRepo := repositories.NewShipmentBatchRepository(tx)

		var err error
		transfer, err = transferRepo.GetByIDForUpdate(ctx, tenantID, transferID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return common.NewNotFoundError("transfer not found")
			}
			return err
		}
		if transfer.Status != models.TransferStatusApproved {
			return common.NewConflictError("cannot ship a %s transfer", transfer.Status)
		}

		items, err := itemRepo.ListByTransferForUpdate(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		itemsByID := make(map[uuid.UUID]*models.StockTransferItem, len(items))
		for _, item := range items {
			itemsByID[item.ID] = item
		}

		// No lines means ship everything still outstanding.
		if len(lines) == 0 {
			for _, item := range items {
				if item.QtyApproved == nil {
					continue
				}
				if remaining := *item.QtyApproved - item.QtyShipped; remaining > 0 {
					lines = append(lines, ItemQuantity{ItemID: item.ID, Qty: remaining})
				}
			}
			if len(lines) == 0 {
				return common.NewConflictError("nothing left to ship")
			}
		}

		now := time.Now()
		batchNumber, err := batchRepo.NextBatchNumber(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		batch := &models.ShipmentBatch{
			ID:              uuid.New(),
			TenantID:        tenantID,
			TransferID:      transferID,
			BatchNumber:     batchNumber,
			ShippedByUserID: shipperID,
			ShippedAt:       now,
		}

		stockRepo := repositories.NewProductStockRepository(tx)
		reason := fmt.Sprintf("transfer %s batch %d", transfer.TransferNumber, batchNumber)
		for _, line := range lines {
			if line.Qty <= 0 {
				return common.NewValidationError("shipment quantities must be positive")
			}
			item, ok := itemsByID[line.ItemID]
			if !ok {
				return common.NewNotFoundError(fmt.Sprintf("transfer item %s not found", line.ItemID))
			}
			if item.QtyApproved == nil {
				return common.NewConflictError("item has no approved quantity")
			}
			if item.QtyShipped+line.Qty > *item.QtyApproved {
				return common.NewValidationError("shipping %d would exceed approved quantity %d", item.QtyShipped+line.Qty, *item.QtyApproved)
			}

			result, err := ConsumeStock(ctx, tx, ConsumeParams{
				TenantID:  tenantID,
				BranchID:  transfer.SourceBranchID,
				ProductID: item.ProductID,
				Qty:       line.Qty,
				Reason:    &reason,
			})
			if err != nil {
				return err
			}

			// Shipped units stop being a reservation.
			if err := stockRepo.ApplyDelta(ctx, tenantID, transfer.SourceBranchID, item.ProductID, 0, -line.Qty); err != nil {
				return err
			}

			var batchCostPence int64
			for _, c := range result.Consumed {
				batchCostPence += int64(c.Qty) * c.UnitCostPence
			}

			// Running weighted average across batches, rounded half up.
			priorCost := item.AvgUnitCostPence * int64(item.QtyShipped)
			newShipped := item.QtyShipped + line.Qty
			item.AvgUnitCostPence = (priorCost + batchCostPence + int64(newShipped)/2) / int64(newShipped)
			item.QtyShipped = newShipped
			if err := itemRepo.Update(ctx, item); err != nil {
				return err
			}

			batch.Items = append(batch.Items, &models.ShipmentBatchItem{
				ID:               uuid.New(),
				BatchID:          batch.ID,
				TransferItemID:   item.ID,
				ProductID:        item.ProductID,
				Qty:              line.Qty,
				AvgUnitCostPence: result.AvgUnitCostPence,
			})
		}

		if err := batchRepo.Create(ctx, batch); err != nil {
			return err
		}

		// The transfer stays APPROVED while partially shipped so further
		// batches can follow; it goes IN_TRANSIT only once every item is
		// shipped in full.
		fullyShipped = true
		for _, item := range items {
			if item.QtyApproved == nil || item.QtyShipped < *item.QtyApproved {
				fullyShipped = false
				break
			}
		}
		if fullyShipped {
			shipper := shipperID
			transfer.Status = models.TransferStatusInTransit
			transfer.ShippedByUserID = &shipper
			transfer.ShippedAt = &now
		}

		transfer.Items = items
		return transferRepo.Update(ctx, transfer)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBranchStock(ctx, tenantID, transfer.SourceBranchID, transfer.Items)
	s.logTransferAction(ctx, transfer, shipperID, "TRANSFER_SHIPPED")

	if fullyShipped && transfer.DispatchNotePDFURL == nil {
		s.generateDispatchNote(ctx, tenantID, transferID)
	}

	return transfer, nil
}

// generateDispatchNote renders and stores the PDF after the final batch
// ships. Failures are logged, never surfaced: the shipment already happened.
func (s *transferService) generateDispatchNote(ctx context.Context, tenantID, transferID uuid.UUID) {
	transfer, err := s.transferRepo.GetByID(ctx, tenantID, transferID)
	if err != nil {
		log.Printf("WARN: dispatch note: reload transfer %s failed: %v", transferID, err)
		return
	}
	items, err := s.itemRepo.ListByTransfer(ctx, tenantID, transferID)
	if err != nil {
		log.Printf("WARN: dispatch note: load items for %s failed: %v", transferID, err)
		return
	}

	products := make(map[uuid.UUID]*models.Product, len(items))
	for _, item := range items {
		product, err := s.productRepo.GetByID(ctx, tenantID, item.ProductID)
		if err != nil {
			log.Printf("WARN: dispatch note: load product %s failed: %v", item.ProductID, err)
			continue
		}
		products[item.ProductID] = product
	}

	sourceBranch, err := s.branchRepo.GetByID(ctx, tenantID, transfer.SourceBranchID)
	if err != nil {
		log.Printf("WARN: dispatch note: load source branch failed: %v", err)
		return
	}
	destBranch, err := s.branchRepo.GetByID(ctx, tenantID, transfer.DestinationBranchID)
	if err != nil {
		log.Printf("WARN: dispatch note: load destination branch failed: %v", err)
		return
	}

	url, err := s.dispatchNote.Generate(ctx, transfer, items, products, sourceBranch, destBranch)
	if err != nil {
		log.Printf("WARN: dispatch note generation failed for %s: %v", transfer.TransferNumber, err)
		return
	}

	transfer.DispatchNotePDFURL = &url
	if err := s.transferRepo.Update(ctx, transfer); err != nil {
		log.Printf("WARN: dispatch note: persist URL for %s failed: %v", transfer.TransferNumber, err)
	}
}

func (s *transferService) Receive(ctx context.Context, tenantID, transferID, receiverID uuid.UUID, lines []ItemQuantity) (*models.StockTransfer, error) {
	if len(lines) == 0 {
		return nil, common.NewValidationError("receipt requires at least one line")
	}

	var transfer *models.StockTransfer

	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		transferRepo := repositories.NewTransferRepository(tx)
		itemRepo := repositories.NewTransferItemRepository(tx)

		var err error
		transfer, err = transferRepo.GetByIDForUpdate(ctx, tenantID, transferID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return common.NewNotFoundError("transfer not found")
			}
			return err
		}
		if transfer.Status != models.TransferStatusInTransit && transfer.Status != models.TransferStatusPartiallyReceived {
			return common.NewConflictError("cannot receive a %s transfer", transfer.Status)
		}

		items, err := itemRepo.ListByTransferForUpdate(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		itemsByID := make(map[uuid.UUID]*models.StockTransferItem, len(items))
		for _, item := range items {
			itemsByID[item.ID] = item
		}

		transferRef := transfer.ID
		reason := fmt.Sprintf("transfer %s receipt", transfer.TransferNumber)
		for _, line := range lines {
			if line.Qty <= 0 {
				return common.NewValidationError("receipt quantities must be positive")
			}
			item, ok := itemsByID[line.ItemID]
			if !ok {
				return common.NewNotFoundError(fmt.Sprintf("transfer item %s not found", line.ItemID))
			}

			// Over-receipt is a hard failure here; scan tooling warns the
			// operator before it ever calls in.
			inTransit := item.QtyShipped - item.QtyReceived
			if line.Qty > inTransit {
				return common.NewValidationError("receiving %d exceeds the %d units in transit", line.Qty, inTransit)
			}

			if _, err := ReceiveStock(ctx, tx, ReceiveParams{
				TenantID:      tenantID,
				BranchID:      transfer.DestinationBranchID,
				ProductID:     item.ProductID,
				Qty:           line.Qty,
				UnitCostPence: item.AvgUnitCostPence,
				SourceRef:     &transferRef,
				Reason:        &reason,
			}); err != nil {
				return err
			}

			item.QtyReceived += line.Qty
			if err := itemRepo.Update(ctx, item); err != nil {
				return err
			}
		}

		complete := true
		for _, item := range items {
			if item.QtyApproved == nil || item.QtyShipped < *item.QtyApproved || item.QtyReceived < item.QtyShipped {
				complete = false
				break
			}
		}

		if complete {
			now := time.Now()
			transfer.Status = models.TransferStatusCompleted
			transfer.CompletedAt = &now
		} else {
			transfer.Status = models.TransferStatusPartiallyReceived
		}
		transfer.Items = items
		return transferRepo.Update(ctx, transfer)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBranchStock(ctx, tenantID, transfer.DestinationBranchID, transfer.Items)
	s.logTransferAction(ctx, transfer, receiverID, "TRANSFER_RECEIVED")
	return transfer, nil
}

func (s *transferService) Cancel(ctx context.Context, tenantID, transferID, userID uuid.UUID, notes *string) (*models.StockTransfer, error) {
	if err := common.ValidateOptionalString(notes, "notes", maxNoteLength); err != nil {
		return nil, common.NewValidationError("%s", err.Error())
	}

	var transfer *models.StockTransfer

	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		transferRepo := repositories.NewTransferRepository(tx)

		var err error
		transfer, err = transferRepo.GetByIDForUpdate(ctx, tenantID, transferID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return common.NewNotFoundError("transfer not found")
			}
			return err
		}
		if transfer.Status != models.TransferStatusRequested && transfer.Status != models.TransferStatusApproved {
			return common.NewConflictError("cannot cancel a %s transfer", transfer.Status)
		}
		items, err := repositories.NewTransferItemRepository(tx).ListByTransfer(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.QtyShipped > 0 {
				return common.NewConflictError("cannot cancel a transfer with shipped stock")
			}
		}

		// Approved transfers hold reservations that must come back.
		if transfer.Status == models.TransferStatusApproved {
			stockRepo := repositories.NewProductStockRepository(tx)
			for _, item := range items {
				if item.QtyApproved == nil || *item.QtyApproved == 0 {
					continue
				}
				if err := stockRepo.ApplyDelta(ctx, tenantID, transfer.SourceBranchID, item.ProductID, 0, -*item.QtyApproved); err != nil {
					return err
				}
			}
		}

		now := time.Now()
		transfer.Status = models.TransferStatusCancelled
		transfer.CancelledAt = &now
		if notes != nil {
			transfer.ReviewNotes = notes
		}
		return transferRepo.Update(ctx, transfer)
	})
	if err != nil {
		return nil, err
	}

	s.logTransferAction(ctx, transfer, userID, "TRANSFER_CANCELLED")
	return transfer, nil
}

func (s *transferService) Reverse(ctx context.Context, tenantID, transferID, userID uuid.UUID, notes *string) (*models.StockTransfer, error) {
	if err := common.ValidateOptionalString(notes, "notes", maxNoteLength); err != nil {
		return nil, common.NewValidationError("%s", err.Error())
	}

	var reversal *models.StockTransfer
	var original *models.StockTransfer

	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		transferRepo := repositories.NewTransferRepository(tx)
		itemRepo := repositories.NewTransferItemRepository(tx)

		var err error
		original, err = transferRepo.GetByIDForUpdate(ctx, tenantID, transferID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return common.NewNotFoundError("transfer not found")
			}
			return err
		}
		if original.Status != models.TransferStatusCompleted {
			return common.NewConflictError("only completed transfers can be reversed, transfer is %s", original.Status)
		}
		if original.ReversedByTransferID != nil {
			return common.NewConflictError("transfer has already been reversed")
		}

		originalItems, err := itemRepo.ListByTransfer(ctx, tenantID, transferID)
		if err != nil {
			return err
		}

		now := time.Now()
		originalRef := original.ID
		reversal = &models.StockTransfer{
			ID:                   uuid.New(),
			TenantID:             tenantID,
			SourceBranchID:       original.DestinationBranchID,
			DestinationBranchID:  original.SourceBranchID,
			Status:               models.TransferStatusCompleted,
			Priority:             original.Priority,
			InitiationType:       original.InitiationType,
			RequestedByUserID:    userID,
			RequestNotes:         notes,
			ReversalOfTransferID: &originalRef,
			RequestedAt:          now,
			CompletedAt:          &now,
		}

		created := false
		for attempt := 0; attempt < transferNumberAttempts; attempt++ {
			number, numErr := s.nextTransferNumber(ctx, transferRepo, tenantID, now, attempt)
			if numErr != nil {
				return numErr
			}
			reversal.TransferNumber = number
			if createErr := transferRepo.Create(ctx, reversal); createErr != nil {
				if createErr == repositories.ErrDuplicateTransferNumber {
					continue
				}
				return createErr
			}
			created = true
			break
		}
		if !created {
			return common.NewConflictError("could not allocate a unique transfer number")
		}

		reason := fmt.Sprintf("reversal of transfer %s", original.TransferNumber)
		reversalRef := reversal.ID
		for _, originalItem := range originalItems {
			if originalItem.QtyReceived == 0 {
				continue
			}
			qty := originalItem.QtyReceived

			// Pull the stock back out of the destination FIFO and book it
			// at the original transfer's weighted cost at the source.
			result, err := ConsumeStock(ctx, tx, ConsumeParams{
				TenantID:  tenantID,
				BranchID:  original.DestinationBranchID,
				ProductID: originalItem.ProductID,
				Qty:       qty,
				Reason:    &reason,
			})
			if err != nil {
				return err
			}
			if _, err := ReceiveStock(ctx, tx, ReceiveParams{
				TenantID:      tenantID,
				BranchID:      original.SourceBranchID,
				ProductID:     originalItem.ProductID,
				Qty:           qty,
				UnitCostPence: result.AvgUnitCostPence,
				SourceRef:     &reversalRef,
				Reason:        &reason,
			}); err != nil {
				return err
			}

			approved := qty
			item := &models.StockTransferItem{
				ID:               uuid.New(),
				TenantID:         tenantID,
				TransferID:       reversal.ID,
				ProductID:        originalItem.ProductID,
				QtyRequested:     qty,
				QtyApproved:      &approved,
				QtyShipped:       qty,
				QtyReceived:      qty,
				AvgUnitCostPence: result.AvgUnitCostPence,
			}
			if err := itemRepo.Create(ctx, item); err != nil {
				return err
			}
			reversal.Items = append(reversal.Items, item)
		}

		original.Status = models.TransferStatusReversed
		original.ReversedByTransferID = &reversalRef
		return transferRepo.Update(ctx, original)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBranchStock(ctx, tenantID, original.SourceBranchID, reversal.Items)
	s.invalidateBranchStock(ctx, tenantID, original.DestinationBranchID, reversal.Items)
	s.logTransferAction(ctx, reversal, userID, "TRANSFER_REVERSED")
	return reversal, nil
}

func (s *transferService) UpdatePriority(ctx context.Context, tenantID, transferID, userID uuid.UUID, priority string) (*models.StockTransfer, error) {
	if !models.ValidTransferPriority(priority) {
		return nil, common.NewValidationError("invalid priority")
	}

	var transfer *models.StockTransfer
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		transferRepo := repositories.NewTransferRepository(tx)

		var err error
		transfer, err = transferRepo.GetByIDForUpdate(ctx, tenantID, transferID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return common.NewNotFoundError("transfer not found")
			}
			return err
		}
		if transfer.Status != models.TransferStatusRequested && transfer.Status != models.TransferStatusApproved {
			return common.NewConflictError("priority can only change before shipment")
		}

		transfer.Priority = priority
		return transferRepo.Update(ctx, transfer)
	})
	if err != nil {
		return nil, err
	}

	s.logTransferAction(ctx, transfer, userID, "TRANSFER_PRIORITY_CHANGED")
	return transfer, nil
}

func (s *transferService) ListShipments(ctx context.Context, tenantID, transferID uuid.UUID) ([]*models.ShipmentBatch, error) {
	if _, err := s.transferRepo.GetByID(ctx, tenantID, transferID); err != nil {
		if err == pgx.ErrNoRows {
			return nil, common.NewNotFoundError("transfer not found")
		}
		return nil, err
	}
	return s.batchRepo.ListByTransfer(ctx, tenantID, transferID)
}

func (s *transferService) RegenerateDispatchNote(ctx context.Context, tenantID, transferID uuid.UUID) (string, error) {
	transfer, err := s.transferRepo.GetByID(ctx, tenantID, transferID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", common.NewNotFoundError("transfer not found")
		}
		return "", err
	}
	if transfer.DispatchNotePDFURL == nil {
		return "", common.NewConflictError("transfer has no dispatch note yet")
	}

	url, err := s.dispatchNote.RegenerateURL(transfer)
	if err != nil {
		return "", err
	}

	transfer.DispatchNotePDFURL = &url
	if err := s.transferRepo.Update(ctx, transfer); err != nil {
		return "", err
	}
	return url, nil
}

func (s *transferService) authorizeBranchAccess(ctx context.Context, tenantID, userID uuid.UUID, transfer *models.StockTransfer) error {
	for _, branchID := range []uuid.UUID{transfer.SourceBranchID, transfer.DestinationBranchID} {
		member, err := s.rbac.IsBranchMember(ctx, tenantID, branchID, userID)
		if err != nil {
			return err
		}
		if member {
			return nil
		}
	}
	return common.NewPermissionDeniedError("user is not a member of either branch on this transfer")
}

func (s *transferService) invalidateBranchStock(ctx context.Context, tenantID, branchID uuid.UUID, items []*models.StockTransferItem) {
	if s.cache == nil {
		return
	}
	for _, item := range items {
		if err := s.cache.DeleteProductStock(ctx, tenantID, branchID, item.ProductID); err != nil {
			log.Printf("WARN: stock cache invalidation failed: %v", err)
		}
	}
}

func (s *transferService) logTransferAction(ctx context.Context, transfer *models.StockTransfer, userID uuid.UUID, action string) {
	actor := userID
	if err := s.audit.LogActivity(ctx, transfer.TenantID, "stock_transfers", transfer.ID.String(), action, &actor, nil, models.JSONB{
		"transfer_number": transfer.TransferNumber,
		"status":          transfer.Status,
	}); err != nil {
		log.Printf("WARN: audit log failed for %s: %v", action, err)
	}
}
