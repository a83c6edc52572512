package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"stockflow/internal/common"
	"stockflow/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type MockTransferRepository struct {
	mock.Mock
}

func (m *MockTransferRepository) Create(ctx context.Context, transfer *models.StockTransfer) error {
	args := m.Called(ctx, transfer)
	return args.Error(0)
}

func (m *MockTransferRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.StockTransfer, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StockTransfer), args.Error(1)
}

func (m *MockTransferRepository) GetByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*models.StockTransfer, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StockTransfer), args.Error(1)
}

func (m *MockTransferRepository) Update(ctx context.Context, transfer *models.StockTransfer) error {
	args := m.Called(ctx, transfer)
	return args.Error(0)
}

func (m *MockTransferRepository) List(ctx context.Context, tenantID uuid.UUID, filter *models.TransferSearchFilter, accessibleBranchIDs []uuid.UUID) ([]*models.StockTransfer, error) {
	args := m.Called(ctx, tenantID, filter, accessibleBranchIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.StockTransfer), args.Error(1)
}

func (m *MockTransferRepository) ListStaleInTransit(ctx context.Context, tenantID uuid.UUID, olderThanDays int) ([]*models.StockTransfer, error) {
	args := m.Called(ctx, tenantID, olderThanDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.StockTransfer), args.Error(1)
}

func (m *MockTransferRepository) CountForNumberPrefix(ctx context.Context, tenantID uuid.UUID, prefix string) (int, error) {
	args := m.Called(ctx, tenantID, prefix)
	return args.Int(0), args.Error(1)
}

type MockBranchRepository struct {
	mock.Mock
}

func (m *MockBranchRepository) Create(ctx context.Context, branch *models.Branch) error {
	args := m.Called(ctx, branch)
	return args.Error(0)
}

func (m *MockBranchRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Branch, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Branch), args.Error(1)
}

func (m *MockBranchRepository) GetBySlug(ctx context.Context, tenantID uuid.UUID, slug string) (*models.Branch, error) {
	args := m.Called(ctx, tenantID, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Branch), args.Error(1)
}

func (m *MockBranchRepository) Update(ctx context.Context, branch *models.Branch) error {
	args := m.Called(ctx, branch)
	return args.Error(0)
}

func (m *MockBranchRepository) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Branch, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Branch), args.Error(1)
}

// stockTransferRows emits a transfer the way the stock_transfers SELECT
// column list orders it, so mocked queries scan cleanly.
func stockTransferRows(t *models.StockTransfer) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "transfer_number", "source_branch_id", "destination_branch_id",
		"status", "priority", "initiation_type", "requested_by_user_id", "reviewed_by_user_id", "shipped_by_user_id",
		"request_notes", "order_notes", "review_notes", "expected_delivery_date", "requires_multi_level_approval",
		"reversal_of_transfer_id", "reversed_by_transfer_id", "dispatch_note_pdf_url",
		"requested_at", "reviewed_at", "shipped_at", "completed_at", "cancelled_at", "created_at", "updated_at",
	}).AddRow(
		t.ID, t.TenantID, t.TransferNumber, t.SourceBranchID, t.DestinationBranchID,
		t.Status, t.Priority, t.InitiationType, t.RequestedByUserID, t.ReviewedByUserID, t.ShippedByUserID,
		t.RequestNotes, t.OrderNotes, t.ReviewNotes, t.ExpectedDeliveryDate, t.RequiresMultiLevelApproval,
		t.ReversalOfTransferID, t.ReversedByTransferID, t.DispatchNotePDFURL,
		t.RequestedAt, t.ReviewedAt, t.ShippedAt, t.CompletedAt, t.CancelledAt, t.CreatedAt, t.UpdatedAt,
	)
}

func transferItemRows(items ...*models.StockTransferItem) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "tenant_id", "transfer_id", "product_id",
		"qty_requested", "qty_approved", "qty_shipped", "qty_received",
		"avg_unit_cost_pence", "created_at", "updated_at",
	})
	for _, item := range items {
		rows.AddRow(
			item.ID, item.TenantID, item.TransferID, item.ProductID,
			item.QtyRequested, item.QtyApproved, item.QtyShipped, item.QtyReceived,
			item.AvgUnitCostPence, item.CreatedAt, item.UpdatedAt,
		)
	}
	return rows
}

func TestCreateTransferValidation(t *testing.T) {
	service := &transferService{}
	ctx := context.Background()
	branchA := uuid.New()
	branchB := uuid.New()
	productID := uuid.New()

	base := func() CreateTransferParams {
		return CreateTransferParams{
			TenantID:            uuid.New(),
			SourceBranchID:      branchA,
			DestinationBranchID: branchB,
			InitiationType:      models.TransferInitiationPush,
			RequestedByUserID:   uuid.New(),
			Items:               []CreateTransferItem{{ProductID: productID, Qty: 5}},
		}
	}

	t.Run("same source and destination", func(t *testing.T) {
		params := base()
		params.DestinationBranchID = params.SourceBranchID
		_, err := service.Create(ctx, params)
		assert.True(t, common.IsCode(err, common.CodeValidation))
	})

	t.Run("no items", func(t *testing.T) {
		params := base()
		params.Items = nil
		_, err := service.Create(ctx, params)
		assert.True(t, common.IsCode(err, common.CodeValidation))
	})

	t.Run("unknown initiation type", func(t *testing.T) {
		params := base()
		params.InitiationType = "SIDEWAYS"
		_, err := service.Create(ctx, params)
		assert.True(t, common.IsCode(err, common.CodeValidation))
	})

	t.Run("unknown priority", func(t *testing.T) {
		params := base()
		params.Priority = "WHENEVER"
		_, err := service.Create(ctx, params)
		assert.True(t, common.IsCode(err, common.CodeValidation))
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		params := base()
		params.Items[0].Qty = 0
		_, err := service.Create(ctx, params)
		assert.True(t, common.IsCode(err, common.CodeValidation))
	})

	t.Run("duplicate product", func(t *testing.T) {
		params := base()
		params.Items = append(params.Items, CreateTransferItem{ProductID: productID, Qty: 3})
		_, err := service.Create(ctx, params)
		assert.True(t, common.IsCode(err, common.CodeValidation))
	})

	t.Run("request notes too long", func(t *testing.T) {
		params := base()
		notes := strings.Repeat("x", maxNoteLength+1)
		params.RequestNotes = &notes
		_, err := service.Create(ctx, params)
		assert.True(t, common.IsCode(err, common.CodeValidation))
	})

	t.Run("order notes too long", func(t *testing.T) {
		params := base()
		notes := strings.Repeat("y", maxNoteLength+1)
		params.OrderNotes = &notes
		_, err := service.Create(ctx, params)
		assert.True(t, common.IsCode(err, common.CodeValidation))
	})
}

func TestCreateTransferBranchChecks(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	sourceID := uuid.New()
	destID := uuid.New()

	params := CreateTransferParams{
		TenantID:            tenantID,
		SourceBranchID:      sourceID,
		DestinationBranchID: destID,
		InitiationType:      models.TransferInitiationPush,
		RequestedByUserID:   uuid.New(),
		Items:               []CreateTransferItem{{ProductID: uuid.New(), Qty: 5}},
	}

	t.Run("inactive source branch", func(t *testing.T) {
		branchRepo := &MockBranchRepository{}
		branchRepo.On("GetByID", ctx, tenantID, sourceID).
			Return(&models.Branch{ID: sourceID, TenantID: tenantID, Active: false}, nil)
		service := &transferService{branchRepo: branchRepo}

		_, err := service.Create(ctx, params)
		assert.True(t, common.IsCode(err, common.CodeValidation))
		branchRepo.AssertExpectations(t)
	})

	t.Run("inactive destination branch", func(t *testing.T) {
		branchRepo := &MockBranchRepository{}
		branchRepo.On("GetByID", ctx, tenantID, sourceID).
			Return(&models.Branch{ID: sourceID, TenantID: tenantID, Active: true}, nil)
		branchRepo.On("GetByID", ctx, tenantID, destID).
			Return(&models.Branch{ID: destID, TenantID: tenantID, Active: false}, nil)
		service := &transferService{branchRepo: branchRepo}

		_, err := service.Create(ctx, params)
		assert.True(t, common.IsCode(err, common.CodeValidation))
	})

	t.Run("unknown branch", func(t *testing.T) {
		branchRepo := &MockBranchRepository{}
		branchRepo.On("GetByID", ctx, tenantID, sourceID).Return(nil, pgx.ErrNoRows)
		service := &transferService{branchRepo: branchRepo}

		_, err := service.Create(ctx, params)
		assert.True(t, common.IsCode(err, common.CodeNotFound))
	})
}

func TestGetTransferScopedToTenant(t *testing.T) {
	ctx := context.Background()
	transferID := uuid.New()
	otherTenant := uuid.New()

	// The repository never finds rows outside the caller's tenant, so a
	// valid ID under another tenant reads as missing.
	repo := &MockTransferRepository{}
	repo.On("GetByID", ctx, otherTenant, transferID).Return(nil, pgx.ErrNoRows)
	service := &transferService{transferRepo: repo}

	_, err := service.Get(ctx, otherTenant, transferID, uuid.New())
	assert.True(t, common.IsCode(err, common.CodeNotFound))
}

func TestNextTransferNumber(t *testing.T) {
	service := &transferService{}
	ctx := context.Background()
	tenantID := uuid.New()
	now := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	prefix := fmt.Sprintf("TRF-%s-", now.Format("20060102"))

	t.Run("sequence follows daily count", func(t *testing.T) {
		repo := &MockTransferRepository{}
		repo.On("CountForNumberPrefix", ctx, tenantID, prefix).Return(41, nil)

		number, err := service.nextTransferNumber(ctx, repo, tenantID, now, 0)
		require.NoError(t, err)
		assert.Equal(t, "TRF-20260314-0042", number)
	})

	t.Run("retry attempts bump the sequence", func(t *testing.T) {
		repo := &MockTransferRepository{}
		repo.On("CountForNumberPrefix", ctx, tenantID, prefix).Return(41, nil)

		number, err := service.nextTransferNumber(ctx, repo, tenantID, now, 2)
		require.NoError(t, err)
		assert.Equal(t, "TRF-20260314-0044", number)
	})

	t.Run("first transfer of the day", func(t *testing.T) {
		repo := &MockTransferRepository{}
		repo.On("CountForNumberPrefix", ctx, tenantID, prefix).Return(0, nil)

		number, err := service.nextTransferNumber(ctx, repo, tenantID, now, 0)
		require.NoError(t, err)
		assert.Equal(t, "TRF-20260314-0001", number)
	})
}

// TransferLifecycleTestSuite drives the transactional lifecycle methods
// against a mocked pool, the same way the stock flow suite exercises the
// lot-level helpers.
type TransferLifecycleTestSuite struct {
	suite.Suite
	pool       pgxmock.PgxPoolIface
	auditRepo  *MockAuditLogsRepository
	service    *transferService
	ctx        context.Context
	tenantID   uuid.UUID
	transferID uuid.UUID
	sourceID   uuid.UUID
	destID     uuid.UUID
	productID  uuid.UUID
	itemID     uuid.UUID
	actorID    uuid.UUID
}

func (suite *TransferLifecycleTestSuite) SetupTest() {
	pool, err := pgxmock.NewPool()
	require.NoError(suite.T(), err)
	suite.pool = pool
	suite.auditRepo = &MockAuditLogsRepository{}
	suite.auditRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	suite.service = &transferService{
		pool:  pool,
		audit: NewAuditLogsService(suite.auditRepo),
	}
	suite.ctx = context.Background()
	suite.tenantID = uuid.New()
	suite.transferID = uuid.New()
	suite.sourceID = uuid.New()
	suite.destID = uuid.New()
	suite.productID = uuid.New()
	suite.itemID = uuid.New()
	suite.actorID = uuid.New()
}

func (suite *TransferLifecycleTestSuite) TearDownTest() {
	suite.pool.Close()
}

func TestTransferLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(TransferLifecycleTestSuite))
}

func (suite *TransferLifecycleTestSuite) transfer(status string) *models.StockTransfer {
	now := time.Now()
	return &models.StockTransfer{
		ID:                  suite.transferID,
		TenantID:            suite.tenantID,
		TransferNumber:      "TRF-20260830-0007",
		SourceBranchID:      suite.sourceID,
		DestinationBranchID: suite.destID,
		Status:              status,
		Priority:            models.TransferPriorityNormal,
		InitiationType:      models.TransferInitiationPush,
		RequestedByUserID:   suite.actorID,
		RequestedAt:         now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func (suite *TransferLifecycleTestSuite) item(approved *int, shipped, received int, avgCostPence int64) *models.StockTransferItem {
	now := time.Now()
	return &models.StockTransferItem{
		ID:               suite.itemID,
		TenantID:         suite.tenantID,
		TransferID:       suite.transferID,
		ProductID:        suite.productID,
		QtyRequested:     10,
		QtyApproved:      approved,
		QtyShipped:       shipped,
		QtyReceived:      received,
		AvgUnitCostPence: avgCostPence,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (suite *TransferLifecycleTestSuite) sourceLot(remaining int, unitCostPence int64) *models.StockLot {
	return &models.StockLot{
		ID:            uuid.New(),
		TenantID:      suite.tenantID,
		BranchID:      suite.sourceID,
		ProductID:     suite.productID,
		QtyReceived:   remaining,
		QtyRemaining:  remaining,
		UnitCostPence: unitCostPence,
		ReceivedAt:    time.Now().Add(-24 * time.Hour),
	}
}

func (suite *TransferLifecycleTestSuite) sourceLotRows(lot *models.StockLot) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "branch_id", "product_id",
		"qty_received", "qty_remaining", "unit_cost_pence", "received_at", "source_ref",
	}).AddRow(
		lot.ID, lot.TenantID, lot.BranchID, lot.ProductID,
		lot.QtyReceived, lot.QtyRemaining, lot.UnitCostPence, lot.ReceivedAt, lot.SourceRef,
	)
}

func (suite *TransferLifecycleTestSuite) expectTransferLoad(transfer *models.StockTransfer) {
	suite.pool.ExpectQuery(`SELECT (.+) FROM stock_transfers WHERE (.+) FOR UPDATE`).
		WithArgs(suite.tenantID, suite.transferID).
		WillReturnRows(stockTransferRows(transfer))
}

func (suite *TransferLifecycleTestSuite) expectItemLoad(items ...*models.StockTransferItem) {
	suite.pool.ExpectQuery(`SELECT (.+) FROM stock_transfer_items`).
		WithArgs(suite.tenantID, suite.transferID).
		WillReturnRows(transferItemRows(items...))
}

// expectShipBatch covers one full shipment batch drawn from a single lot:
// FIFO consumption, the reservation release, the running item average, and
// the batch records themselves.
func (suite *TransferLifecycleTestSuite) expectShipBatch(batchNumber, qty int, lot *models.StockLot, approved *int, newShipped int, newAvgPence int64) {
	suite.pool.ExpectQuery(`SELECT COALESCE\(MAX\(batch_number\), 0\)`).
		WithArgs(suite.tenantID, suite.transferID).
		WillReturnRows(pgxmock.NewRows([]string{"next"}).AddRow(batchNumber))
	suite.pool.ExpectQuery(`SELECT (.+) FROM stock_lots`).
		WithArgs(suite.tenantID, suite.sourceID, suite.productID).
		WillReturnRows(suite.sourceLotRows(lot))
	suite.pool.ExpectExec(`UPDATE stock_lots`).
		WithArgs(qty, suite.tenantID, lot.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.pool.ExpectExec(`INSERT INTO stock_ledger_entries`).
		WithArgs(pgxmock.AnyArg(), suite.tenantID, suite.sourceID, suite.productID,
			&lot.ID, models.LedgerKindConsumption, -qty, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.pool.ExpectExec(`INSERT INTO product_stock`).
		WithArgs(pgxmock.AnyArg(), suite.tenantID, suite.sourceID, suite.productID, -qty, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.pool.ExpectExec(`INSERT INTO product_stock`).
		WithArgs(pgxmock.AnyArg(), suite.tenantID, suite.sourceID, suite.productID, 0, -qty).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.pool.ExpectExec(`UPDATE stock_transfer_items`).
		WithArgs(approved, newShipped, 0, newAvgPence, suite.tenantID, suite.itemID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.pool.ExpectExec(`INSERT INTO shipment_batches`).
		WithArgs(pgxmock.AnyArg(), suite.tenantID, suite.transferID, batchNumber, suite.actorID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.pool.ExpectExec(`INSERT INTO shipment_batch_items`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), suite.itemID, suite.productID, qty, newAvgPence).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func (suite *TransferLifecycleTestSuite) expectTransferUpdate(status string) {
	suite.pool.ExpectExec(`UPDATE stock_transfers`).
		WithArgs(status, models.TransferPriorityNormal,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(),
			suite.tenantID, suite.transferID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func (suite *TransferLifecycleTestSuite) TestShipRejectedUnlessApproved() {
	for _, status := range []string{
		models.TransferStatusRequested,
		models.TransferStatusRejected,
		models.TransferStatusInTransit,
		models.TransferStatusPartiallyReceived,
		models.TransferStatusCompleted,
		models.TransferStatusCancelled,
		models.TransferStatusReversed,
	} {
		suite.pool.ExpectBegin()
		suite.expectTransferLoad(suite.transfer(status))
		suite.pool.ExpectRollback()

		_, err := suite.service.Ship(suite.ctx, suite.tenantID, suite.transferID, suite.actorID,
			[]ItemQuantity{{ItemID: suite.itemID, Qty: 1}})
		assert.True(suite.T(), common.IsCode(err, common.CodeConflict), "status %s", status)
	}
	assert.NoError(suite.T(), suite.pool.ExpectationsWereMet())
}

func (suite *TransferLifecycleTestSuite) TestShipPartialBatchesThenInTransit() {
	approved := 10

	// First batch ships 6 of the 10 approved units. The transfer must stay
	// APPROVED so a second batch can follow.
	suite.pool.ExpectBegin()
	suite.expectTransferLoad(suite.transfer(models.TransferStatusApproved))
	suite.expectItemLoad(suite.item(&approved, 0, 0, 0))
	suite.expectShipBatch(1, 6, suite.sourceLot(50, 150), &approved, 6, 150)
	suite.expectTransferUpdate(models.TransferStatusApproved)
	suite.pool.ExpectCommit()

	transfer, err := suite.service.Ship(suite.ctx, suite.tenantID, suite.transferID, suite.actorID,
		[]ItemQuantity{{ItemID: suite.itemID, Qty: 6}})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.TransferStatusApproved, transfer.Status)
	require.Len(suite.T(), transfer.Items, 1)
	assert.Equal(suite.T(), 6, transfer.Items[0].QtyShipped)
	assert.Nil(suite.T(), transfer.ShippedAt)

	// The second batch, with no lines, defaults to the 4 outstanding units
	// and tips the transfer to IN_TRANSIT.
	partiallyShipped := suite.transfer(models.TransferStatusApproved)
	noteURL := "https://cdn.example.com/dispatch/TRF-20260830-0007.pdf"
	partiallyShipped.DispatchNotePDFURL = &noteURL

	suite.pool.ExpectBegin()
	suite.expectTransferLoad(partiallyShipped)
	suite.expectItemLoad(suite.item(&approved, 6, 0, 150))
	suite.expectShipBatch(2, 4, suite.sourceLot(44, 150), &approved, 10, 150)
	suite.expectTransferUpdate(models.TransferStatusInTransit)
	suite.pool.ExpectCommit()

	transfer, err = suite.service.Ship(suite.ctx, suite.tenantID, suite.transferID, suite.actorID, nil)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.TransferStatusInTransit, transfer.Status)
	require.Len(suite.T(), transfer.Items, 1)
	assert.Equal(suite.T(), 10, transfer.Items[0].QtyShipped)
	require.NotNil(suite.T(), transfer.ShippedByUserID)
	assert.Equal(suite.T(), suite.actorID, *transfer.ShippedByUserID)
	assert.NotNil(suite.T(), transfer.ShippedAt)

	assert.NoError(suite.T(), suite.pool.ExpectationsWereMet())
}

func (suite *TransferLifecycleTestSuite) TestReceiveRejectsMoreThanInTransit() {
	approved := 10

	suite.pool.ExpectBegin()
	suite.expectTransferLoad(suite.transfer(models.TransferStatusInTransit))
	// 7 shipped, 2 already received: only 5 units remain in transit.
	suite.expectItemLoad(suite.item(&approved, 7, 2, 150))
	suite.pool.ExpectRollback()

	_, err := suite.service.Receive(suite.ctx, suite.tenantID, suite.transferID, suite.actorID,
		[]ItemQuantity{{ItemID: suite.itemID, Qty: 6}})
	require.Error(suite.T(), err)
	assert.True(suite.T(), common.IsCode(err, common.CodeValidation))
	// No destination lot, ledger, or item writes happen on the over-ask.
	assert.NoError(suite.T(), suite.pool.ExpectationsWereMet())
}

func (suite *TransferLifecycleTestSuite) TestCancelRejectedOnceShipped() {
	approved := 10

	suite.pool.ExpectBegin()
	suite.expectTransferLoad(suite.transfer(models.TransferStatusApproved))
	suite.expectItemLoad(suite.item(&approved, 6, 0, 150))
	suite.pool.ExpectRollback()

	_, err := suite.service.Cancel(suite.ctx, suite.tenantID, suite.transferID, suite.actorID, nil)
	assert.True(suite.T(), common.IsCode(err, common.CodeConflict))
	assert.NoError(suite.T(), suite.pool.ExpectationsWereMet())
}

func (suite *TransferLifecycleTestSuite) TestCancelReleasesReservedStock() {
	approved := 10

	suite.pool.ExpectBegin()
	suite.expectTransferLoad(suite.transfer(models.TransferStatusApproved))
	suite.expectItemLoad(suite.item(&approved, 0, 0, 0))
	suite.pool.ExpectExec(`INSERT INTO product_stock`).
		WithArgs(pgxmock.AnyArg(), suite.tenantID, suite.sourceID, suite.productID, 0, -10).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.expectTransferUpdate(models.TransferStatusCancelled)
	suite.pool.ExpectCommit()

	transfer, err := suite.service.Cancel(suite.ctx, suite.tenantID, suite.transferID, suite.actorID, nil)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.TransferStatusCancelled, transfer.Status)
	assert.NotNil(suite.T(), transfer.CancelledAt)
	assert.NoError(suite.T(), suite.pool.ExpectationsWereMet())
}

func (suite *TransferLifecycleTestSuite) TestReviewApprovalReservesSourceStock() {
	approvedQty := 7

	suite.pool.ExpectBegin()
	suite.expectTransferLoad(suite.transfer(models.TransferStatusRequested))
	suite.expectItemLoad(suite.item(nil, 0, 0, 0))
	suite.pool.ExpectExec(`UPDATE stock_transfer_items`).
		WithArgs(&approvedQty, 0, 0, int64(0), suite.tenantID, suite.itemID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.pool.ExpectExec(`INSERT INTO product_stock`).
		WithArgs(pgxmock.AnyArg(), suite.tenantID, suite.sourceID, suite.productID, 0, 7).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.expectTransferUpdate(models.TransferStatusApproved)
	suite.pool.ExpectCommit()

	transfer, err := suite.service.Review(suite.ctx, suite.tenantID, suite.transferID, suite.actorID,
		true, []ItemQuantity{{ItemID: suite.itemID, Qty: 7}}, nil)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.TransferStatusApproved, transfer.Status)
	assert.NoError(suite.T(), suite.pool.ExpectationsWereMet())
}

func (suite *TransferLifecycleTestSuite) TestUpdatePriorityAuditsTheChange() {
	suite.pool.ExpectBegin()
	suite.expectTransferLoad(suite.transfer(models.TransferStatusRequested))
	suite.pool.ExpectExec(`UPDATE stock_transfers`).
		WithArgs(models.TransferStatusRequested, models.TransferPriorityUrgent,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(),
			suite.tenantID, suite.transferID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.pool.ExpectCommit()

	transfer, err := suite.service.UpdatePriority(suite.ctx, suite.tenantID, suite.transferID, suite.actorID, models.TransferPriorityUrgent)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.TransferPriorityUrgent, transfer.Priority)

	suite.auditRepo.AssertCalled(suite.T(), "Create", mock.Anything, mock.MatchedBy(func(entry *models.AuditLog) bool {
		return entry.Action == "TRANSFER_PRIORITY_CHANGED" && entry.ChangedBy != nil && *entry.ChangedBy == suite.actorID
	}))
	assert.NoError(suite.T(), suite.pool.ExpectationsWereMet())
}

func (suite *TransferLifecycleTestSuite) TestUpdatePriorityRejectedAfterShipment() {
	suite.pool.ExpectBegin()
	suite.expectTransferLoad(suite.transfer(models.TransferStatusInTransit))
	suite.pool.ExpectRollback()

	_, err := suite.service.UpdatePriority(suite.ctx, suite.tenantID, suite.transferID, suite.actorID, models.TransferPriorityLow)
	assert.True(suite.T(), common.IsCode(err, common.CodeConflict))
	assert.NoError(suite.T(), suite.pool.ExpectationsWereMet())
}
