package services

import (
	"context"
	"testing"
	"time"

	"stockflow/internal/common"
	"stockflow/internal/models"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type StockFlowTestSuite struct {
	suite.Suite
	mock      pgxmock.PgxPoolIface
	tenantID  uuid.UUID
	branchID  uuid.UUID
	productID uuid.UUID
	ctx       context.Context
}

func (suite *StockFlowTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	require.NoError(suite.T(), err)
	suite.mock = mock
	suite.tenantID = uuid.New()
	suite.branchID = uuid.New()
	suite.productID = uuid.New()
	suite.ctx = context.Background()
}

func (suite *StockFlowTestSuite) TearDownTest() {
	suite.mock.Close()
}

func TestStockFlowTestSuite(t *testing.T) {
	suite.Run(t, new(StockFlowTestSuite))
}

func (suite *StockFlowTestSuite) lotRows(lots ...*models.StockLot) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "tenant_id", "branch_id", "product_id",
		"qty_received", "qty_remaining", "unit_cost_pence", "received_at", "source_ref",
	})
	for _, lot := range lots {
		rows.AddRow(
			lot.ID, lot.TenantID, lot.BranchID, lot.ProductID,
			lot.QtyReceived, lot.QtyRemaining, lot.UnitCostPence, lot.ReceivedAt, lot.SourceRef,
		)
	}
	return rows
}

func (suite *StockFlowTestSuite) newLot(remaining int, unitCostPence int64, receivedAt time.Time) *models.StockLot {
	return &models.StockLot{
		ID:            uuid.New(),
		TenantID:      suite.tenantID,
		BranchID:      suite.branchID,
		ProductID:     suite.productID,
		QtyReceived:   remaining,
		QtyRemaining:  remaining,
		UnitCostPence: unitCostPence,
		ReceivedAt:    receivedAt,
	}
}

func (suite *StockFlowTestSuite) TestReceiveStock_CreatesLotLedgerAndAggregate() {
	suite.mock.ExpectExec(`INSERT INTO stock_lots`).
		WithArgs(pgxmock.AnyArg(), suite.tenantID, suite.branchID, suite.productID,
			25, 25, int64(150), pgxmock.AnyArg(), (*uuid.UUID)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.mock.ExpectExec(`INSERT INTO stock_ledger_entries`).
		WithArgs(pgxmock.AnyArg(), suite.tenantID, suite.branchID, suite.productID,
			pgxmock.AnyArg(), models.LedgerKindReceipt, 25, (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.mock.ExpectExec(`INSERT INTO product_stock`).
		WithArgs(pgxmock.AnyArg(), suite.tenantID, suite.branchID, suite.productID, 25, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	lot, err := ReceiveStock(suite.ctx, suite.mock, ReceiveParams{
		TenantID:      suite.tenantID,
		BranchID:      suite.branchID,
		ProductID:     suite.productID,
		Qty:           25,
		UnitCostPence: 150,
	})

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 25, lot.QtyReceived)
	assert.Equal(suite.T(), 25, lot.QtyRemaining)
	assert.Equal(suite.T(), int64(150), lot.UnitCostPence)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *StockFlowTestSuite) TestReceiveStock_RejectsNonPositiveQty() {
	_, err := ReceiveStock(suite.ctx, suite.mock, ReceiveParams{
		TenantID:  suite.tenantID,
		BranchID:  suite.branchID,
		ProductID: suite.productID,
		Qty:       0,
	})
	assert.True(suite.T(), common.IsCode(err, common.CodeValidation))
}

func (suite *StockFlowTestSuite) TestReceiveStock_RejectsNegativeCost() {
	_, err := ReceiveStock(suite.ctx, suite.mock, ReceiveParams{
		TenantID:      suite.tenantID,
		BranchID:      suite.branchID,
		ProductID:     suite.productID,
		Qty:           5,
		UnitCostPence: -1,
	})
	assert.True(suite.T(), common.IsCode(err, common.CodeValidation))
}

func (suite *StockFlowTestSuite) TestConsumeStock_DrawsOldestLotsFirst() {
	now := time.Now()
	older := suite.newLot(30, 100, now.Add(-48*time.Hour))
	newer := suite.newLot(50, 200, now.Add(-1*time.Hour))

	suite.mock.ExpectQuery(`SELECT (.+) FROM stock_lots`).
		WithArgs(suite.tenantID, suite.branchID, suite.productID).
		WillReturnRows(suite.lotRows(older, newer))

	// Lot draws happen oldest first: all 30 from the older lot, then 10
	// from the newer one.
	suite.mock.ExpectExec(`UPDATE stock_lots`).
		WithArgs(30, suite.tenantID, older.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.mock.ExpectExec(`INSERT INTO stock_ledger_entries`).
		WithArgs(pgxmock.AnyArg(), suite.tenantID, suite.branchID, suite.productID,
			&older.ID, models.LedgerKindConsumption, -30, (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.mock.ExpectExec(`UPDATE stock_lots`).
		WithArgs(10, suite.tenantID, newer.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.mock.ExpectExec(`INSERT INTO stock_ledger_entries`).
		WithArgs(pgxmock.AnyArg(), suite.tenantID, suite.branchID, suite.productID,
			&newer.ID, models.LedgerKindConsumption, -10, (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.mock.ExpectExec(`INSERT INTO product_stock`).
		WithArgs(pgxmock.AnyArg(), suite.tenantID, suite.branchID, suite.productID, -40, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	result, err := ConsumeStock(suite.ctx, suite.mock, ConsumeParams{
		TenantID:  suite.tenantID,
		BranchID:  suite.branchID,
		ProductID: suite.productID,
		Qty:       40,
	})

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 40, result.TotalQty)
	require.Len(suite.T(), result.Consumed, 2)
	assert.Equal(suite.T(), older.ID, result.Consumed[0].LotID)
	assert.Equal(suite.T(), 30, result.Consumed[0].Qty)
	assert.Equal(suite.T(), newer.ID, result.Consumed[1].LotID)
	assert.Equal(suite.T(), 10, result.Consumed[1].Qty)
	// (30*100 + 10*200) / 40 = 125 pence weighted average.
	assert.Equal(suite.T(), int64(125), result.AvgUnitCostPence)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *StockFlowTestSuite) TestConsumeStock_FailsWholeDrawWhenShort() {
	lot := suite.newLot(15, 100, time.Now().Add(-time.Hour))

	suite.mock.ExpectQuery(`SELECT (.+) FROM stock_lots`).
		WithArgs(suite.tenantID, suite.branchID, suite.productID).
		WillReturnRows(suite.lotRows(lot))

	_, err := ConsumeStock(suite.ctx, suite.mock, ConsumeParams{
		TenantID:  suite.tenantID,
		BranchID:  suite.branchID,
		ProductID: suite.productID,
		Qty:       40,
	})

	require.Error(suite.T(), err)
	assert.True(suite.T(), common.IsCode(err, common.CodeInsufficientStock))
	// No lot decrements or ledger writes happen on a short draw.
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *StockFlowTestSuite) TestConsumeStock_RoundsAverageHalfUp() {
	now := time.Now()
	lotA := suite.newLot(1, 100, now.Add(-2*time.Hour))
	lotB := suite.newLot(2, 101, now.Add(-1*time.Hour))

	suite.mock.ExpectQuery(`SELECT (.+) FROM stock_lots`).
		WithArgs(suite.tenantID, suite.branchID, suite.productID).
		WillReturnRows(suite.lotRows(lotA, lotB))

	suite.mock.ExpectExec(`UPDATE stock_lots`).
		WithArgs(1, suite.tenantID, lotA.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.mock.ExpectExec(`INSERT INTO stock_ledger_entries`).
		WithArgs(pgxmock.AnyArg(), suite.tenantID, suite.branchID, suite.productID,
			&lotA.ID, models.LedgerKindConsumption, -1, (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.mock.ExpectExec(`UPDATE stock_lots`).
		WithArgs(2, suite.tenantID, lotB.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.mock.ExpectExec(`INSERT INTO stock_ledger_entries`).
		WithArgs(pgxmock.AnyArg(), suite.tenantID, suite.branchID, suite.productID,
			&lotB.ID, models.LedgerKindConsumption, -2, (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.mock.ExpectExec(`INSERT INTO product_stock`).
		WithArgs(pgxmock.AnyArg(), suite.tenantID, suite.branchID, suite.productID, -3, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	result, err := ConsumeStock(suite.ctx, suite.mock, ConsumeParams{
		TenantID:  suite.tenantID,
		BranchID:  suite.branchID,
		ProductID: suite.productID,
		Qty:       3,
	})

	require.NoError(suite.T(), err)
	// 302/3 = 100.67 rounds to 101.
	assert.Equal(suite.T(), int64(101), result.AvgUnitCostPence)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *StockFlowTestSuite) TestAdjustWriteOffBeyondOnHand() {
	service := NewStockService(suite.mock, nil, nil, nil, nil)
	lot := suite.newLot(7, 100, time.Now().Add(-time.Hour))

	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(`SELECT (.+) FROM stock_lots`).
		WithArgs(suite.tenantID, suite.branchID, suite.productID).
		WillReturnRows(suite.lotRows(lot))
	suite.mock.ExpectRollback()

	err := service.Adjust(suite.ctx, suite.tenantID, suite.branchID, suite.productID, -10, 0, nil)
	require.Error(suite.T(), err)
	// A write-off bigger than the quantity on hand is the caller's mistake,
	// not a shortage the consumer can retry around.
	assert.True(suite.T(), common.IsCode(err, common.CodeValidation))
	assert.False(suite.T(), common.IsCode(err, common.CodeInsufficientStock))
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *StockFlowTestSuite) TestAdjustRejectsZeroDelta() {
	service := NewStockService(suite.mock, nil, nil, nil, nil)

	err := service.Adjust(suite.ctx, suite.tenantID, suite.branchID, suite.productID, 0, 0, nil)
	assert.True(suite.T(), common.IsCode(err, common.CodeValidation))
}
