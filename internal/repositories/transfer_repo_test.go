package repositories

import (
	"context"
	"testing"
	"time"

	"stockflow/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type TransferRepoTestSuite struct {
	suite.Suite
	mock     pgxmock.PgxPoolIface
	repo     TransferRepository
	tenantID uuid.UUID
	ctx      context.Context
}

func (suite *TransferRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	require.NoError(suite.T(), err)
	suite.mock = mock
	suite.repo = NewTransferRepository(mock)
	suite.tenantID = uuid.New()
	suite.ctx = context.Background()
}

func (suite *TransferRepoTestSuite) TearDownTest() {
	suite.mock.Close()
}

func TestTransferRepoTestSuite(t *testing.T) {
	suite.Run(t, new(TransferRepoTestSuite))
}

func (suite *TransferRepoTestSuite) newTransfer() *models.StockTransfer {
	return &models.StockTransfer{
		ID:                  uuid.New(),
		TenantID:            suite.tenantID,
		TransferNumber:      "TRF-20260830-0001",
		SourceBranchID:      uuid.New(),
		DestinationBranchID: uuid.New(),
		Status:              models.TransferStatusRequested,
		Priority:            models.TransferPriorityNormal,
		InitiationType:      models.TransferInitiationPush,
		RequestedByUserID:   uuid.New(),
		RequestedAt:         time.Now(),
	}
}

func (suite *TransferRepoTestSuite) TestCreate_Success() {
	transfer := suite.newTransfer()

	suite.mock.ExpectExec(`INSERT INTO stock_transfers`).
		WithArgs(transfer.ID, transfer.TenantID, transfer.TransferNumber,
			transfer.SourceBranchID, transfer.DestinationBranchID,
			transfer.Status, transfer.Priority, transfer.InitiationType, transfer.RequestedByUserID,
			transfer.RequestNotes, transfer.OrderNotes, transfer.ExpectedDeliveryDate,
			transfer.RequiresMultiLevelApproval, transfer.ReversalOfTransferID, transfer.RequestedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := suite.repo.Create(suite.ctx, transfer)
	assert.NoError(suite.T(), err)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *TransferRepoTestSuite) TestCreate_DuplicateNumberMapped() {
	transfer := suite.newTransfer()

	suite.mock.ExpectExec(`INSERT INTO stock_transfers`).
		WithArgs(transfer.ID, transfer.TenantID, transfer.TransferNumber,
			transfer.SourceBranchID, transfer.DestinationBranchID,
			transfer.Status, transfer.Priority, transfer.InitiationType, transfer.RequestedByUserID,
			transfer.RequestNotes, transfer.OrderNotes, transfer.ExpectedDeliveryDate,
			transfer.RequiresMultiLevelApproval, transfer.ReversalOfTransferID, transfer.RequestedAt).
		WillReturnError(&pgconn.PgError{
			Code:           "23505",
			ConstraintName: "stock_transfers_tenant_id_transfer_number_key",
		})

	err := suite.repo.Create(suite.ctx, transfer)
	assert.ErrorIs(suite.T(), err, ErrDuplicateTransferNumber)
}

func (suite *TransferRepoTestSuite) TestCreate_OtherUniqueViolationPassesThrough() {
	transfer := suite.newTransfer()
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "stock_transfers_pkey"}

	suite.mock.ExpectExec(`INSERT INTO stock_transfers`).
		WithArgs(transfer.ID, transfer.TenantID, transfer.TransferNumber,
			transfer.SourceBranchID, transfer.DestinationBranchID,
			transfer.Status, transfer.Priority, transfer.InitiationType, transfer.RequestedByUserID,
			transfer.RequestNotes, transfer.OrderNotes, transfer.ExpectedDeliveryDate,
			transfer.RequiresMultiLevelApproval, transfer.ReversalOfTransferID, transfer.RequestedAt).
		WillReturnError(pgErr)

	err := suite.repo.Create(suite.ctx, transfer)
	assert.NotErrorIs(suite.T(), err, ErrDuplicateTransferNumber)
	assert.ErrorIs(suite.T(), err, pgErr)
}

func (suite *TransferRepoTestSuite) TestCountForNumberPrefix() {
	suite.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM stock_transfers`).
		WithArgs(suite.tenantID, "TRF-20260830-%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	count, err := suite.repo.CountForNumberPrefix(suite.ctx, suite.tenantID, "TRF-20260830-")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 7, count)
}
