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
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func rolePtr() *uuid.UUID {
	id := uuid.New()
	return &id
}

func TestValidateRule(t *testing.T) {
	validRule := func() *models.ApprovalRule {
		return &models.ApprovalRule{
			Name:         "High value transfers",
			ApprovalMode: models.ApprovalModeSequential,
			Conditions: models.ApprovalConditions{
				models.ValueThresholdCondition{ThresholdPence: 50000},
			},
			Levels: []*models.ApprovalRuleLevel{
				{LevelNumber: 1, RequiredRoleID: rolePtr()},
				{LevelNumber: 2, RequiredUserID: rolePtr()},
			},
		}
	}

	t.Run("valid rule passes", func(t *testing.T) {
		assert.NoError(t, validateRule(validRule()))
	})

	t.Run("missing name", func(t *testing.T) {
		rule := validRule()
		rule.Name = ""
		assert.Error(t, validateRule(rule))
	})

	t.Run("unknown approval mode", func(t *testing.T) {
		rule := validRule()
		rule.ApprovalMode = "CONSENSUS"
		assert.Error(t, validateRule(rule))
	})

	t.Run("no levels", func(t *testing.T) {
		rule := validRule()
		rule.Levels = nil
		assert.Error(t, validateRule(rule))
	})

	t.Run("non-contiguous level numbers", func(t *testing.T) {
		rule := validRule()
		rule.Levels[1].LevelNumber = 3
		assert.Error(t, validateRule(rule))
	})

	t.Run("level with both role and user", func(t *testing.T) {
		rule := validRule()
		rule.Levels[0].RequiredUserID = rolePtr()
		assert.Error(t, validateRule(rule))
	})

	t.Run("level with neither role nor user", func(t *testing.T) {
		rule := validRule()
		rule.Levels[0].RequiredRoleID = nil
		assert.Error(t, validateRule(rule))
	})

	t.Run("non-positive quantity threshold", func(t *testing.T) {
		rule := validRule()
		rule.Conditions = models.ApprovalConditions{models.QtyThresholdCondition{Threshold: 0}}
		assert.Error(t, validateRule(rule))
	})

	t.Run("non-positive value threshold", func(t *testing.T) {
		rule := validRule()
		rule.Conditions = models.ApprovalConditions{models.ValueThresholdCondition{ThresholdPence: -1}}
		assert.Error(t, validateRule(rule))
	})
}

func TestConditionMatches(t *testing.T) {
	sourceID := uuid.New()
	destID := uuid.New()
	transfer := &models.StockTransfer{
		SourceBranchID:      sourceID,
		DestinationBranchID: destID,
	}
	totals := TransferTotals{TotalQty: 100, TotalValuePence: 250000}

	t.Run("quantity threshold at boundary", func(t *testing.T) {
		assert.True(t, conditionMatches(models.QtyThresholdCondition{Threshold: 100}, transfer, totals))
		assert.False(t, conditionMatches(models.QtyThresholdCondition{Threshold: 101}, transfer, totals))
	})

	t.Run("value threshold at boundary", func(t *testing.T) {
		assert.True(t, conditionMatches(models.ValueThresholdCondition{ThresholdPence: 250000}, transfer, totals))
		assert.False(t, conditionMatches(models.ValueThresholdCondition{ThresholdPence: 250001}, transfer, totals))
	})

	t.Run("source branch", func(t *testing.T) {
		assert.True(t, conditionMatches(models.SourceBranchCondition{BranchID: sourceID}, transfer, totals))
		assert.False(t, conditionMatches(models.SourceBranchCondition{BranchID: destID}, transfer, totals))
	})

	t.Run("destination branch", func(t *testing.T) {
		assert.True(t, conditionMatches(models.DestinationBranchCondition{BranchID: destID}, transfer, totals))
		assert.False(t, conditionMatches(models.DestinationBranchCondition{BranchID: sourceID}, transfer, totals))
	})
}

func TestMatchApprovalRule(t *testing.T) {
	sourceID := uuid.New()
	transfer := &models.StockTransfer{
		SourceBranchID:      sourceID,
		DestinationBranchID: uuid.New(),
	}
	totals := TransferTotals{TotalQty: 50, TotalValuePence: 100000}

	highValue := &models.ApprovalRule{
		Name:     "high value",
		Priority: 20,
		Conditions: models.ApprovalConditions{
			models.ValueThresholdCondition{ThresholdPence: 500000},
		},
	}
	bulkFromSource := &models.ApprovalRule{
		Name:     "bulk from source",
		Priority: 10,
		Conditions: models.ApprovalConditions{
			models.QtyThresholdCondition{Threshold: 40},
			models.SourceBranchCondition{BranchID: sourceID},
		},
	}
	catchAll := &models.ApprovalRule{
		Name:     "catch all",
		Priority: 1,
	}

	t.Run("first matching rule in priority order wins", func(t *testing.T) {
		// Callers pass rules already sorted by priority descending.
		rules := []*models.ApprovalRule{highValue, bulkFromSource, catchAll}
		matched := MatchApprovalRule(rules, transfer, totals)
		assert.Equal(t, bulkFromSource, matched)
	})

	t.Run("all conditions must hold", func(t *testing.T) {
		partial := &models.ApprovalRule{
			Conditions: models.ApprovalConditions{
				models.QtyThresholdCondition{Threshold: 40},
				models.SourceBranchCondition{BranchID: uuid.New()},
			},
		}
		assert.Nil(t, MatchApprovalRule([]*models.ApprovalRule{partial}, transfer, totals))
	})

	t.Run("rule without conditions matches everything", func(t *testing.T) {
		matched := MatchApprovalRule([]*models.ApprovalRule{catchAll}, transfer, totals)
		assert.Equal(t, catchAll, matched)
	})

	t.Run("no rules", func(t *testing.T) {
		assert.Nil(t, MatchApprovalRule(nil, transfer, totals))
	})
}

// ApprovalDecisionTestSuite runs SubmitDecision against a mocked pool,
// covering chain ordering and the hand-off into transfer approval.
type ApprovalDecisionTestSuite struct {
	suite.Suite
	pool       pgxmock.PgxPoolIface
	auditRepo  *MockAuditLogsRepository
	service    *approvalService
	ctx        context.Context
	tenantID   uuid.UUID
	transferID uuid.UUID
	ruleID     uuid.UUID
	actorID    uuid.UUID
	itemID     uuid.UUID
	productID  uuid.UUID
	sourceID   uuid.UUID
	recordL1   uuid.UUID
	recordL2   uuid.UUID
}

func (suite *ApprovalDecisionTestSuite) SetupTest() {
	pool, err := pgxmock.NewPool()
	require.NoError(suite.T(), err)
	suite.pool = pool
	suite.auditRepo = &MockAuditLogsRepository{}
	suite.auditRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	suite.service = &approvalService{
		pool:  pool,
		audit: NewAuditLogsService(suite.auditRepo),
	}
	suite.ctx = context.Background()
	suite.tenantID = uuid.New()
	suite.transferID = uuid.New()
	suite.ruleID = uuid.New()
	suite.actorID = uuid.New()
	suite.itemID = uuid.New()
	suite.productID = uuid.New()
	suite.sourceID = uuid.New()
	suite.recordL1 = uuid.New()
	suite.recordL2 = uuid.New()
}

func (suite *ApprovalDecisionTestSuite) TearDownTest() {
	suite.pool.Close()
}

func TestApprovalDecisionTestSuite(t *testing.T) {
	suite.Run(t, new(ApprovalDecisionTestSuite))
}

func (suite *ApprovalDecisionTestSuite) gatedTransfer() *models.StockTransfer {
	now := time.Now()
	return &models.StockTransfer{
		ID:                         suite.transferID,
		TenantID:                   suite.tenantID,
		TransferNumber:             "TRF-20260830-0021",
		SourceBranchID:             suite.sourceID,
		DestinationBranchID:        uuid.New(),
		Status:                     models.TransferStatusRequested,
		Priority:                   models.TransferPriorityNormal,
		InitiationType:             models.TransferInitiationPush,
		RequestedByUserID:          uuid.New(),
		RequiresMultiLevelApproval: true,
		RequestedAt:                now,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
}

func (suite *ApprovalDecisionTestSuite) record(id uuid.UUID, level int, status string) *models.ApprovalRecord {
	actor := suite.actorID
	return &models.ApprovalRecord{
		ID:             id,
		TenantID:       suite.tenantID,
		TransferID:     suite.transferID,
		RuleID:         suite.ruleID,
		LevelNumber:    level,
		Status:         status,
		RequiredUserID: &actor,
		CreatedAt:      time.Now(),
	}
}

func approvalRecordRows(records ...*models.ApprovalRecord) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "tenant_id", "transfer_id", "rule_id", "level_number", "status",
		"required_role_id", "required_user_id", "approved_by_user_id", "notes", "decided_at", "created_at",
	})
	for _, record := range records {
		rows.AddRow(
			record.ID, record.TenantID, record.TransferID, record.RuleID, record.LevelNumber, record.Status,
			record.RequiredRoleID, record.RequiredUserID, record.ApprovedByUserID, record.Notes,
			record.DecidedAt, record.CreatedAt,
		)
	}
	return rows
}

func (suite *ApprovalDecisionTestSuite) expectChainLoad(mode string, records ...*models.ApprovalRecord) {
	suite.pool.ExpectQuery(`SELECT (.+) FROM stock_transfers WHERE (.+) FOR UPDATE`).
		WithArgs(suite.tenantID, suite.transferID).
		WillReturnRows(stockTransferRows(suite.gatedTransfer()))
	suite.pool.ExpectQuery(`SELECT (.+) FROM approval_records`).
		WithArgs(suite.tenantID, suite.transferID).
		WillReturnRows(approvalRecordRows(records...))

	now := time.Now()
	actor := suite.actorID
	suite.pool.ExpectQuery(`SELECT (.+) FROM approval_rules`).
		WithArgs(suite.tenantID, suite.ruleID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "tenant_id", "name", "priority", "approval_mode", "active", "conditions", "created_at", "updated_at",
		}).AddRow(suite.ruleID, suite.tenantID, "High value transfers", 10, mode, true, []byte(`[]`), now, now))
	suite.pool.ExpectQuery(`SELECT (.+) FROM approval_rule_levels`).
		WithArgs(suite.ruleID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "rule_id", "level_number", "required_role_id", "required_user_id",
		}).
			AddRow(uuid.New(), suite.ruleID, 1, nil, &actor).
			AddRow(uuid.New(), suite.ruleID, 2, nil, &actor))
}

func (suite *ApprovalDecisionTestSuite) expectRecordUpdate(recordID uuid.UUID, status string) {
	actor := suite.actorID
	suite.pool.ExpectExec(`UPDATE approval_records`).
		WithArgs(status, &actor, pgxmock.AnyArg(), pgxmock.AnyArg(), suite.tenantID, recordID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func (suite *ApprovalDecisionTestSuite) TestSequentialChainRejectsOutOfOrder() {
	suite.pool.ExpectBegin()
	suite.expectChainLoad(models.ApprovalModeSequential,
		suite.record(suite.recordL1, 1, models.ApprovalStatusPending),
		suite.record(suite.recordL2, 2, models.ApprovalStatusPending))
	suite.pool.ExpectRollback()

	_, err := suite.service.SubmitDecision(suite.ctx, suite.tenantID, suite.transferID, suite.actorID, 2, true, nil)
	require.Error(suite.T(), err)
	assert.True(suite.T(), common.IsCode(err, common.CodeConflict))
	assert.NoError(suite.T(), suite.pool.ExpectationsWereMet())
}

func (suite *ApprovalDecisionTestSuite) TestParallelChainApprovesInAnyOrder() {
	// Level 2 signs off first. The transfer stays REQUESTED while level 1
	// is still pending.
	suite.pool.ExpectBegin()
	suite.expectChainLoad(models.ApprovalModeParallel,
		suite.record(suite.recordL1, 1, models.ApprovalStatusPending),
		suite.record(suite.recordL2, 2, models.ApprovalStatusPending))
	suite.expectRecordUpdate(suite.recordL2, models.ApprovalStatusApproved)
	suite.pool.ExpectCommit()

	transfer, err := suite.service.SubmitDecision(suite.ctx, suite.tenantID, suite.transferID, suite.actorID, 2, true, nil)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.TransferStatusRequested, transfer.Status)

	// Level 1 is the last pending sign-off: the requested quantities are
	// approved, reserved at the source branch, and the transfer flips to
	// APPROVED.
	approvedQty := 10
	now := time.Now()
	item := &models.StockTransferItem{
		ID:           suite.itemID,
		TenantID:     suite.tenantID,
		TransferID:   suite.transferID,
		ProductID:    suite.productID,
		QtyRequested: 10,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	suite.pool.ExpectBegin()
	suite.expectChainLoad(models.ApprovalModeParallel,
		suite.record(suite.recordL1, 1, models.ApprovalStatusPending),
		suite.record(suite.recordL2, 2, models.ApprovalStatusApproved))
	suite.expectRecordUpdate(suite.recordL1, models.ApprovalStatusApproved)
	suite.pool.ExpectQuery(`SELECT (.+) FROM stock_transfer_items`).
		WithArgs(suite.tenantID, suite.transferID).
		WillReturnRows(transferItemRows(item))
	suite.pool.ExpectExec(`UPDATE stock_transfer_items`).
		WithArgs(&approvedQty, 0, 0, int64(0), suite.tenantID, suite.itemID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.pool.ExpectExec(`INSERT INTO product_stock`).
		WithArgs(pgxmock.AnyArg(), suite.tenantID, suite.sourceID, suite.productID, 0, 10).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.pool.ExpectExec(`UPDATE stock_transfers`).
		WithArgs(models.TransferStatusApproved, models.TransferPriorityNormal,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(),
			suite.tenantID, suite.transferID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.pool.ExpectCommit()

	transfer, err = suite.service.SubmitDecision(suite.ctx, suite.tenantID, suite.transferID, suite.actorID, 1, true, nil)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.TransferStatusApproved, transfer.Status)
	require.NotNil(suite.T(), transfer.ReviewedByUserID)
	assert.Equal(suite.T(), suite.actorID, *transfer.ReviewedByUserID)

	assert.NoError(suite.T(), suite.pool.ExpectationsWereMet())
}

func (suite *ApprovalDecisionTestSuite) TestDecidedLevelCannotBeDecidedAgain() {
	suite.pool.ExpectBegin()
	suite.expectChainLoad(models.ApprovalModeParallel,
		suite.record(suite.recordL1, 1, models.ApprovalStatusApproved),
		suite.record(suite.recordL2, 2, models.ApprovalStatusPending))
	suite.pool.ExpectRollback()

	_, err := suite.service.SubmitDecision(suite.ctx, suite.tenantID, suite.transferID, suite.actorID, 1, true, nil)
	assert.True(suite.T(), common.IsCode(err, common.CodeConflict))
	assert.NoError(suite.T(), suite.pool.ExpectationsWereMet())
}
