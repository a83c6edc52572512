package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"stockflow/internal/common"
	"stockflow/internal/models"
	"stockflow/internal/repositories"
	"stockflow/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransferTotals are the aggregates approval conditions are evaluated
// against, computed once per transfer at creation time.
type TransferTotals struct {
	TotalQty        int
	TotalValuePence int64
}

// ApprovalProgress summarizes where a transfer sits in its approval chain.
type ApprovalProgress struct {
	Records        []*models.ApprovalRecord `json:"records"`
	ApprovalMode   string                   `json:"approval_mode"`
	TotalLevels    int                      `json:"total_levels"`
	ApprovedLevels int                      `json:"approved_levels"`
	CurrentLevel   *int                     `json:"current_level,omitempty"`
	Rejected       bool                     `json:"rejected"`
	Complete       bool                     `json:"complete"`
}

type ApprovalService interface {
	CreateRule(ctx context.Context, rule *models.ApprovalRule) error
	UpdateRule(ctx context.Context, rule *models.ApprovalRule) error
	GetRule(ctx context.Context, tenantID, ruleID uuid.UUID) (*models.ApprovalRule, error)
	ListRules(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.ApprovalRule, error)
	// SubmitDecision approves or rejects one pending level. Approving the
	// final pending level moves the transfer to APPROVED; any rejection
	// moves it to REJECTED immediately.
	SubmitDecision(ctx context.Context, tenantID, transferID, actorUserID uuid.UUID, levelNumber int, approve bool, notes *string) (*models.StockTransfer, error)
	Progress(ctx context.Context, tenantID, transferID uuid.UUID) (*ApprovalProgress, error)
}

type approvalService struct {
	pool       database.TxBeginner
	ruleRepo   repositories.ApprovalRuleRepository
	recordRepo repositories.ApprovalRecordRepository
	rbac       RBACService
	audit      AuditLogsService
}

func NewApprovalService(pool database.TxBeginner, ruleRepo repositories.ApprovalRuleRepository, recordRepo repositories.ApprovalRecordRepository, rbac RBACService, audit AuditLogsService) ApprovalService {
	return &approvalService{
		pool:       pool,
		ruleRepo:   ruleRepo,
		recordRepo: recordRepo,
		rbac:       rbac,
		audit:      audit,
	}
}

func (s *approvalService) CreateRule(ctx context.Context, rule *models.ApprovalRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}

	rule.ID = uuid.New()
	for _, level := range rule.Levels {
		level.ID = uuid.New()
		level.RuleID = rule.ID
	}

	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return repositories.NewApprovalRuleRepository(tx).Create(ctx, rule)
	})
}

func (s *approvalService) UpdateRule(ctx context.Context, rule *models.ApprovalRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if _, err := s.ruleRepo.GetByID(ctx, rule.TenantID, rule.ID); err != nil {
		if err == pgx.ErrNoRows {
			return common.NewNotFoundError("approval rule not found")
		}
		return err
	}

	for _, level := range rule.Levels {
		level.ID = uuid.New()
		level.RuleID = rule.ID
	}

	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return repositories.NewApprovalRuleRepository(tx).Update(ctx, rule)
	})
}

func (s *approvalService) GetRule(ctx context.Context, tenantID, ruleID uuid.UUID) (*models.ApprovalRule, error) {
	rule, err := s.ruleRepo.GetByID(ctx, tenantID, ruleID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, common.NewNotFoundError("approval rule not found")
		}
		return nil, err
	}
	return rule, nil
}

func (s *approvalService) ListRules(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.ApprovalRule, error) {
	return s.ruleRepo.List(ctx, tenantID, limit, offset)
}

func (s *approvalService) SubmitDecision(ctx context.Context, tenantID, transferID, actorUserID uuid.UUID, levelNumber int, approve bool, notes *string) (*models.StockTransfer, error) {
	if err := common.ValidateOptionalString(notes, "notes", maxNoteLength); err != nil {
		return nil, common.NewValidationError("%s", err.Error())
	}

	var transfer *models.StockTransfer

	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		transferRepo := repositories.NewTransferRepository(tx)
		recordRepo := repositories.NewApprovalRecordRepository(tx)
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
			return common.NewConflictError("transfer is %s, approvals only apply while REQUESTED", transfer.Status)
		}

		records, err := recordRepo.ListByTransferForUpdate(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return common.NewConflictError("transfer has no approval chain")
		}

		rule, err := repositories.NewApprovalRuleRepository(tx).GetByID(ctx, tenantID, records[0].RuleID)
		if err != nil {
			return err
		}

		var target *models.ApprovalRecord
		for _, record := range records {
			if record.LevelNumber == levelNumber {
				target = record
				break
			}
		}
		if target == nil {
			return common.NewNotFoundError(fmt.Sprintf("approval level %d not found", levelNumber))
		}
		if target.Status != models.ApprovalStatusPending {
			return common.NewConflictError("approval level %d already %s", levelNumber, target.Status)
		}

		if err := s.authorizeApprover(ctx, target, actorUserID); err != nil {
			return err
		}

		// Sequential chains decide levels strictly in order.
		if rule.ApprovalMode == models.ApprovalModeSequential {
			for _, record := range records {
				if record.LevelNumber < levelNumber && record.Status != models.ApprovalStatusApproved {
					return common.NewConflictError("level %d must be decided before level %d", record.LevelNumber, levelNumber)
				}
			}
		}

		now := time.Now()
		actor := actorUserID
		target.ApprovedByUserID = &actor
		target.Notes = notes
		target.DecidedAt = &now

		if approve {
			target.Status = models.ApprovalStatusApproved
		} else {
			target.Status = models.ApprovalStatusRejected
		}
		if err := recordRepo.Update(ctx, target); err != nil {
			return err
		}

		if !approve {
			// A single rejection is final. Sibling levels stay PENDING as
			// a record of where the chain stopped.
			transfer.Status = models.TransferStatusRejected
			transfer.ReviewedByUserID = &actor
			transfer.ReviewNotes = notes
			transfer.ReviewedAt = &now
			return transferRepo.Update(ctx, transfer)
		}

		allApproved := true
		for _, record := range records {
			if record.LevelNumber != levelNumber && record.Status != models.ApprovalStatusApproved {
				allApproved = false
				break
			}
		}
		if !allApproved {
			return nil
		}

		// Final sign-off: the full requested quantities are approved and
		// reserved against the source branch.
		items, err := itemRepo.ListByTransferForUpdate(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		stockRepo := repositories.NewProductStockRepository(tx)
		for _, item := range items {
			if item.QtyApproved == nil {
				qty := item.QtyRequested
				item.QtyApproved = &qty
				if err := itemRepo.Update(ctx, item); err != nil {
					return err
				}
			}
			if err := stockRepo.ApplyDelta(ctx, tenantID, transfer.SourceBranchID, item.ProductID, 0, *item.QtyApproved); err != nil {
				return err
			}
		}

		transfer.Status = models.TransferStatusApproved
		transfer.ReviewedByUserID = &actor
		transfer.ReviewedAt = &now
		return transferRepo.Update(ctx, transfer)
	})
	if err != nil {
		return nil, err
	}

	action := "APPROVAL_REJECTED"
	if approve {
		action = "APPROVAL_APPROVED"
	}
	actor := actorUserID
	if err := s.audit.LogActivity(ctx, tenantID, "approval_records", transferID.String(), action, &actor, nil, models.JSONB{
		"transfer_id":  transferID,
		"level_number": levelNumber,
	}); err != nil {
		// Audit is best effort on the read-back path.
		log.Printf("WARN: audit log failed for approval decision: %v", err)
	}

	return transfer, nil
}

func (s *approvalService) Progress(ctx context.Context, tenantID, transferID uuid.UUID) (*ApprovalProgress, error) {
	records, err := s.recordRepo.ListByTransfer(ctx, tenantID, transferID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, common.NewNotFoundError("transfer has no approval chain")
	}

	rule, err := s.ruleRepo.GetByID(ctx, tenantID, records[0].RuleID)
	if err != nil {
		return nil, err
	}

	progress := &ApprovalProgress{
		Records:      records,
		ApprovalMode: rule.ApprovalMode,
		TotalLevels:  len(records),
	}
	for _, record := range records {
		switch record.Status {
		case models.ApprovalStatusApproved:
			progress.ApprovedLevels++
		case models.ApprovalStatusRejected:
			progress.Rejected = true
		case models.ApprovalStatusPending:
			if progress.CurrentLevel == nil {
				level := record.LevelNumber
				progress.CurrentLevel = &level
			}
		}
	}
	progress.Complete = progress.ApprovedLevels == progress.TotalLevels
	return progress, nil
}

func (s *approvalService) authorizeApprover(ctx context.Context, record *models.ApprovalRecord, actorUserID uuid.UUID) error {
	if record.RequiredUserID != nil {
		if *record.RequiredUserID != actorUserID {
			return common.NewPermissionDeniedError("approval level is assigned to a different user")
		}
		return nil
	}
	if record.RequiredRoleID != nil {
		hasRole, err := s.rbac.UserHasRole(ctx, actorUserID, *record.RequiredRoleID)
		if err != nil {
			return err
		}
		if !hasRole {
			return common.NewPermissionDeniedError("approval level requires a role the user does not hold")
		}
		return nil
	}
	return common.NewInternalError("approval record names neither role nor user", fmt.Errorf("record %s", record.ID))
}

func validateRule(rule *models.ApprovalRule) error {
	if rule.Name == "" {
		return common.NewValidationError("rule name is required")
	}
	if rule.ApprovalMode != models.ApprovalModeSequential && rule.ApprovalMode != models.ApprovalModeParallel {
		return common.NewValidationError("approval_mode must be SEQUENTIAL or PARALLEL")
	}
	if len(rule.Levels) == 0 {
		return common.NewValidationError("rule requires at least one approval level")
	}
	for i, level := range rule.Levels {
		if level.LevelNumber != i+1 {
			return common.NewValidationError("level numbers must be contiguous starting at 1")
		}
		hasRole := level.RequiredRoleID != nil
		hasUser := level.RequiredUserID != nil
		if hasRole == hasUser {
			return common.NewValidationError("each level names exactly one of required_role_id or required_user_id")
		}
	}
	for _, condition := range rule.Conditions {
		switch v := condition.(type) {
		case models.QtyThresholdCondition:
			if v.Threshold <= 0 {
				return common.NewValidationError("quantity threshold must be positive")
			}
		case models.ValueThresholdCondition:
			if v.ThresholdPence <= 0 {
				return common.NewValidationError("value threshold must be positive")
			}
		}
	}
	return nil
}

// MatchApprovalRule returns the winning rule for a transfer, or nil when no
// active rule matches. Rules must already be in priority order (highest
// first); a rule matches when every one of its conditions holds.
func MatchApprovalRule(rules []*models.ApprovalRule, transfer *models.StockTransfer, totals TransferTotals) *models.ApprovalRule {
	for _, rule := range rules {
		if ruleMatches(rule, transfer, totals) {
			return rule
		}
	}
	return nil
}

func ruleMatches(rule *models.ApprovalRule, transfer *models.StockTransfer, totals TransferTotals) bool {
	for _, condition := range rule.Conditions {
		if !conditionMatches(condition, transfer, totals) {
			return false
		}
	}
	return true
}

func conditionMatches(condition models.ApprovalCondition, transfer *models.StockTransfer, totals TransferTotals) bool {
	switch v := condition.(type) {
	case models.QtyThresholdCondition:
		return totals.TotalQty >= v.Threshold
	case models.ValueThresholdCondition:
		return totals.TotalValuePence >= v.ThresholdPence
	case models.SourceBranchCondition:
		return transfer.SourceBranchID == v.BranchID
	case models.DestinationBranchCondition:
		return transfer.DestinationBranchID == v.BranchID
	default:
		return false
	}
}

// MaterializeApprovalRecords copies the rule's levels onto a transfer as
// PENDING records. Later edits to the rule never touch these.
func MaterializeApprovalRecords(ctx context.Context, db repositories.DBTX, rule *models.ApprovalRule, tenantID, transferID uuid.UUID) error {
	recordRepo := repositories.NewApprovalRecordRepository(db)
	for _, level := range rule.Levels {
		record := &models.ApprovalRecord{
			ID:             uuid.New(),
			TenantID:       tenantID,
			TransferID:     transferID,
			RuleID:         rule.ID,
			LevelNumber:    level.LevelNumber,
			Status:         models.ApprovalStatusPending,
			RequiredRoleID: level.RequiredRoleID,
			RequiredUserID: level.RequiredUserID,
		}
		if err := recordRepo.Create(ctx, record); err != nil {
			return err
		}
	}
	return nil
}
