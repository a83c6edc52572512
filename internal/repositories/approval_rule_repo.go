package repositories

import (
	"context"
	"encoding/json"

	"stockflow/internal/models"

	"github.com/google/uuid"
)

type ApprovalRuleRepository interface {
	Create(ctx context.Context, rule *models.ApprovalRule) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.ApprovalRule, error)
	Update(ctx context.Context, rule *models.ApprovalRule) error
	// ListActive returns active rules ordered by priority descending, then
	// created_at ascending, then id ascending, which is the deterministic
	// tie-break order for rule matching.
	ListActive(ctx context.Context, tenantID uuid.UUID) ([]*models.ApprovalRule, error)
	List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.ApprovalRule, error)
}

type approvalRuleRepo struct {
	db DBTX
}

func NewApprovalRuleRepository(db DBTX) ApprovalRuleRepository {
	return &approvalRuleRepo{db: db}
}

func (r *approvalRuleRepo) Create(ctx context.Context, rule *models.ApprovalRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO approval_rules (id, tenant_id, name, priority, approval_mode, active, conditions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`
	if _, err := r.db.Exec(ctx, query,
		rule.ID, rule.TenantID, rule.Name, rule.Priority, rule.ApprovalMode, rule.Active, conditions,
	); err != nil {
		return err
	}

	levelQuery := `
		INSERT INTO approval_rule_levels (id, rule_id, level_number, required_role_id, required_user_id)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, level := range rule.Levels {
		if _, err := r.db.Exec(ctx, levelQuery,
			level.ID, level.RuleID, level.LevelNumber, level.RequiredRoleID, level.RequiredUserID,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *approvalRuleRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.ApprovalRule, error) {
	rule := &models.ApprovalRule{}
	var conditions []byte
	query := `
		SELECT id, tenant_id, name, priority, approval_mode, active, conditions, created_at, updated_at
		FROM approval_rules
		WHERE tenant_id = $1 AND id = $2
	`
	err := r.db.QueryRow(ctx, query, tenantID, id).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Priority, &rule.ApprovalMode, &rule.Active,
		&conditions, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return nil, err
	}

	levels, err := r.listLevels(ctx, rule.ID)
	if err != nil {
		return nil, err
	}
	rule.Levels = levels
	return rule, nil
}

func (r *approvalRuleRepo) Update(ctx context.Context, rule *models.ApprovalRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return err
	}

	query := `
		UPDATE approval_rules
		SET name = $1, priority = $2, approval_mode = $3, active = $4, conditions = $5, updated_at = NOW()
		WHERE tenant_id = $6 AND id = $7
	`
	if _, err := r.db.Exec(ctx, query,
		rule.Name, rule.Priority, rule.ApprovalMode, rule.Active, conditions, rule.TenantID, rule.ID,
	); err != nil {
		return err
	}

	// Levels are replaced wholesale; materialized approval records keep
	// their own copy of the requirement, so historical transfers are
	// unaffected.
	if _, err := r.db.Exec(ctx, `DELETE FROM approval_rule_levels WHERE rule_id = $1`, rule.ID); err != nil {
		return err
	}
	levelQuery := `
		INSERT INTO approval_rule_levels (id, rule_id, level_number, required_role_id, required_user_id)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, level := range rule.Levels {
		if _, err := r.db.Exec(ctx, levelQuery,
			level.ID, level.RuleID, level.LevelNumber, level.RequiredRoleID, level.RequiredUserID,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *approvalRuleRepo) ListActive(ctx context.Context, tenantID uuid.UUID) ([]*models.ApprovalRule, error) {
	query := `
		SELECT id, tenant_id, name, priority, approval_mode, active, conditions, created_at, updated_at
		FROM approval_rules
		WHERE tenant_id = $1 AND active = true
		ORDER BY priority DESC, created_at ASC, id ASC
	`
	return r.listRules(ctx, query, tenantID)
}

func (r *approvalRuleRepo) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.ApprovalRule, error) {
	query := `
		SELECT id, tenant_id, name, priority, approval_mode, active, conditions, created_at, updated_at
		FROM approval_rules
		WHERE tenant_id = $1
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`
	return r.listRules(ctx, query, tenantID, limit, offset)
}

func (r *approvalRuleRepo) listRules(ctx context.Context, query string, args ...any) ([]*models.ApprovalRule, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*models.ApprovalRule
	for rows.Next() {
		rule := &models.ApprovalRule{}
		var conditions []byte
		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Priority, &rule.ApprovalMode, &rule.Active,
			&conditions, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rule := range rules {
		levels, err := r.listLevels(ctx, rule.ID)
		if err != nil {
			return nil, err
		}
		rule.Levels = levels
	}
	return rules, nil
}

func (r *approvalRuleRepo) listLevels(ctx context.Context, ruleID uuid.UUID) ([]*models.ApprovalRuleLevel, error) {
	query := `
		SELECT id, rule_id, level_number, required_role_id, required_user_id
		FROM approval_rule_levels
		WHERE rule_id = $1
		ORDER BY level_number ASC
	`
	rows, err := r.db.Query(ctx, query, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var levels []*models.ApprovalRuleLevel
	for rows.Next() {
		level := &models.ApprovalRuleLevel{}
		if err := rows.Scan(
			&level.ID, &level.RuleID, &level.LevelNumber, &level.RequiredRoleID, &level.RequiredUserID,
		); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}
