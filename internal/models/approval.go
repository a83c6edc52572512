package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Approval modes
const (
	ApprovalModeSequential = "SEQUENTIAL"
	ApprovalModeParallel   = "PARALLEL"
)

// Approval record statuses
const (
	ApprovalStatusPending  = "PENDING"
	ApprovalStatusApproved = "APPROVED"
	ApprovalStatusRejected = "REJECTED"
)

// Condition type tags used on the wire.
const (
	ConditionTypeTotalQtyThreshold   = "TOTAL_QTY_THRESHOLD"
	ConditionTypeTotalValueThreshold = "TOTAL_VALUE_THRESHOLD"
	ConditionTypeSourceBranch        = "SOURCE_BRANCH"
	ConditionTypeDestinationBranch   = "DESTINATION_BRANCH"
)

// ApprovalCondition is a closed set of rule conditions. Conditions are
// decoded once at load time; an unknown type tag is a decode error rather
// than a silently-never-matching rule.
type ApprovalCondition interface {
	ConditionType() string
}

// QtyThresholdCondition matches when the sum of requested quantities is at
// least Threshold.
type QtyThresholdCondition struct {
	Threshold int `json:"threshold"`
}

func (QtyThresholdCondition) ConditionType() string { return ConditionTypeTotalQtyThreshold }

// ValueThresholdCondition matches when the total value (qty x unit price,
// in pence) is at least ThresholdPence.
type ValueThresholdCondition struct {
	ThresholdPence int64 `json:"threshold_pence"`
}

func (ValueThresholdCondition) ConditionType() string { return ConditionTypeTotalValueThreshold }

// SourceBranchCondition matches transfers leaving a specific branch.
type SourceBranchCondition struct {
	BranchID uuid.UUID `json:"branch_id"`
}

func (SourceBranchCondition) ConditionType() string { return ConditionTypeSourceBranch }

// DestinationBranchCondition matches transfers arriving at a specific branch.
type DestinationBranchCondition struct {
	BranchID uuid.UUID `json:"branch_id"`
}

func (DestinationBranchCondition) ConditionType() string { return ConditionTypeDestinationBranch }

// ApprovalConditions is the JSON-storable list of conditions on a rule.
type ApprovalConditions []ApprovalCondition

type conditionEnvelope struct {
	Type           string     `json:"type"`
	Threshold      *int       `json:"threshold,omitempty"`
	ThresholdPence *int64     `json:"threshold_pence,omitempty"`
	BranchID       *uuid.UUID `json:"branch_id,omitempty"`
}

// MarshalJSON encodes each condition with its type tag.
func (cs ApprovalConditions) MarshalJSON() ([]byte, error) {
	envelopes := make([]conditionEnvelope, 0, len(cs))
	for _, c := range cs {
		env := conditionEnvelope{Type: c.ConditionType()}
		switch v := c.(type) {
		case QtyThresholdCondition:
			threshold := v.Threshold
			env.Threshold = &threshold
		case ValueThresholdCondition:
			pence := v.ThresholdPence
			env.ThresholdPence = &pence
		case SourceBranchCondition:
			id := v.BranchID
			env.BranchID = &id
		case DestinationBranchCondition:
			id := v.BranchID
			env.BranchID = &id
		default:
			return nil, fmt.Errorf("unsupported approval condition type %T", c)
		}
		envelopes = append(envelopes, env)
	}
	return json.Marshal(envelopes)
}

// UnmarshalJSON decodes the tagged representation, rejecting unknown or
// malformed condition types.
func (cs *ApprovalConditions) UnmarshalJSON(data []byte) error {
	var envelopes []conditionEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return err
	}

	conditions := make(ApprovalConditions, 0, len(envelopes))
	for _, env := range envelopes {
		switch env.Type {
		case ConditionTypeTotalQtyThreshold:
			if env.Threshold == nil {
				return fmt.Errorf("condition %s requires threshold", env.Type)
			}
			conditions = append(conditions, QtyThresholdCondition{Threshold: *env.Threshold})
		case ConditionTypeTotalValueThreshold:
			if env.ThresholdPence == nil {
				return fmt.Errorf("condition %s requires threshold_pence", env.Type)
			}
			conditions = append(conditions, ValueThresholdCondition{ThresholdPence: *env.ThresholdPence})
		case ConditionTypeSourceBranch:
			if env.BranchID == nil {
				return fmt.Errorf("condition %s requires branch_id", env.Type)
			}
			conditions = append(conditions, SourceBranchCondition{BranchID: *env.BranchID})
		case ConditionTypeDestinationBranch:
			if env.BranchID == nil {
				return fmt.Errorf("condition %s requires branch_id", env.Type)
			}
			conditions = append(conditions, DestinationBranchCondition{BranchID: *env.BranchID})
		default:
			return fmt.Errorf("unknown approval condition type %q", env.Type)
		}
	}
	*cs = conditions
	return nil
}

// ApprovalRule is a tenant-configured multi-level approval requirement.
// Among matching rules the highest Priority wins.
type ApprovalRule struct {
	ID           uuid.UUID          `json:"id" db:"id"`
	TenantID     uuid.UUID          `json:"tenant_id" db:"tenant_id"`
	Name         string             `json:"name" db:"name"`
	Priority     int                `json:"priority" db:"priority"`
	ApprovalMode string             `json:"approval_mode" db:"approval_mode"`
	Active       bool               `json:"active" db:"active"`
	Conditions   ApprovalConditions `json:"conditions" db:"conditions"`
	CreatedAt    time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" db:"updated_at"`

	Levels []*ApprovalRuleLevel `json:"levels,omitempty" db:"-"`
}

// ApprovalRuleLevel names who must sign off at one level of a rule.
// Exactly one of RequiredRoleID / RequiredUserID is set.
type ApprovalRuleLevel struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	RuleID         uuid.UUID  `json:"rule_id" db:"rule_id"`
	LevelNumber    int        `json:"level_number" db:"level_number"`
	RequiredRoleID *uuid.UUID `json:"required_role_id,omitempty" db:"required_role_id"`
	RequiredUserID *uuid.UUID `json:"required_user_id,omitempty" db:"required_user_id"`
}

// ApprovalRecord is one materialized level for one transfer. Records are
// created once at transfer creation and never regenerated.
type ApprovalRecord struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	TenantID         uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	TransferID       uuid.UUID  `json:"transfer_id" db:"transfer_id"`
	RuleID           uuid.UUID  `json:"rule_id" db:"rule_id"`
	LevelNumber      int        `json:"level_number" db:"level_number"`
	Status           string     `json:"status" db:"status"`
	RequiredRoleID   *uuid.UUID `json:"required_role_id,omitempty" db:"required_role_id"`
	RequiredUserID   *uuid.UUID `json:"required_user_id,omitempty" db:"required_user_id"`
	ApprovedByUserID *uuid.UUID `json:"approved_by_user_id,omitempty" db:"approved_by_user_id"`
	Notes            *string    `json:"notes,omitempty" db:"notes"`
	DecidedAt        *time.Time `json:"decided_at,omitempty" db:"decided_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}
