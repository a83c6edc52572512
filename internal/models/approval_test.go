package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovalConditionsRoundTrip(t *testing.T) {
	branchID := uuid.New()
	conditions := ApprovalConditions{
		QtyThresholdCondition{Threshold: 500},
		ValueThresholdCondition{ThresholdPence: 1250000},
		SourceBranchCondition{BranchID: branchID},
		DestinationBranchCondition{BranchID: branchID},
	}

	data, err := json.Marshal(conditions)
	require.NoError(t, err)

	var decoded ApprovalConditions
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, conditions, decoded)
}

func TestApprovalConditionsTypeTags(t *testing.T) {
	conditions := ApprovalConditions{QtyThresholdCondition{Threshold: 10}}
	data, err := json.Marshal(conditions)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"TOTAL_QTY_THRESHOLD"`)
}

func TestApprovalConditionsUnknownType(t *testing.T) {
	var decoded ApprovalConditions
	err := json.Unmarshal([]byte(`[{"type":"MOON_PHASE","threshold":3}]`), &decoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MOON_PHASE")
}

func TestApprovalConditionsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"qty threshold without threshold", `[{"type":"TOTAL_QTY_THRESHOLD"}]`},
		{"value threshold without threshold_pence", `[{"type":"TOTAL_VALUE_THRESHOLD"}]`},
		{"source branch without branch_id", `[{"type":"SOURCE_BRANCH"}]`},
		{"destination branch without branch_id", `[{"type":"DESTINATION_BRANCH"}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var decoded ApprovalConditions
			assert.Error(t, json.Unmarshal([]byte(tc.in), &decoded))
		})
	}
}
