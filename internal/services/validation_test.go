package services

import (
	"testing"

	"stockflow/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestValidateBranch(t *testing.T) {
	cases := []struct {
		name    string
		branch  models.Branch
		wantErr bool
	}{
		{"valid", models.Branch{Name: "Leeds Central", Slug: "leeds-central"}, false},
		{"single word slug", models.Branch{Name: "Depot", Slug: "depot"}, false},
		{"numeric slug", models.Branch{Name: "Depot 2", Slug: "depot-2"}, false},
		{"missing name", models.Branch{Slug: "leeds-central"}, true},
		{"empty slug", models.Branch{Name: "Leeds"}, true},
		{"uppercase slug", models.Branch{Name: "Leeds", Slug: "Leeds"}, true},
		{"leading hyphen", models.Branch{Name: "Leeds", Slug: "-leeds"}, true},
		{"trailing hyphen", models.Branch{Name: "Leeds", Slug: "leeds-"}, true},
		{"double hyphen", models.Branch{Name: "Leeds", Slug: "leeds--central"}, true},
		{"spaces", models.Branch{Name: "Leeds", Slug: "leeds central"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateBranch(&tc.branch)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateProduct(t *testing.T) {
	cases := []struct {
		name    string
		product models.Product
		wantErr bool
	}{
		{"valid", models.Product{Name: "Widget", SKU: "WID-001", UnitPricePence: 1299}, false},
		{"free product", models.Product{Name: "Sample", SKU: "SMP-001", UnitPricePence: 0}, false},
		{"missing name", models.Product{SKU: "WID-001"}, true},
		{"missing sku", models.Product{Name: "Widget"}, true},
		{"negative price", models.Product{Name: "Widget", SKU: "WID-001", UnitPricePence: -1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateProduct(&tc.product)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFormatPence(t *testing.T) {
	assert.Equal(t, "0.00", formatPence(0))
	assert.Equal(t, "0.05", formatPence(5))
	assert.Equal(t, "1.50", formatPence(150))
	assert.Equal(t, "1250.00", formatPence(125000))
}
