package services

import (
	"context"
	"testing"
	"time"

	"stockflow/internal/common"
	"stockflow/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) Create(ctx context.Context, template *models.StockTransferTemplate) error {
	args := m.Called(ctx, template)
	return args.Error(0)
}

func (m *MockTemplateRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.StockTransferTemplate, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StockTransferTemplate), args.Error(1)
}

func (m *MockTemplateRepository) Update(ctx context.Context, template *models.StockTransferTemplate) error {
	args := m.Called(ctx, template)
	return args.Error(0)
}

func (m *MockTemplateRepository) List(ctx context.Context, tenantID uuid.UUID, includeArchived bool, limit, offset int) ([]*models.StockTransferTemplate, error) {
	args := m.Called(ctx, tenantID, includeArchived, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.StockTransferTemplate), args.Error(1)
}

// capturingTransferService records the Create call the template service
// delegates to. The embedded interface covers the methods the tests never
// reach.
type capturingTransferService struct {
	TransferService
	params  CreateTransferParams
	created *models.StockTransfer
}

func (s *capturingTransferService) Create(ctx context.Context, params CreateTransferParams) (*models.StockTransfer, error) {
	s.params = params
	return s.created, nil
}

func newTemplateFixture(tenantID uuid.UUID, items ...*models.TemplateItem) *models.StockTransferTemplate {
	return &models.StockTransferTemplate{
		ID:                  uuid.New(),
		TenantID:            tenantID,
		Name:                "Weekly warehouse top-up",
		SourceBranchID:      uuid.New(),
		DestinationBranchID: uuid.New(),
		CreatedByUserID:     uuid.New(),
		Items:               items,
	}
}

func TestTemplateCreateTransfer(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	userID := uuid.New()
	productA := uuid.New()
	productB := uuid.New()

	setup := func(template *models.StockTransferTemplate) (*templateService, *capturingTransferService) {
		repo := &MockTemplateRepository{}
		repo.On("GetByID", ctx, tenantID, template.ID).Return(template, nil)
		transfers := &capturingTransferService{created: &models.StockTransfer{ID: uuid.New()}}
		return &templateService{templateRepo: repo, transfers: transfers}, transfers
	}

	t.Run("defaults flow through", func(t *testing.T) {
		template := newTemplateFixture(tenantID,
			&models.TemplateItem{ProductID: productA, DefaultQty: 10},
			&models.TemplateItem{ProductID: productB, DefaultQty: 4},
		)
		service, transfers := setup(template)

		_, err := service.CreateTransfer(ctx, tenantID, template.ID, userID, "", nil, nil)
		require.NoError(t, err)

		require.Len(t, transfers.params.Items, 2)
		assert.Equal(t, template.SourceBranchID, transfers.params.SourceBranchID)
		assert.Equal(t, template.DestinationBranchID, transfers.params.DestinationBranchID)
		assert.Equal(t, models.TransferInitiationPush, transfers.params.InitiationType)
		assert.Equal(t, 10, transfers.params.Items[0].Qty)
		assert.Equal(t, 4, transfers.params.Items[1].Qty)
	})

	t.Run("overrides replace default quantities", func(t *testing.T) {
		template := newTemplateFixture(tenantID,
			&models.TemplateItem{ProductID: productA, DefaultQty: 10},
			&models.TemplateItem{ProductID: productB, DefaultQty: 4},
		)
		service, transfers := setup(template)

		_, err := service.CreateTransfer(ctx, tenantID, template.ID, userID, "", []TemplateItemOverride{
			{ProductID: productA, Qty: 25},
		}, nil)
		require.NoError(t, err)

		require.Len(t, transfers.params.Items, 2)
		assert.Equal(t, 25, transfers.params.Items[0].Qty)
		assert.Equal(t, 4, transfers.params.Items[1].Qty)
	})

	t.Run("zero override drops the line", func(t *testing.T) {
		template := newTemplateFixture(tenantID,
			&models.TemplateItem{ProductID: productA, DefaultQty: 10},
			&models.TemplateItem{ProductID: productB, DefaultQty: 4},
		)
		service, transfers := setup(template)

		_, err := service.CreateTransfer(ctx, tenantID, template.ID, userID, "", []TemplateItemOverride{
			{ProductID: productA, Qty: 0},
		}, nil)
		require.NoError(t, err)

		require.Len(t, transfers.params.Items, 1)
		assert.Equal(t, productB, transfers.params.Items[0].ProductID)
	})

	t.Run("override for product not on template", func(t *testing.T) {
		template := newTemplateFixture(tenantID,
			&models.TemplateItem{ProductID: productA, DefaultQty: 10},
		)
		service, _ := setup(template)

		_, err := service.CreateTransfer(ctx, tenantID, template.ID, userID, "", []TemplateItemOverride{
			{ProductID: uuid.New(), Qty: 5},
		}, nil)
		assert.True(t, common.IsCode(err, common.CodeValidation))
	})

	t.Run("negative override rejected", func(t *testing.T) {
		template := newTemplateFixture(tenantID,
			&models.TemplateItem{ProductID: productA, DefaultQty: 10},
		)
		service, _ := setup(template)

		_, err := service.CreateTransfer(ctx, tenantID, template.ID, userID, "", []TemplateItemOverride{
			{ProductID: productA, Qty: -1},
		}, nil)
		assert.True(t, common.IsCode(err, common.CodeValidation))
	})

	t.Run("all lines dropped", func(t *testing.T) {
		template := newTemplateFixture(tenantID,
			&models.TemplateItem{ProductID: productA, DefaultQty: 10},
		)
		service, _ := setup(template)

		_, err := service.CreateTransfer(ctx, tenantID, template.ID, userID, "", []TemplateItemOverride{
			{ProductID: productA, Qty: 0},
		}, nil)
		assert.True(t, common.IsCode(err, common.CodeValidation))
	})

	t.Run("archived template refuses instantiation", func(t *testing.T) {
		template := newTemplateFixture(tenantID,
			&models.TemplateItem{ProductID: productA, DefaultQty: 10},
		)
		template.Archive(userID, time.Now())
		service, _ := setup(template)

		_, err := service.CreateTransfer(ctx, tenantID, template.ID, userID, "", nil, nil)
		assert.True(t, common.IsCode(err, common.CodeConflict))
	})
}
