package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockflow/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type MockAuditLogsRepository struct {
	mock.Mock
}

func (m *MockAuditLogsRepository) Create(ctx context.Context, auditLog *models.AuditLog) error {
	args := m.Called(ctx, auditLog)
	return args.Error(0)
}

func (m *MockAuditLogsRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.AuditLog, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuditLog), args.Error(1)
}

func (m *MockAuditLogsRepository) List(ctx context.Context, tenantID uuid.UUID, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	args := m.Called(ctx, tenantID, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

type AuditLogsServiceTestSuite struct {
	suite.Suite
	mockRepo *MockAuditLogsRepository
	service  AuditLogsService
	tenantID uuid.UUID
	userID   uuid.UUID
	ctx      context.Context
}

func (suite *AuditLogsServiceTestSuite) SetupTest() {
	suite.mockRepo = &MockAuditLogsRepository{}
	suite.service = NewAuditLogsService(suite.mockRepo)
	suite.tenantID = uuid.New()
	suite.userID = uuid.New()
	suite.ctx = context.Background()
	suite.mockRepo.Test(suite.T())
}

func TestAuditLogsServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuditLogsServiceTestSuite))
}

func (suite *AuditLogsServiceTestSuite) TestLogActivity_Success() {
	suite.mockRepo.On("Create", suite.ctx, mock.MatchedBy(func(l *models.AuditLog) bool {
		return l.TenantID == suite.tenantID &&
			l.TableName == "stock_transfers" &&
			l.Action == models.ActionUpdate &&
			l.NewValues["status"] == "APPROVED"
	})).Return(nil)

	err := suite.service.LogActivity(suite.ctx, suite.tenantID, "stock_transfers", uuid.NewString(),
		models.ActionUpdate, &suite.userID, nil, models.JSONB{"status": "APPROVED"})

	assert.NoError(suite.T(), err)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *AuditLogsServiceTestSuite) TestLogActivity_RequiresTableName() {
	err := suite.service.LogActivity(suite.ctx, suite.tenantID, "", "rec",
		models.ActionInsert, nil, nil, nil)
	assert.Error(suite.T(), err)
	suite.mockRepo.AssertNotCalled(suite.T(), "Create")
}

func (suite *AuditLogsServiceTestSuite) TestLogActivity_RequiresAction() {
	err := suite.service.LogActivity(suite.ctx, suite.tenantID, "stock_transfers", "rec",
		"", nil, nil, nil)
	assert.Error(suite.T(), err)
	suite.mockRepo.AssertNotCalled(suite.T(), "Create")
}

func (suite *AuditLogsServiceTestSuite) TestListAuditLogs_ClampsLimit() {
	suite.mockRepo.On("List", suite.ctx, suite.tenantID, mock.MatchedBy(func(f *models.AuditLogFilters) bool {
		return f.Limit == 50
	})).Return([]*models.AuditLog{}, nil)

	_, err := suite.service.ListAuditLogs(suite.ctx, suite.tenantID, &models.AuditLogFilters{Limit: 5000})
	assert.NoError(suite.T(), err)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *AuditLogsServiceTestSuite) TestListAuditLogs_NilFiltersDefaulted() {
	suite.mockRepo.On("List", suite.ctx, suite.tenantID, mock.MatchedBy(func(f *models.AuditLogFilters) bool {
		return f.Limit == 50 && f.Offset == 0
	})).Return([]*models.AuditLog{}, nil)

	_, err := suite.service.ListAuditLogs(suite.ctx, suite.tenantID, nil)
	assert.NoError(suite.T(), err)
}

func (suite *AuditLogsServiceTestSuite) TestListAuditLogs_RejectsWideDateRange() {
	start := time.Now().Add(-400 * 24 * time.Hour)
	end := time.Now()

	_, err := suite.service.ListAuditLogs(suite.ctx, suite.tenantID, &models.AuditLogFilters{
		StartDate: &start,
		EndDate:   &end,
	})
	assert.Error(suite.T(), err)
	suite.mockRepo.AssertNotCalled(suite.T(), "List")
}

func (suite *AuditLogsServiceTestSuite) TestLogEntityHelpers() {
	suite.mockRepo.On("Create", suite.ctx, mock.MatchedBy(func(l *models.AuditLog) bool {
		return l.Action == models.ActionInsert
	})).Return(nil).Once()
	suite.mockRepo.On("Create", suite.ctx, mock.MatchedBy(func(l *models.AuditLog) bool {
		return l.Action == models.ActionUpdate
	})).Return(nil).Once()
	suite.mockRepo.On("Create", suite.ctx, mock.MatchedBy(func(l *models.AuditLog) bool {
		return l.Action == models.ActionDelete
	})).Return(nil).Once()

	assert.NoError(suite.T(), suite.service.LogEntityCreate(suite.ctx, suite.tenantID, "products", "1", &suite.userID, models.JSONB{"sku": "A"}))
	assert.NoError(suite.T(), suite.service.LogEntityUpdate(suite.ctx, suite.tenantID, "products", "1", &suite.userID, models.JSONB{"sku": "A"}, models.JSONB{"sku": "B"}))
	assert.NoError(suite.T(), suite.service.LogEntityDelete(suite.ctx, suite.tenantID, "products", "1", &suite.userID, models.JSONB{"sku": "B"}))
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *AuditLogsServiceTestSuite) TestLogActivity_PropagatesRepoError() {
	repoErr := errors.New("connection refused")
	suite.mockRepo.On("Create", suite.ctx, mock.Anything).Return(repoErr)

	err := suite.service.LogActivity(suite.ctx, suite.tenantID, "branches", "1",
		models.ActionInsert, nil, nil, models.JSONB{"name": "Leeds"})
	assert.ErrorIs(suite.T(), err, repoErr)
}
