package services

import (
	"context"
	"log"
	"regexp"
	"time"

	"stockflow/internal/caching"
	"stockflow/internal/common"
	"stockflow/internal/models"
	"stockflow/internal/repositories"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const branchCacheTTL = 10 * time.Minute

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

type BranchService interface {
	Create(ctx context.Context, branch *models.Branch) error
	Get(ctx context.Context, tenantID, branchID uuid.UUID) (*models.Branch, error)
	Update(ctx context.Context, branch *models.Branch) error
	List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Branch, error)
	AddMember(ctx context.Context, tenantID, branchID, userID uuid.UUID) error
	RemoveMember(ctx context.Context, tenantID, branchID, userID uuid.UUID) error
}

type branchService struct {
	branchRepo     repositories.BranchRepository
	membershipRepo repositories.BranchMembershipRepository
	cache          caching.CacheService
}

func NewBranchService(branchRepo repositories.BranchRepository, membershipRepo repositories.BranchMembershipRepository, cache caching.CacheService) BranchService {
	return &branchService{
		branchRepo:     branchRepo,
		membershipRepo: membershipRepo,
		cache:          cache,
	}
}

func (s *branchService) Create(ctx context.Context, branch *models.Branch) error {
	if err := validateBranch(branch); err != nil {
		return err
	}
	if existing, err := s.branchRepo.GetBySlug(ctx, branch.TenantID, branch.Slug); err == nil && existing != nil {
		return common.NewConflictError("a branch with this slug already exists")
	} else if err != nil && err != pgx.ErrNoRows {
		return err
	}

	branch.ID = uuid.New()
	branch.Active = true
	return s.branchRepo.Create(ctx, branch)
}

func (s *branchService) Get(ctx context.Context, tenantID, branchID uuid.UUID) (*models.Branch, error) {
	if s.cache != nil {
		cached, err := s.cache.GetBranch(ctx, tenantID, branchID)
		if err != nil {
			log.Printf("WARN: branch cache read failed: %v", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	branch, err := s.branchRepo.GetByID(ctx, tenantID, branchID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, common.NewNotFoundError("branch not found")
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetBranch(ctx, tenantID, branch, branchCacheTTL); err != nil {
			log.Printf("WARN: branch cache write failed: %v", err)
		}
	}
	return branch, nil
}

func (s *branchService) Update(ctx context.Context, branch *models.Branch) error {
	if err := validateBranch(branch); err != nil {
		return err
	}
	if _, err := s.branchRepo.GetByID(ctx, branch.TenantID, branch.ID); err != nil {
		if err == pgx.ErrNoRows {
			return common.NewNotFoundError("branch not found")
		}
		return err
	}

	if err := s.branchRepo.Update(ctx, branch); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.DeleteBranch(ctx, branch.TenantID, branch.ID); err != nil {
			log.Printf("WARN: branch cache invalidation failed: %v", err)
		}
	}
	return nil
}

func (s *branchService) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Branch, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.branchRepo.List(ctx, tenantID, limit, offset)
}

func (s *branchService) AddMember(ctx context.Context, tenantID, branchID, userID uuid.UUID) error {
	if _, err := s.Get(ctx, tenantID, branchID); err != nil {
		return err
	}
	return s.membershipRepo.Create(ctx, &models.BranchMembership{
		ID:       uuid.New(),
		TenantID: tenantID,
		BranchID: branchID,
		UserID:   userID,
	})
}

func (s *branchService) RemoveMember(ctx context.Context, tenantID, branchID, userID uuid.UUID) error {
	return s.membershipRepo.Delete(ctx, tenantID, branchID, userID)
}

func validateBranch(branch *models.Branch) error {
	if branch.Name == "" {
		return common.NewValidationError("branch name is required")
	}
	if !slugPattern.MatchString(branch.Slug) {
		return common.NewValidationError("branch slug must be lowercase kebab-case")
	}
	return nil
}
