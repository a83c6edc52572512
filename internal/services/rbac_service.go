package services

import (
	"context"
	"log"
	"time"

	"stockflow/internal/caching"
	"stockflow/internal/repositories"

	"github.com/google/uuid"
)

const permissionCacheTTL = 5 * time.Minute

type RBACService interface {
	UserHasPermission(ctx context.Context, userID, tenantID uuid.UUID, permissionName string) (bool, error)
	GetUserPermissions(ctx context.Context, userID, tenantID uuid.UUID) ([]string, error)
	UserHasRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error)
	IsBranchMember(ctx context.Context, tenantID, branchID, userID uuid.UUID) (bool, error)
	AccessibleBranchIDs(ctx context.Context, tenantID, userID uuid.UUID) ([]uuid.UUID, error)
	InvalidateUserPermissions(ctx context.Context, userID uuid.UUID)
}

type rbacService struct {
	userRoleRepo         repositories.UserRoleRepository
	branchMembershipRepo repositories.BranchMembershipRepository
	cache                caching.CacheService
}

func NewRBACService(userRoleRepo repositories.UserRoleRepository, branchMembershipRepo repositories.BranchMembershipRepository, cache caching.CacheService) RBACService {
	return &rbacService{
		userRoleRepo:         userRoleRepo,
		branchMembershipRepo: branchMembershipRepo,
		cache:                cache,
	}
}

func (s *rbacService) UserHasPermission(ctx context.Context, userID, tenantID uuid.UUID, permissionName string) (bool, error) {
	permissions, err := s.GetUserPermissions(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}

	for _, p := range permissions {
		if p == permissionName {
			return true, nil
		}
	}
	return false, nil
}

func (s *rbacService) GetUserPermissions(ctx context.Context, userID, tenantID uuid.UUID) ([]string, error) {
	if s.cache != nil {
		cached, err := s.cache.GetUserPermissions(ctx, userID)
		if err != nil {
			log.Printf("WARN: permission cache read failed for user %s: %v", userID, err)
		} else if cached != nil {
			return cached, nil
		}
	}

	permissions, err := s.userRoleRepo.ListPermissionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetUserPermissions(ctx, userID, permissions, permissionCacheTTL); err != nil {
			log.Printf("WARN: permission cache write failed for user %s: %v", userID, err)
		}
	}
	return permissions, nil
}

func (s *rbacService) UserHasRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	return s.userRoleRepo.HasRole(ctx, userID, roleID)
}

func (s *rbacService) IsBranchMember(ctx context.Context, tenantID, branchID, userID uuid.UUID) (bool, error) {
	return s.branchMembershipRepo.IsMember(ctx, tenantID, userID, branchID)
}

func (s *rbacService) AccessibleBranchIDs(ctx context.Context, tenantID, userID uuid.UUID) ([]uuid.UUID, error) {
	return s.branchMembershipRepo.ListBranchIDsForUser(ctx, tenantID, userID)
}

func (s *rbacService) InvalidateUserPermissions(ctx context.Context, userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteUserPermissions(ctx, userID); err != nil {
		log.Printf("WARN: permission cache invalidation failed for user %s: %v", userID, err)
	}
}
