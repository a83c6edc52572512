package repositories

import (
	"context"

	"stockflow/internal/models"

	"github.com/google/uuid"
)

type UserRoleRepository interface {
	Assign(ctx context.Context, userRole *models.UserRole) error
	Remove(ctx context.Context, userID, roleID uuid.UUID) error
	ListRoleIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	HasRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error)
	ListPermissionsForUser(ctx context.Context, userID uuid.UUID) ([]string, error)
}

type userRoleRepo struct {
	db DBTX
}

func NewUserRoleRepository(db DBTX) UserRoleRepository {
	return &userRoleRepo{db: db}
}

func (r *userRoleRepo) Assign(ctx context.Context, userRole *models.UserRole) error {
	query := `
		INSERT INTO user_roles (id, user_id, role_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, role_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, userRole.ID, userRole.UserID, userRole.RoleID)
	return err
}

func (r *userRoleRepo) Remove(ctx context.Context, userID, roleID uuid.UUID) error {
	query := `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`
	_, err := r.db.Exec(ctx, query, userID, roleID)
	return err
}

func (r *userRoleRepo) ListRoleIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT role_id FROM user_roles WHERE user_id = $1`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roleIDs []uuid.UUID
	for rows.Next() {
		var roleID uuid.UUID
		if err := rows.Scan(&roleID); err != nil {
			return nil, err
		}
		roleIDs = append(roleIDs, roleID)
	}
	return roleIDs, rows.Err()
}

func (r *userRoleRepo) HasRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM user_roles WHERE user_id = $1 AND role_id = $2)`
	err := r.db.QueryRow(ctx, query, userID, roleID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *userRoleRepo) ListPermissionsForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	query := `
		SELECT DISTINCT p.name
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var permissions []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		permissions = append(permissions, name)
	}
	return permissions, rows.Err()
}
