package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"stockflow/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type CacheService interface {
	// Product caching
	GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (*models.Product, error)
	SetProduct(ctx context.Context, tenantID uuid.UUID, product *models.Product, ttl time.Duration) error
	DeleteProduct(ctx context.Context, tenantID, productID uuid.UUID) error

	// Branch caching
	GetBranch(ctx context.Context, tenantID, branchID uuid.UUID) (*models.Branch, error)
	SetBranch(ctx context.Context, tenantID uuid.UUID, branch *models.Branch, ttl time.Duration) error
	DeleteBranch(ctx context.Context, tenantID, branchID uuid.UUID) error

	// Branch-level stock caching
	GetProductStock(ctx context.Context, tenantID, branchID, productID uuid.UUID) (*models.ProductStock, error)
	SetProductStock(ctx context.Context, tenantID uuid.UUID, stock *models.ProductStock, ttl time.Duration) error
	DeleteProductStock(ctx context.Context, tenantID, branchID, productID uuid.UUID) error

	// RBAC permission caching
	GetUserPermissions(ctx context.Context, userID uuid.UUID) ([]string, error)
	SetUserPermissions(ctx context.Context, userID uuid.UUID, permissions []string, ttl time.Duration) error
	DeleteUserPermissions(ctx context.Context, userID uuid.UUID) error

	// Cache invalidation
	InvalidateTenantCache(ctx context.Context, tenantID uuid.UUID) error

	// Rate limiting
	IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Generic string operations
	SetString(ctx context.Context, key string, value string, ttl time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	// Accept redis://host:port and rediss://host:port addresses too
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", pingErr, parsedAddr)
	}

	return &redisCacheService{client: client}
}

func (r *redisCacheService) GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (*models.Product, error) {
	key := fmt.Sprintf("stockflow:product:%s:%s", tenantID.String(), productID.String())
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *redisCacheService) SetProduct(ctx context.Context, tenantID uuid.UUID, product *models.Product, ttl time.Duration) error {
	key := fmt.Sprintf("stockflow:product:%s:%s", tenantID.String(), product.ID.String())
	data, err := json.Marshal(product)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *redisCacheService) DeleteProduct(ctx context.Context, tenantID, productID uuid.UUID) error {
	key := fmt.Sprintf("stockflow:product:%s:%s", tenantID.String(), productID.String())
	return r.client.Del(ctx, key).Err()
}

func (r *redisCacheService) GetBranch(ctx context.Context, tenantID, branchID uuid.UUID) (*models.Branch, error) {
	key := fmt.Sprintf("stockflow:branch:%s:%s", tenantID.String(), branchID.String())
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var branch models.Branch
	if err := json.Unmarshal(data, &branch); err != nil {
		return nil, err
	}
	return &branch, nil
}

func (r *redisCacheService) SetBranch(ctx context.Context, tenantID uuid.UUID, branch *models.Branch, ttl time.Duration) error {
	key := fmt.Sprintf("stockflow:branch:%s:%s", tenantID.String(), branch.ID.String())
	data, err := json.Marshal(branch)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *redisCacheService) DeleteBranch(ctx context.Context, tenantID, branchID uuid.UUID) error {
	key := fmt.Sprintf("stockflow:branch:%s:%s", tenantID.String(), branchID.String())
	return r.client.Del(ctx, key).Err()
}

func (r *redisCacheService) GetProductStock(ctx context.Context, tenantID, branchID, productID uuid.UUID) (*models.ProductStock, error) {
	key := fmt.Sprintf("stockflow:stock:%s:%s:%s", tenantID.String(), branchID.String(), productID.String())
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var stock models.ProductStock
	if err := json.Unmarshal(data, &stock); err != nil {
		return nil, err
	}
	return &stock, nil
}

func (r *redisCacheService) SetProductStock(ctx context.Context, tenantID uuid.UUID, stock *models.ProductStock, ttl time.Duration) error {
	key := fmt.Sprintf("stockflow:stock:%s:%s:%s", tenantID.String(), stock.BranchID.String(), stock.ProductID.String())
	data, err := json.Marshal(stock)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *redisCacheService) DeleteProductStock(ctx context.Context, tenantID, branchID, productID uuid.UUID) error {
	key := fmt.Sprintf("stockflow:stock:%s:%s:%s", tenantID.String(), branchID.String(), productID.String())
	return r.client.Del(ctx, key).Err()
}

func (r *redisCacheService) GetUserPermissions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	key := fmt.Sprintf("stockflow:permissions:%s", userID.String())
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var permissions []string
	if err := json.Unmarshal(data, &permissions); err != nil {
		return nil, err
	}
	return permissions, nil
}

func (r *redisCacheService) SetUserPermissions(ctx context.Context, userID uuid.UUID, permissions []string, ttl time.Duration) error {
	key := fmt.Sprintf("stockflow:permissions:%s", userID.String())
	data, err := json.Marshal(permissions)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *redisCacheService) DeleteUserPermissions(ctx context.Context, userID uuid.UUID) error {
	key := fmt.Sprintf("stockflow:permissions:%s", userID.String())
	return r.client.Del(ctx, key).Err()
}

func (r *redisCacheService) InvalidateTenantCache(ctx context.Context, tenantID uuid.UUID) error {
	pattern := fmt.Sprintf("stockflow:*:%s:*", tenantID.String())
	keys, err := r.client.Keys(ctx, pattern).Result()
	if err != nil {
		return err
	}

	if len(keys) > 0 {
		return r.client.Del(ctx, keys...).Err()
	}
	return nil
}

func (r *redisCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	cacheKey := fmt.Sprintf("stockflow:ratelimit:%s", key)
	count, err := r.client.Incr(ctx, cacheKey).Result()
	if err != nil {
		return true, err
	}

	// Set expiry on first request
	if count == 1 {
		r.client.Expire(ctx, cacheKey, window)
	}

	return count > int64(limit), nil
}

func (r *redisCacheService) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCacheService) GetString(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil // cache miss
		}
		return "", err
	}
	return val, nil
}

func (r *redisCacheService) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
