package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"stockflow/internal/caching"
	"stockflow/internal/handlers"
	"stockflow/internal/jobs/background"
	"stockflow/internal/middleware"
	"stockflow/internal/repositories"
	"stockflow/internal/services"
	"stockflow/pkg/database"
)

const version = "1.0.0"

func main() {
	// Database connection
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := database.NewPool(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// JWT configuration
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	// Redis configuration
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if redisDBStr := os.Getenv("REDIS_DB"); redisDBStr != "" {
		if db, err := strconv.Atoi(redisDBStr); err == nil {
			redisDB = db
		}
	}

	// MinIO configuration
	minioEndpoint := os.Getenv("MINIO_ENDPOINT")
	if minioEndpoint == "" {
		minioEndpoint = "localhost:9000"
	}
	minioAccessKey := os.Getenv("MINIO_ACCESS_KEY")
	if minioAccessKey == "" {
		minioAccessKey = "minioadmin"
	}
	minioSecretKey := os.Getenv("MINIO_SECRET_KEY")
	if minioSecretKey == "" {
		minioSecretKey = "minioadmin"
	}
	useSSL := os.Getenv("MINIO_USE_SSL") == "true"

	storageSvc, err := services.NewMinioStorageService(minioEndpoint, minioAccessKey, minioSecretKey, useSSL)
	if err != nil {
		log.Fatalf("Failed to initialize MinIO storage service: %v", err)
	}

	// Repositories
	tenantRepo := repositories.NewTenantRepository(pool)
	userRepo := repositories.NewUserRepository(pool)
	userRoleRepo := repositories.NewUserRoleRepository(pool)
	branchRepo := repositories.NewBranchRepository(pool)
	branchMembershipRepo := repositories.NewBranchMembershipRepository(pool)
	productRepo := repositories.NewProductRepository(pool)
	stockLotRepo := repositories.NewStockLotRepository(pool)
	stockLedgerRepo := repositories.NewStockLedgerRepository(pool)
	productStockRepo := repositories.NewProductStockRepository(pool)
	transferRepo := repositories.NewTransferRepository(pool)
	transferItemRepo := repositories.NewTransferItemRepository(pool)
	shipmentBatchRepo := repositories.NewShipmentBatchRepository(pool)
	approvalRuleRepo := repositories.NewApprovalRuleRepository(pool)
	approvalRecordRepo := repositories.NewApprovalRecordRepository(pool)
	templateRepo := repositories.NewTemplateRepository(pool)
	auditLogsRepo := repositories.NewAuditLogsRepository(pool)

	// Cache service
	cacheSvc := caching.NewRedisCacheService(redisAddr, redisPassword, redisDB)

	// Services
	auditSvc := services.NewAuditLogsService(auditLogsRepo)
	rbacSvc := services.NewRBACService(userRoleRepo, branchMembershipRepo, cacheSvc)
	productSvc := services.NewProductService(productRepo, cacheSvc)
	branchSvc := services.NewBranchService(branchRepo, branchMembershipRepo, cacheSvc)
	stockSvc := services.NewStockService(pool, stockLotRepo, stockLedgerRepo, productStockRepo, cacheSvc)
	dispatchNoteSvc := services.NewDispatchNoteService(storageSvc)
	approvalSvc := services.NewApprovalService(pool, approvalRuleRepo, approvalRecordRepo, rbacSvc, auditSvc)
	transferSvc := services.NewTransferService(
		pool,
		transferRepo,
		transferItemRepo,
		shipmentBatchRepo,
		approvalRuleRepo,
		productRepo,
		branchRepo,
		rbacSvc,
		auditSvc,
		dispatchNoteSvc,
		cacheSvc,
	)
	templateSvc := services.NewTemplateService(pool, templateRepo, branchRepo, productRepo, transferSvc)

	// Middleware
	rbacMiddleware := middleware.NewRBACMiddleware(rbacSvc)
	auditMiddleware := middleware.NewAuditMiddleware(auditSvc)
	jwtMiddleware := middleware.JWTMiddleware(userRepo, jwtSecret)

	// Handlers
	transferHandlers := handlers.NewTransferHandlers(transferSvc, rbacMiddleware)
	approvalHandlers := handlers.NewApprovalHandlers(approvalSvc, rbacMiddleware)
	templateHandlers := handlers.NewTemplateHandlers(templateSvc, rbacMiddleware)
	stockHandlers := handlers.NewStockHandlers(stockSvc, rbacMiddleware)
	branchHandlers := handlers.NewBranchHandlers(branchSvc, rbacMiddleware)
	productHandlers := handlers.NewProductHandlers(productSvc, rbacMiddleware)
	auditLogsHandlers := handlers.NewAuditLogsHandlers(auditSvc, rbacMiddleware)
	healthHandlers := handlers.NewHealthHandlers(pool, cacheSvc)

	// Background jobs
	jobScheduler := background.NewJobScheduler(cacheSvc, tenantRepo, productStockRepo, transferRepo)
	if err := jobScheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}
	defer func() {
		if err := jobScheduler.Stop(); err != nil {
			log.Printf("Failed to stop job scheduler: %v", err)
		}
	}()

	// Echo instance
	e := echo.New()

	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	// Health endpoints (no auth required)
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/health/live", healthHandlers.LivenessCheck)

	// Protected API routes
	v1 := e.Group("/v1")
	v1.Use(jwtMiddleware)
	v1.Use(auditMiddleware.AuditRequest())

	// Branch routes
	v1.GET("/branches", branchHandlers.ListBranches)
	v1.POST("/branches", branchHandlers.CreateBranch)
	v1.GET("/branches/:id", branchHandlers.GetBranch)
	v1.PUT("/branches/:id", branchHandlers.UpdateBranch)
	v1.POST("/branches/:id/members", branchHandlers.AddMember)
	v1.DELETE("/branches/:id/members/:userId", branchHandlers.RemoveMember)

	// Product routes
	v1.GET("/products", productHandlers.ListProducts)
	v1.POST("/products", productHandlers.CreateProduct)
	v1.GET("/products/sku/:sku", productHandlers.GetProductBySKU)
	v1.GET("/products/:id", productHandlers.GetProduct)
	v1.PUT("/products/:id", productHandlers.UpdateProduct)

	// Stock routes
	v1.POST("/stock/receive", stockHandlers.ReceiveStock)
	v1.POST("/stock/consume", stockHandlers.ConsumeStock)
	v1.POST("/stock/adjust", stockHandlers.AdjustStock)
	v1.GET("/branches/:branchId/stock", stockHandlers.ListStockLevels)
	v1.GET("/branches/:branchId/stock/:productId", stockHandlers.GetStockLevel)
	v1.GET("/branches/:branchId/stock/:productId/lots", stockHandlers.ListStockLots)
	v1.GET("/branches/:branchId/stock/:productId/ledger", stockHandlers.ListStockLedger)

	// Transfer routes
	v1.GET("/transfers", transferHandlers.ListTransfers)
	v1.POST("/transfers", transferHandlers.CreateTransfer)
	v1.GET("/transfers/:id", transferHandlers.GetTransfer)
	v1.POST("/transfers/:id/review", transferHandlers.ReviewTransfer)
	v1.POST("/transfers/:id/ship", transferHandlers.ShipTransfer)
	v1.POST("/transfers/:id/receive", transferHandlers.ReceiveTransfer)
	v1.POST("/transfers/:id/cancel", transferHandlers.CancelTransfer)
	v1.POST("/transfers/:id/reverse", transferHandlers.ReverseTransfer)
	v1.PATCH("/transfers/:id/priority", transferHandlers.UpdatePriority)
	v1.GET("/transfers/:id/shipments", transferHandlers.ListShipments)
	v1.POST("/transfers/:id/dispatch-note", transferHandlers.RegenerateDispatchNote)

	// Approval routes
	v1.GET("/approval-rules", approvalHandlers.ListRules)
	v1.POST("/approval-rules", approvalHandlers.CreateRule)
	v1.GET("/approval-rules/:id", approvalHandlers.GetRule)
	v1.PUT("/approval-rules/:id", approvalHandlers.UpdateRule)
	v1.GET("/transfers/:id/approvals", approvalHandlers.GetProgress)
	v1.POST("/transfers/:id/approvals", approvalHandlers.SubmitDecision)

	// Template routes
	v1.GET("/templates", templateHandlers.ListTemplates)
	v1.POST("/templates", templateHandlers.CreateTemplate)
	v1.GET("/templates/:id", templateHandlers.GetTemplate)
	v1.PUT("/templates/:id", templateHandlers.UpdateTemplate)
	v1.POST("/templates/:id/archive", templateHandlers.ArchiveTemplate)
	v1.POST("/templates/:id/restore", templateHandlers.RestoreTemplate)
	v1.POST("/templates/:id/transfers", templateHandlers.CreateTransferFromTemplate)

	// Audit log routes
	v1.GET("/audit-logs", auditLogsHandlers.ListAuditLogs)
	v1.GET("/audit-logs/:id", auditLogsHandlers.GetAuditLog)

	// Start server
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("Invalid port %s: %v", portStr, err)
	}

	go func() {
		log.Printf("Stockflow server v%s starting on port %d", version, port)
		if err := e.Start(fmt.Sprintf(":%d", port)); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
}
