package background

import (
	"context"
	"log"
	"sync"
	"time"

	"stockflow/internal/caching"
	"stockflow/internal/repositories"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

const (
	lowStockThreshold   = 10
	staleTransitDays    = 7
	tenantBatchSize     = 1000
	tenantWorkerLimit   = 5
	tenantStatusActive  = "active"
)

// JobScheduler manages periodic background jobs
type JobScheduler struct {
	scheduler        gocron.Scheduler
	cacheSvc         caching.CacheService
	tenantRepo       repositories.TenantRepository
	productStockRepo repositories.ProductStockRepository
	transferRepo     repositories.TransferRepository
	jobs             map[string]gocron.Job
	mu               sync.RWMutex
}

func NewJobScheduler(cacheSvc caching.CacheService, tenantRepo repositories.TenantRepository,
	productStockRepo repositories.ProductStockRepository, transferRepo repositories.TransferRepository) *JobScheduler {

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	js := &JobScheduler{
		scheduler:        scheduler,
		cacheSvc:         cacheSvc,
		tenantRepo:       tenantRepo,
		productStockRepo: productStockRepo,
		transferRepo:     transferRepo,
		jobs:             make(map[string]gocron.Job),
	}

	js.registerJobs()

	return js
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() {
	// Low stock alerts - every 30 minutes
	lowStockJob, err := js.scheduler.NewJob(
		gocron.DurationJob(30*time.Minute),
		gocron.NewTask(js.processLowStockAlerts),
		gocron.WithName("low-stock-alerts"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create low stock alerts job: %v", err)
	} else {
		js.jobs["low-stock-alerts"] = lowStockJob
	}

	// Stale in-transit reminders - every hour
	staleJob, err := js.scheduler.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(js.processStaleTransitReminders),
		gocron.WithName("stale-transit-reminders"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create stale transit reminders job: %v", err)
	} else {
		js.jobs["stale-transit-reminders"] = staleJob
	}

	// Stock cache refresh - every 6 hours
	cacheJob, err := js.scheduler.NewJob(
		gocron.DurationJob(6*time.Hour),
		gocron.NewTask(js.refreshTenantCaches),
		gocron.WithName("tenant-cache-refresh"),
	)
	if err != nil {
		log.Printf("Failed to create cache refresh job: %v", err)
	} else {
		js.jobs["tenant-cache-refresh"] = cacheJob
	}

	log.Printf("Registered %d background jobs", len(js.jobs))
}

// processLowStockAlerts flags products that have fallen below the reorder
// threshold in any branch.
func (js *JobScheduler) processLowStockAlerts() error {
	log.Printf("Starting low stock alerts processing")
	ctx := context.Background()

	tenants, err := js.tenantRepo.List(ctx, tenantBatchSize, 0)
	if err != nil {
		log.Printf("Failed to get tenants for low stock alerts: %v", err)
		return err
	}

	for _, tenant := range tenants {
		if tenant.Status != tenantStatusActive {
			continue
		}

		levels, err := js.productStockRepo.ListBelowThreshold(ctx, tenant.ID, lowStockThreshold)
		if err != nil {
			log.Printf("Failed to check stock levels for tenant %s: %v", tenant.ID.String(), err)
			continue
		}

		if len(levels) > 0 {
			log.Printf("ALERT: Tenant %s has %d product/branch pairs below %d units",
				tenant.Name, len(levels), lowStockThreshold)
		}
	}

	log.Printf("Completed low stock alerts processing")
	return nil
}

// processStaleTransitReminders logs transfers that have sat in transit
// longer than the reminder window without being received.
func (js *JobScheduler) processStaleTransitReminders() error {
	log.Printf("Starting stale transit reminders processing")
	ctx := context.Background()

	tenants, err := js.tenantRepo.List(ctx, tenantBatchSize, 0)
	if err != nil {
		log.Printf("Failed to get tenants for stale transit reminders: %v", err)
		return err
	}

	for _, tenant := range tenants {
		if tenant.Status != tenantStatusActive {
			continue
		}

		transfers, err := js.transferRepo.ListStaleInTransit(ctx, tenant.ID, staleTransitDays)
		if err != nil {
			log.Printf("Failed to check in-transit transfers for tenant %s: %v", tenant.ID.String(), err)
			continue
		}

		for _, transfer := range transfers {
			log.Printf("REMINDER: Transfer %s for tenant %s has been in transit for over %d days",
				transfer.TransferNumber, tenant.Name, staleTransitDays)
		}
	}

	log.Printf("Completed stale transit reminders processing")
	return nil
}

// refreshTenantCaches drops tenant-scoped cache entries so reads repopulate
// from the database.
func (js *JobScheduler) refreshTenantCaches() error {
	log.Printf("Starting tenant cache refresh")
	ctx := context.Background()

	tenants, err := js.tenantRepo.List(ctx, tenantBatchSize, 0)
	if err != nil {
		log.Printf("Failed to get tenants for cache refresh: %v", err)
		return err
	}

	semaphore := make(chan struct{}, tenantWorkerLimit)
	var wg sync.WaitGroup

	for _, tenant := range tenants {
		if tenant.Status != tenantStatusActive {
			continue
		}

		wg.Add(1)
		go func(tenantID uuid.UUID) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if err := js.cacheSvc.InvalidateTenantCache(ctx, tenantID); err != nil {
				log.Printf("Failed to invalidate cache for tenant %s: %v", tenantID.String(), err)
			}
		}(tenant.ID)
	}

	wg.Wait()
	log.Printf("Completed tenant cache refresh for %d tenants", len(tenants))
	return nil
}
