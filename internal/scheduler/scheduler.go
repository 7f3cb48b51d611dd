package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/example/wayfinder/internal/campaign"
	"github.com/example/wayfinder/internal/dispatch"
	"github.com/example/wayfinder/internal/explorer"
	"github.com/example/wayfinder/internal/models"
	"github.com/example/wayfinder/internal/store"
	"github.com/google/uuid"
)

// Scheduler polls for discovered routes and hands them to exploration
// workers. Claims go through the campaign service, so a crashed worker's
// route comes back via lease expiry.
type Scheduler struct {
	service  *campaign.Service
	explorer explorer.Explorer
	config   *Config

	// Worker pool state
	mu             sync.Mutex
	activeWorkers  int
	explorerCounts map[string]int

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new scheduler.
func New(svc *campaign.Service, exp explorer.Explorer, cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		service:        svc,
		explorer:       exp,
		config:         cfg,
		explorerCounts: make(map[string]int),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start begins the scheduler loop.
func (sch *Scheduler) Start() {
	sch.wg.Add(1)
	go sch.schedulerLoop()
	log.Println("Scheduler started")
}

// Stop gracefully stops the scheduler and waits for in-flight workers.
func (sch *Scheduler) Stop() {
	sch.cancel()
	sch.wg.Wait()
	log.Println("Scheduler stopped")
}

// schedulerLoop polls for claimable routes and dispatches workers.
func (sch *Scheduler) schedulerLoop() {
	defer sch.wg.Done()

	interval := sch.config.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sch.ctx.Done():
			return
		case <-ticker.C:
			sch.pollAndDispatch()
		}
	}
}

// pollAndDispatch claims at most one route per tick and starts a worker
// for it.
func (sch *Scheduler) pollAndDispatch() {
	// Check if we have capacity for more workers
	sch.mu.Lock()
	if sch.activeWorkers >= sch.config.GlobalMax {
		sch.mu.Unlock()
		return
	}

	explorerName := sch.explorer.Name()
	if sch.explorerCounts[explorerName] >= sch.config.GetExplorerLimit(explorerName) {
		sch.mu.Unlock()
		return
	}
	sch.mu.Unlock()

	userLevel, route, ok := sch.claimNext()
	if !ok {
		return
	}

	workerID := uuid.New().String()
	log.Printf("Dispatched %s %s to worker %s", userLevel, route, workerID)

	sch.mu.Lock()
	sch.activeWorkers++
	sch.explorerCounts[explorerName]++
	sch.mu.Unlock()

	sch.wg.Add(1)
	go sch.runWorker(userLevel, route, workerID)
}

// claimNext finds one discovered route and claims it. Routes another worker
// holds or that changed state under us are skipped.
func (sch *Scheduler) claimNext() (userLevel, route string, ok bool) {
	for _, level := range sch.config.UserLevels {
		routes, err := sch.service.ListRoutes(level, models.StatusDiscovered)
		if err != nil {
			log.Printf("Error listing routes: %v", err)
			return "", "", false
		}

		for _, r := range routes {
			_, err := sch.service.StartExploration(r.UserLevel, r.Route)
			if err != nil {
				if errors.Is(err, dispatch.ErrBusy) || errors.Is(err, store.ErrInvalidTransition) {
					continue
				}
				log.Printf("Error claiming route %s: %v", r.Route, err)
				return "", "", false
			}
			return r.UserLevel, r.Route, true
		}
	}
	return "", "", false
}

// runWorker explores one claimed route and reports the outcome.
func (sch *Scheduler) runWorker(userLevel, route, workerID string) {
	defer sch.wg.Done()
	defer func() {
		sch.mu.Lock()
		sch.activeWorkers--
		sch.explorerCounts[sch.explorer.Name()]--
		sch.mu.Unlock()
	}()

	result, err := sch.explorer.Explore(sch.ctx, userLevel, route)
	if err != nil {
		log.Printf("Worker %s failed on %s %s: %v", workerID, userLevel, route, err)
		if err := sch.service.AbortExploration(userLevel, route); err != nil {
			log.Printf("Error releasing route %s: %v", route, err)
		}
		return
	}

	if _, err := sch.service.CompleteExploration(sch.ctx, userLevel, route, result); err != nil {
		log.Printf("Worker %s could not complete %s %s: %v", workerID, userLevel, route, err)
		return
	}
	log.Printf("Worker %s completed %s %s", workerID, userLevel, route)
}

// GetStats returns current scheduler statistics.
func (sch *Scheduler) GetStats() map[string]interface{} {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	explorerCounts := make(map[string]int)
	for k, v := range sch.explorerCounts {
		explorerCounts[k] = v
	}

	return map[string]interface{}{
		"active_workers":  sch.activeWorkers,
		"global_max":      sch.config.GlobalMax,
		"explorer_counts": explorerCounts,
	}
}
