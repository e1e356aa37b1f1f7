package engine

import (
	"context"
	"sync"
	"time"

	"memoria/internal/aging"
	"memoria/internal/config"
	"memoria/internal/engineerr"
	"memoria/internal/logging"
	"memoria/internal/storage"
	"memoria/internal/ttl"
	"memoria/pkg/types"
)

// permanenceCriticalFlag is the context/metadata marker that forces a
// document into the permanent tier regardless of its computed importance
// (spec.md §4.9 step 5).
const permanenceCriticalFlag = "critical"

// LifecycleStats summarizes the controller's last completed cadence tasks,
// surfaced through get_lifecycle_stats.
type LifecycleStats struct {
	LastCleanupAt     time.Time
	LastAgingRefreshAt time.Time
	LastStatsAt       time.Time
	LastDeepMaintAt   time.Time
	TotalExpiredRemoved int64
	TotalRescored       int64
}

// LifecycleController (C14) owns TTLManager and AgingFunction: it stamps
// lifecycle fields at ingest, sweeps expired chunks, refreshes stale
// importance scores, and runs a single cooperative background worker on
// the cadence table from spec.md §4.14.
type LifecycleController struct {
	ttlMgr                *ttl.Manager
	aging                 *aging.Function
	vs                    storage.VectorStore
	cfg                   config.MaintenanceCadenceConfig
	refreshThresholdDays  float64
	logger                logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	stats   LifecycleStats
	onEvent func(event string, data map[string]interface{})
}

// OnEvent registers a best-effort subscriber notified after a CleanupExpired
// call that removed at least one chunk and after each deep-maintenance run
// (SPEC_FULL.md §3: push-based
// lifecycle-event notification for connected dashboards). Replaces any
// previously registered subscriber; nil disables notification.
func (c *LifecycleController) OnEvent(fn func(event string, data map[string]interface{})) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = fn
}

func (c *LifecycleController) emit(event string, data map[string]interface{}) {
	c.mu.Lock()
	fn := c.onEvent
	c.mu.Unlock()
	if fn != nil {
		fn(event, data)
	}
}

// NewLifecycleController builds a controller over the given TTL/aging
// configuration.
func NewLifecycleController(lifecycleCfg config.LifecycleConfig, vs storage.VectorStore, logger logging.Logger) *LifecycleController {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &LifecycleController{
		ttlMgr:               ttl.New(lifecycleCfg),
		aging:                aging.New(lifecycleCfg.Aging),
		vs:                   vs,
		cfg:                  lifecycleCfg.Maintenance,
		refreshThresholdDays: lifecycleCfg.Aging.RefreshThresholdDays,
		logger:               logger.WithComponent("lifecycle_controller"),
	}
}

// ProcessDocumentLifecycle stamps TTL fields for a newly ingested document
// and applies the permanence_flag=critical override (spec.md §4.9 step 5).
func (c *LifecycleController) ProcessDocumentLifecycle(content string, metadata map[string]interface{}, importance float64, now time.Time) (
	adjustedImportance float64, tier types.TTLTier, ttlSeconds int64, ttlExpiry *time.Time, permanentFlag bool, permanenceReason string,
) {
	adjustedImportance = importance
	if isCriticalPermanence(metadata) {
		if adjustedImportance < 0.95 {
			adjustedImportance = 0.95
		}
		return adjustedImportance, types.TTLPermanent, 0, nil, true, "user_request"
	}

	tier, ttlSeconds, ttlExpiry = c.ttlMgr.Assign(adjustedImportance, 0, now, now)
	permanentFlag = tier == types.TTLPermanent
	return adjustedImportance, tier, ttlSeconds, ttlExpiry, permanentFlag, ""
}

func isCriticalPermanence(metadata map[string]interface{}) bool {
	if metadata == nil {
		return false
	}
	v, ok := metadata["permanence_flag"]
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && s == permanenceCriticalFlag
}

// collectionsOrDefault returns [collection] if set, else both tiers.
func collectionsOrDefault(collection *types.CollectionType) []types.CollectionType {
	if collection != nil {
		return []types.CollectionType{*collection}
	}
	return []types.CollectionType{types.CollectionShortTerm, types.CollectionLongTerm}
}

// CleanupExpired scans collection (or both tiers if nil) and deletes chunks
// whose TTL has elapsed, honoring permanent_flag/ttl_tier.
func (c *LifecycleController) CleanupExpired(ctx context.Context, collection *types.CollectionType) (int, error) {
	removed := 0
	now := time.Now()
	for _, col := range collectionsOrDefault(collection) {
		chunks, err := c.vs.SearchByMetadata(ctx, col, map[string]string{}, 0)
		if err != nil {
			return removed, engineerr.Wrap(engineerr.KindLifecycle, "list chunks for cleanup", err)
		}
		var expired []string
		for i := range chunks {
			if chunks[i].Metadata.ShouldExpire(now) {
				expired = append(expired, chunks[i].ID)
			}
		}
		if len(expired) == 0 {
			continue
		}
		result, err := c.vs.BatchDelete(ctx, col, expired)
		if err != nil {
			return removed, engineerr.Wrap(engineerr.KindLifecycle, "delete expired chunks", err)
		}
		removed += result.Success
	}
	c.mu.Lock()
	c.stats.LastCleanupAt = now
	c.stats.TotalExpiredRemoved += int64(removed)
	c.mu.Unlock()
	if removed > 0 {
		c.emit("cleanup_expired", map[string]interface{}{"removed": removed})
	}
	return removed, nil
}

// RefreshAging recomputes importance for chunks whose aging score needs
// refreshing (AgingFunction.NeedsRefresh), up to sampleSize per collection.
func (c *LifecycleController) RefreshAging(ctx context.Context, collection *types.CollectionType, sampleSize int) (int, error) {
	refreshed := 0
	now := time.Now()
	for _, col := range collectionsOrDefault(collection) {
		chunks, err := c.vs.SearchByMetadata(ctx, col, map[string]string{}, 0)
		if err != nil {
			return refreshed, engineerr.Wrap(engineerr.KindLifecycle, "list chunks for aging refresh", err)
		}
		for i := range chunks {
			if sampleSize > 0 && refreshed >= sampleSize {
				break
			}
			chunk := &chunks[i]
			if chunk.Metadata.PermanentFlag {
				continue
			}
			if !c.aging.NeedsRefresh(chunk.Metadata.ImportanceScoredAt, now, c.refreshThresholdDays) {
				continue
			}
			chunk.Metadata.ImportanceScore = c.aging.Apply(chunk.Metadata.ImportanceScore, chunk.Metadata.Timestamp, now)
			chunk.Metadata.ImportanceScoredAt = now
			if err := c.vs.Update(ctx, col, chunk); err != nil {
				c.logger.Warn("refresh aging: update failed", "chunk_id", chunk.ID, "error", err)
				continue
			}
			refreshed++
		}
	}
	c.mu.Lock()
	c.stats.LastAgingRefreshAt = now
	c.stats.TotalRescored += int64(refreshed)
	c.mu.Unlock()
	return refreshed, nil
}

// TTLManager exposes the controller's TTLManager for collaborators (e.g.
// UpdateService) that need to recompute a tier outside the ingest path.
func (c *LifecycleController) TTLManager() *ttl.Manager {
	return c.ttlMgr
}

// Stats returns a snapshot of the controller's cadence bookkeeping.
func (c *LifecycleController) Stats() LifecycleStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Start launches the background cadence worker. Idempotent: calling Start
// while already running is a no-op.
func (c *LifecycleController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

// Stop signals the background worker to exit and waits up to timeout for
// it to join. Idempotent: calling Stop while not running is a no-op.
func (c *LifecycleController) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	stopCh := c.stopCh
	doneCh := c.doneCh
	c.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return nil
	case <-time.After(timeout):
		return engineerr.New(engineerr.KindLifecycle, "background worker did not stop within timeout")
	}
}

func (c *LifecycleController) run(ctx context.Context) {
	defer close(c.doneCh)

	sleep := c.cfg.WorkerSleep
	if sleep <= 0 {
		sleep = 5 * time.Minute
	}
	lastCleanup := time.Now()
	lastStats := time.Now()
	lastAging := time.Now()
	lastDeep := time.Now()

	for {
		select {
		case <-c.stopCh:
			return
		case <-time.After(sleep):
		}

		now := time.Now()
		if c.cfg.DeepMaintenance > 0 && now.Sub(lastDeep) >= c.cfg.DeepMaintenance {
			c.runDeepMaintenance(ctx, now)
			lastDeep, lastCleanup, lastAging, lastStats = now, now, now, now
			continue
		}
		if c.cfg.CleanupExpired > 0 && now.Sub(lastCleanup) >= c.cfg.CleanupExpired {
			if _, err := c.CleanupExpired(ctx, nil); err != nil {
				c.logger.Warn("scheduled cleanup failed", "error", err)
			}
			lastCleanup = now
		}
		if c.cfg.AgingRefresh > 0 && now.Sub(lastAging) >= c.cfg.AgingRefresh {
			if _, err := c.RefreshAging(ctx, nil, 0); err != nil {
				c.logger.Warn("scheduled aging refresh failed", "error", err)
			}
			lastAging = now
		}
		if c.cfg.StatsSnapshot > 0 && now.Sub(lastStats) >= c.cfg.StatsSnapshot {
			c.mu.Lock()
			c.stats.LastStatsAt = now
			c.mu.Unlock()
			lastStats = now
		}
	}
}

func (c *LifecycleController) runDeepMaintenance(ctx context.Context, now time.Time) {
	if _, err := c.CleanupExpired(ctx, nil); err != nil {
		c.logger.Warn("deep maintenance: cleanup failed", "error", err)
	}
	if _, err := c.RefreshAging(ctx, nil, 0); err != nil {
		c.logger.Warn("deep maintenance: aging refresh failed", "error", err)
	}
	c.mu.Lock()
	c.stats.LastDeepMaintAt = now
	c.stats.LastStatsAt = now
	c.mu.Unlock()
	c.emit("deep_maintenance", map[string]interface{}{"ran_at": now})
}
