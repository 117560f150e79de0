package quarantine

import (
	"context"
	"sync"
	"time"

	"github.com/threatgate/threatgate/internal/logger"
)

// CleanupJob runs the retention sweep on a ticker. The job is idle until
// Start is called; the manager itself never spawns goroutines.
type CleanupJob struct {
	manager *Manager
	logger  *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCleanupJob creates a CleanupJob over the manager.
func NewCleanupJob(manager *Manager, log *logger.Logger) *CleanupJob {
	return &CleanupJob{manager: manager, logger: log}
}

// Start stops any previously running job, then launches a background
// goroutine that sweeps expired records every interval. If interval is
// zero or negative it defaults to 1 hour. The goroutine exits when ctx is
// cancelled or Stop is called.
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	j.Stop()

	j.mu.Lock()
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-jobCtx.Done():
				return
			case <-t.C:
				if _, err := j.manager.CleanupExpired(jobCtx); err != nil {
					j.logger.Err(err).
						Str("func", "CleanupJob").
						Msg("retention sweep failed")
				}
			}
		}
	}()
}

// Stop cancels the background goroutine's context and blocks until it has
// fully exited. Safe to call when the job is not running.
func (j *CleanupJob) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
}
