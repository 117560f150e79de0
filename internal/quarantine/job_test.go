package quarantine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatgate/threatgate/internal/logger"
	"github.com/threatgate/threatgate/models"
)

func TestCleanupJob_SweepsOnTicker(t *testing.T) {
	mgr, repo, dir := newTestManager(t, time.Hour)
	ctx := context.Background()

	original := writeTestFile(t, dir, "stale.bin", "stale content")
	record, err := mgr.QuarantineFile(ctx, original, "x", models.Verdict{})
	require.NoError(t, err)

	stored := repo.get(record.ID)
	stored.QuarantinedAt = time.Now().UTC().Add(-2 * time.Hour)
	repo.put(stored)

	job := NewCleanupJob(mgr, logger.Nop())
	job.Start(ctx, 10*time.Millisecond)
	defer job.Stop()

	require.Eventually(t, func() bool {
		return repo.count() == 0
	}, time.Second, 10*time.Millisecond, "ticker sweep never removed the expired record")
}

func TestCleanupJob_StopIsIdempotent(t *testing.T) {
	mgr, _, _ := newTestManager(t, time.Hour)

	job := NewCleanupJob(mgr, logger.Nop())

	// Stopping a never-started job is a no-op.
	job.Stop()

	job.Start(context.Background(), 50*time.Millisecond)
	job.Stop()
	job.Stop()

	assert.NotPanics(t, func() { job.Stop() })
}
