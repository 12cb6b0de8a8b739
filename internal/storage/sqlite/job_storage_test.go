package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/common"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	m, err := NewManager(arbor.NewLogger(), &common.SQLiteConfig{
		Path:          path,
		Environment:   "test",
		CacheSizeMB:   8,
		BusyTimeoutMS: 5000,
		WALMode:       false,
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

// TestDequeueNext_PriorityThenFIFO enqueues jobs out of order and checks that
// DequeueNext always claims highest-priority-first, and within equal
// priority, the oldest available_at first — the Job Engine's FIFO-within-
// priority ordering guarantee.
func TestDequeueNext_PriorityThenFIFO(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	jobs := []*models.JobRecord{
		{QueueName: models.QueueDefault, JobType: "t", Status: models.JobStatusPending, Priority: 1, MaxAttempts: 3, AvailableAt: base},
		{QueueName: models.QueueDefault, JobType: "t", Status: models.JobStatusPending, Priority: 5, MaxAttempts: 3, AvailableAt: base.Add(2 * time.Second)},
		{QueueName: models.QueueDefault, JobType: "t", Status: models.JobStatusPending, Priority: 5, MaxAttempts: 3, AvailableAt: base.Add(1 * time.Second)},
	}
	for _, j := range jobs {
		require.NoError(t, m.EnqueueJob(ctx, j))
	}

	first, err := m.DequeueNext(ctx, models.QueueDefault)
	require.NoError(t, err)
	require.Equal(t, jobs[2].ID, first.ID, "higher priority, earlier available_at should dequeue first")

	second, err := m.DequeueNext(ctx, models.QueueDefault)
	require.NoError(t, err)
	require.Equal(t, jobs[1].ID, second.ID, "same priority, later available_at should dequeue second")

	third, err := m.DequeueNext(ctx, models.QueueDefault)
	require.NoError(t, err)
	require.Equal(t, jobs[0].ID, third.ID, "lowest priority should dequeue last")
}

func TestDequeueNext_SkipsJobsNotYetAvailable(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	future := &models.JobRecord{
		QueueName: models.QueueDefault, JobType: "t", Status: models.JobStatusPending,
		Priority: 10, MaxAttempts: 3, AvailableAt: time.Now().UTC().Add(time.Hour),
	}
	ready := &models.JobRecord{
		QueueName: models.QueueDefault, JobType: "t", Status: models.JobStatusPending,
		Priority: 1, MaxAttempts: 3, AvailableAt: time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, m.EnqueueJob(ctx, future))
	require.NoError(t, m.EnqueueJob(ctx, ready))

	got, err := m.DequeueNext(ctx, models.QueueDefault)
	require.NoError(t, err)
	require.Equal(t, ready.ID, got.ID)
}

func TestDequeueNext_ClaimsJobAsRunning(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	j := &models.JobRecord{QueueName: models.QueueQuick, JobType: "t", Status: models.JobStatusPending, MaxAttempts: 3, AvailableAt: time.Now().UTC()}
	require.NoError(t, m.EnqueueJob(ctx, j))

	got, err := m.DequeueNext(ctx, models.QueueQuick)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusRunning, got.Status)

	_, err = m.DequeueNext(ctx, models.QueueQuick)
	require.Error(t, err, "a claimed job must not be dequeued again")
}
