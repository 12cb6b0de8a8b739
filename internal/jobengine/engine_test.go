package jobengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/common"
	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

type fakeJobStorage struct {
	mu   sync.Mutex
	jobs map[string]*models.JobRecord
	seq  int
}

func newFakeJobStorage() *fakeJobStorage {
	return &fakeJobStorage{jobs: make(map[string]*models.JobRecord)}
}

func (f *fakeJobStorage) EnqueueJob(ctx context.Context, j *models.JobRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	if j.ID == "" {
		j.ID = "job_" + string(rune('a'+f.seq))
	}
	cp := *j
	f.jobs[j.ID] = &cp
	return nil
}

func (f *fakeJobStorage) DequeueNext(ctx context.Context, queueName string) (*models.JobRecord, error) {
	return nil, errNoEligibleJob
}

func (f *fakeJobStorage) GetJob(ctx context.Context, id string) (*models.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, errNoEligibleJob
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobStorage) UpdateJob(ctx context.Context, j *models.JobRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	f.jobs[j.ID] = &cp
	return nil
}

func (f *fakeJobStorage) Heartbeat(ctx context.Context, id string, at time.Time) error { return nil }

func (f *fakeJobStorage) ListStale(ctx context.Context, olderThan time.Time) ([]*models.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.JobRecord
	for _, j := range f.jobs {
		if j.Status == models.JobStatusRunning && (j.LastHeartbeat == nil || j.LastHeartbeat.Before(olderThan)) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeJobStorage) CountByQueueAndStatus(ctx context.Context, queueName string, status models.JobStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, j := range f.jobs {
		if j.QueueName == queueName && j.Status == status {
			n++
		}
	}
	return n, nil
}

type fakeDeadLetters struct {
	mu      sync.Mutex
	records []*models.DeadLetter
}

func (f *fakeDeadLetters) CreateDeadLetter(ctx context.Context, dl *models.DeadLetter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, dl)
	return nil
}
func (f *fakeDeadLetters) ListDeadLetters(ctx context.Context, source string, limit int) ([]*models.DeadLetter, error) {
	return f.records, nil
}
func (f *fakeDeadLetters) ResolveDeadLetter(ctx context.Context, id string, at time.Time) error {
	return nil
}

var errNoEligibleJob = &noRowsErr{}

type noRowsErr struct{}

func (*noRowsErr) Error() string { return "no eligible job" }

func testEngineConfig() common.JobEngineConfig {
	return common.JobEngineConfig{
		PollInterval:      "10ms",
		HeartbeatInterval: "10ms",
		StaleAfter:        "50ms",
		MaxReceive:        3,
		QuickWorkers:      1,
		ScrapingWorkers:   1,
		IndexingWorkers:   1,
		DefaultWorkers:    1,
	}
}

func TestEnqueue_RejectsUnknownQueue(t *testing.T) {
	e, err := New(newFakeJobStorage(), &fakeDeadLetters{}, testEngineConfig(), arbor.NewLogger())
	require.NoError(t, err)

	_, err = e.Enqueue(context.Background(), "not-a-real-queue", "demo", nil, 0)
	assert.Error(t, err)
}

func TestEnqueue_DefaultsMaxAttemptsFromConfig(t *testing.T) {
	store := newFakeJobStorage()
	e, err := New(store, &fakeDeadLetters{}, testEngineConfig(), arbor.NewLogger())
	require.NoError(t, err)

	job, err := e.Enqueue(context.Background(), models.QueueDefault, "demo", []byte("payload"), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.Equal(t, models.JobStatusPending, job.Status)
}

func TestSetEventListener_EmitReachesRegisteredCallback(t *testing.T) {
	e, err := New(newFakeJobStorage(), &fakeDeadLetters{}, testEngineConfig(), arbor.NewLogger())
	require.NoError(t, err)

	var received []JobEvent
	var mu sync.Mutex
	e.SetEventListener(func(ev JobEvent) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, ev)
	})

	e.emit(JobEvent{JobID: "j1", JobType: "demo", QueueName: models.QueueDefault, Status: models.JobStatusCompleted})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "j1", received[0].JobID)
}

func TestSetEventListener_NilListenerDoesNotPanic(t *testing.T) {
	e, err := New(newFakeJobStorage(), &fakeDeadLetters{}, testEngineConfig(), arbor.NewLogger())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		e.emit(JobEvent{JobID: "j1"})
	})
}

func TestDetectStaleJobs_RequeuesWithinAttemptBudget(t *testing.T) {
	store := newFakeJobStorage()
	dead := &fakeDeadLetters{}
	cfg := testEngineConfig()
	e, err := New(store, dead, cfg, arbor.NewLogger())
	require.NoError(t, err)
	e.ctx = context.Background()

	staleHeartbeat := time.Now().UTC().Add(-time.Hour)
	job := &models.JobRecord{
		QueueName: models.QueueDefault, JobType: "demo", Status: models.JobStatusRunning,
		AttemptCount: 0, MaxAttempts: 3, LastHeartbeat: &staleHeartbeat,
	}
	require.NoError(t, store.EnqueueJob(context.Background(), job))
	job.Status = models.JobStatusRunning
	require.NoError(t, store.UpdateJob(context.Background(), job))

	e.detectStaleJobs()

	updated, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, updated.Status)
	assert.Equal(t, 1, updated.AttemptCount)
	assert.Empty(t, dead.records)
}

func TestDetectStaleJobs_DeadLettersOnceAttemptBudgetExhausted(t *testing.T) {
	store := newFakeJobStorage()
	dead := &fakeDeadLetters{}
	cfg := testEngineConfig()
	e, err := New(store, dead, cfg, arbor.NewLogger())
	require.NoError(t, err)
	e.ctx = context.Background()

	staleHeartbeat := time.Now().UTC().Add(-time.Hour)
	job := &models.JobRecord{
		QueueName: models.QueueDefault, JobType: "demo", Status: models.JobStatusRunning,
		AttemptCount: 2, MaxAttempts: 3, LastHeartbeat: &staleHeartbeat,
	}
	require.NoError(t, store.EnqueueJob(context.Background(), job))
	job.Status = models.JobStatusRunning
	require.NoError(t, store.UpdateJob(context.Background(), job))

	e.detectStaleJobs()

	updated, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDead, updated.Status)
	require.Len(t, dead.records, 1)
	assert.Equal(t, job.ID, dead.records[0].ReferenceID)
}
