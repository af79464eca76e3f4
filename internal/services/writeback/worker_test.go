package writeback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dcmn/ordertrack/internal/integrations/zoho/fake"
	"github.com/dcmn/ordertrack/internal/models"
)

type fakeJobsRepo struct {
	due []*models.WritebackJob

	claims    int
	completed []uint64
	failed    []uint64
	failAt    map[uint64]time.Time
	dead      []uint64
}

func newFakeJobsRepo(jobs ...*models.WritebackJob) *fakeJobsRepo {
	return &fakeJobsRepo{due: jobs, failAt: map[uint64]time.Time{}}
}

func (r *fakeJobsRepo) ClaimDueWritebackJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.WritebackJob, error) {
	r.claims++
	jobs := r.due
	r.due = nil
	return jobs, nil
}

func (r *fakeJobsRepo) CompleteWritebackJob(ctx context.Context, id uint64) error {
	r.completed = append(r.completed, id)
	return nil
}

func (r *fakeJobsRepo) FailWritebackJob(ctx context.Context, id uint64, failCount int32, lastError string, nextAttemptAt time.Time) error {
	r.failed = append(r.failed, id)
	r.failAt[id] = nextAttemptAt
	return nil
}

func (r *fakeJobsRepo) MarkWritebackJobDead(ctx context.Context, id uint64, lastError string) error {
	r.dead = append(r.dead, id)
	return nil
}

type fakeRL struct {
	allowed bool
	count   int64
	err     error
}

func (r fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return r.allowed, r.count, r.err
}

func job(id uint64, failCount int32) *models.WritebackJob {
	return &models.WritebackJob{
		ID:         id,
		TID:        "ABC123XYZ0",
		ZohoModule: "Deals",
		RecordID:   "555",
		Status:     models.WritebackStatusPending,
		FailCount:  failCount,
	}
}

func TestWorker_processOne_writesAndCompletes(t *testing.T) {
	repo := newFakeJobsRepo()
	crm := fake.New()
	w := New(repo, crm, fakeRL{allowed: true})

	require.NoError(t, w.processOne(context.Background(), job(1, 0)))
	require.Equal(t, []uint64{1}, repo.completed)

	v, ok := crm.Field("Deals", "555", "Tracking_ID")
	require.True(t, ok)
	require.Equal(t, "ABC123XYZ0", v)
}

func TestWorker_processOne_skipsWhenTIDAlreadySet(t *testing.T) {
	repo := newFakeJobsRepo()
	crm := fake.New()
	require.NoError(t, crm.UpdateRecordFields(context.Background(), "Deals", "555",
		map[string]any{"Tracking_ID": "ABC123XYZ0"}))
	crm.Updates = 0

	w := New(repo, crm, nil)
	require.NoError(t, w.processOne(context.Background(), job(1, 0)))
	require.Equal(t, []uint64{1}, repo.completed)
	require.Zero(t, crm.Updates) // чтение хватило, записи не было
}

func TestWorker_processOne_failureBackoff(t *testing.T) {
	repo := newFakeJobsRepo()
	crm := fake.New()
	crm.FailOn("555")

	w := New(repo, crm, nil)
	before := time.Now().UTC()
	err := w.processOne(context.Background(), job(7, 0))
	require.Error(t, err)
	require.Equal(t, []uint64{7}, repo.failed)
	require.Empty(t, repo.dead)

	// первая неудача откладывает на Backoff1
	next := repo.failAt[7]
	require.WithinDuration(t, before.Add(5*time.Minute), next, 2*time.Second)
}

func TestWorker_processOne_deadAfterMaxAttempts(t *testing.T) {
	repo := newFakeJobsRepo()
	crm := fake.New()
	crm.FailOn("555")

	w := New(repo, crm, nil).WithSettings(0, 0, 0, 0, 3, 0)
	err := w.processOne(context.Background(), job(9, 2))
	require.Error(t, err)
	require.Equal(t, []uint64{9}, repo.dead)
	require.Empty(t, repo.failed)
	require.Equal(t, int64(1), w.Stats().TotalDead)
}

func TestWorker_processOne_rateLimited(t *testing.T) {
	repo := newFakeJobsRepo()
	crm := fake.New()

	w := New(repo, crm, fakeRL{allowed: false, count: 51})
	require.NoError(t, w.processOne(context.Background(), job(1, 0)))
	// задание не трогаем, вернётся после lease
	require.Empty(t, repo.completed)
	require.Empty(t, repo.failed)
	require.Zero(t, crm.Updates)
	require.Zero(t, crm.Reads)
}

func TestWorker_runOnce_processesBatch(t *testing.T) {
	repo := newFakeJobsRepo(job(1, 0), job(2, 0), job(3, 0))
	crm := fake.New()
	w := New(repo, crm, nil)

	w.runOnce(context.Background())
	require.Len(t, repo.completed, 3)

	st := w.Stats()
	require.Equal(t, int64(3), st.TotalClaimed)
	require.Equal(t, int64(3), st.TotalProcessed)
	require.Zero(t, st.TotalErrors)
	require.NotNil(t, st.LastCycleAt)
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	repo := newFakeJobsRepo()
	w := New(repo, fake.New(), nil).WithSettings(5*time.Millisecond, 1, 1, time.Second, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := w.Run(ctx)
	require.Error(t, err)
	require.GreaterOrEqual(t, repo.claims, 1)
}

func TestWorker_Trigger(t *testing.T) {
	repo := newFakeJobsRepo()
	w := New(repo, fake.New(), nil).WithSettings(time.Hour, 1, 1, time.Second, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	w.Trigger()
	require.Eventually(t, func() bool { return repo.claims >= 1 }, time.Second, 5*time.Millisecond)
	require.NotNil(t, w.Stats().LastTriggerAt)
}

func TestPlanner_BackoffLadder(t *testing.T) {
	p := NewPlanner(PlannerConfig{})
	require.Equal(t, 5*time.Minute, p.BackoffDelay(1))
	require.Equal(t, 15*time.Minute, p.BackoffDelay(2))
	require.Equal(t, 30*time.Minute, p.BackoffDelay(3))
	require.Equal(t, time.Hour, p.BackoffDelay(4))
	require.Equal(t, time.Hour, p.BackoffDelay(10))
}

func TestWorker_WithSettings(t *testing.T) {
	w := New(newFakeJobsRepo(), fake.New(), nil).
		WithSettings(5*time.Second, 7, 9, 11*time.Second, 13, 17)
	require.Equal(t, 5*time.Second, w.pollInterval)
	require.Equal(t, 7, w.batchSize)
	require.Equal(t, 9, w.concurrency)
	require.Equal(t, 11*time.Second, w.lease)
	require.Equal(t, int32(13), w.maxAttempts)
	require.Equal(t, int64(17), w.rateLimitPerMinute)
}
