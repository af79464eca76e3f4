package writeback

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dcmn/ordertrack/internal/cache/rediscache"
	"github.com/dcmn/ordertrack/internal/integrations/zoho"
	"github.com/dcmn/ordertrack/internal/models"
)

type Repository interface {
	ClaimDueWritebackJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.WritebackJob, error)
	CompleteWritebackJob(ctx context.Context, id uint64) error
	FailWritebackJob(ctx context.Context, id uint64, failCount int32, lastError string, nextAttemptAt time.Time) error
	MarkWritebackJobDead(ctx context.Context, id uint64, lastError string) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Worker дописывает tid в CRM-записи, для которых синхронная попытка
// на create не удалась. Забирает пачку due-заданий под lease, пишет
// через Zoho API, при неудаче откладывает по лестнице задержек.
type Worker struct {
	repo Repository
	crm  zoho.Client
	rl   RateLimiter

	planner *Planner

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	maxAttempts        int32
	rateLimitPerMinute int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	totalDead           atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, crm zoho.Client, rl RateLimiter) *Worker {
	return &Worker{
		repo: repo, crm: crm, rl: rl,
		planner:            NewPlanner(DefaultPlannerConfig()),
		pollInterval:       15 * time.Second,
		batchSize:          50,
		concurrency:        4,
		lease:              120 * time.Second,
		maxAttempts:        8,
		rateLimitPerMinute: 50,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (w *Worker) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, maxAttempts int32, rlPerMin int64) *Worker {
	if pollInterval > 0 {
		w.pollInterval = pollInterval
	}
	if batchSize > 0 {
		w.batchSize = batchSize
	}
	if concurrency > 0 {
		w.concurrency = concurrency
	}
	if lease > 0 {
		w.lease = lease
	}
	if maxAttempts > 0 {
		w.maxAttempts = maxAttempts
	}
	if rlPerMin > 0 {
		w.rateLimitPerMinute = rlPerMin
	}
	return w
}

func (w *Worker) WithPlanner(cfg PlannerConfig) *Worker {
	w.planner = NewPlanner(cfg)
	return w
}

// Trigger forces an immediate cycle (best-effort, non-blocking).
func (w *Worker) Trigger() {
	w.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	TotalDead      int64      `json:"totalDead"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (w *Worker) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, w.startedAtUnixNano).UTC(),
		TotalClaimed:   w.totalClaimed.Load(),
		TotalProcessed: w.totalProcessed.Load(),
		TotalErrors:    w.totalErrors.Load(),
		TotalDead:      w.totalDead.Load(),
		InFlight:       w.inFlight.Load(),
	}
	if n := w.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := w.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	w.lastErrorMu.Lock()
	st.LastError = w.lastError
	w.lastErrorMu.Unlock()
	return st
}

func (w *Worker) Run(ctx context.Context) error {
	t := time.NewTicker(w.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			w.runOnce(ctx)
		case <-w.triggerCh:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	w.lastCycleUnixNano.Store(now.UnixNano())

	jobs, err := w.repo.ClaimDueWritebackJobs(ctx, now, w.batchSize, w.lease)
	if err != nil {
		slog.Error("claim due write-back jobs", "error", err.Error())
		w.lastErrorMu.Lock()
		w.lastError = err.Error()
		w.lastErrorMu.Unlock()
		return
	}
	w.totalClaimed.Add(int64(len(jobs)))

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	for _, j := range jobs {
		sem <- struct{}{}
		wg.Add(1)
		jCopy := j
		w.inFlight.Add(1)
		go func() {
			defer func() {
				w.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := w.processOne(ctx, jCopy); err != nil {
				w.totalErrors.Add(1)
				w.lastErrorMu.Lock()
				w.lastError = err.Error()
				w.lastErrorMu.Unlock()
				slog.Error("process write-back job", "job_id", jCopy.ID, "tid", jCopy.TID, "error", err.Error())
			}
			w.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (w *Worker) processOne(ctx context.Context, j *models.WritebackJob) error {
	now := time.Now().UTC()

	if w.rl != nil && w.rateLimitPerMinute > 0 {
		allowed, n, err := w.rl.Allow(ctx, rediscache.MinuteKey(j.ZohoModule, now), w.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			// Минутное окно исчерпано, задание вернётся после lease.
			slog.Warn("zoho rate limit exceeded", "module", j.ZohoModule, "count", n)
			return nil
		}
	}

	// Запись могла успеть дойти при синхронной попытке, повторная
	// отправка того же tid бессмысленна.
	if cur, err := w.crm.ReadRecordField(ctx, j.ZohoModule, j.RecordID, zoho.TrackingIDField); err == nil && cur == j.TID {
		slog.Info("tid already present in crm", "job_id", j.ID, "tid", j.TID)
		return w.repo.CompleteWritebackJob(ctx, j.ID)
	}

	if err := w.crm.UpdateRecordFields(ctx, j.ZohoModule, j.RecordID, map[string]any{zoho.TrackingIDField: j.TID}); err != nil {
		nextFail := j.FailCount + 1
		if nextFail >= w.maxAttempts {
			w.totalDead.Add(1)
			slog.Error("write-back job exhausted attempts", "job_id", j.ID, "tid", j.TID, "attempts", nextFail)
			if derr := w.repo.MarkWritebackJobDead(ctx, j.ID, err.Error()); derr != nil {
				return derr
			}
			return err
		}
		if ferr := w.repo.FailWritebackJob(ctx, j.ID, nextFail, err.Error(), now.Add(w.planner.BackoffDelay(nextFail))); ferr != nil {
			return ferr
		}
		return err
	}

	slog.Info("tid written to crm", "job_id", j.ID, "tid", j.TID, "module", j.ZohoModule, "record_id", j.RecordID)
	return w.repo.CompleteWritebackJob(ctx, j.ID)
}
