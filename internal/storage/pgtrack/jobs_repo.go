package pgtrack

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/dcmn/ordertrack/internal/models"
)

func (s *Storage) EnqueueWritebackJob(ctx context.Context, tid, zohoModule, recordID string, nextAttemptAt time.Time) (uint64, error) {
	now := time.Now().UTC()
	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO writeback_jobs (tid, zoho_module, record_id, status, next_attempt_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
RETURNING id
`, tid, zohoModule, recordID, models.WritebackStatusPending, nextAttemptAt.UTC(), now).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert writeback job")
	}
	return id, nil
}

// ClaimDueWritebackJobs выбирает пачку задач, готовых к попытке, и
// "бронирует" их сдвигом next_attempt_at, чтобы параллельный воркер
// их не подхватил. SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueWritebackJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.WritebackJob, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT id, tid, zoho_module, record_id, status, fail_count, last_error, next_attempt_at, created_at, updated_at
FROM writeback_jobs
WHERE status = $1
  AND next_attempt_at <= $2
ORDER BY next_attempt_at ASC
LIMIT $3
FOR UPDATE SKIP LOCKED
`, models.WritebackStatusPending, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due jobs")
	}
	defer rows.Close()

	var picked []*models.WritebackJob
	for rows.Next() {
		var j models.WritebackJob
		if err := rows.Scan(
			&j.ID, &j.TID, &j.ZohoModule, &j.RecordID, &j.Status,
			&j.FailCount, &j.LastError, &j.NextAttemptAt, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan due job")
		}
		picked = append(picked, &j)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, j := range picked {
		_, err := tx.Exec(ctx, `UPDATE writeback_jobs SET next_attempt_at = $2, updated_at = now() WHERE id = $1`, j.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease job")
		}
		j.NextAttemptAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

func (s *Storage) CompleteWritebackJob(ctx context.Context, id uint64) error {
	_, err := s.db.Exec(ctx, `
UPDATE writeback_jobs SET status = $2, last_error = NULL, updated_at = now() WHERE id = $1
`, id, models.WritebackStatusDone)
	return errors.Wrap(err, "complete writeback job")
}

func (s *Storage) FailWritebackJob(ctx context.Context, id uint64, failCount int32, lastError string, nextAttemptAt time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE writeback_jobs
SET fail_count = $2, last_error = $3, next_attempt_at = $4, updated_at = now()
WHERE id = $1
`, id, failCount, lastError, nextAttemptAt.UTC())
	return errors.Wrap(err, "fail writeback job")
}

// MarkWritebackJobDead паркует задачу после исчерпания попыток.
// Трекинг при этом продолжает работать, просто поле в CRM останется
// пустым до ручной сверки.
func (s *Storage) MarkWritebackJobDead(ctx context.Context, id uint64, lastError string) error {
	_, err := s.db.Exec(ctx, `
UPDATE writeback_jobs SET status = $2, last_error = $3, updated_at = now() WHERE id = $1
`, id, models.WritebackStatusDead, lastError)
	return errors.Wrap(err, "mark writeback job dead")
}
