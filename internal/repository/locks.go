package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/set-night/coinledger/internal/domain"
)

// AcquireLock takes the job lock with a single conditional upsert: insert the
// row, or refresh last_run only when the existing one is already stale. Zero
// rows affected means another runner holds a fresh lock.
func (s *Store) AcquireLock(ctx context.Context, jobName string, now time.Time, staleness time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO job_locks (job_name, last_run) VALUES ($1, $2)
		ON CONFLICT (job_name) DO UPDATE SET last_run = EXCLUDED.last_run
		WHERE job_locks.last_run < $3`,
		jobName, now, now.Add(-staleness))
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLockHeld
	}
	return nil
}

func (s *Store) ReleaseLock(ctx context.Context, jobName string, at time.Time) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE job_locks SET last_run = $2 WHERE job_name = $1`, jobName, at); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// LastRun returns the zero time when the job has never run.
func (s *Store) LastRun(ctx context.Context, jobName string) (time.Time, error) {
	var last time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT last_run FROM job_locks WHERE job_name = $1`, jobName).Scan(&last)
	if err != nil {
		if isNoRows(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("read last run: %w", err)
	}
	return last, nil
}
