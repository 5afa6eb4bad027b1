// Package maintenance runs the periodic expired-subscription sweep. Possibly
// redundant scheduler processes are serialized through a store-persisted job
// lock: a conditional upsert admits exactly one fresh holder per staleness
// window.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/set-night/coinledger/internal/config"
	"github.com/set-night/coinledger/internal/domain"
	"github.com/set-night/coinledger/internal/ledger"
)

type Store interface {
	// AcquireLock performs the conditional upsert: it takes the lock only
	// when no row exists or the existing last_run is older than the
	// staleness window, returning domain.ErrLockHeld otherwise.
	AcquireLock(ctx context.Context, jobName string, now time.Time, staleness time.Duration) error
	// ReleaseLock writes last_run back to at, freeing the lock.
	ReleaseLock(ctx context.Context, jobName string, at time.Time) error
	LastRun(ctx context.Context, jobName string) (time.Time, error)
	ListExpiredPaid(ctx context.Context, now time.Time) ([]domain.Account, error)
	DowngradeTier(ctx context.Context, accountID int64, now time.Time) error
}

// Reporter receives sweep outcomes for ops visibility. May be nil.
type Reporter interface {
	SweepCompleted(downgraded int, took time.Duration)
}

type Sweeper struct {
	store    Store
	notifier ledger.Notifier
	reporter Reporter
}

func NewSweeper(store Store, notifier ledger.Notifier, reporter Reporter) *Sweeper {
	return &Sweeper{store: store, notifier: notifier, reporter: reporter}
}

// RunOnce executes one guarded sweep. A lost lock race returns
// domain.ErrLockHeld with no side effects; the next schedule retries.
func (s *Sweeper) RunOnce(ctx context.Context) (downgraded int, err error) {
	start := time.Now()

	if err := s.store.AcquireLock(ctx, config.SweepJobName, start, config.LockStaleness); err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			slog.Info("sweep skipped, lock held by another runner", "job", config.SweepJobName)
			return 0, err
		}
		return 0, fmt.Errorf("acquire lock: %w", err)
	}
	// Best-effort release even when the scan fails: back-date last_run past
	// the staleness window so the next invocation can take the lock.
	defer func() {
		releaseCtx := context.WithoutCancel(ctx)
		if relErr := s.store.ReleaseLock(releaseCtx, config.SweepJobName, time.Now().Add(-config.LockStaleness)); relErr != nil {
			slog.Error("release sweep lock failed", "job", config.SweepJobName, "error", relErr)
		}
	}()

	expired, err := s.store.ListExpiredPaid(ctx, start)
	if err != nil {
		return 0, fmt.Errorf("list expired accounts: %w", err)
	}

	for _, acc := range expired {
		if err := s.store.DowngradeTier(ctx, acc.ID, start); err != nil {
			slog.Error("downgrade failed", "account_id", acc.ID, "error", err)
			continue
		}
		s.notifier.Send(ctx, "Your plus subscription has expired", start, acc.ID)
		downgraded++
	}

	slog.Info("sweep completed", "downgraded", downgraded, "took", time.Since(start))
	if s.reporter != nil {
		s.reporter.SweepCompleted(downgraded, time.Since(start))
	}
	return downgraded, nil
}

// NeedsCatchUp reports whether the last recorded run is older than the plan
// window, in which case the scheduler runs a sweep immediately on startup.
func (s *Sweeper) NeedsCatchUp(ctx context.Context) bool {
	last, err := s.store.LastRun(ctx, config.SweepJobName)
	if err != nil {
		slog.Error("read last run failed", "job", config.SweepJobName, "error", err)
		return false
	}
	return time.Since(last) > config.PlanWindow
}

// Run drives RunOnce on the fixed schedule until ctx is done, with a
// catch-up pass first when the last run is too old.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if s.NeedsCatchUp(ctx) {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, domain.ErrLockHeld) {
			slog.Error("catch-up sweep failed", "error", err)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, domain.ErrLockHeld) {
				slog.Error("scheduled sweep failed", "error", err)
			}
		}
	}
}
