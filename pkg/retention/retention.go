// Package retention runs scheduled housekeeping: pruning idle rate-limit
// windows and purging old read notifications.
package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"msgcore/pkg/config"
	"msgcore/pkg/logger"
	"msgcore/pkg/models"
	"msgcore/pkg/ratelimit"
	"msgcore/pkg/store"
)

// Sweeper owns the scheduled runs.
type Sweeper struct {
	st  *store.Store
	lim *ratelimit.Limiter
	cfg config.RetentionConfig
}

func New(st *store.Store, lim *ratelimit.Limiter, cfg config.RetentionConfig) *Sweeper {
	return &Sweeper{st: st, lim: lim, cfg: cfg}
}

// Start launches the cron scheduler if retention is enabled. Returns a
// cancel func for shutdown.
func (s *Sweeper) Start(ctx context.Context) (context.CancelFunc, error) {
	if !s.cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}
	cronExpr := s.cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", s.cfg.Cron)
	}
	logger.Info("retention_enabled", "cron", cronExpr, "dry_run", s.cfg.DryRun)
	ctx2, cancel := context.WithCancel(ctx)
	go s.runScheduler(ctx2, cronExpr)
	return cancel, nil
}

// runScheduler sleeps until each next cron tick and triggers a run.
func (s *Sweeper) runScheduler(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := s.RunOnce(ctx); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs a single sweep. Safe to call directly from admin
// triggers or tests.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	pruned := 0
	if s.lim != nil && !s.cfg.DryRun {
		pruned = s.lim.PruneIdle()
	}
	purged, err := s.purgeNotifications(ctx)
	if err != nil {
		return err
	}
	logger.Info("retention_run_complete", "windows_pruned", pruned, "notifications_purged", purged, "dry_run", s.cfg.DryRun)
	return nil
}

// purgeNotifications removes read notifications older than the configured
// max age, along with their id pointer and uniqueness marker. Unread
// records are never purged.
func (s *Sweeper) purgeNotifications(ctx context.Context) (int, error) {
	maxAge := time.Duration(s.cfg.NotificationMaxAge)
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-maxAge).UnixNano()

	type victim struct {
		key []byte
		n   models.Notification
	}
	var victims []victim
	err := s.st.ScanPrefix(store.NotifRecordPrefix(), func(key, val []byte) bool {
		if ctx.Err() != nil {
			return false
		}
		var n models.Notification
		if json.Unmarshal(val, &n) != nil {
			return true
		}
		if n.Read && n.CreatedTS < cutoff {
			victims = append(victims, victim{key: append([]byte(nil), key...), n: n})
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.cfg.DryRun {
		logger.Info("retention_dry_run", "would_purge", len(victims))
		return 0, nil
	}

	batch := s.st.NewBatch()
	for _, v := range victims {
		_ = batch.Delete(v.key, nil)
		_ = batch.Delete(store.NotifIDKey(v.n.ID), nil)
		_ = batch.Delete(store.NotifIdxKey(v.n.Recipient, v.n.MsgID, string(v.n.Kind)), nil)
	}
	if err := s.st.Commit(ctx, batch); err != nil {
		return 0, err
	}
	return len(victims), nil
}
