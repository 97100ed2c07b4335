package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/iyuangang/webservice-monitor/internal/db"
)

// Service trims aged probe results. Configs and alerts are never deleted by
// the sweep; resolved alerts go only through the opt-in purge.
type Service struct {
	repo        *db.Repository
	days        int
	purgeAlerts bool
	log         *slog.Logger
	now         func() time.Time
}

func NewService(repo *db.Repository, days int, purgeAlerts bool, logger *slog.Logger) *Service {
	if days <= 0 {
		days = 30
	}
	return &Service{repo: repo, days: days, purgeAlerts: purgeAlerts, log: logger.With("module", "retention"), now: time.Now}
}

// Sweep deletes probe results older than the given number of days (falling
// back to the service default when days <= 0) and returns how many rows were
// removed. The delete is a single statement, so it either fully applies or
// fully fails.
func (s *Service) Sweep(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = s.days
	}
	cutoff := s.now().UTC().AddDate(0, 0, -days)
	deleted, err := s.repo.DeleteResultsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.log.Info("retention sweep completed", "cutoff", cutoff, "deleted", deleted)
	return deleted, nil
}

// PurgeResolvedAlerts removes resolved alerts older than the retention
// window. Open alerts always survive.
func (s *Service) PurgeResolvedAlerts(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.days)
	purged, err := s.repo.PurgeResolvedAlerts(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.log.Info("resolved alerts purged", "cutoff", cutoff, "purged", purged)
	}
	return purged, nil
}

// Run executes one scheduled sweep, logging instead of returning errors so a
// cron-style caller keeps its cadence.
func (s *Service) Run(ctx context.Context) {
	if _, err := s.Sweep(ctx, 0); err != nil {
		s.log.Error("retention sweep failed", "err", err)
	}
	if !s.purgeAlerts {
		return
	}
	if _, err := s.PurgeResolvedAlerts(ctx); err != nil {
		s.log.Error("alert purge failed", "err", err)
	}
}
