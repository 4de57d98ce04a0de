package authentication

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper deletes expired refresh token records on a fixed interval.
type Reaper struct {
	repo     RefreshTokenRepository
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewReaper(repo RefreshTokenRepository, interval time.Duration, now func() time.Time, logger *zap.Logger) *Reaper {
	if now == nil {
		now = time.Now
	}
	return &Reaper{repo: repo, interval: interval, now: now, logger: logger}
}

// Run sweeps until ctx is done. A non-positive interval disables the reaper.
func (r *Reaper) Run(ctx context.Context) error {
	if r.interval <= 0 {
		r.logger.Info("token reaper disabled")
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("token reaper started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("token reaper stopped")
			return nil
		case <-ticker.C:
			_, _ = r.Sweep(ctx)
		}
	}
}

func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	n, err := r.repo.DeleteExpired(ctx, r.now())
	if err != nil {
		r.logger.Error("failed to delete expired refresh tokens", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		r.logger.Info("expired refresh tokens deleted", zap.Int64("count", n))
	}
	return n, nil
}
