package workers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"orgkit-backend/internal/models"
)

type InvitePurger interface {
	PurgeExpiredInvites(ctx context.Context, now time.Time) (models.PurgeResult, error)
}

// StartInviteReaper periodically removes expired invite links and
// deactivates expired email invites.
func StartInviteReaper(ctx context.Context, store InvitePurger, interval time.Duration, logger *zap.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reapOnce(ctx, store, logger)
			}
		}
	}()
	logger.Info("invite reaper started", zap.Duration("interval", interval))
}

func reapOnce(ctx context.Context, store InvitePurger, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := store.PurgeExpiredInvites(ctx, time.Now())
	if err != nil {
		logger.Warn("invite reaper purge error", zap.Error(err))
		return
	}
	if result.LinksDeleted > 0 || result.EmailsDeactivated > 0 {
		logger.Info("expired invites purged",
			zap.Int64("links_deleted", result.LinksDeleted),
			zap.Int64("emails_deactivated", result.EmailsDeactivated))
	}
}
