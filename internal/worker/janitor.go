package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/secure-events/backend/internal/sessions"
)

// Janitor periodically purges expired sessions. Revoked-but-unexpired rows
// are kept so revocation stays visible until natural expiry.
type Janitor struct {
	store    sessions.Store
	interval time.Duration
	logger   *zap.Logger
}

// NewJanitor creates a session cleanup janitor.
func NewJanitor(store sessions.Store, interval time.Duration, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{store: store, interval: interval, logger: logger}
}

// Run starts the cleanup loop until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("session janitor stopping")
			return
		case <-ticker.C:
			deleted, err := j.store.DeleteExpired(ctx)
			if err != nil {
				j.logger.Warn("session cleanup failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				j.logger.Info("expired sessions purged", zap.Int64("deleted", deleted))
			}
		}
	}
}
