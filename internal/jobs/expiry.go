package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/keanlouis30/Easely/internal/domain"
	"github.com/keanlouis30/Easely/internal/metrics"
)

// ExpiryStore is the slice of the repository the expiry sweep needs.
type ExpiryStore interface {
	ListExpiredPremium(ctx context.Context, now time.Time) ([]domain.User, error)
	UpdateTierAndExpiry(ctx context.Context, userID int64, tier domain.Tier, until *time.Time) error
}

// Expiry downgrades lapsed premium users. The tier change is the
// authoritative effect; the goodbye message is best effort and never
// rolls the downgrade back.
type Expiry struct {
	store  ExpiryStore
	sender Sender
	log    *zap.Logger
	met    *metrics.Metrics
}

func NewExpiry(store ExpiryStore, sender Sender, log *zap.Logger, met *metrics.Metrics) *Expiry {
	return &Expiry{store: store, sender: sender, log: log, met: met}
}

// ExpiryStats summarizes one sweep.
type ExpiryStats struct {
	Downgraded int
	Failed     int
}

const expiredText = "Your premium period has ended. You're back on the free plan: " +
	"one reminder per task, 24 hours before the deadline. Use /activate to renew."

// RunOnce flips every lapsed premium user back to the free tier and
// clears the expiry timestamp.
func (e *Expiry) RunOnce(ctx context.Context, now time.Time) (ExpiryStats, error) {
	var stats ExpiryStats

	users, err := e.store.ListExpiredPremium(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("list expired premium: %w", err)
	}

	for _, u := range users {
		if err := e.store.UpdateTierAndExpiry(ctx, u.ID, domain.TierFree, nil); err != nil {
			stats.Failed++
			e.log.Warn("downgrade failed", zap.Int64("user", u.ID), zap.Error(err))
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			continue
		}
		stats.Downgraded++
		e.met.UsersDowngraded.Inc()

		if err := e.sender.SendText(u.ChatID, expiredText); err != nil {
			e.log.Warn("expiry notice not delivered", zap.Int64("user", u.ID), zap.Error(err))
		}
	}

	if stats.Downgraded > 0 || stats.Failed > 0 {
		e.log.Info("expiry sweep finished",
			zap.Int("downgraded", stats.Downgraded),
			zap.Int("failed", stats.Failed),
		)
	}
	return stats, nil
}
