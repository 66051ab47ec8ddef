package api

import (
	"context"

	domain "github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/modules/ratelimit"
	"github.com/go-monolith/mono/pkg/types"
)

// sendGate throttles message sends per user. Limiter failures let the send through.
type sendGate struct {
	limiter ratelimit.Limiter
	logger  types.Logger
}

func (g *sendGate) allow(ctx context.Context, userID string) error {
	if g == nil || g.limiter == nil {
		return nil
	}
	result, err := g.limiter.Allow(ctx, userID)
	if err != nil {
		g.logger.Warn("Rate limiter unavailable, allowing send", "userID", userID, "error", err)
		return nil
	}
	if !result.Allowed {
		g.logger.Debug("Send rate limited", "userID", userID, "retryAfter", result.RetryAfter.String())
		return domain.ErrRateLimited
	}
	return nil
}
