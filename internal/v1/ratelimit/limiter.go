// Package ratelimit implements rate limiting logic using Redis or local memory.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/lumaboard/whiteboard/internal/v1/config"
	"github.com/lumaboard/whiteboard/internal/v1/logging"
	"github.com/lumaboard/whiteboard/internal/v1/metrics"
)

// Limiter bundles the three rate limits the collab protocol enforces: join
// attempts per IP per board, ops per session, and presence updates per
// session. Rates are built directly because the 10-second windows cannot be
// expressed in the formatted "N-P" syntax.
type Limiter struct {
	join     *limiter.Limiter
	op       *limiter.Limiter
	presence *limiter.Limiter
	store    limiter.Store
}

// New creates a Limiter from the configured rates. When a Redis client is
// provided the buckets live in Redis, otherwise in process memory.
func New(cfg *config.Config, redisClient *redis.Client) (*Limiter, error) {
	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:collab:",
		})
		if err != nil {
			return nil, err
		}
		store = s
		logging.Info(context.Background(), "✅ Rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "⚠️  Rate limiter using Memory store (Redis disabled or unavailable)")
	}

	return &Limiter{
		join:     limiter.New(store, limiter.Rate{Period: time.Minute, Limit: cfg.JoinAttemptsPerMinutePerIP}),
		op:       limiter.New(store, limiter.Rate{Period: 10 * time.Second, Limit: cfg.OpsPer10sPerClient}),
		presence: limiter.New(store, limiter.Rate{Period: 10 * time.Second, Limit: cfg.PresencePer10sPerClient}),
		store:    store,
	}, nil
}

// AllowJoin counts one join attempt for the IP against the board's bucket
// and reports whether the attempt is within the limit. Every attempt counts,
// including ones that later fail auth.
func (l *Limiter) AllowJoin(ctx context.Context, boardID, ip string) bool {
	lctx, err := l.join.Get(ctx, "join:"+boardID+":"+ip)
	if err != nil {
		logging.Error(ctx, "rate limiter store failed (join)", zap.Error(err))
		return true // fail open
	}
	if lctx.Reached {
		metrics.RateLimitRejections.WithLabelValues("join").Inc()
		return false
	}
	return true
}

// ResetJoin clears the IP's join bucket after a successful join so a user
// who reconnects legitimately is not penalized for earlier attempts.
func (l *Limiter) ResetJoin(ctx context.Context, boardID, ip string) {
	if _, err := l.join.Reset(ctx, "join:"+boardID+":"+ip); err != nil {
		logging.Error(ctx, "rate limiter reset failed (join)", zap.Error(err))
	}
}

// AllowOp counts one op for the session and reports whether it is within the
// per-client op rate.
func (l *Limiter) AllowOp(ctx context.Context, sessionKey string) bool {
	lctx, err := l.op.Get(ctx, "op:"+sessionKey)
	if err != nil {
		logging.Error(ctx, "rate limiter store failed (op)", zap.Error(err))
		return true
	}
	if lctx.Reached {
		metrics.RateLimitRejections.WithLabelValues("op").Inc()
		return false
	}
	return true
}

// AllowPresence counts one presence update for the session. Over-limit
// presence is dropped silently by the caller rather than errored.
func (l *Limiter) AllowPresence(ctx context.Context, sessionKey string) bool {
	lctx, err := l.presence.Get(ctx, "presence:"+sessionKey)
	if err != nil {
		logging.Error(ctx, "rate limiter store failed (presence)", zap.Error(err))
		return true
	}
	if lctx.Reached {
		metrics.RateLimitRejections.WithLabelValues("presence").Inc()
		return false
	}
	return true
}
