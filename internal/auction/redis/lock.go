package redis

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-auctions/internal/logger"
)

// Client is the slice of the go-redis API the lock needs; a mock
// implementation stands in during tests.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis serializes per-auction mutations across processes. The sweep
// takes the lock before settling an auction so two instances running the
// same sweep cannot interleave on one row; the database conditional
// updates remain the correctness backstop.
type Redis struct {
	Client Client
	Logger *logger.Logger
}

func NewRedis(client Client, log *logger.Logger) *Redis {
	return &Redis{Client: client, Logger: log}
}

// getSettleLockDuration returns the lock TTL from the environment or the
// default value.
func (r *Redis) getSettleLockDuration() time.Duration {
	defaultDuration := 2 * time.Minute

	ttlStr := os.Getenv("AUCTION_LOCK_TTL_SECONDS")
	if ttlStr == "" {
		return defaultDuration
	}

	ttlSec, err := strconv.Atoi(ttlStr)
	if err != nil {
		r.Logger.Warn("REDIS", "Invalid AUCTION_LOCK_TTL_SECONDS value '"+ttlStr+"', using default 2 minutes")
		return defaultDuration
	}
	return time.Duration(ttlSec) * time.Second
}

// LockAuction takes the settle lock for one auction. The owner token
// identifies the holder so an unrelated process cannot release it.
func (r *Redis) LockAuction(ctx context.Context, auctionID, owner string) (bool, error) {
	key := "auction_lock:" + auctionID
	ok, err := r.Client.SetNX(ctx, key, owner, r.getSettleLockDuration()).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock error for auction %s: %w", auctionID, err)
	}
	if !ok {
		r.Logger.Debug("REDIS", fmt.Sprintf("Auction %s already locked by another holder", auctionID))
	}
	return ok, nil
}

// UnlockAuction releases the settle lock, but only if this owner still
// holds it. An expired-and-reacquired lock is left alone.
func (r *Redis) UnlockAuction(ctx context.Context, auctionID, owner string) error {
	key := "auction_lock:" + auctionID

	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis get error for auction %s: %w", auctionID, err)
	}
	if val != owner {
		r.Logger.Warn("REDIS", fmt.Sprintf("Not unlocking auction %s: lock held by %s, not %s", auctionID, val, owner))
		return nil
	}

	if err := r.Client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del error for auction %s: %w", auctionID, err)
	}
	return nil
}
