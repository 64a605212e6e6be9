package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	balanceKeyPrefix = "wallet:balance:"
	versionKeyPrefix = "wallet:balance:version:"
	balanceTTL       = 30 * time.Second
	versionTTL       = 24 * time.Hour
)

// BalanceCache is a read-through cache for GetBalance. A nil client
// disables it.
//
// Every invalidation bumps a per-user version. Entries carry the version
// that was current before their database read, so a fill that raced a
// write is never served.
type BalanceCache struct {
	redis *redis.Client
	ttl   time.Duration
}

type cachedBalance struct {
	Version int64   `json:"version"`
	Balance Balance `json:"balance"`
}

func NewBalanceCache(redisClient *redis.Client) *BalanceCache {
	return &BalanceCache{redis: redisClient, ttl: balanceTTL}
}

func (c *BalanceCache) key(userID uuid.UUID) string {
	return balanceKeyPrefix + userID.String()
}

func (c *BalanceCache) versionKey(userID uuid.UUID) string {
	return versionKeyPrefix + userID.String()
}

// Version returns the current invalidation counter, or -1 when it cannot
// be read. Read it before loading the balance that is passed to Set.
func (c *BalanceCache) Version(ctx context.Context, userID uuid.UUID) int64 {
	if c == nil || c.redis == nil {
		return -1
	}
	v, err := c.redis.Get(ctx, c.versionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0
	}
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("balance cache version read failed")
		return -1
	}
	return v
}

func (c *BalanceCache) Get(ctx context.Context, userID uuid.UUID) (*Balance, bool) {
	if c == nil || c.redis == nil {
		return nil, false
	}

	vals, err := c.redis.MGet(ctx, c.key(userID), c.versionKey(userID)).Result()
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("balance cache read failed")
		return nil, false
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, false
	}
	var current int64
	if s, ok := vals[1].(string); ok {
		if current, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, false
		}
	}

	var entry cachedBalance
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, false
	}
	if entry.Version != current {
		return nil, false
	}
	return &entry.Balance, true
}

// Set stores b under the version read before b was loaded. A negative
// version skips the write.
func (c *BalanceCache) Set(ctx context.Context, userID uuid.UUID, version int64, b Balance) {
	if c == nil || c.redis == nil || version < 0 {
		return
	}

	data, err := json.Marshal(cachedBalance{Version: version, Balance: b})
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.key(userID), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("balance cache write failed")
	}
}

func (c *BalanceCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	if c == nil || c.redis == nil {
		return
	}
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.versionKey(userID))
		pipe.Expire(ctx, c.versionKey(userID), versionTTL)
		pipe.Del(ctx, c.key(userID))
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("balance cache invalidate failed")
	}
}
