package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

const defaultResultTTL = 24 * time.Hour

// ResultCache implements domain.ResultCache. Each market's latest result is
// a hash so the action can be read without decoding the document.
//
// Key schema:
//
//	resolution:{marketID} - hash {data: JSON result, action, resolved_at}
type ResultCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewResultCache creates a ResultCache; ttl <= 0 uses 24h.
func NewResultCache(c *Client, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = defaultResultTTL
	}
	return &ResultCache{rdb: c.Underlying(), ttl: ttl}
}

func resultKey(marketID string) string { return "resolution:" + marketID }

// Set stores result as the latest for its market unless a newer one is
// already cached.
func (rc *ResultCache) Set(ctx context.Context, result domain.ResolutionResult) error {
	key := resultKey(result.MarketID)

	if cur, err := rc.rdb.HGet(ctx, key, "resolved_at").Int64(); err == nil {
		if cur > result.ResolvedAt.UnixMilli() {
			return nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: read cached result %s: %w", result.MarketID, err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("redis: marshal result %s: %w", result.MarketID, err)
	}

	pipe := rc.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"data", data,
		"action", string(result.SettlementAction),
		"resolved_at", result.ResolvedAt.UnixMilli(),
	)
	pipe.Expire(ctx, key, rc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set result %s: %w", result.MarketID, err)
	}
	return nil
}

// Get returns the cached latest result, or domain.ErrNotFound.
func (rc *ResultCache) Get(ctx context.Context, marketID string) (domain.ResolutionResult, error) {
	data, err := rc.rdb.HGet(ctx, resultKey(marketID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ResolutionResult{}, domain.ErrNotFound
		}
		return domain.ResolutionResult{}, fmt.Errorf("redis: get result %s: %w", marketID, err)
	}

	var result domain.ResolutionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return domain.ResolutionResult{}, fmt.Errorf("redis: unmarshal result %s: %w", marketID, err)
	}
	return result, nil
}

// Invalidate drops the cached result for marketID.
func (rc *ResultCache) Invalidate(ctx context.Context, marketID string) error {
	if err := rc.rdb.Del(ctx, resultKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate result %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ResultCache = (*ResultCache)(nil)
