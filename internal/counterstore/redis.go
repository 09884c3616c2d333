package counterstore

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the sliding-window Store backed by a Redis sorted set per key,
// one pipelined round-trip per call. Grounded on the original
// rate_limiter.py's evict/insert/count/expire pipeline (ZREMRANGEBYSCORE,
// ZADD, ZCOUNT, EXPIRE), the same four-command shape the corpus's
// token-bucket sliding-window implementation uses.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an already-configured *redis.Client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) RecordAndCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	nowScore := float64(now.UnixNano()) / 1e9
	windowStart := nowScore - window.Seconds()
	member := memberFor(now)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatFloat(windowStart, 'f', -1, 64))
	pipe.ZAdd(ctx, key, redis.Z{Score: nowScore, Member: member})
	countCmd := pipe.ZCount(ctx, key, strconv.FormatFloat(windowStart, 'f', -1, 64), "+inf")
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("counterstore: pipeline exec: %w", err)
	}
	return countCmd.Val(), nil
}

func (r *Redis) Count(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	nowScore := float64(now.UnixNano()) / 1e9
	windowStart := nowScore - window.Seconds()

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatFloat(windowStart, 'f', -1, 64))
	countCmd := pipe.ZCount(ctx, key, strconv.FormatFloat(windowStart, 'f', -1, 64), "+inf")

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("counterstore: pipeline exec: %w", err)
	}
	return countCmd.Val(), nil
}

// Clear deletes every key matching pattern via SCAN+DEL, since Redis has
// no atomic wildcard delete. SCAN's cursor iteration means this isn't a
// single atomic operation, but Clear is an administrative flush, not part
// of the hot path's atomicity requirement.
func (r *Redis) Clear(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("counterstore: scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("counterstore: del matching %s: %w", pattern, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (r *Redis) Close() error { return r.client.Close() }

// memberSeq is a process-wide counter appended to every member.
var memberSeq atomic.Uint64

// memberFor builds a unique sorted-set member for this event so repeated
// calls within the same nanosecond (or clock skew) never collide and get
// silently deduplicated by ZADD.
func memberFor(now time.Time) string {
	return strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(memberSeq.Add(1), 10)
}
