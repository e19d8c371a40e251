package cache

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"collabdocs/logger"
)

// RateLimiter (用户, 文档) 维度的滑动窗口限流。
//
// Redis 结构：
// - Key: ws:ratelimit:user:{userID}:doc:{docID}
// - ZSet member/score 都是消息时间戳（毫秒），保证成员唯一且可按时间裁剪
//
// 滑动窗口：
// 1. 裁掉窗口外的旧时间戳
// 2. 统计窗口内的消息数
// 3. 未超限才记录当前时间戳
// 三步在同一 Lua 脚本内完成。
type RateLimiter interface {
	Check(ctx context.Context, userID uint64, docID string) (bool, RateLimitInfo)
	// CurrentCount 当前窗口内的消息数（测试/管理用）
	CurrentCount(ctx context.Context, userID uint64, docID string) int
	// Reset 清空某 (用户, 文档) 的限流记录（测试/管理用）
	Reset(ctx context.Context, userID uint64, docID string) error
}

type RateLimitInfo struct {
	Remaining  int     `json:"remaining"`
	Limit      int     `json:"limit"`
	Window     float64 `json:"window"`      // 窗口大小（秒）
	RetryAfter float64 `json:"retry_after"` // 被限制时多久后可重试（秒）
}

const rateOpTimeout = 2 * time.Second

// 返回 {allowed, count, retry_after_ms}
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local window_start_ms = tonumber(ARGV[2])
local max_messages = tonumber(ARGV[3])
local window_ms = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start_ms)

local count = redis.call('ZCARD', key)

if count >= max_messages then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local retry_after = 0
    if #oldest > 0 then
        retry_after = oldest[2] + window_ms - now_ms
        if retry_after < 0 then
            retry_after = 0
        end
    end
    return {0, count, retry_after}
end

redis.call('ZADD', key, now_ms, now_ms)
redis.call('EXPIRE', key, math.ceil(window_ms / 1000) + 1)

return {1, count + 1, 0}
`)

type redisRateLimiter struct {
	rdb         *redis.Client
	maxMessages int
	window      time.Duration
}

func NewRateLimiter(rdb *redis.Client, maxMessages int, window time.Duration) RateLimiter {
	if maxMessages <= 0 {
		maxMessages = 30
	}
	if window <= 0 {
		window = 10 * time.Second
	}
	return &redisRateLimiter{rdb: rdb, maxMessages: maxMessages, window: window}
}

func (l *redisRateLimiter) allowAll() RateLimitInfo {
	return RateLimitInfo{
		Remaining: l.maxMessages,
		Limit:     l.maxMessages,
		Window:    l.window.Seconds(),
	}
}

func (l *redisRateLimiter) Check(ctx context.Context, userID uint64, docID string) (bool, RateLimitInfo) {
	ctx, cancel := context.WithTimeout(ctx, rateOpTimeout)
	defer cancel()

	nowMs := time.Now().UnixMilli()
	windowMs := l.window.Milliseconds()

	res, err := rateLimitScript.Run(ctx, l.rdb,
		[]string{rateLimitKey(userID, docID)},
		nowMs, nowMs-windowMs, l.maxMessages, windowMs,
	).Int64Slice()
	if err != nil || len(res) != 3 {
		// fail-open：限流只是滥用防护，不是正确性机制，可用性优先。
		// 注意这与连接上限的 fail-closed 方向相反，两者有意不同。
		logger.Errorf("rate limit check error (user=%d, doc=%s): %v", userID, docID, err)
		return true, l.allowAll()
	}

	allowed := res[0] == 1
	count := int(res[1])
	retryAfterMs := res[2]

	info := RateLimitInfo{
		Remaining: max(0, l.maxMessages-count),
		Limit:     l.maxMessages,
		Window:    l.window.Seconds(),
	}
	if retryAfterMs > 0 {
		info.RetryAfter = float64(retryAfterMs) / 1000
	}

	if !allowed {
		logger.Warnf("user %d rate limited on doc %s: %d/%d in %s, retry_after=%.2fs",
			userID, docID, count, l.maxMessages, l.window, info.RetryAfter)
	}
	return allowed, info
}

func (l *redisRateLimiter) CurrentCount(ctx context.Context, userID uint64, docID string) int {
	ctx, cancel := context.WithTimeout(ctx, rateOpTimeout)
	defer cancel()

	key := rateLimitKey(userID, docID)
	nowMs := time.Now().UnixMilli()
	windowStart := nowMs - l.window.Milliseconds()

	pipe := l.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", formatMs(windowStart))
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Errorf("rate limit count error (user=%d, doc=%s): %v", userID, docID, err)
		return 0
	}
	return int(card.Val())
}

func (l *redisRateLimiter) Reset(ctx context.Context, userID uint64, docID string) error {
	return l.rdb.Del(ctx, rateLimitKey(userID, docID)).Err()
}

func formatMs(ms int64) string { return strconv.FormatInt(ms, 10) }
