package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"

	"collabdocs/logger"
)

// ConnectionManager 追踪并限制每个用户的并发协作连接数。
//
// Redis 结构：
// - Key: ws:connections:user:{userID}
// - Value: Set<connID>
//
// 检查+添加必须原子执行（Lua 脚本），否则两个并发握手
// 都观察到 "未达上限" 会双双挤过上限。
type ConnectionManager interface {
	// TryAdmit 原子地检查并占用一个连接槽位；达到上限返回 false
	TryAdmit(ctx context.Context, userID uint64, connID string) bool
	// Release 释放槽位；尽力而为，有限重试，绝不无限阻塞断开路径
	Release(ctx context.Context, userID uint64, connID string)
	// Refresh 心跳续期，防止活跃连接因 TTL 过期被清除
	Refresh(ctx context.Context, userID uint64, connID string)
	Count(ctx context.Context, userID uint64) int
	// Clear 清除某用户的全部连接记录（测试/管理用）
	Clear(ctx context.Context, userID uint64) error
}

const (
	// 连接记录 TTL 的兜底值；正常由配置提供
	DefaultConnectionTTL = 300 * time.Second
	// Release 的最大重试次数
	releaseMaxRetries = 3
	// 单次 Redis 往返的超时上限
	connOpTimeout = 2 * time.Second
)

// 原子性检查并添加：SCARD -> SADD -> EXPIRE 在同一脚本内完成
var admitScript = redis.NewScript(`
local key = KEYS[1]
local conn = ARGV[1]
local max_conn = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local count = redis.call('SCARD', key)
if count >= max_conn then
    return 0
end
redis.call('SADD', key, conn)
redis.call('EXPIRE', key, ttl)
return 1
`)

// 只给仍在集合里的连接续期。记录已过期的连接不重新登记：
// 槽位可能已被后续连接占走，SADD 会把配额挤到上限之外
var refreshScript = redis.NewScript(`
local key = KEYS[1]
local conn = ARGV[1]
local ttl = tonumber(ARGV[2])

if redis.call('SISMEMBER', key, conn) == 1 then
    redis.call('EXPIRE', key, ttl)
    return 1
end
return 0
`)

type redisConnectionManager struct {
	rdb            *redis.Client
	maxConnections int
	ttl            time.Duration
}

func NewConnectionManager(rdb *redis.Client, maxConnections int, ttl time.Duration) ConnectionManager {
	if maxConnections <= 0 {
		maxConnections = 5
	}
	if ttl <= 0 {
		ttl = DefaultConnectionTTL
	}
	return &redisConnectionManager{rdb: rdb, maxConnections: maxConnections, ttl: ttl}
}

func (m *redisConnectionManager) TryAdmit(ctx context.Context, userID uint64, connID string) bool {
	ctx, cancel := context.WithTimeout(ctx, connOpTimeout)
	defer cancel()

	res, err := admitScript.Run(ctx, m.rdb,
		[]string{connectionsKey(userID)},
		connID, m.maxConnections, int(m.ttl.Seconds()),
	).Int()
	if err != nil {
		// fail-closed：追踪不可用时拒绝连接，否则上限形同虚设
		logger.Errorf("admit connection error (user=%d): %v", userID, err)
		return false
	}
	if res != 1 {
		logger.Warnf("user %d reached connection limit %d, rejecting %s",
			userID, m.maxConnections, connID)
		return false
	}
	return true
}

func (m *redisConnectionManager) Release(ctx context.Context, userID uint64, connID string) {
	for attempt := 0; attempt < releaseMaxRetries; attempt++ {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), connOpTimeout)
		err := m.rdb.SRem(opCtx, connectionsKey(userID), connID).Err()
		cancel()
		if err == nil {
			return
		}
		logger.Errorf("release connection error (user=%d, attempt %d/%d): %v",
			userID, attempt+1, releaseMaxRetries, err)
		if attempt < releaseMaxRetries-1 {
			time.Sleep(100 * time.Millisecond * time.Duration(attempt+1))
		}
	}
	// 放弃：残留记录会随 TTL 自行过期
	logger.Warnf("give up releasing connection %s of user %d after %d attempts",
		connID, userID, releaseMaxRetries)
}

func (m *redisConnectionManager) Refresh(ctx context.Context, userID uint64, connID string) {
	ctx, cancel := context.WithTimeout(ctx, connOpTimeout)
	defer cancel()

	res, err := refreshScript.Run(ctx, m.rdb,
		[]string{connectionsKey(userID)},
		connID, int(m.ttl.Seconds()),
	).Int()
	if err != nil {
		logger.Errorf("refresh connection error (user=%d): %v", userID, err)
		return
	}
	if res != 1 {
		logger.Warnf("heartbeat for unknown connection %s of user %d ignored", connID, userID)
	}
}

func (m *redisConnectionManager) Count(ctx context.Context, userID uint64) int {
	ctx, cancel := context.WithTimeout(ctx, connOpTimeout)
	defer cancel()

	count, err := m.rdb.SCard(ctx, connectionsKey(userID)).Result()
	if err != nil {
		logger.Errorf("count connections error (user=%d): %v", userID, err)
		return 0
	}
	return int(count)
}

func (m *redisConnectionManager) Clear(ctx context.Context, userID uint64) error {
	return m.rdb.Del(ctx, connectionsKey(userID)).Err()
}
