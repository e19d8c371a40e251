package cache

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	// 若 Redis 未启动则跳过
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	return rdb
}

func TestConnectionManager_AdmitUpToLimit(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	m := NewConnectionManager(rdb, 2, time.Minute)

	const userID = 910001
	_ = m.Clear(ctx, userID)
	defer m.Clear(ctx, userID)

	if !m.TryAdmit(ctx, userID, "conn-1") {
		t.Fatalf("TryAdmit(conn-1) = false, want true")
	}
	if !m.TryAdmit(ctx, userID, "conn-2") {
		t.Fatalf("TryAdmit(conn-2) = false, want true")
	}
	// 超过上限的第 3 个连接被拒绝
	if m.TryAdmit(ctx, userID, "conn-3") {
		t.Fatalf("TryAdmit(conn-3) = true, want false")
	}
	if got := m.Count(ctx, userID); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}
}

func TestConnectionManager_ReleaseFreesSlot(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	m := NewConnectionManager(rdb, 1, time.Minute)

	const userID = 910002
	_ = m.Clear(ctx, userID)
	defer m.Clear(ctx, userID)

	if !m.TryAdmit(ctx, userID, "conn-1") {
		t.Fatalf("TryAdmit(conn-1) = false, want true")
	}
	if m.TryAdmit(ctx, userID, "conn-2") {
		t.Fatalf("TryAdmit(conn-2) = true, want false")
	}

	m.Release(ctx, userID, "conn-1")

	if !m.TryAdmit(ctx, userID, "conn-2") {
		t.Fatalf("TryAdmit(conn-2) after release = false, want true")
	}
}

func TestConnectionManager_AdmitIsIdempotentPerConn(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	m := NewConnectionManager(rdb, 2, time.Minute)

	const userID = 910003
	_ = m.Clear(ctx, userID)
	defer m.Clear(ctx, userID)

	// 同一 connID 重复准入只占一个槽位（Set 语义）
	if !m.TryAdmit(ctx, userID, "conn-1") {
		t.Fatalf("TryAdmit = false, want true")
	}
	if !m.TryAdmit(ctx, userID, "conn-1") {
		t.Fatalf("TryAdmit(duplicate) = false, want true")
	}
	if got := m.Count(ctx, userID); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}
}

func TestConnectionManager_RefreshExtendsTTL(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	m := NewConnectionManager(rdb, 5, time.Minute)

	const userID = 910004
	_ = m.Clear(ctx, userID)
	defer m.Clear(ctx, userID)

	if !m.TryAdmit(ctx, userID, "conn-1") {
		t.Fatalf("TryAdmit = false, want true")
	}
	m.Refresh(ctx, userID, "conn-1")

	ttl, err := rdb.TTL(ctx, connectionsKey(userID)).Result()
	if err != nil {
		t.Fatalf("TTL error: %v", err)
	}
	if ttl <= 0 {
		t.Fatalf("TTL = %v, want > 0", ttl)
	}
	if got := m.Count(ctx, userID); got != 1 {
		t.Fatalf("Count after refresh = %d, want 1", got)
	}
}

func TestConnectionManager_RefreshNeverReadmitsExpiredConn(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	m := NewConnectionManager(rdb, 1, time.Minute)

	const userID = 910005
	_ = m.Clear(ctx, userID)
	defer m.Clear(ctx, userID)

	if !m.TryAdmit(ctx, userID, "conn-1") {
		t.Fatalf("TryAdmit(conn-1) = false, want true")
	}

	// conn-1 的记录过期，空出的槽位被新连接占走
	if err := m.Clear(ctx, userID); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if !m.TryAdmit(ctx, userID, "conn-2") {
		t.Fatalf("TryAdmit(conn-2) = false, want true")
	}

	// 迟到的 conn-1 心跳不能把自己登记回去挤超上限
	m.Refresh(ctx, userID, "conn-1")

	if got := m.Count(ctx, userID); got != 1 {
		t.Fatalf("Count after stale refresh = %d, want 1", got)
	}
	back, err := rdb.SIsMember(ctx, connectionsKey(userID), "conn-1").Result()
	if err != nil {
		t.Fatalf("SIsMember error: %v", err)
	}
	if back {
		t.Fatalf("stale conn-1 re-registered by heartbeat, want refresh-only")
	}
}
