package cache

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	l := NewRateLimiter(rdb, 5, 10*time.Second)

	const userID = 920001
	docID := "rl-doc-1"
	_ = l.Reset(ctx, userID, docID)
	defer l.Reset(ctx, userID, docID)

	for i := 0; i < 5; i++ {
		allowed, info := l.Check(ctx, userID, docID)
		if !allowed {
			t.Fatalf("Check #%d = false, want true", i+1)
		}
		if want := 5 - (i + 1); info.Remaining != want {
			t.Fatalf("Check #%d remaining = %d, want %d", i+1, info.Remaining, want)
		}
	}

	// 第 6 条被限流，retry_after 给出窗口释放时间
	allowed, info := l.Check(ctx, userID, docID)
	if allowed {
		t.Fatalf("Check #6 = true, want false")
	}
	if info.Remaining != 0 {
		t.Fatalf("blocked remaining = %d, want 0", info.Remaining)
	}
	if info.Limit != 5 {
		t.Fatalf("blocked limit = %d, want 5", info.Limit)
	}
	if info.RetryAfter <= 0 {
		t.Fatalf("blocked retry_after = %f, want > 0", info.RetryAfter)
	}
}

func TestRateLimiter_BlockedMessageDoesNotConsumeSlot(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	l := NewRateLimiter(rdb, 3, 10*time.Second)

	const userID = 920002
	docID := "rl-doc-2"
	_ = l.Reset(ctx, userID, docID)
	defer l.Reset(ctx, userID, docID)

	for i := 0; i < 3; i++ {
		if allowed, _ := l.Check(ctx, userID, docID); !allowed {
			t.Fatalf("Check #%d = false, want true", i+1)
		}
	}
	// 被拒绝的消息不写入窗口
	for i := 0; i < 5; i++ {
		if allowed, _ := l.Check(ctx, userID, docID); allowed {
			t.Fatalf("Check over limit = true, want false")
		}
	}
	if got := l.CurrentCount(ctx, userID, docID); got != 3 {
		t.Fatalf("CurrentCount = %d, want 3", got)
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	// 短窗口让测试可以等到滑出
	l := NewRateLimiter(rdb, 2, 500*time.Millisecond)

	const userID = 920003
	docID := "rl-doc-3"
	_ = l.Reset(ctx, userID, docID)
	defer l.Reset(ctx, userID, docID)

	if allowed, _ := l.Check(ctx, userID, docID); !allowed {
		t.Fatalf("Check #1 = false, want true")
	}
	if allowed, _ := l.Check(ctx, userID, docID); !allowed {
		t.Fatalf("Check #2 = false, want true")
	}
	if allowed, _ := l.Check(ctx, userID, docID); allowed {
		t.Fatalf("Check #3 = true, want false")
	}

	time.Sleep(600 * time.Millisecond)

	if allowed, _ := l.Check(ctx, userID, docID); !allowed {
		t.Fatalf("Check after window slide = false, want true")
	}
}

func TestRateLimiter_PerDocumentIsolation(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	l := NewRateLimiter(rdb, 1, 10*time.Second)

	const userID = 920004
	_ = l.Reset(ctx, userID, "rl-doc-a")
	_ = l.Reset(ctx, userID, "rl-doc-b")
	defer l.Reset(ctx, userID, "rl-doc-a")
	defer l.Reset(ctx, userID, "rl-doc-b")

	if allowed, _ := l.Check(ctx, userID, "rl-doc-a"); !allowed {
		t.Fatalf("doc-a Check #1 = false, want true")
	}
	if allowed, _ := l.Check(ctx, userID, "rl-doc-a"); allowed {
		t.Fatalf("doc-a Check #2 = true, want false")
	}
	// 限流以 (用户, 文档) 为维度，另一个文档不受影响
	if allowed, _ := l.Check(ctx, userID, "rl-doc-b"); !allowed {
		t.Fatalf("doc-b Check = false, want true")
	}
}
