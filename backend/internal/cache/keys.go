package cache

import "fmt"

// 键语义：
// - connectionsKey(userID):      用户当前活跃连接集合（Set<connID>，带 TTL）
// - rateLimitKey(userID, docID): (用户, 文档) 的消息时间戳有序集合（ZSet，带 TTL）
// - docChannel(docID):           文档广播的 pub/sub 频道

const (
	keyConnectionsFmt = "ws:connections:user:%d"        // Set<connID> with TTL
	keyRateLimitFmt   = "ws:ratelimit:user:%d:doc:%s"   // ZSet<ts_ms -> ts_ms> with TTL
	docChannelFmt     = "ws:doc:events:%s"              // pub/sub channel
	docChannelPattern = "ws:doc:events:*"
)

func connectionsKey(userID uint64) string { return fmt.Sprintf(keyConnectionsFmt, userID) }

func rateLimitKey(userID uint64, docID string) string {
	return fmt.Sprintf(keyRateLimitFmt, userID, docID)
}

func docChannel(docID string) string { return fmt.Sprintf(docChannelFmt, docID) }
