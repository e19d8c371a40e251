package cache

import (
	"context"
	"encoding/json"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"collabdocs/logger"
)

// Envelope 跨进程广播的信封。
// Origin 用于过滤本节点发出的消息（本地已经直接投递过一次），
// ExcludeConn 让远端节点同样执行发送者排除。
type Envelope struct {
	Origin      string          `json:"origin"`
	ExcludeConn string          `json:"exclude_conn,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// Relay 把文档广播接到共享的 pub/sub 上，使同一文档的会话
// 可以分布在多个进程/机器。单进程部署时可以不挂 Relay。
type Relay interface {
	Publish(ctx context.Context, docID string, env Envelope) error
	// Subscribe 启动订阅循环，收到的远端信封回调 deliver；
	// ctx 取消后循环退出。
	Subscribe(ctx context.Context, deliver func(docID string, env Envelope))
}

type redisRelay struct {
	rdb    *redis.Client
	nodeID string
}

func NewRedisRelay(rdb *redis.Client, nodeID string) Relay {
	return &redisRelay{rdb: rdb, nodeID: nodeID}
}

func (r *redisRelay) Publish(ctx context.Context, docID string, env Envelope) error {
	env.Origin = r.nodeID
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, docChannel(docID), b).Err()
}

func (r *redisRelay) Subscribe(ctx context.Context, deliver func(docID string, env Envelope)) {
	pubsub := r.rdb.PSubscribe(ctx, docChannelPattern)
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					logger.Errorf("relay: bad envelope on %s: %v", msg.Channel, err)
					continue
				}
				if env.Origin == r.nodeID {
					continue
				}
				docID := strings.TrimPrefix(msg.Channel, strings.TrimSuffix(docChannelPattern, "*"))
				deliver(docID, env)
			}
		}
	}()
}
