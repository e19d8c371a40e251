package ws

import (
	"context"
	"encoding/json"
	"sync"

	"collabdocs/backend/internal/cache"
	"collabdocs/logger"
)

// Hub 管理所有文档的广播组（一个文档一个组）。
//
// 组内投递永远走每连接的发送队列，发布方不等待慢订阅者。
// 挂上 Relay 后，广播同时发到共享 pub/sub，同一文档的会话
// 可以分布在多个进程；单进程部署 relay 传 nil 即可。
type Hub struct {
	mu sync.RWMutex
	// docID -> set of connections
	rooms map[string]map[*Conn]struct{}

	relay cache.Relay
}

func NewHub(relay cache.Relay) *Hub {
	return &Hub{rooms: make(map[string]map[*Conn]struct{}), relay: relay}
}

// Run 启动跨进程订阅循环；没有 relay 时为空操作
func (h *Hub) Run(ctx context.Context) {
	if h.relay == nil {
		return
	}
	h.relay.Subscribe(ctx, func(docID string, env cache.Envelope) {
		h.deliverLocal(docID, env.Payload, env.ExcludeConn)
	})
}

// Join 将连接加入指定文档的广播组
func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		// 房间里存的是连接而不是 userID：
		// 一个用户可开多个标签页/设备，广播要逐连接发
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

// Leave 将连接从指定文档的广播组移除
func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// Broadcast 向组内除 excludeConnID 外的所有连接投递 payload，
// 并转发到共享 pub/sub 供其他节点投递。excludeConnID 为空表示全员。
func (h *Hub) Broadcast(ctx context.Context, docID string, payload []byte, excludeConnID string) {
	h.deliverLocal(docID, payload, excludeConnID)
	if h.relay != nil {
		err := h.relay.Publish(ctx, docID, cache.Envelope{
			ExcludeConn: excludeConnID,
			Payload:     payload,
		})
		if err != nil {
			// 跨进程转发是尽力而为，失败只影响其他节点的成员
			logger.Errorf("relay publish error (doc=%s): %v", docID, err)
		}
	}
}

// BroadcastEvent 序列化后广播；序列化失败只记录日志
func (h *Hub) BroadcastEvent(ctx context.Context, docID string, event any, excludeConnID string) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Errorf("marshal broadcast event error (doc=%s): %v", docID, err)
		return
	}
	h.Broadcast(ctx, docID, payload, excludeConnID)
}

func (h *Hub) deliverLocal(docID string, payload []byte, excludeConnID string) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if excludeConnID != "" && c.id == excludeConnID {
			continue
		}
		c.enqueue(payload)
	}
}

// PresenceSnapshot 组内当前成员的在线状态（仅本节点；
// presence 是进程内尽力而为的元数据，不跨进程合并）
func (h *Hub) PresenceSnapshot(docID string) []presenceUser {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]presenceUser, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		users = append(users, c.presenceEntry())
	}
	return users
}

// MemberCount 组内当前连接数（测试/监控用）
func (h *Hub) MemberCount(docID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[docID])
}
