package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"collabdocs/backend/internal/authservice"
	"collabdocs/backend/internal/cache"
	"collabdocs/backend/internal/collab"
	"collabdocs/logger"
)

// 会话状态机：CONNECTING -> {REJECTED | ACTIVE} -> CLOSED。
// 会话实例不重连，新 socket 就是新会话。
type sessionState int32

const (
	stateConnecting sessionState = iota
	stateActive
	stateRejected
	stateClosed
)

// rejection 握手失败的类型化结果，带关闭码送达客户端后断开
type rejection struct {
	Code    string
	Message string
}

// Deps 会话依赖的各组件；Dispatcher 可以为 nil（不接 Kafka）
type Deps struct {
	Hub        *Hub
	Resolver   *collab.Resolver
	Users      collab.UserStore
	Admission  cache.ConnectionManager
	Limiter    cache.RateLimiter
	Validator  *DeltaValidator
	Dispatcher *collab.KafkaDispatcher
}

type Conn struct {
	id    string
	ws    *websocket.Conn
	deps  Deps
	docID string

	userID   uint64
	username string
	color    string
	canWrite bool

	// 每连接独立发送队列；广播方入队后立即返回，不等待慢客户端。
	// sendMu 串行化入队与关闭：Hub 在锁外用房间快照投递，
	// 快照里可能还留着刚清理掉的连接
	sendMu     sync.Mutex
	sendClosed bool
	send       chan []byte

	state    sessionState
	joined   bool
	admitted bool

	cursorMu sync.Mutex
	cursor   *cursorPosition

	closeOnce sync.Once
}

func newConn(id string, ws *websocket.Conn, docID string, deps Deps) *Conn {
	return &Conn{
		id:    id,
		ws:    ws,
		deps:  deps,
		docID: docID,
		send:  make(chan []byte, 32),
		state: stateConnecting,
	}
}

// enqueue 入队出站消息；队列满则丢弃（慢客户端自己承担丢失），
// 队列已关闭则丢弃（广播组的陈旧快照落到已清理的连接上）
func (c *Conn) enqueue(payload []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- payload:
	default:
		logger.Warnf("send queue full, drop message (conn=%s, doc=%s)", c.id, c.docID)
	}
}

func (c *Conn) enqueueJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("marshal outbound message error (conn=%s): %v", c.id, err)
		return
	}
	c.enqueue(payload)
}

func (c *Conn) presenceEntry() presenceUser {
	c.cursorMu.Lock()
	cur := c.cursor
	c.cursorMu.Unlock()

	u := presenceUser{UserID: c.userID, Username: c.username, Color: c.color}
	if cur != nil {
		b, err := json.Marshal(cur)
		if err == nil {
			u.Cursor = b
		}
	}
	return u
}

// handshake CONNECTING -> ACTIVE 的逐步校验；
// 任何一步失败返回 rejection，由调用方走 accept-then-reject 收尾。
// 顺序：token -> 用户 -> 权限 -> 连接准入。
func (c *Conn) handshake(ctx context.Context, token string) *rejection {
	if token == "" {
		return &rejection{Code: CodeNoToken, Message: "missing access token in subprotocol"}
	}

	claims, err := authservice.ParseToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return &rejection{Code: CodeTokenExpired, Message: "access token expired"}
		}
		return &rejection{Code: CodeInvalidToken, Message: "invalid access token"}
	}
	if claims.Type != "" && claims.Type != "access" {
		return &rejection{Code: CodeInvalidToken, Message: "access token required"}
	}
	if claims.UserID == 0 {
		return &rejection{Code: CodeInvalidToken, Message: "token has no subject"}
	}

	username, err := c.deps.Users.GetUsernameByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, collab.ErrUserNotFound) {
			return &rejection{Code: CodeUserNotFound, Message: "token references a deleted user"}
		}
		logger.Errorf("user lookup error (conn=%s, user=%d): %v", c.id, claims.UserID, err)
		return &rejection{Code: CodeInternalError, Message: "user lookup failed"}
	}
	c.userID = claims.UserID
	c.username = username
	c.color = colorForUser(claims.UserID)

	perm, err := c.deps.Resolver.Resolve(ctx, c.docID, c.userID)
	if err != nil {
		if errors.Is(err, collab.ErrDocumentNotFound) {
			return &rejection{Code: CodeDocumentNotFound, Message: "document not found"}
		}
		logger.Errorf("permission resolve error (conn=%s, doc=%s): %v", c.id, c.docID, err)
		return &rejection{Code: CodeInternalError, Message: "permission check failed"}
	}
	if perm == collab.PermissionNone {
		return &rejection{Code: CodePermissionDenied, Message: "no access to this document"}
	}
	c.canWrite = perm == collab.PermissionWrite

	if !c.deps.Admission.TryAdmit(ctx, c.userID, c.id) {
		return &rejection{Code: CodeTooManyConnections, Message: "concurrent connection limit reached"}
	}
	c.admitted = true

	return nil
}

// activate 加入广播组并完成上线事件序列：
// connection_success -> presence_sync -> 向其他成员广播 user_join
func (c *Conn) activate(ctx context.Context) {
	c.enqueueJSON(connectionSuccessEvent{
		Type:     "connection_success",
		CanWrite: c.canWrite,
		UserID:   c.userID,
		Color:    c.color,
	})

	c.deps.Hub.Join(c.docID, c)
	c.joined = true
	c.state = stateActive

	c.enqueueJSON(presenceSyncEvent{
		Type:  "presence_sync",
		Users: c.deps.Hub.PresenceSnapshot(c.docID),
	})

	c.deps.Hub.BroadcastEvent(ctx, c.docID, presenceChangeEvent{
		Type:     "user_join",
		UserID:   c.userID,
		Username: c.username,
		Color:    c.color,
	}, c.id)

	logger.Infof("user %d(%s) joined doc %s (conn=%s, can_write=%t)",
		c.userID, c.username, c.docID, c.id, c.canWrite)
}

func (c *Conn) readLoop(ctx context.Context) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Debugf("peer closed (conn=%s, doc=%s)", c.id, c.docID)
			} else {
				logger.Debugf("read error (conn=%s, doc=%s): %v", c.id, c.docID, err)
			}
			return
		}
		c.handleMessage(ctx, data)
	}
}

// handleMessage 单条入站消息；处理中的意外 panic 被兜住，
// 转成通用 error 事件，不拖垮会话和进程
func (c *Conn) handleMessage(ctx context.Context, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic while handling message (conn=%s, doc=%s): %v", c.id, c.docID, r)
			c.sendError(CodeInternalError, "internal error while handling message", nil)
		}
	}()

	// 字节上限在任何解析之前
	if verr := c.deps.Validator.CheckSize(data); verr != nil {
		c.sendError(verr.Code, verr.Message, nil)
		return
	}

	var probe inboundProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		c.sendError(CodeInvalidJSON, "message is not valid JSON", nil)
		return
	}

	switch probe.Type {
	case "cursor_move":
		c.handleCursor(ctx, data)
	case "heartbeat":
		// 心跳只续期连接槽位的 TTL，无响应
		c.deps.Admission.Refresh(ctx, c.userID, c.id)
	default:
		c.handleEdit(ctx, data)
	}
}

// handleEdit 编辑消息的闸门，按顺序短路：
// 只读 -> 限流 -> 结构校验；全部通过才广播
func (c *Conn) handleEdit(ctx context.Context, data []byte) {
	if !c.canWrite {
		c.sendError(CodeReadOnly, "read-only access, edits are not allowed", nil)
		return
	}

	allowed, info := c.deps.Limiter.Check(ctx, c.userID, c.docID)
	if !allowed {
		c.sendError(CodeRateLimited, "too many messages, slow down", &info)
		return
	}

	var edit editMessage
	if err := json.Unmarshal(data, &edit); err != nil {
		c.sendError(CodeInvalidJSON, "message is not valid JSON", nil)
		return
	}
	validated, verr := c.deps.Validator.ValidateDelta(edit.Delta)
	if verr != nil {
		c.sendError(verr.Code, verr.Message, nil)
		return
	}
	_ = validated

	// 原样转发 delta 字节，发送者排除在外
	c.deps.Hub.BroadcastEvent(ctx, c.docID, docUpdateEvent{
		Type:  "doc_update",
		Delta: edit.Delta,
	}, c.id)

	if c.deps.Dispatcher != nil {
		c.deps.Dispatcher.TryEnqueue(collab.DocEvent{
			EventType:  collab.EventDeltaBroadcast,
			DocID:      c.docID,
			AuthorID:   c.userID,
			ConnID:     c.id,
			Delta:      edit.Delta,
			OccurredAt: time.Now(),
		})
	}
}

// handleCursor 光标消息是 presence 元数据：
// 形状不合法或只读会话都静默丢弃，不发 error 事件
func (c *Conn) handleCursor(ctx context.Context, data []byte) {
	var msg cursorMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Debugf("drop malformed cursor message (conn=%s)", c.id)
		return
	}
	if msg.Index == nil || *msg.Index < 0 || msg.Length < 0 {
		logger.Debugf("drop invalid cursor position (conn=%s)", c.id)
		return
	}
	if !c.canWrite {
		return
	}

	pos := cursorPosition{Index: *msg.Index, Length: msg.Length}
	c.cursorMu.Lock()
	c.cursor = &pos
	c.cursorMu.Unlock()

	c.deps.Hub.BroadcastEvent(ctx, c.docID, cursorMoveEvent{
		Type:      "cursor_move",
		UserID:    c.userID,
		Username:  c.username,
		Color:     c.color,
		Cursor:    pos,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, c.id)
}

func (c *Conn) sendError(code, message string, rate *cache.RateLimitInfo) {
	evt := errorEvent{Type: "error", ErrorCode: code, Message: message}
	if rate != nil {
		evt.Remaining = &rate.Remaining
		evt.Limit = &rate.Limit
		evt.RetryAfter = &rate.RetryAfter
	}
	c.enqueueJSON(evt)
}

// reject accept-then-reject：传输层已经接受，
// 先把拒绝原因发给客户端，再按映射的关闭码断开
func (c *Conn) reject(rej *rejection) {
	c.state = stateRejected
	_ = c.ws.WriteJSON(connectionErrorEvent{
		Type:      "connection_error",
		ErrorCode: rej.Code,
		Message:   rej.Message,
	})
	code := CloseCodeFor(rej.Code)
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, rej.Code), deadline)
	_ = c.ws.Close()
	logger.Warnf("rejected connection (conn=%s, doc=%s): %s", c.id, c.docID, rej.Code)
}

// cleanup ACTIVE -> CLOSED。读循环异常退出也必须执行：
// 释放连接槽位、离开广播组、向剩余成员广播 user_leave。
// 会话没走到 ACTIVE 时按标志位跳过对应步骤。
func (c *Conn) cleanup() {
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if c.joined {
			c.deps.Hub.Leave(c.docID, c)
			c.deps.Hub.BroadcastEvent(ctx, c.docID, presenceChangeEvent{
				Type:     "user_leave",
				UserID:   c.userID,
				Username: c.username,
			}, c.id)
		}
		if c.admitted {
			c.deps.Admission.Release(ctx, c.userID, c.id)
		}
		c.sendMu.Lock()
		c.sendClosed = true
		close(c.send)
		c.sendMu.Unlock()
		c.state = stateClosed
		logger.Infof("session closed (conn=%s, doc=%s, user=%d)", c.id, c.docID, c.userID)
	})
}

func (c *Conn) writeLoop() {
	// 持续消费发送队列；cleanup 关闭队列后退出并关闭底层连接
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Debugf("write error (conn=%s): %v", c.id, err)
			break
		}
	}
	_ = c.ws.Close()
}
