package ws

import (
	"encoding/json"
	"time"
)

// 稳定的机器可读错误码；客户端按 code 分支，不看 message 文本
const (
	// 连接拒绝类（终止，带关闭码）
	CodeNoToken            = "NO_TOKEN"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeDocumentNotFound   = "DOCUMENT_NOT_FOUND"
	CodeTooManyConnections = "TOO_MANY_CONNECTIONS"

	// 消息级（可恢复，会话保持 ACTIVE）
	CodeReadOnly           = "READ_ONLY"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInvalidJSON        = "INVALID_JSON"
	CodeMessageTooLarge    = "MESSAGE_TOO_LARGE"
	CodeInvalidDeltaFormat = "INVALID_DELTA_FORMAT"
	CodeTooManyOperations  = "TOO_MANY_OPERATIONS"
	CodeInternalError      = "INTERNAL_ERROR"
)

// WebSocket 应用层关闭码（4000-4999），每个拒绝原因一个
const (
	CloseAuthFailed         = 4001
	CloseTokenExpired       = 4002
	ClosePermissionDenied   = 4003
	CloseDocumentNotFound   = 4004
	CloseTooManyConnections = 4005
	CloseInvalidMessage     = 4006
	CloseMessageTooLarge    = 4007
	CloseRateLimited        = 4008
	CloseReadOnlyViolation  = 4009
)

// CloseCodeFor 拒绝原因 -> 关闭码
func CloseCodeFor(errorCode string) int {
	switch errorCode {
	case CodeNoToken, CodeInvalidToken, CodeUserNotFound:
		return CloseAuthFailed
	case CodeTokenExpired:
		return CloseTokenExpired
	case CodePermissionDenied:
		return ClosePermissionDenied
	case CodeDocumentNotFound:
		return CloseDocumentNotFound
	case CodeTooManyConnections:
		return CloseTooManyConnections
	case CodeMessageTooLarge:
		return CloseMessageTooLarge
	case CodeRateLimited:
		return CloseRateLimited
	case CodeReadOnly:
		return CloseReadOnlyViolation
	default:
		return CloseInvalidMessage
	}
}

// ===== 入站（client -> server）=====

// probe 只看 type，决定走哪条处理路径；
// 没有 type 的消息按编辑消息处理（{"delta": {...}}）
type inboundProbe struct {
	Type string `json:"type"`
}

type editMessage struct {
	// 保留原始字节：校验通过后按原样广播，保证 Unicode/emoji 往返不变
	Delta json.RawMessage `json:"delta"`
}

type cursorMessage struct {
	Type   string `json:"type"`
	Index  *int64 `json:"index"`
	Length int64  `json:"length"`
}

// ===== 出站（server -> client）=====

type connectionSuccessEvent struct {
	Type     string `json:"type"` // "connection_success"
	CanWrite bool   `json:"can_write"`
	UserID   uint64 `json:"user_id"`
	Color    string `json:"color"`
}

type presenceUser struct {
	UserID   uint64          `json:"user_id"`
	Username string          `json:"username"`
	Color    string          `json:"color"`
	Cursor   json.RawMessage `json:"cursor,omitempty"`
}

type presenceSyncEvent struct {
	Type  string         `json:"type"` // "presence_sync"
	Users []presenceUser `json:"users"`
}

type presenceChangeEvent struct {
	Type     string `json:"type"` // "user_join" / "user_leave"
	UserID   uint64 `json:"user_id"`
	Username string `json:"username,omitempty"`
	Color    string `json:"color,omitempty"`
}

type cursorPosition struct {
	Index  int64 `json:"index"`
	Length int64 `json:"length"`
}

type cursorMoveEvent struct {
	Type      string         `json:"type"` // "cursor_move"
	UserID    uint64         `json:"user_id"`
	Username  string         `json:"username"`
	Color     string         `json:"color"`
	Cursor    cursorPosition `json:"cursor"`
	Timestamp string         `json:"timestamp"`
}

type docUpdateEvent struct {
	Type  string          `json:"type"` // "doc_update"
	Delta json.RawMessage `json:"delta"`
}

// DocSavedEvent CRUD 层保存成功后推送；广播给组内所有成员
type DocSavedEvent struct {
	Type      string `json:"type"` // "doc_saved"
	UpdatedAt string `json:"updated_at"`
}

func NewDocSavedEvent(updatedAt time.Time) DocSavedEvent {
	return DocSavedEvent{Type: "doc_saved", UpdatedAt: updatedAt.UTC().Format(time.RFC3339)}
}

// CommentNotificationEvent 评论增删改后推送；广播给组内所有成员
type CommentNotificationEvent struct {
	Type      string `json:"type"`   // "comment_notification"
	Action    string `json:"action"` // "add" / "update" / "delete"
	CommentID uint64 `json:"comment_id"`
	UserID    uint64 `json:"user_id"`
	Username  string `json:"username,omitempty"`
}

type errorEvent struct {
	Type       string   `json:"type"` // "error"
	ErrorCode  string   `json:"error_code"`
	Message    string   `json:"message"`
	Remaining  *int     `json:"remaining,omitempty"`
	Limit      *int     `json:"limit,omitempty"`
	RetryAfter *float64 `json:"retry_after,omitempty"`
}

type connectionErrorEvent struct {
	Type      string `json:"type"` // "connection_error"
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}
