package ws

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"collabdocs/logger"
)

// 凭证通过 WebSocket subprotocol 传递：
// new WebSocket(url, ['access_token.<JWT>'])
const tokenSubprotocolPrefix = "access_token."

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// 鉴权走 token，不依赖 Origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Manager struct {
	deps Deps
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps}
}

// extractTokenFromSubprotocols 从 Sec-WebSocket-Protocol 提取 token；
// 返回 token 和要回显给客户端的 subprotocol 值
func extractTokenFromSubprotocols(r *http.Request) (token, accepted string) {
	for _, header := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, proto := range strings.Split(header, ",") {
			proto = strings.TrimSpace(proto)
			if strings.HasPrefix(proto, tokenSubprotocolPrefix) {
				return proto[len(tokenSubprotocolPrefix):], proto
			}
		}
	}
	return "", ""
}

// HandleWS GET /ws/docs/:documentID
//
// 很多 WebSocket 传输没法在拒绝握手时携带响应体，
// 所以这里永远先 accept，再发 connection_error，再按关闭码断开
// （accept-then-reject）。
func (m *Manager) HandleWS(c *gin.Context) {
	docID := c.Param("documentID")
	token, accepted := extractTokenFromSubprotocols(c.Request)

	var responseHeader http.Header
	if accepted != "" {
		responseHeader = http.Header{"Sec-WebSocket-Protocol": {accepted}}
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, responseHeader)
	if err != nil {
		// 非 WebSocket 请求/握手失败，升级器已写好响应
		logger.Infof("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}

	// 上限 +1：恰好超限一字节的消息仍能读进来，由 CheckSize
	// 转成 MESSAGE_TOO_LARGE 错误事件；再大的帧在协议层截断，
	// 不会整帧读进内存
	ws.SetReadLimit(int64(m.deps.Validator.MaxMessageBytes) + 1)

	conn := newConn(uuid.NewString(), ws, docID, m.deps)

	// 路径里的 document_id 必须是规范 UUID；
	// 不是 UUID 的文档必然不存在
	if _, err := uuid.Parse(docID); err != nil {
		conn.reject(&rejection{Code: CodeDocumentNotFound, Message: "document not found"})
		return
	}

	ctx := c.Request.Context()
	if rej := conn.handshake(ctx, token); rej != nil {
		conn.reject(rej)
		return
	}

	// 清理必须覆盖所有退出路径（包括读循环异常退出）
	defer conn.cleanup()

	go conn.writeLoop()
	conn.activate(ctx)
	conn.readLoop(ctx)
}
