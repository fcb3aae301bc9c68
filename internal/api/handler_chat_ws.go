package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"taskagent/internal/chat"
	"taskagent/pkg/metrics"
)

const (
	wsMaxFrameBytes = 8 << 10
	wsPongWait      = 60 * time.Second
	wsPingPeriod    = wsPongWait * 9 / 10
	wsWriteWait     = 10 * time.Second
)

// 认证走 token，不依赖 cookie，因此不校验 Origin
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsInbound is a client frame: {"type":"message","message":"..."} or
// {"type":"confirm","confirmation_id":"...","approve":true}.
type wsInbound struct {
	Type           string `json:"type"`
	Message        string `json:"message,omitempty"`
	ConfirmationID string `json:"confirmation_id,omitempty"`
	Approve        *bool  `json:"approve,omitempty"`
}

type wsOutbound struct {
	Type  string      `json:"type"` // reply, error
	Reply *chat.Reply `json:"reply,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Stream handles GET /chat/ws. Each inbound frame is one chat turn and is
// answered with exactly one outbound frame, in order.
func (h *ChatHandler) Stream(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.ChatSocketsOpen.Inc()
	defer metrics.ChatSocketsOpen.Dec()

	log := h.logger.With(zap.Int("user_id", userID))
	log.Info("Chat socket opened")

	conn.SetReadLimit(wsMaxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go keepAlive(ctx, conn)

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("Chat socket read failed", zap.Error(err))
			}
			log.Info("Chat socket closed")
			return
		}

		out := h.turn(ctx, userID, in)
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(out); err != nil {
			log.Warn("Chat socket write failed", zap.Error(err))
			return
		}
	}
}

func (h *ChatHandler) turn(ctx context.Context, userID int, in wsInbound) wsOutbound {
	var reply chat.Reply
	switch in.Type {
	case "message":
		if strings.TrimSpace(in.Message) == "" {
			return wsOutbound{Type: "error", Error: "message is required"}
		}
		reply = h.chat.HandleMessage(ctx, userID, in.Message)
	case "confirm":
		if in.ConfirmationID == "" || in.Approve == nil {
			return wsOutbound{Type: "error", Error: "confirmation_id and approve are required"}
		}
		reply = h.chat.Confirm(ctx, userID, in.ConfirmationID, *in.Approve)
	default:
		return wsOutbound{Type: "error", Error: "unknown frame type: " + in.Type}
	}
	return wsOutbound{Type: "reply", Reply: &reply}
}

// keepAlive 定期发送 ping；WriteControl 可与其他写并发调用
func keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
