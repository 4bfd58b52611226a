package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/norandomtechie/queup/internal/middleware"
	"github.com/norandomtechie/queup/internal/notify"
	"github.com/norandomtechie/queup/internal/service"
	"github.com/norandomtechie/queup/internal/validate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 // 客户端不该往这条连接上发大消息
)

// WebSocketHandler 负责处理 WebSocket 升级请求并把连接接到快照订阅上。
// 连接是单向的: 服务端推快照，客户端的文本消息一律忽略。
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	engine   *service.Engine
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
func NewWebSocketHandler(engine *service.Engine) *WebSocketHandler {
	if engine == nil {
		panic("Engine cannot be nil for WebSocketHandler")
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// 允许所有来源连接 (生产环境应配置具体的允许来源)
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	return &WebSocketHandler{upgrader: upgrader, engine: engine}
}

// HandleConnection 处理 WebSocket 连接请求。
// URL 预期格式: /ws/room/{room}
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	userAny, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		logrus.Warn("WS Handler: Username not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	user, ok := userAny.(string)
	if !ok {
		logrus.Error("WS Handler: Username in context is not a string")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	logCtx := logrus.WithField("user", user)

	room := c.Param("room")
	if !validate.RoomID(room) {
		logCtx.Warnf("WS Handler: Invalid room identifier: %s", room)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room identifier"})
		return
	}
	logCtx = logCtx.WithField("room", room)

	// 升级前先订阅: 房间不存在时还能返回正经的 HTTP 错误
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := h.engine.Subscribe(ctx, room, user)
	if err != nil {
		cancel()
		logCtx.WithError(err).Warn("WS Handler: Subscription refused")
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, service.ErrRateLimited):
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经发送了 HTTP 错误响应，这里只记录
		cancel()
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	go writePump(conn, sub, cancel, logCtx)
	go readPump(conn, cancel, logCtx)
}

// writePump 把快照流泵送到 WebSocket 连接，附带心跳 Ping。
func writePump(conn *websocket.Conn, sub *notify.Subscription, cancel context.CancelFunc, logCtx *logrus.Entry) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
		logCtx.Info("writePump exited")
	}()

	for {
		select {
		case snap, ok := <-sub.Snapshots:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 房间被删除，干净地关闭连接
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room deleted"))
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				logCtx.WithError(err).Error("Failed to marshal snapshot")
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logCtx.WithError(err).Warn("Failed to write snapshot to websocket")
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

// readPump 只为检测客户端断开和响应 Pong 而存在，收到的消息全部丢弃。
func readPump(conn *websocket.Conn, cancel context.CancelFunc, logCtx *logrus.Entry) {
	defer func() {
		cancel()
		conn.Close()
		logCtx.Info("readPump exited")
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			return
		}
	}
}
