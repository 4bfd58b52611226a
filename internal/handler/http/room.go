package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/norandomtechie/queup/internal/middleware"
	"github.com/norandomtechie/queup/internal/service"
)

// RoomHandler 处理 /api/room 上的所有房间与队列操作。
// 参数风格沿用查询参数而不是 JSON 体: 可选参数的有无本身携带语义
// (setup 和 queue 的出现与否决定请求档)，这在查询串上表达得最自然。
type RoomHandler struct {
	engine *service.Engine
}

// NewRoomHandler 创建 RoomHandler 实例。
func NewRoomHandler(engine *service.Engine) *RoomHandler {
	if engine == nil {
		panic("Engine cannot be nil for RoomHandler")
	}
	return &RoomHandler{engine: engine}
}

// Handle 是 GET /api/room 的入口。
// 识别的查询参数: room, action, setup, queue, newqueue, newusers,
// subtitle, username, waitdata, sseupdate。
func (h *RoomHandler) Handle(c *gin.Context) {
	user, ok := authedUser(c)
	if !ok {
		return
	}

	query := c.Request.URL.Query()
	_, hasQueue := query["queue"]
	_, subscribe := query["sseupdate"]
	_, setup := query["setup"]

	if subscribe {
		h.stream(c, user, c.Query("room"))
		return
	}

	req := service.Request{
		User:     user,
		Room:     c.Query("room"),
		Action:   c.Query("action"),
		Setup:    setup,
		Queue:    c.Query("queue"),
		HasQueue: hasQueue,
		NewQueue: c.Query("newqueue"),
		NewUsers: c.Query("newusers"),
		Subtitle: c.Query("subtitle"),
		Username: c.Query("username"),
		Note:     c.Query("waitdata"),
	}

	res, err := h.engine.Do(c.Request.Context(), req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	switch {
	case res.Snapshot != nil:
		SuccessResponse(c, http.StatusOK, res.Snapshot)
	case res.Owners != nil:
		SuccessResponse(c, http.StatusOK, gin.H{"owners": res.Owners})
	default:
		SuccessResponse(c, http.StatusOK, gin.H{"status": res.Status})
	}
}

// stream 以 Server-Sent Events 推送房间快照，直到房间删除或客户端断开。
func (h *RoomHandler) stream(c *gin.Context, user, room string) {
	logCtx := logrus.WithFields(logrus.Fields{"user": user, "room": room})

	sub, err := h.engine.Subscribe(c.Request.Context(), room, user)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	logCtx.Info("SSE subscription opened")

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		snap, open := <-sub.Snapshots
		if !open {
			// 房间被删除: 通知客户端后结束流
			c.SSEvent("deleted", "room no longer exists")
			logCtx.Info("SSE subscription ended, room gone")
			return false
		}
		payload, err := json.Marshal(snap)
		if err != nil {
			logCtx.WithError(err).Error("Failed to marshal snapshot for SSE")
			return false
		}
		c.SSEvent("update", string(payload))
		return true
	})
}

// authedUser 取出 Auth 中间件写入的用户名。缺失说明路由没挂中间件。
func authedUser(c *gin.Context) (string, bool) {
	userAny, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		logrus.Warn("Handler: Username not found in context, middleware missing or failed?")
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return "", false
	}
	user, ok := userAny.(string)
	if !ok {
		logrus.Error("Handler: Username in context is not a string")
		ErrorResponse(c, http.StatusInternalServerError, "Internal server error processing username")
		return "", false
	}
	return user, true
}
