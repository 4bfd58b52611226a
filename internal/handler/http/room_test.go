package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norandomtechie/queup/internal/infra/auditlog"
	gormstore "github.com/norandomtechie/queup/internal/infra/persistence/gorm"
	"github.com/norandomtechie/queup/internal/middleware"
	"github.com/norandomtechie/queup/internal/notify"
	"github.com/norandomtechie/queup/internal/service"
)

const testSecret = "test-secret"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store, err := gormstore.NewStore(dir, log)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	rooms := gormstore.NewGormRoomRepository(store)
	queues := gormstore.NewGormQueueRepository(store)
	limiter, err := gormstore.NewSqliteRateLimitRepository(dir)
	require.NoError(t, err)
	t.Cleanup(func() { limiter.Close() })

	audit := auditlog.NewFileAuditLog(filepath.Join(dir, "room.log"), log)
	perm := service.NewPermanence(dir)
	snapshotter := service.NewSnapshotter(rooms, queues, perm)
	notifier := notify.NewNotifier(snapshotter, 0, log)
	engine := service.NewEngine(rooms, queues, audit, limiter, snapshotter, notifier, perm, log)

	handler := NewRoomHandler(engine)
	router := gin.New()
	router.GET("/api/room", middleware.Auth(testSecret), handler.Handle)
	return router
}

func doRequest(t *testing.T, router *gin.Engine, user, query string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := middleware.IssueToken(user, testSecret, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, err := http.NewRequest("GET", "/api/room?"+query, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	return w
}

func TestRoomEndpointCreateAndSnapshot(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, "prof1", "room=ABCDE&action=add&setup")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 扁平快照: 队列名和房间属性在同一层
	var snap map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Contains(t, snap, "default_queue")
	assert.JSONEq(t, "true", string(snap["is-owner"]))
	assert.JSONEq(t, "false", string(snap["is-locked"]))
	assert.JSONEq(t, "false", string(snap["is-permanent"]))
	assert.JSONEq(t, `""`, string(snap["subtitle"]))
}

func TestRoomEndpointStatuses(t *testing.T) {
	router := newTestRouter(t)

	// 401: 没带 token
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/room?room=ABCDE&action=chk&setup", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 400: 房间标识符语法不合法
	w = doRequest(t, router, "prof1", "room=bad&action=add&setup")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 404: 房间不存在
	w = doRequest(t, router, "prof1", "room=ZZZZZ&action=chk&setup")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, router, "prof1", "room=ABCDE&action=add&setup")
	require.Equal(t, http.StatusOK, w.Code)

	// 409: 同名房间已存在
	w = doRequest(t, router, "prof2", "room=ABCDE&action=add&setup")
	assert.Equal(t, http.StatusConflict, w.Code)

	// 401: 非房主执行管理动作
	w = doRequest(t, router, "stu1", "room=ABCDE&action=lock&setup")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 423: 锁定的房间拒绝加入
	w = doRequest(t, router, "prof1", "room=ABCDE&action=lock&setup")
	require.Equal(t, http.StatusOK, w.Code)
	w = doRequest(t, router, "stu1", "room=ABCDE&action=add&queue=default_queue")
	assert.Equal(t, http.StatusLocked, w.Code)
}

func TestRoomEndpointMembershipFlow(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, "prof1", "room=ABCDE&action=add&setup")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, "stu1", "room=ABCDE&action=add&queue=default_queue&waitdata=question about lab 1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var snap map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	var members []map[string]interface{}
	require.NoError(t, json.Unmarshal(snap["default_queue"], &members))
	require.Len(t, members, 1)
	assert.Equal(t, "stu1", members[0]["username"])
	assert.Equal(t, "question about lab 1", members[0]["note"])

	w = doRequest(t, router, "stu1", "room=ABCDE&action=del&queue=default_queue")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success"}`, w.Body.String())
}

func TestRoomEndpointOwners(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, "prof1", "room=ABCDE&action=add&setup")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, "prof1", "room=ABCDE&action=own&setup&newusers=ta1,ta2")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Owners []string `json:"owners"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.ElementsMatch(t, []string{"prof1", "ta1", "ta2"}, body.Owners)
}
