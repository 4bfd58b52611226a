// Package notify 实现每房间的变更订阅。
// 订阅循环只阻塞在 "文件系统事件或超时" 上，从不忙等:
// 房间存储文件被修改、或 30 秒空闲超时，都会触发一次全房间快照推送；
// 文件消失 (房间被删除) 时干净地结束订阅。
// 每个订阅恰好服务一个客户端连接 —— 这不是通用 pub/sub 总线。
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/norandomtechie/queup/internal/domain"
	"github.com/norandomtechie/queup/internal/repository"
)

// DefaultIdleTimeout 是无变更时的兜底推送间隔。
const DefaultIdleTimeout = 30 * time.Second

// SnapshotSource 为订阅循环提供快照组装和存储文件定位。
// 由 service 层实现，避免包间环依赖。
type SnapshotSource interface {
	// Snapshot 组装 user 视角的全房间快照。
	// 房间不存在时返回 repository.ErrNotFound。
	Snapshot(ctx context.Context, room, user string) (domain.RoomSnapshot, error)
	// ArtifactPath 返回房间存储文件的路径。
	ArtifactPath(room string) string
}

// Notifier 为房间创建变更订阅。
type Notifier struct {
	source  SnapshotSource
	timeout time.Duration
	log     *logrus.Entry
}

// NewNotifier 创建 Notifier。timeout <= 0 时使用 DefaultIdleTimeout。
func NewNotifier(source SnapshotSource, timeout time.Duration, log *logrus.Logger) *Notifier {
	if source == nil {
		panic("SnapshotSource cannot be nil for Notifier")
	}
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	return &Notifier{
		source:  source,
		timeout: timeout,
		log:     log.WithField("component", "notify"),
	}
}

// Subscription 是单个客户端连接的快照流。
// Snapshots 在房间被删除或 ctx 取消后关闭；之后不再泄漏任何 watch 注册。
type Subscription struct {
	Snapshots <-chan domain.RoomSnapshot
}

// Subscribe 开始订阅 room 的变更，以 user 的视角组装快照。
// 首个快照立即投递，让重连的客户端总能拿到 "最后已知状态"。
func (n *Notifier) Subscribe(ctx context.Context, room, user string) (*Subscription, error) {
	// 先取一次初始快照: 房间不存在时在这里就失败，而不是让循环空转
	initial, err := n.source.Snapshot(ctx, room, user)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("notify: create watcher: %w", err)
	}
	if err := watcher.Add(n.source.ArtifactPath(room)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("notify: watch room %s: %w", room, err)
	}

	ch := make(chan domain.RoomSnapshot, 1)
	go n.run(ctx, watcher, room, user, initial, ch)
	return &Subscription{Snapshots: ch}, nil
}

// run 是订阅主循环。退出时关闭快照通道并注销 watch。
func (n *Notifier) run(ctx context.Context, watcher *fsnotify.Watcher, room, user string,
	initial domain.RoomSnapshot, ch chan domain.RoomSnapshot) {

	logCtx := n.log.WithFields(logrus.Fields{"room": room, "user": user})
	defer func() {
		watcher.Close()
		close(ch)
		logCtx.Debug("Subscription closed")
	}()

	if !n.deliver(ctx, ch, initial) {
		return
	}

	timer := time.NewTimer(n.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// 客户端断开 (投递失败由 handler 取消 ctx 体现)
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				// 存储文件消失即是房间删除信号
				logCtx.Info("Room artifact removed, ending subscription")
				return
			}
			if !n.resnapshot(ctx, ch, room, user, logCtx) {
				return
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
			// watch 出错时照常重读一次，错误本身不致命
			if !n.resnapshot(ctx, ch, room, user, logCtx) {
				return
			}

		case <-timer.C:
			// 空闲超时兜底: 即使变更信号丢失，订阅者也不会饿死
			if !n.resnapshot(ctx, ch, room, user, logCtx) {
				return
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(n.timeout)
	}
}

// resnapshot 重新组装快照并投递。房间已消失时返回 false 结束循环。
func (n *Notifier) resnapshot(ctx context.Context, ch chan domain.RoomSnapshot,
	room, user string, logCtx *logrus.Entry) bool {

	snap, err := n.source.Snapshot(ctx, room, user)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logCtx.Info("Room gone, ending subscription")
		} else {
			logCtx.WithError(err).Error("Failed to assemble snapshot")
		}
		return false
	}
	return n.deliver(ctx, ch, snap)
}

// deliver 把快照交给订阅者，ctx 取消时放弃。
func (n *Notifier) deliver(ctx context.Context, ch chan domain.RoomSnapshot, snap domain.RoomSnapshot) bool {
	select {
	case ch <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}
