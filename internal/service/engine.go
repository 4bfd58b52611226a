package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/norandomtechie/queup/internal/domain"
	"github.com/norandomtechie/queup/internal/notify"
	"github.com/norandomtechie/queup/internal/repository"
	"github.com/norandomtechie/queup/internal/validate"
)

// 请求动作。queue-setup 档接受 add/del/chk/ren/clear/mark，
// room-setup 档接受 add/del/chk/own/delown/setsub/lock/unlock，
// membership 档接受 add/del。
const (
	ActionAdd    = "add"
	ActionDel    = "del"
	ActionChk    = "chk"
	ActionRen    = "ren"
	ActionOwn    = "own"
	ActionDelOwn = "delown"
	ActionSetSub = "setsub"
	ActionLock   = "lock"
	ActionUnlock = "unlock"
	ActionClear  = "clear"
	ActionMark   = "mark"
)

var knownActions = map[string]bool{
	ActionAdd: true, ActionDel: true, ActionChk: true, ActionRen: true,
	ActionOwn: true, ActionDelOwn: true, ActionSetSub: true,
	ActionLock: true, ActionUnlock: true, ActionClear: true, ActionMark: true,
}

// Request 是前端解析好的一次请求。可选参数的有无决定请求落在哪一档:
// Setup 且无 Queue 是房间管理，Setup 且有 Queue 是队列管理，
// 无 Setup 且有 Queue 是成员变更，其余一律拒绝。
type Request struct {
	User     string // 已认证的发起用户
	Room     string
	Action   string
	Setup    bool
	Queue    string
	HasQueue bool   // Queue 参数是否出现 (空串与缺席不同)
	NewQueue string // ren 的目标队列名
	NewUsers string // own/delown 的逗号分隔用户名列表
	Subtitle string
	Username string // staff delete / mark 的目标用户
	Note     string // 加入队列时的等待说明 (waitdata)
}

// Result 是一次非订阅请求的结构化结果，三个字段恰有一个非零。
type Result struct {
	Snapshot *domain.RoomSnapshot
	Owners   []string
	Status   string
}

const statusSuccess = "success"

// Engine 是授权 + 分发状态机。每次调用服务一个请求；
// 并发来自多个同时到达的请求，房间数据的串行化交给存储层事务。
type Engine struct {
	rooms       repository.RoomRepository
	queues      repository.QueueRepository
	audit       repository.AuditRepository
	limiter     repository.RateLimitRepository
	snapshotter *Snapshotter
	notifier    *notify.Notifier
	perm        *Permanence
	log         *logrus.Entry
	now         func() time.Time
}

// NewEngine 创建 Engine 实例。
func NewEngine(
	rooms repository.RoomRepository,
	queues repository.QueueRepository,
	audit repository.AuditRepository,
	limiter repository.RateLimitRepository,
	snapshotter *Snapshotter,
	notifier *notify.Notifier,
	perm *Permanence,
	log *logrus.Logger,
) *Engine {
	if rooms == nil || queues == nil || audit == nil || limiter == nil ||
		snapshotter == nil || notifier == nil || perm == nil {
		panic("Engine dependencies cannot be nil")
	}
	return &Engine{
		rooms:       rooms,
		queues:      queues,
		audit:       audit,
		limiter:     limiter,
		snapshotter: snapshotter,
		notifier:    notifier,
		perm:        perm,
		log:         log.WithField("component", "engine"),
		now:         time.Now,
	}
}

// Do 执行一次非订阅请求。
// 顺序固定: 限流 → 校验 → 授权 → 变更/读取 → 审计 → 结果。
func (e *Engine) Do(ctx context.Context, req Request) (*Result, error) {
	isOwner, logCtx, err := e.admit(ctx, req)
	if err != nil {
		return nil, err
	}

	switch {
	case req.Setup && !req.HasQueue:
		return e.roomSetup(ctx, req, isOwner, logCtx)
	case req.Setup && req.HasQueue:
		return e.queueSetup(ctx, req, isOwner, logCtx)
	case !req.Setup && req.HasQueue:
		return e.membership(ctx, req, isOwner, logCtx)
	default:
		logCtx.Warn("Request matched no phase")
		return nil, ErrBadRequest
	}
}

// Subscribe 打开房间的实时快照流。订阅也先过限流。
func (e *Engine) Subscribe(ctx context.Context, room, user string) (*notify.Subscription, error) {
	admitted, err := e.limiter.Admit(ctx, user, e.now())
	if err != nil {
		e.log.WithError(err).Error("Rate limiter failure")
		return nil, ErrInternal
	}
	if !admitted {
		return nil, ErrRateLimited
	}
	if !validate.Username(user) || !validate.RoomID(room) {
		return nil, ErrValidation
	}
	sub, err := e.notifier.Subscribe(ctx, room, user)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return sub, nil
}

// admit 执行限流、基础校验和授权前置判断，返回请求者是否房主。
// 不存在的房间只有 create 路径可达，此时请求者隐式成为唯一房主。
func (e *Engine) admit(ctx context.Context, req Request) (bool, *logrus.Entry, error) {
	logCtx := e.log.WithFields(logrus.Fields{
		"user":   req.User,
		"room":   req.Room,
		"action": req.Action,
	})

	admitted, err := e.limiter.Admit(ctx, req.User, e.now())
	if err != nil {
		logCtx.WithError(err).Error("Rate limiter failure")
		return false, logCtx, ErrInternal
	}
	if !admitted {
		// 限流拒绝不触碰校验和存储
		return false, logCtx, ErrRateLimited
	}

	if !validate.Username(req.User) {
		logCtx.Warn("Bad acting username")
		return false, logCtx, ErrValidation
	}
	if !validate.RoomID(req.Room) {
		logCtx.Warn("Bad room identifier")
		return false, logCtx, ErrValidation
	}
	if req.Action == "" || !knownActions[req.Action] {
		logCtx.Warn("Unknown action")
		return false, logCtx, ErrValidation
	}

	roomCreate := req.Setup && !req.HasQueue && req.Action == ActionAdd

	exists, err := e.rooms.Exists(ctx, req.Room)
	if err != nil {
		return false, logCtx, ErrInternal
	}
	if !exists {
		if roomCreate {
			// create 路径: 房间尚不存在，请求者即是房主
			return true, logCtx, nil
		}
		logCtx.Warn("Room does not exist and request is not a create")
		return false, logCtx, ErrNotFound
	}

	owners, err := e.rooms.GetOwners(ctx, req.Room)
	if err != nil {
		return false, logCtx, ErrInternal
	}
	isOwner := contains(owners, req.User)

	// 非房主只允许无副作用的 chk、membership 档的自助 add/del，
	// 以及注定失败在 AlreadyExists 上的重复建房请求
	selfService := !req.Setup && req.HasQueue &&
		(req.Action == ActionAdd || req.Action == ActionDel)
	if !isOwner && req.Action != ActionChk && !selfService && !roomCreate {
		logCtx.WithField("owners", owners).Warn("Non-owner attempted owner-only action")
		return false, logCtx, ErrUnauthorized
	}
	return isOwner, logCtx, nil
}

// roomSetup 处理房间管理档: create/delete/chk/own/delown/setsub/lock/unlock。
func (e *Engine) roomSetup(ctx context.Context, req Request, isOwner bool, logCtx *logrus.Entry) (*Result, error) {
	switch req.Action {
	case ActionAdd:
		if err := e.rooms.CreateRoom(ctx, req.Room, req.User); err != nil {
			logCtx.WithError(err).Warn("Failed to create room")
			return nil, mapRepoError(err)
		}
		logCtx.Info("Room created")
		e.record(ctx, req.User, req.Room, domain.AuditCreateRoom, "")
		return e.snapshotResult(ctx, req.Room, req.User)

	case ActionChk:
		return e.snapshotResult(ctx, req.Room, req.User)

	case ActionDel:
		if e.perm.IsPermanent(req.Room) {
			logCtx.Warn("Attempted to delete permanent room")
			return nil, ErrRoomPermanent
		}
		if err := e.rooms.DeleteRoom(ctx, req.Room); err != nil {
			logCtx.WithError(err).Warn("Failed to delete room")
			return nil, mapRepoError(err)
		}
		logCtx.Info("Room deleted")
		e.record(ctx, req.User, req.Room, domain.AuditDeleteRoom, "")
		return &Result{Status: statusSuccess}, nil

	case ActionOwn, ActionDelOwn:
		users := splitUsers(req.NewUsers)
		if len(users) == 0 || !validate.Usernames(users) {
			logCtx.Warn("Bad usernames in owner change")
			return nil, ErrValidation
		}
		var err error
		tag := domain.AuditOwn
		if req.Action == ActionOwn {
			err = e.rooms.AddOwners(ctx, req.Room, users)
		} else {
			err = e.rooms.RemoveOwners(ctx, req.Room, users)
			tag = domain.AuditDelOwn
		}
		if err != nil {
			logCtx.WithError(err).Warn("Failed to change owners")
			return nil, mapRepoError(err)
		}
		e.record(ctx, req.User, req.Room, tag, req.NewUsers)
		owners, err := e.rooms.GetOwners(ctx, req.Room)
		if err != nil {
			return nil, ErrInternal
		}
		return &Result{Owners: owners}, nil

	case ActionSetSub:
		if !validate.Subtitle(req.Subtitle) {
			logCtx.Warn("Bad subtitle")
			return nil, ErrValidation
		}
		if err := e.rooms.SetSubtitle(ctx, req.Room, req.Subtitle); err != nil {
			return nil, mapRepoError(err)
		}
		e.record(ctx, req.User, req.Room, domain.AuditSetSubtitle, req.Subtitle)
		return &Result{Status: statusSuccess}, nil

	case ActionLock, ActionUnlock:
		locked := req.Action == ActionLock
		if err := e.rooms.SetLocked(ctx, req.Room, locked); err != nil {
			return nil, mapRepoError(err)
		}
		tag := domain.AuditLock
		if !locked {
			tag = domain.AuditUnlock
		}
		e.record(ctx, req.User, req.Room, tag, "")
		return &Result{Status: statusSuccess}, nil

	default:
		logCtx.Warn("Action not valid for room setup")
		return nil, ErrBadRequest
	}
}

// queueSetup 处理队列管理档 (仅房主，admit 已拦截非房主)。
func (e *Engine) queueSetup(ctx context.Context, req Request, isOwner bool, logCtx *logrus.Entry) (*Result, error) {
	if !validate.QueueName(req.Queue) {
		logCtx.Warn("Bad queue name")
		return nil, ErrValidation
	}
	logCtx = logCtx.WithField("queue", req.Queue)

	// add 可以创建新队列，其余动作要求队列已存在
	if req.Action != ActionAdd {
		names, err := e.queues.ListQueues(ctx, req.Room)
		if err != nil {
			return nil, mapRepoError(err)
		}
		if !contains(names, req.Queue) {
			logCtx.Warn("Queue does not exist")
			return nil, ErrNotFound
		}
	}

	switch req.Action {
	case ActionAdd:
		// 同名重建即重置队列，这是有意的语义
		if err := e.queues.CreateQueue(ctx, req.Room, req.Queue); err != nil {
			logCtx.WithError(err).Warn("Failed to create queue")
			return nil, mapRepoError(err)
		}
		logCtx.Info("Queue created")
		e.record(ctx, req.User, req.Room, domain.AuditCreateQueue, req.Queue)
		return e.snapshotResult(ctx, req.Room, req.User)

	case ActionDel:
		if err := e.queues.DeleteQueue(ctx, req.Room, req.Queue); err != nil {
			return nil, mapRepoError(err)
		}
		logCtx.Info("Queue deleted")
		e.record(ctx, req.User, req.Room, domain.AuditDeleteQueue, req.Queue)
		return &Result{Status: statusSuccess}, nil

	case ActionRen:
		if !validate.QueueName(req.NewQueue) {
			logCtx.Warn("Bad new queue name")
			return nil, ErrValidation
		}
		if err := e.queues.RenameQueue(ctx, req.Room, req.Queue, req.NewQueue); err != nil {
			logCtx.WithError(err).Warn("Failed to rename queue")
			return nil, mapRepoError(err)
		}
		e.record(ctx, req.User, req.Room, domain.AuditRenameQueue, req.Queue+" "+req.NewQueue)
		return e.snapshotResult(ctx, req.Room, req.User)

	case ActionChk:
		return e.snapshotResult(ctx, req.Room, req.User)

	case ActionClear:
		if err := e.queues.ClearQueue(ctx, req.Room, req.Queue); err != nil {
			return nil, mapRepoError(err)
		}
		e.record(ctx, req.User, req.Room, domain.AuditClearQueue, req.Queue)
		return e.snapshotResult(ctx, req.Room, req.User)

	case ActionMark:
		if !validate.Username(req.Username) {
			logCtx.Warn("Bad target username for mark")
			return nil, ErrValidation
		}
		if err := e.queues.ToggleMark(ctx, req.Room, req.Queue, req.Username); err != nil {
			logCtx.WithError(err).Warn("Failed to toggle mark")
			return nil, mapRepoError(err)
		}
		e.record(ctx, req.User, req.Room, domain.AuditMark, req.Username)
		return e.snapshotResult(ctx, req.Room, req.User)

	default:
		logCtx.Warn("Action not valid for queue setup")
		return nil, ErrBadRequest
	}
}

// membership 处理成员变更档: 自助加入/退出，或房主移除他人 (staff delete)。
func (e *Engine) membership(ctx context.Context, req Request, isOwner bool, logCtx *logrus.Entry) (*Result, error) {
	if !validate.QueueName(req.Queue) {
		logCtx.Warn("Bad queue name")
		return nil, ErrValidation
	}
	logCtx = logCtx.WithField("queue", req.Queue)

	names, err := e.queues.ListQueues(ctx, req.Room)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !contains(names, req.Queue) {
		logCtx.Warn("Queue does not exist")
		return nil, ErrNotFound
	}

	switch req.Action {
	case ActionAdd:
		// 锁定的房间拒绝非房主的自助加入；退出不受影响
		locked, err := e.rooms.IsLocked(ctx, req.Room)
		if err != nil {
			return nil, mapRepoError(err)
		}
		if locked && !isOwner {
			logCtx.Warn("Room is locked, join rejected")
			return nil, ErrRoomLocked
		}
		if !validate.Note(req.Note) {
			logCtx.Warn("Bad waitdata")
			return nil, ErrValidation
		}
		if err := e.queues.AddMember(ctx, req.Room, req.Queue, req.User, req.Note); err != nil {
			logCtx.WithError(err).Warn("Failed to join queue")
			return nil, mapRepoError(err)
		}
		logCtx.Info("User joined queue")
		e.record(ctx, req.User, req.Room, domain.AuditJoin, req.Note)
		return e.snapshotResult(ctx, req.Room, req.User)

	case ActionDel:
		if req.Username != "" && isOwner {
			// staff delete: 房主把他人移出队列
			if !validate.Username(req.Username) {
				logCtx.Warn("Bad target username for staff delete")
				return nil, ErrValidation
			}
			member, err := e.queues.IsMember(ctx, req.Room, req.Queue, req.Username)
			if err != nil {
				return nil, mapRepoError(err)
			}
			if !member {
				return nil, ErrNotFound
			}
			if err := e.queues.RemoveMember(ctx, req.Room, req.Queue, req.Username); err != nil {
				return nil, mapRepoError(err)
			}
			logCtx.WithField("target", req.Username).Info("Owner removed user from queue")
			e.record(ctx, req.User, req.Room, domain.AuditStaffDelete, req.Username)
			return &Result{Status: statusSuccess}, nil
		}
		// 自助退出
		member, err := e.queues.IsMember(ctx, req.Room, req.Queue, req.User)
		if err != nil {
			return nil, mapRepoError(err)
		}
		if !member {
			return nil, ErrNotFound
		}
		if err := e.queues.RemoveMember(ctx, req.Room, req.Queue, req.User); err != nil {
			return nil, mapRepoError(err)
		}
		logCtx.Info("User left queue")
		e.record(ctx, req.User, req.Room, domain.AuditLeave, "")
		return &Result{Status: statusSuccess}, nil

	default:
		logCtx.Warn("Action not valid for membership change")
		return nil, ErrBadRequest
	}
}

// record 追加审计记录。相对主存储里已成功的变更，审计是尽力而为:
// 锁超时只在服务端记错误日志，绝不回滚已完成的变更。
func (e *Engine) record(ctx context.Context, user, room, action, payload string) {
	err := e.audit.Append(ctx, domain.AuditRecord{
		Time:    e.now(),
		User:    user,
		Room:    room,
		Action:  action,
		Payload: payload,
	})
	if err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"user": user, "room": room, "audit_action": action,
		}).Error("Failed to append audit record")
	}
}

// snapshotResult 组装请求者视角的全房间快照结果。
func (e *Engine) snapshotResult(ctx context.Context, room, user string) (*Result, error) {
	snap, err := e.snapshotter.Snapshot(ctx, room, user)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return &Result{Snapshot: &snap}, nil
}

func splitUsers(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	users := make([]string, 0, len(parts))
	for _, p := range parts {
		users = append(users, strings.TrimSpace(p))
	}
	return users
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
