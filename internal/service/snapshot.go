package service

import (
	"context"

	"github.com/norandomtechie/queup/internal/domain"
	"github.com/norandomtechie/queup/internal/repository"
)

// Snapshotter 组装全房间快照，同时充当变更订阅的 SnapshotSource。
type Snapshotter struct {
	rooms  repository.RoomRepository
	queues repository.QueueRepository
	perm   *Permanence
}

// NewSnapshotter 创建 Snapshotter 实例。
func NewSnapshotter(rooms repository.RoomRepository, queues repository.QueueRepository, perm *Permanence) *Snapshotter {
	if rooms == nil || queues == nil || perm == nil {
		panic("Snapshotter dependencies cannot be nil")
	}
	return &Snapshotter{rooms: rooms, queues: queues, perm: perm}
}

// Snapshot 以 user 的视角组装房间快照。
// 房间不存在时透传 repository.ErrNotFound，订阅循环据此结束。
func (s *Snapshotter) Snapshot(ctx context.Context, room, user string) (domain.RoomSnapshot, error) {
	r, err := s.rooms.Get(ctx, room)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	all, err := s.queues.ListAll(ctx, room)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	return domain.RoomSnapshot{
		Queues:      all,
		IsOwner:     r.IsOwner(user),
		Subtitle:    r.Subtitle,
		IsLocked:    r.Locked,
		IsPermanent: s.perm.IsPermanent(room),
	}, nil
}

// ArtifactPath 返回房间存储文件的路径，供订阅循环注册 watch。
func (s *Snapshotter) ArtifactPath(room string) string {
	return s.rooms.ArtifactPath(room)
}
