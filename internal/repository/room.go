package repository

import (
	"context"

	"github.com/norandomtechie/queup/internal/domain"
)

// RoomRepository 定义房间级状态的存储和检索操作。
// 实现独占房间存储文件的生命周期: CreateRoom 建立文件和固定模式，
// DeleteRoom 移除文件本身 (文件消失即是订阅者的房间删除信号)。
type RoomRepository interface {
	// CreateRoom 创建房间，owners={user}、subtitle 为空、未锁定，
	// 并同时创建 default_queue。
	// 标识符已被占用时返回 ErrAlreadyExists。
	CreateRoom(ctx context.Context, room, user string) error

	// DeleteRoom 先删除所有队列及其成员，再移除房间存储文件。
	// 房间不存在时返回 ErrNotFound。
	DeleteRoom(ctx context.Context, room string) error

	// Get 返回房间级状态 (房主、副标题、锁定标志)。
	// 房间不存在时返回 ErrNotFound。
	Get(ctx context.Context, room string) (*domain.Room, error)

	// GetOwners 返回房主列表。房间不存在时返回空列表而非错误，
	// 方便引擎在删除竞争后继续。
	GetOwners(ctx context.Context, room string) ([]string, error)

	// AddOwners 将 users 并入房主集合，重复项去重。空列表为 no-op。
	AddOwners(ctx context.Context, room string, users []string) error

	// RemoveOwners 从房主集合移除 users。结果为空集时返回
	// ErrLastOwner 且房主集合保持不变。空列表为 no-op。
	RemoveOwners(ctx context.Context, room string, users []string) error

	// GetSubtitle / SetSubtitle 读写房间副标题。空串表示清除。
	GetSubtitle(ctx context.Context, room string) (string, error)
	SetSubtitle(ctx context.Context, room, subtitle string) error

	// IsLocked / SetLocked 读写锁定标志。
	IsLocked(ctx context.Context, room string) (bool, error)
	SetLocked(ctx context.Context, room string, locked bool) error

	// ListRooms 返回所有已知房间标识符。
	ListRooms(ctx context.Context) ([]string, error)

	// Exists 廉价地检查房间是否存在。
	Exists(ctx context.Context, room string) (bool, error)

	// ArtifactPath 返回房间存储文件的路径，供变更订阅使用。
	ArtifactPath(room string) string
}
