package repository

import (
	"context"

	"github.com/norandomtechie/queup/internal/domain"
)

// QueueRepository 定义房间内队列及其成员的存储操作。
// 所有读取按到达时间升序返回，保证队列位置确定且稳定。
type QueueRepository interface {
	// CreateQueue 创建队列。若同名队列已存在则先销毁再重建 —
	// 重复发出 "create" 会重置该队列，这是有意的语义。
	// 房间不存在时返回 ErrNotFound。
	CreateQueue(ctx context.Context, room, queue string) error

	// DeleteQueue 删除队列及其全部成员。队列不存在时为 no-op。
	DeleteQueue(ctx context.Context, room, queue string) error

	// RenameQueue 重命名队列并保留成员。oldName 不存在返回 ErrNotFound，
	// newName 已存在返回 ErrAlreadyExists。
	RenameQueue(ctx context.Context, room, oldName, newName string) error

	// ClearQueue 移除队列的全部成员但保留队列本身。
	ClearQueue(ctx context.Context, room, queue string) error

	// AddMember 将用户加入队列。用户已在队列中时返回 ErrDuplicateEntry。
	AddMember(ctx context.Context, room, queue, user, note string) error

	// RemoveMember 将用户移出队列。用户不在队列中时为 no-op，
	// 调用方自行决定 "不在" 是否算错误。
	RemoveMember(ctx context.Context, room, queue, user string) error

	// ToggleMark 翻转成员的 marked 标志。用户不在队列中返回 ErrNotFound。
	ToggleMark(ctx context.Context, room, queue, user string) error

	// ListQueues 返回房间内的队列名列表。
	ListQueues(ctx context.Context, room string) ([]string, error)

	// ListMembers 返回队列的有序成员记录。
	ListMembers(ctx context.Context, room, queue string) ([]domain.QueueMember, error)

	// ListAll 返回队列名到有序成员记录的映射，用于全房间快照。
	ListAll(ctx context.Context, room string) (map[string][]domain.QueueMember, error)

	// IsMember 检查用户是否在队列中。
	IsMember(ctx context.Context, room, queue, user string) (bool, error)
}
