package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/norandomtechie/queup/internal/domain"
	"github.com/norandomtechie/queup/internal/repository"
)

// GormQueueRepository 是 QueueRepository 的每房间 sqlite 实现。
// 成员行只在 RoomRepository 确认存在的房间文件里操作。
type GormQueueRepository struct {
	store *Store
}

// NewGormQueueRepository 创建 GormQueueRepository 实例。
func NewGormQueueRepository(store *Store) *GormQueueRepository {
	if store == nil {
		panic("Store cannot be nil for GormQueueRepository")
	}
	return &GormQueueRepository{store: store}
}

var _ repository.QueueRepository = (*GormQueueRepository)(nil)

// queueExists 在事务/连接 tx 上检查队列记录是否存在。
func queueExists(tx *gorm.DB, queue string) (bool, error) {
	var count int64
	if err := tx.Model(&queueRecord{}).Where("name = ?", queue).Count(&count).Error; err != nil {
		return false, translateError(err)
	}
	return count > 0, nil
}

// CreateQueue 创建队列；同名队列已存在时先销毁再重建。
// 重复发出 "create" 等于重置队列，旧成员全部清除。
func (r *GormQueueRepository) CreateQueue(ctx context.Context, room, queue string) error {
	db, err := r.store.open(room)
	if err != nil {
		return err
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := queueExists(tx, queue)
		if err != nil {
			return err
		}
		if exists {
			if err := tx.Where("queue = ?", queue).Delete(&memberRecord{}).Error; err != nil {
				return err
			}
			if err := tx.Where("name = ?", queue).Delete(&queueRecord{}).Error; err != nil {
				return err
			}
		}
		return tx.Create(&queueRecord{Name: queue}).Error
	})
	if err != nil {
		return fmt.Errorf("room %s: create queue %s: %w", room, queue, translateError(err))
	}
	return nil
}

// DeleteQueue 删除队列及其成员。队列不存在时静默返回。
func (r *GormQueueRepository) DeleteQueue(ctx context.Context, room, queue string) error {
	db, err := r.store.open(room)
	if err != nil {
		return err
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("queue = ?", queue).Delete(&memberRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("name = ?", queue).Delete(&queueRecord{}).Error
	})
	if err != nil {
		return fmt.Errorf("room %s: delete queue %s: %w", room, queue, translateError(err))
	}
	return nil
}

// RenameQueue 重命名队列，成员行跟随迁移。
func (r *GormQueueRepository) RenameQueue(ctx context.Context, room, oldName, newName string) error {
	db, err := r.store.open(room)
	if err != nil {
		return err
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		oldExists, err := queueExists(tx, oldName)
		if err != nil {
			return err
		}
		if !oldExists {
			return repository.ErrNotFound
		}
		newExists, err := queueExists(tx, newName)
		if err != nil {
			return err
		}
		if newExists {
			return repository.ErrAlreadyExists
		}
		if err := tx.Model(&queueRecord{}).Where("name = ?", oldName).Update("name", newName).Error; err != nil {
			return err
		}
		return tx.Model(&memberRecord{}).Where("queue = ?", oldName).Update("queue", newName).Error
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrAlreadyExists) {
			return err
		}
		return fmt.Errorf("room %s: rename queue %s -> %s: %w", room, oldName, newName, translateError(err))
	}
	return nil
}

// ClearQueue 清空队列成员，队列本身保留。
func (r *GormQueueRepository) ClearQueue(ctx context.Context, room, queue string) error {
	db, err := r.store.open(room)
	if err != nil {
		return err
	}
	if err := db.WithContext(ctx).Where("queue = ?", queue).Delete(&memberRecord{}).Error; err != nil {
		return fmt.Errorf("room %s: clear queue %s: %w", room, queue, translateError(err))
	}
	return nil
}

// AddMember 把用户追加进队列，到达时间取当前时刻。
// 唯一索引把重复加入变成 ErrDuplicateEntry。
func (r *GormQueueRepository) AddMember(ctx context.Context, room, queue, user, note string) error {
	db, err := r.store.open(room)
	if err != nil {
		return err
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := queueExists(tx, queue)
		if err != nil {
			return err
		}
		if !exists {
			return repository.ErrNotFound
		}
		return tx.Create(&memberRecord{
			Queue:    queue,
			Username: user,
			JoinedAt: time.Now().UTC(),
			Note:     note,
			Marked:   false,
		}).Error
	})
	if err != nil {
		err = translateError(err)
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrDuplicateEntry) {
			return err
		}
		return fmt.Errorf("room %s: add %s to queue %s: %w", room, user, queue, err)
	}
	return nil
}

// RemoveMember 把用户移出队列。不在队列中时为 no-op。
func (r *GormQueueRepository) RemoveMember(ctx context.Context, room, queue, user string) error {
	db, err := r.store.open(room)
	if err != nil {
		return err
	}
	err = db.WithContext(ctx).
		Where("queue = ? AND username = ?", queue, user).
		Delete(&memberRecord{}).Error
	if err != nil {
		return fmt.Errorf("room %s: remove %s from queue %s: %w", room, user, queue, translateError(err))
	}
	return nil
}

// ToggleMark 翻转成员的 marked 标志。
func (r *GormQueueRepository) ToggleMark(ctx context.Context, room, queue, user string) error {
	db, err := r.store.open(room)
	if err != nil {
		return err
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m memberRecord
		if err := tx.Where("queue = ? AND username = ?", queue, user).First(&m).Error; err != nil {
			return err
		}
		return tx.Model(&memberRecord{}).Where("id = ?", m.ID).Update("marked", !m.Marked).Error
	})
	if err != nil {
		err = translateError(err)
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("room %s: toggle mark on %s in queue %s: %w", room, user, queue, err)
	}
	return nil
}

// ListQueues 返回房间内的队列名，按名称排序。
func (r *GormQueueRepository) ListQueues(ctx context.Context, room string) ([]string, error) {
	db, err := r.store.open(room)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := db.WithContext(ctx).Model(&queueRecord{}).Order("name asc").Pluck("name", &names).Error; err != nil {
		return nil, translateError(err)
	}
	return names, nil
}

// ListMembers 返回队列成员，按到达时间升序，主键兜底同刻顺序。
func (r *GormQueueRepository) ListMembers(ctx context.Context, room, queue string) ([]domain.QueueMember, error) {
	db, err := r.store.open(room)
	if err != nil {
		return nil, err
	}
	var rows []memberRecord
	if err := db.WithContext(ctx).
		Where("queue = ?", queue).
		Order("joined_at asc, id asc").
		Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	members := make([]domain.QueueMember, 0, len(rows))
	for _, row := range rows {
		members = append(members, toMember(row))
	}
	return members, nil
}

// ListAll 返回队列名到有序成员列表的映射，用于全房间快照。
func (r *GormQueueRepository) ListAll(ctx context.Context, room string) (map[string][]domain.QueueMember, error) {
	db, err := r.store.open(room)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := db.WithContext(ctx).Model(&queueRecord{}).Order("name asc").Pluck("name", &names).Error; err != nil {
		return nil, translateError(err)
	}
	var rows []memberRecord
	if err := db.WithContext(ctx).Order("joined_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	all := make(map[string][]domain.QueueMember, len(names))
	for _, name := range names {
		all[name] = []domain.QueueMember{}
	}
	for _, row := range rows {
		all[row.Queue] = append(all[row.Queue], toMember(row))
	}
	return all, nil
}

// IsMember 检查用户是否在队列中。
func (r *GormQueueRepository) IsMember(ctx context.Context, room, queue, user string) (bool, error) {
	db, err := r.store.open(room)
	if err != nil {
		return false, err
	}
	var count int64
	if err := db.WithContext(ctx).Model(&memberRecord{}).
		Where("queue = ? AND username = ?", queue, user).
		Count(&count).Error; err != nil {
		return false, translateError(err)
	}
	return count > 0, nil
}

func toMember(row memberRecord) domain.QueueMember {
	return domain.QueueMember{
		Username: row.Username,
		JoinedAt: row.JoinedAt,
		Note:     row.Note,
		Marked:   row.Marked,
	}
}
