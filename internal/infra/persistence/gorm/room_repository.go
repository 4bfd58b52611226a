package gorm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/norandomtechie/queup/internal/domain"
	"github.com/norandomtechie/queup/internal/repository"
)

// GormRoomRepository 是 RoomRepository 的每房间 sqlite 实现。
type GormRoomRepository struct {
	store *Store
}

// NewGormRoomRepository 创建 GormRoomRepository 实例。
func NewGormRoomRepository(store *Store) *GormRoomRepository {
	if store == nil {
		panic("Store cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{store: store}
}

var _ repository.RoomRepository = (*GormRoomRepository)(nil)

// CreateRoom 建立房间存储文件，写入房间级状态单行，并创建 default_queue。
func (r *GormRoomRepository) CreateRoom(ctx context.Context, room, user string) error {
	db, err := r.store.create(room)
	if err != nil {
		return err
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&roomMeta{Owners: user, Subtitle: "", Locked: false}).Error; err != nil {
			return err
		}
		return tx.Create(&queueRecord{Name: domain.DefaultQueue}).Error
	})
	if err != nil {
		// 初始化失败的房间不该以半成品存在
		r.store.drop(room)
		return fmt.Errorf("room %s: initialize: %w", room, translateError(err))
	}
	return nil
}

// DeleteRoom 先清掉所有成员和队列，再移除存储文件。
// 另一请求在中途读到 "不存在" 是可以接受的，不构成损坏。
func (r *GormRoomRepository) DeleteRoom(ctx context.Context, room string) error {
	db, err := r.store.open(room)
	if err != nil {
		return err
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&memberRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&queueRecord{}).Error
	})
	if err != nil {
		return fmt.Errorf("room %s: cascade delete queues: %w", room, translateError(err))
	}
	return r.store.drop(room)
}

// meta 读出房间级状态单行。
func (r *GormRoomRepository) meta(ctx context.Context, room string) (*gorm.DB, *roomMeta, error) {
	db, err := r.store.open(room)
	if err != nil {
		return nil, nil, err
	}
	var m roomMeta
	if err := db.WithContext(ctx).First(&m).Error; err != nil {
		return nil, nil, translateError(err)
	}
	return db, &m, nil
}

// Get 返回房间级状态。Permanent 标志由服务层补充。
func (r *GormRoomRepository) Get(ctx context.Context, room string) (*domain.Room, error) {
	_, m, err := r.meta(ctx, room)
	if err != nil {
		return nil, err
	}
	return &domain.Room{
		ID:       room,
		Owners:   splitOwners(m.Owners),
		Subtitle: m.Subtitle,
		Locked:   m.Locked,
	}, nil
}

// GetOwners 返回房主列表；房间不存在返回空列表。
func (r *GormRoomRepository) GetOwners(ctx context.Context, room string) ([]string, error) {
	_, m, err := r.meta(ctx, room)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	return splitOwners(m.Owners), nil
}

// AddOwners 并集合并新房主，去重后按字典序存储。
func (r *GormRoomRepository) AddOwners(ctx context.Context, room string, users []string) error {
	if len(users) == 0 {
		return nil
	}
	db, m, err := r.meta(ctx, room)
	if err != nil {
		return err
	}
	merged := splitOwners(m.Owners)
	for _, u := range users {
		if !contains(merged, u) {
			merged = append(merged, u)
		}
	}
	sort.Strings(merged)
	err = db.WithContext(ctx).Model(&roomMeta{}).Where("id = ?", m.ID).
		Update("owners", strings.Join(merged, ",")).Error
	return translateError(err)
}

// RemoveOwners 移除指定房主。移空集合是不变量违反，直接拒绝。
func (r *GormRoomRepository) RemoveOwners(ctx context.Context, room string, users []string) error {
	if len(users) == 0 {
		return nil
	}
	db, m, err := r.meta(ctx, room)
	if err != nil {
		return err
	}
	remaining := make([]string, 0)
	for _, o := range splitOwners(m.Owners) {
		if !contains(users, o) {
			remaining = append(remaining, o)
		}
	}
	if len(remaining) == 0 {
		return repository.ErrLastOwner
	}
	err = db.WithContext(ctx).Model(&roomMeta{}).Where("id = ?", m.ID).
		Update("owners", strings.Join(remaining, ",")).Error
	return translateError(err)
}

func (r *GormRoomRepository) GetSubtitle(ctx context.Context, room string) (string, error) {
	_, m, err := r.meta(ctx, room)
	if err != nil {
		return "", err
	}
	return m.Subtitle, nil
}

func (r *GormRoomRepository) SetSubtitle(ctx context.Context, room, subtitle string) error {
	db, m, err := r.meta(ctx, room)
	if err != nil {
		return err
	}
	err = db.WithContext(ctx).Model(&roomMeta{}).Where("id = ?", m.ID).
		Update("subtitle", subtitle).Error
	return translateError(err)
}

func (r *GormRoomRepository) IsLocked(ctx context.Context, room string) (bool, error) {
	_, m, err := r.meta(ctx, room)
	if err != nil {
		return false, err
	}
	return m.Locked, nil
}

func (r *GormRoomRepository) SetLocked(ctx context.Context, room string, locked bool) error {
	db, m, err := r.meta(ctx, room)
	if err != nil {
		return err
	}
	err = db.WithContext(ctx).Model(&roomMeta{}).Where("id = ?", m.ID).
		Update("locked", locked).Error
	return translateError(err)
}

func (r *GormRoomRepository) ListRooms(ctx context.Context) ([]string, error) {
	return r.store.ListRooms()
}

func (r *GormRoomRepository) Exists(ctx context.Context, room string) (bool, error) {
	return r.store.exists(room), nil
}

func (r *GormRoomRepository) ArtifactPath(room string) string {
	return r.store.ArtifactPath(room)
}

func splitOwners(owners string) []string {
	if owners == "" {
		return []string{}
	}
	return strings.Split(owners, ",")
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
