// Package gorm 实现基于每房间 sqlite 文件的存储层。
// 每个房间是 rooms/<ID>.db 一个独立文件: 文件的修改时间即是变更信号，
// 文件被移除即是房间删除信号，变更订阅依赖这两点。
package gorm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/norandomtechie/queup/internal/repository"
	"github.com/norandomtechie/queup/internal/validate"
)

// Store 管理每房间 sqlite 文件的打开、缓存和删除。
// RoomRepository 和 QueueRepository 的 gorm 实现共享同一个 Store。
type Store struct {
	roomsDir string
	mu       sync.Mutex
	handles  map[string]*gorm.DB
	log      *logrus.Entry
}

// NewStore 创建 Store 并确保 rooms 目录存在。
// dataDir 是启动时解析好的私有数据目录，之后不再变化。
func NewStore(dataDir string, log *logrus.Logger) (*Store, error) {
	roomsDir := filepath.Join(dataDir, "rooms")
	if err := os.MkdirAll(roomsDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create rooms directory %q: %w", roomsDir, err)
	}
	return &Store{
		roomsDir: roomsDir,
		handles:  make(map[string]*gorm.DB),
		log:      log.WithField("component", "store"),
	}, nil
}

// ArtifactPath 返回房间存储文件的路径。
func (s *Store) ArtifactPath(room string) string {
	return filepath.Join(s.roomsDir, room+".db")
}

// exists 检查房间存储文件是否存在。
func (s *Store) exists(room string) bool {
	_, err := os.Stat(s.ArtifactPath(room))
	return err == nil
}

// openDB 打开 (或复用) 指向某个 sqlite 文件的 gorm 连接。
func openDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	return db, nil
}

// open 返回已存在房间的连接。文件存在但 room_meta 表缺失说明
// 之前创建到一半失败了，按不存在处理并顺手移除残片。
func (s *Store) open(room string) (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.handles[room]; ok {
		return db, nil
	}
	if !s.exists(room) {
		return nil, repository.ErrNotFound
	}
	db, err := openDB(s.ArtifactPath(room))
	if err != nil {
		// 文件在但打不开: 按损坏处理
		s.discardArtifact(room)
		return nil, repository.ErrNotFound
	}
	if !db.Migrator().HasTable(&roomMeta{}) {
		s.closeDB(db)
		s.discardArtifact(room)
		return nil, repository.ErrNotFound
	}
	s.handles[room] = db
	return db, nil
}

// discardArtifact 移除损坏或创建到一半的房间文件，让房间名可以重新使用。
func (s *Store) discardArtifact(room string) {
	if err := os.Remove(s.ArtifactPath(room)); err != nil {
		s.log.WithError(err).WithField("room", room).Warn("Failed to remove unusable room artifact")
	} else {
		s.log.WithField("room", room).Warn("Removed unusable room artifact")
	}
}

// create 为新房间建立存储文件和固定模式并返回连接。
// 用 O_EXCL 占位文件，把 "已在使用" 和并发创建竞争区分开。
func (s *Store) create(room string) (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exists(room) {
		return nil, repository.ErrAlreadyExists
	}
	f, err := os.OpenFile(s.ArtifactPath(room), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			// 上面的存在性检查刚刚通过，这里又失败: 有人抢先了。
			return nil, repository.ErrConflict
		}
		return nil, fmt.Errorf("store: claim room artifact: %w", err)
	}
	f.Close()
	db, err := openDB(s.ArtifactPath(room))
	if err != nil {
		os.Remove(s.ArtifactPath(room))
		return nil, err
	}
	if err := db.AutoMigrate(&roomMeta{}, &queueRecord{}, &memberRecord{}); err != nil {
		s.closeDB(db)
		os.Remove(s.ArtifactPath(room))
		return nil, fmt.Errorf("store: migrate room schema: %w", err)
	}
	s.handles[room] = db
	return db, nil
}

// drop 关闭房间连接并移除存储文件。文件的消失会唤醒所有订阅者。
func (s *Store) drop(room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.handles[room]; ok {
		s.closeDB(db)
		delete(s.handles, room)
	}
	if err := os.Remove(s.ArtifactPath(room)); err != nil {
		if os.IsNotExist(err) {
			// 模式在而文件不在 (或反之) 都按 "不存在" 处理
			return repository.ErrNotFound
		}
		return fmt.Errorf("store: remove room artifact: %w", err)
	}
	return nil
}

// ListRooms 扫描 rooms 目录返回所有已知房间标识符。
func (s *Store) ListRooms() ([]string, error) {
	entries, err := os.ReadDir(s.roomsDir)
	if err != nil {
		return nil, fmt.Errorf("store: read rooms directory: %w", err)
	}
	rooms := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".db") {
			continue
		}
		id := strings.TrimSuffix(name, ".db")
		if validate.RoomID(id) {
			rooms = append(rooms, id)
		}
	}
	return rooms, nil
}

// Close 关闭所有缓存的房间连接。
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for room, db := range s.handles {
		s.closeDB(db)
		delete(s.handles, room)
	}
}

func (s *Store) closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		s.log.WithError(err).Warn("Failed to get underlying sql.DB for close")
		return
	}
	if err := sqlDB.Close(); err != nil {
		s.log.WithError(err).Warn("Failed to close room database")
	}
}

// translateError 把 gorm/sqlite 错误映射为存储库哨兵错误。
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrNotFound
	}
	// glebarez/sqlite 没有导出的约束错误类型，退回到字符串检查
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return repository.ErrDuplicateEntry
	}
	if strings.Contains(err.Error(), "constraint failed") {
		return repository.ErrConflict
	}
	return err
}
