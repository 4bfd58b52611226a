package gorm

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	gormlib "gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/norandomtechie/queup/internal/repository"
)

// SqliteRateLimitRepository 把每用户的请求时间戳历史存在共享的
// ratelimit.db 里。这是无 Redis 部署时的默认实现。
type SqliteRateLimitRepository struct {
	db *gormlib.DB
}

// NewSqliteRateLimitRepository 打开 (必要时创建) dataDir 下的 ratelimit.db。
func NewSqliteRateLimitRepository(dataDir string) (*SqliteRateLimitRepository, error) {
	path := filepath.Join(dataDir, "ratelimit.db")
	db, err := gormlib.Open(sqlite.Open(path), &gormlib.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: open %q: %w", path, err)
	}
	if err := db.AutoMigrate(&rateEvent{}); err != nil {
		return nil, fmt.Errorf("ratelimit: migrate: %w", err)
	}
	return &SqliteRateLimitRepository{db: db}, nil
}

var _ repository.RateLimitRepository = (*SqliteRateLimitRepository)(nil)

// Admit 实现 5 槽滑动窗口: 历史不足 5 条直接放行并记录；
// 已有 5 条时仅当最旧一条早于 1 秒前才放行。拒绝不写入。
func (r *SqliteRateLimitRepository) Admit(ctx context.Context, username string, now time.Time) (bool, error) {
	admitted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		var last []rateEvent
		if err := tx.Where("username = ?", username).
			Order("time desc").
			Limit(repository.RateLimitSlots).
			Find(&last).Error; err != nil {
			return err
		}
		if len(last) >= repository.RateLimitSlots {
			oldest := last[len(last)-1].Time
			if now.Sub(oldest) <= repository.RateLimitWindow {
				return nil // 拒绝，不记录
			}
		}
		admitted = true
		return tx.Create(&rateEvent{Username: username, Time: now}).Error
	})
	if err != nil {
		return false, fmt.Errorf("ratelimit: admit %s: %w", username, translateError(err))
	}
	return admitted, nil
}

// Prune 删除早于 olderThan 的历史行，防止无限增长。
func (r *SqliteRateLimitRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("time < ?", olderThan).Delete(&rateEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("ratelimit: prune: %w", translateError(res.Error))
	}
	return res.RowsAffected, nil
}

// Close 关闭底层数据库连接。
func (r *SqliteRateLimitRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
