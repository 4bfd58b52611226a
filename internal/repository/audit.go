package repository

import (
	"context"

	"github.com/norandomtechie/queup/internal/domain"
)

// AuditRepository 定义审计日志的追加操作。
// 日志只追加；保留与清理由外部负责，不在本核心范围内。
type AuditRepository interface {
	// Append 追加一条审计记录。所有写入者通过同一把锁串行化；
	// 限定次数内未取得锁时返回 ErrLockTimeout。
	Append(ctx context.Context, rec domain.AuditRecord) error
}
