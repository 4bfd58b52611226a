// Package auditlog 实现文件后端的只追加审计日志。
// 单个共享日志文件是这套系统里唯一需要显式互斥的资源；
// 所有写入者通过一个锁目录串行化。
package auditlog

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/norandomtechie/queup/internal/domain"
	"github.com/norandomtechie/queup/internal/repository"
)

// 锁的默认边界: 最多 5 次尝试，每次间隔 1 秒。
const (
	DefaultLockAttempts = 5
	DefaultLockInterval = 1 * time.Second
)

// FileAuditLog 把审计记录逐行追加到一个文本文件。
type FileAuditLog struct {
	path string
	lock *dirLock
	log  *logrus.Entry
}

// Option 调整 FileAuditLog 的锁参数 (测试用短间隔)。
type Option func(*FileAuditLog)

// WithLockBounds 覆盖锁的尝试次数和轮询间隔。
func WithLockBounds(attempts int, interval time.Duration) Option {
	return func(f *FileAuditLog) {
		f.lock = newDirLock(f.path, attempts, interval)
	}
}

// NewFileAuditLog 创建指向 path 的审计日志。文件按需创建。
func NewFileAuditLog(path string, log *logrus.Logger, opts ...Option) *FileAuditLog {
	f := &FileAuditLog{
		path: path,
		lock: newDirLock(path, DefaultLockAttempts, DefaultLockInterval),
		log:  log.WithField("component", "auditlog"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var _ repository.AuditRepository = (*FileAuditLog)(nil)

// Append 在锁的保护下追加一行记录。
// 锁的释放放在 defer 里，成功或失败都保证执行。
func (f *FileAuditLog) Append(ctx context.Context, rec domain.AuditRecord) error {
	if err := f.lock.acquire(); err != nil {
		return err
	}
	defer func() {
		if err := f.lock.release(); err != nil {
			f.log.WithError(err).Error("Failed to release audit log lock")
		}
	}()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("auditlog: open %q: %w", f.path, err)
	}
	defer file.Close()

	if _, err := file.WriteString(formatLine(rec) + "\n"); err != nil {
		return fmt.Errorf("auditlog: append to %q: %w", f.path, err)
	}
	return nil
}

// formatLine 生成逗号连接的一行: unix_ts,user,room,action[,payload]。
func formatLine(rec domain.AuditRecord) string {
	ts := strconv.FormatFloat(float64(rec.Time.UnixNano())/1e9, 'f', 6, 64)
	fields := []string{ts, rec.User, rec.Room, rec.Action}
	if rec.Payload != "" {
		fields = append(fields, rec.Payload)
	}
	return strings.Join(fields, ",")
}
