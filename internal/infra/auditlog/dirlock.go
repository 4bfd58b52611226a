package auditlog

import (
	"fmt"
	"os"
	"time"

	"github.com/norandomtechie/queup/internal/repository"
)

// dirLock 是基于锁目录的跨进程建议锁。
// 获取方式: 轮询等待已有锁目录消失 (interval 间隔，最多 attempts 次)，
// 然后以 mkdir 的原子性抢占。超过次数后返回 ErrLockTimeout 而不是无限阻塞 ——
// 宁可大声失败。进程崩溃可能留下陈锁；不做陈锁检测，这是已接受的限制。
type dirLock struct {
	dir      string // 锁目录路径 (<target>.lck)
	attempts int
	interval time.Duration
}

func newDirLock(target string, attempts int, interval time.Duration) *dirLock {
	return &dirLock{dir: target + ".lck", attempts: attempts, interval: interval}
}

// acquire 抢占锁目录。等不到时返回 ErrLockTimeout。
func (l *dirLock) acquire() error {
	for i := 0; i < l.attempts; i++ {
		err := os.Mkdir(l.dir, 0o755)
		if err == nil {
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("auditlog: create lock directory %q: %w", l.dir, err)
		}
		time.Sleep(l.interval)
	}
	return fmt.Errorf("auditlog: lock directory %q held too long: %w", l.dir, repository.ErrLockTimeout)
}

// release 移除锁目录。写入成功与否都必须走到这里。
func (l *dirLock) release() error {
	if err := os.Remove(l.dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("auditlog: remove lock directory %q: %w", l.dir, err)
	}
	return nil
}
