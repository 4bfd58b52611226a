package repository

import (
	"context"
	"time"
)

// RateLimitRepository 定义按用户名的请求准入控制。
// 策略: 保留每个用户最近 5 个请求时间戳。不足 5 个直接放行并记录；
// 已有 5 个时仅当其中最旧的早于 1 秒前才放行并记录。拒绝时不写入记录。
// 这是快速拒绝，不是排队等待 —— 从不跨请求阻塞。
type RateLimitRepository interface {
	// Admit 判定该用户此刻的请求是否放行。放行时记录 now。
	Admit(ctx context.Context, username string, now time.Time) (bool, error)

	// Prune 删除早于 olderThan 的历史时间戳，返回删除的行数。
	// 由后台周期任务调用，防止历史无限增长。
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// 限流窗口参数。
const (
	RateLimitSlots  = 5               // 滑动窗口内保留的时间戳数量
	RateLimitWindow = 1 * time.Second // 窗口内最旧时间戳必须早于此间隔才放行
)
