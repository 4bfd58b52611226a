package tasks

import (
	"encoding/json"
	"time"
)

// 任务类型常量
const (
	TypeRateLimitPrune = "ratelimit:prune" // 清理过期的限流时间戳
)

// RateLimitPrunePayload 定义限流清理任务的数据结构。
// MaxAge 之前的时间戳对滑动窗口判定已经没有意义，可以安全删除。
type RateLimitPrunePayload struct {
	MaxAge time.Duration `json:"max_age"`
}

// NewRateLimitPruneTask 创建一个限流清理任务的 payload。
func NewRateLimitPruneTask(maxAge time.Duration) ([]byte, error) {
	payload := RateLimitPrunePayload{MaxAge: maxAge}
	return json.Marshal(payload)
}
