package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/norandomtechie/queup/internal/repository"
	"github.com/norandomtechie/queup/internal/tasks"
)

// RateLimitPruneHandler 处理限流历史清理任务。
// 限流判定只看最近 5 个时间戳，更早的记录纯属累积，定期批量删除。
type RateLimitPruneHandler struct {
	limiter repository.RateLimitRepository
}

// NewRateLimitPruneHandler 创建 Handler 实例。
func NewRateLimitPruneHandler(limiter repository.RateLimitRepository) *RateLimitPruneHandler {
	if limiter == nil {
		panic("RateLimitRepository cannot be nil for RateLimitPruneHandler")
	}
	return &RateLimitPruneHandler{limiter: limiter}
}

// ProcessTask 实现 asynq.Handler 接口。
func (h *RateLimitPruneHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
	})
	logCtx.Info("Processing rate limit prune task...")

	var payload tasks.RateLimitPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.MaxAge <= 0 {
		payload.MaxAge = time.Minute
	}

	cutoff := time.Now().Add(-payload.MaxAge)
	removed, err := h.limiter.Prune(ctx, cutoff)
	if err != nil {
		logCtx.WithError(err).Error("Failed to prune rate limit history")
		return fmt.Errorf("failed to prune rate limit history: %w", err)
	}

	logCtx.WithField("removed", removed).Info("Rate limit prune task processed successfully")
	return nil
}
