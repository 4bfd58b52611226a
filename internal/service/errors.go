package service

import (
	"errors"

	"github.com/norandomtechie/queup/internal/repository"
)

// 业务错误分类。校验和授权失败都在任何变更之前检测，
// 返回时不会留下部分状态变化。
var (
	ErrValidation    = errors.New("malformed input")
	ErrNotFound      = errors.New("room, queue or user not found")
	ErrAlreadyExists = errors.New("room already exists, it may be in use")
	ErrDuplicate     = errors.New("user already in queue")
	ErrUnauthorized  = errors.New("user is not an owner of this room")
	ErrRoomLocked    = errors.New("room is locked")
	ErrLastOwner     = errors.New("the room cannot have no owners")
	ErrRateLimited   = errors.New("too many requests")
	ErrLockTimeout   = errors.New("audit log lock not acquired within bound")
	ErrConflict      = errors.New("storage conflict, please retry")
	ErrRoomPermanent = errors.New("room is permanent and cannot be deleted")
	ErrBadRequest    = errors.New("request matched no valid action")
	ErrInternal      = errors.New("internal server error")
)

// mapRepoError 把存储库哨兵错误映射到业务错误。
// 存储层冲突不自动重试 —— 原样交给调用方决定是否重发。
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrAlreadyExists):
		return ErrAlreadyExists
	case errors.Is(err, repository.ErrDuplicateEntry):
		return ErrDuplicate
	case errors.Is(err, repository.ErrLastOwner):
		return ErrLastOwner
	case errors.Is(err, repository.ErrLockTimeout):
		return ErrLockTimeout
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict
	default:
		return ErrInternal
	}
}
