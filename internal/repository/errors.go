package repository

import "errors"

// 通用的存储库错误
var (
	// ErrNotFound 表示请求的房间/队列/成员不存在
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示违反唯一约束 (同一队列重复加入同一用户)
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
	// ErrAlreadyExists 表示创建时标识符已被占用
	ErrAlreadyExists = errors.New("repository: already exists")
	// ErrConflict 表示存储层完整性冲突 (如并发创建竞争)
	ErrConflict = errors.New("repository: storage conflict")
	// ErrLastOwner 表示该操作会移除房间的最后一个房主
	ErrLastOwner = errors.New("repository: room cannot have no owners")
	// ErrLockTimeout 表示在限定次数内未能取得审计日志锁
	ErrLockTimeout = errors.New("repository: lock not acquired within bound")
)
