package gorm

import "time"

// 房间存储文件内的固定模式。原始实现为每个房间/队列动态建表，
// 这里重构为固定的三张表: room_meta (单行房间级状态)、queues、members。

// roomMeta 是房间级状态的单行记录。
type roomMeta struct {
	ID       uint   `gorm:"primaryKey"`
	Owners   string `gorm:"not null"` // 逗号连接的房主用户名
	Subtitle string
	Locked   bool `gorm:"not null;default:false"`
}

func (roomMeta) TableName() string { return "room_meta" }

// queueRecord 表示房间内的一个队列。
type queueRecord struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;size:15;not null"`
}

func (queueRecord) TableName() string { return "queues" }

// memberRecord 表示 (队列, 用户名) 的一行成员记录。
// 唯一索引保证一个用户名在同一队列最多出现一次；
// 队列位置由 joined_at 升序决定，自增主键兜底同刻插入顺序。
type memberRecord struct {
	ID       uint      `gorm:"primaryKey"`
	Queue    string    `gorm:"uniqueIndex:idx_queue_user;size:15;not null"`
	Username string    `gorm:"uniqueIndex:idx_queue_user;size:8;not null"`
	JoinedAt time.Time `gorm:"index;not null"`
	Note     string
	Marked   bool `gorm:"not null;default:false"`
}

func (memberRecord) TableName() string { return "members" }

// rateEvent 是共享 ratelimit.db 中的一条请求时间戳记录。
type rateEvent struct {
	ID       uint      `gorm:"primaryKey"`
	Username string    `gorm:"index;size:8;not null"`
	Time     time.Time `gorm:"index;not null"`
}

func (rateEvent) TableName() string { return "ratelimit" }
