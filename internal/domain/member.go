package domain

import "time"

// QueueMember 表示队列中的一个成员行。
// 同一队列中一个用户名最多出现一次；队列位置由 JoinedAt 升序决定
// (相同时间按插入顺序)。
type QueueMember struct {
	Username string    `json:"username"` // 用户名 ([a-z0-9]{2,8})
	JoinedAt time.Time `json:"joined_at"`
	Note     string    `json:"note"`   // 可选等待说明，最长 50 字符
	Marked   bool      `json:"marked"` // 房主可切换的标记
}
