package domain

import "time"

// 审计动作标签。每个成功的变更操作写一条对应标签的审计记录。
const (
	AuditCreateRoom  = "create"
	AuditDeleteRoom  = "remover"
	AuditOwn         = "own"
	AuditDelOwn      = "delown"
	AuditSetSubtitle = "setsub"
	AuditLock        = "lock"
	AuditUnlock      = "unlock"
	AuditCreateQueue = "createq"
	AuditDeleteQueue = "removeq"
	AuditRenameQueue = "renameq"
	AuditClearQueue  = "clearq"
	AuditMark        = "mark"
	AuditJoin        = "add"
	AuditLeave       = "del"
	AuditStaffDelete = "staffdel"
)

// AuditRecord 是追加到审计日志的一条记录。记录只追加，从不修改或删除。
type AuditRecord struct {
	Time    time.Time
	User    string // 发起操作的用户
	Room    string
	Action  string // 上面的动作标签之一
	Payload string // 可选: 受影响的用户名、新副标题等
}
