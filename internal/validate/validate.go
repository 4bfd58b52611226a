// Package validate 提供各类标识符的纯校验谓词。
// 这些语法必须与客户端保持同步！
package validate

import "regexp"

var (
	roomRgx     = regexp.MustCompile(`^[A-Z0-9]{5}$`)
	queueRgx    = regexp.MustCompile(`^[a-zA-Z0-9_]{3,15}$`)
	userRgx     = regexp.MustCompile(`^[a-z0-9]{2,8}$`)
	noteRgx     = regexp.MustCompile(`^[a-zA-Z0-9 ,_'()]{1,50}$`)
	subtitleRgx = regexp.MustCompile(`^[a-zA-Z0-9 ,_'()\-]{1,130}$`)
)

// RoomID 校验房间标识符: 恰好 5 位大写字母或数字。
func RoomID(room string) bool { return roomRgx.MatchString(room) }

// QueueName 校验队列名: 3 到 15 位字母、数字或下划线。
func QueueName(queue string) bool { return queueRgx.MatchString(queue) }

// Username 校验用户名: 2 到 8 位小写字母或数字。
func Username(user string) bool { return userRgx.MatchString(user) }

// Note 校验排队说明 (waitdata)。空串表示未提供，视为合法。
func Note(note string) bool {
	return note == "" || noteRgx.MatchString(note)
}

// Subtitle 校验房间副标题。空串表示清除副标题，视为合法。
func Subtitle(subtitle string) bool {
	return subtitle == "" || subtitleRgx.MatchString(subtitle)
}

// Usernames 校验逗号分隔的用户名列表中的每一项。
// 空串表示空列表，视为合法 (调用方决定是否为 no-op)。
func Usernames(list []string) bool {
	for _, u := range list {
		if !Username(u) {
			return false
		}
	}
	return true
}
