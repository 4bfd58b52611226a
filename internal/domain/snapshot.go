package domain

import "encoding/json"

// RoomSnapshot 是推送给客户端的全房间快照。
// 序列化为扁平 JSON 对象: 每个队列名映射到有序成员列表，房间级标志
// 以 "is-owner" / "subtitle" / "is-locked" / "is-permanent" 键并列其中。
// 队列名语法不含 '-'，所以不会与标志键冲突。
type RoomSnapshot struct {
	Queues      map[string][]QueueMember
	IsOwner     bool
	Subtitle    string
	IsLocked    bool
	IsPermanent bool
}

func (s RoomSnapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.Queues)+4)
	for name, members := range s.Queues {
		if members == nil {
			members = []QueueMember{}
		}
		out[name] = members
	}
	out["is-owner"] = s.IsOwner
	out["subtitle"] = s.Subtitle
	out["is-locked"] = s.IsLocked
	out["is-permanent"] = s.IsPermanent
	return json.Marshal(out)
}
