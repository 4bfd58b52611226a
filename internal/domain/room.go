package domain

// Room 表示一个虚拟排队房间的房间级状态。
// 房间由 5 位 [A-Z0-9] 标识符标识，持久化为独立的存储文件 (rooms/<ID>.db)。
type Room struct {
	ID        string   // 房间标识符 (5 位, [A-Z0-9])
	Owners    []string // 房主用户名集合，创建后永远非空
	Subtitle  string   // 房间副标题，可为空，最长 130 字符
	Locked    bool     // 锁定后非房主不能自助加入队列
}

// IsOwner 判断用户是否在房主集合中。
func (r *Room) IsOwner(user string) bool {
	for _, o := range r.Owners {
		if o == user {
			return true
		}
	}
	return false
}

// DefaultQueue 是随房间一起创建的隐式队列名。
const DefaultQueue = "default_queue"
