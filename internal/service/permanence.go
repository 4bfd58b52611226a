package service

import (
	"os"
	"path/filepath"
	"strings"
)

// Permanence 维护不可删除的房间名单。
// 名单是数据目录下的 nodel_rooms 纯文本文件，每行一个房间标识符，
// 由运维人员手工维护；每次查询重读文件，改动即时生效。
type Permanence struct {
	path string
}

// NewPermanence 创建指向 dataDir/nodel_rooms 的名单。
func NewPermanence(dataDir string) *Permanence {
	return &Permanence{path: filepath.Join(dataDir, "nodel_rooms")}
}

// IsPermanent 判断房间是否在名单中。文件不存在视为空名单。
func (p *Permanence) IsPermanent(room string) bool {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == room {
			return true
		}
	}
	return false
}
