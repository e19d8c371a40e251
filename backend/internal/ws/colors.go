package ws

import "hash/fnv"

// 给在线用户分配的光标颜色盘；按 userID 取模，
// 同一用户在任何节点上拿到同一颜色
var presencePalette = []string{
	"#E74C3C", "#8E44AD", "#3498DB", "#16A085",
	"#27AE60", "#F39C12", "#D35400", "#2C3E50",
	"#C0392B", "#2980B9", "#1ABC9C", "#F1C40F",
}

func colorForUser(userID uint64) string {
	h := fnv.New32a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(userID >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	return presencePalette[h.Sum32()%uint32(len(presencePalette))]
}
