package delta

import (
	"bytes"
	"encoding/json"
)

// Quill 风格的 Delta：
// {"ops":[{"retain":5},{"insert":"Hello","attributes":{"bold":true}},{"delete":2}]}
//
// insert 可以是文本，也可以是嵌入对象（如 {"image": "..."}），
// 这里保留原始 JSON，不做内容级解析。

type Op struct {
	Insert     json.RawMessage `json:"insert,omitempty"`
	Retain     *int64          `json:"retain,omitempty"`
	Delete     *int64          `json:"delete,omitempty"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

type Delta struct {
	Ops []Op `json:"ops"`
}

// FieldCount insert/retain/delete 中被填充的字段数
func (o *Op) FieldCount() int {
	n := 0
	if o.Insert != nil {
		n++
	}
	if o.Retain != nil {
		n++
	}
	if o.Delete != nil {
		n++
	}
	return n
}

// InsertIsTextOrEmbed insert 必须是 JSON 字符串或对象
func (o *Op) InsertIsTextOrEmbed() bool {
	if o.Insert == nil {
		return false
	}
	b := bytes.TrimSpace(o.Insert)
	if len(b) == 0 {
		return false
	}
	return b[0] == '"' || b[0] == '{'
}
