package ws

import (
	"encoding/json"
	"fmt"

	"collabdocs/backend/internal/ot/delta"
)

// ValidationError 结构校验失败的类型化结果；不是 error，
// 会话把它翻译成 error 事件，连接保持 ACTIVE
type ValidationError struct {
	Code    string
	Message string
}

// DeltaValidator 编辑消息的结构校验。
// 检查顺序影响错误码：字节上限 -> JSON 解析 -> 结构 -> 操作数上限，
// 每条消息只报告第一个失败。
type DeltaValidator struct {
	MaxMessageBytes int
	MaxOps          int
}

func NewDeltaValidator(maxMessageBytes, maxOps int) *DeltaValidator {
	if maxMessageBytes <= 0 {
		maxMessageBytes = 256 * 1024
	}
	if maxOps <= 0 {
		maxOps = 1000
	}
	return &DeltaValidator{MaxMessageBytes: maxMessageBytes, MaxOps: maxOps}
}

// CheckSize 原始消息的字节上限，在任何解析之前执行
func (v *DeltaValidator) CheckSize(raw []byte) *ValidationError {
	if len(raw) > v.MaxMessageBytes {
		return &ValidationError{
			Code:    CodeMessageTooLarge,
			Message: fmt.Sprintf("message size %d exceeds limit %d", len(raw), v.MaxMessageBytes),
		}
	}
	return nil
}

// ValidateDelta 校验 delta 字段的原始字节。
// 规则（全部成立才有效）：
// - delta 含非空 ops 列表
// - 每个 op 恰好填充 insert/retain/delete 之一
// - retain/delete 为严格正整数
// - insert 是文本或嵌入对象（类型检查之外不做内容解析）
// - 操作数不超过上限
func (v *DeltaValidator) ValidateDelta(rawDelta json.RawMessage) (*delta.Delta, *ValidationError) {
	if len(rawDelta) == 0 {
		return nil, &ValidationError{Code: CodeInvalidDeltaFormat, Message: "missing delta"}
	}

	var d delta.Delta
	if err := json.Unmarshal(rawDelta, &d); err != nil {
		return nil, &ValidationError{Code: CodeInvalidDeltaFormat, Message: "delta is not an ops object"}
	}
	if len(d.Ops) == 0 {
		return nil, &ValidationError{Code: CodeInvalidDeltaFormat, Message: "ops must be a non-empty list"}
	}
	if len(d.Ops) > v.MaxOps {
		return nil, &ValidationError{
			Code:    CodeTooManyOperations,
			Message: fmt.Sprintf("delta has %d ops, limit is %d", len(d.Ops), v.MaxOps),
		}
	}
	for i := range d.Ops {
		op := &d.Ops[i]
		if op.FieldCount() != 1 {
			return nil, &ValidationError{
				Code:    CodeInvalidDeltaFormat,
				Message: fmt.Sprintf("op %d must have exactly one of insert/retain/delete", i),
			}
		}
		if op.Retain != nil && *op.Retain <= 0 {
			return nil, &ValidationError{
				Code:    CodeInvalidDeltaFormat,
				Message: fmt.Sprintf("op %d: retain must be a positive integer", i),
			}
		}
		if op.Delete != nil && *op.Delete <= 0 {
			return nil, &ValidationError{
				Code:    CodeInvalidDeltaFormat,
				Message: fmt.Sprintf("op %d: delete must be a positive integer", i),
			}
		}
		if op.Insert != nil && !op.InsertIsTextOrEmbed() {
			return nil, &ValidationError{
				Code:    CodeInvalidDeltaFormat,
				Message: fmt.Sprintf("op %d: insert must be text or an embed object", i),
			}
		}
	}
	return &d, nil
}
