package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
)

func TestValidateDelta_ValidInsert(t *testing.T) {
	v := NewDeltaValidator(0, 0)

	d, verr := v.ValidateDelta(json.RawMessage(`{"ops":[{"insert":"Hello"}]}`))
	if verr != nil {
		t.Fatalf("ValidateDelta() error = %v, want nil", verr)
	}
	if len(d.Ops) != 1 {
		t.Fatalf("len(Ops) = %d, want 1", len(d.Ops))
	}
}

func TestValidateDelta_ValidMixedOps(t *testing.T) {
	v := NewDeltaValidator(0, 0)

	raw := json.RawMessage(`{"ops":[{"retain":5},{"insert":"x","attributes":{"bold":true}},{"delete":2}]}`)
	if _, verr := v.ValidateDelta(raw); verr != nil {
		t.Fatalf("ValidateDelta() error = %v, want nil", verr)
	}
}

func TestValidateDelta_EmbedInsert(t *testing.T) {
	v := NewDeltaValidator(0, 0)

	// 嵌入对象（如图片）也是合法的 insert
	raw := json.RawMessage(`{"ops":[{"insert":{"image":"https://example.com/a.png"}}]}`)
	if _, verr := v.ValidateDelta(raw); verr != nil {
		t.Fatalf("ValidateDelta() error = %v, want nil", verr)
	}
}

func TestValidateDelta_Invalid(t *testing.T) {
	v := NewDeltaValidator(0, 0)

	cases := []struct {
		name     string
		raw      string
		wantCode string
	}{
		{"missing delta", ``, CodeInvalidDeltaFormat},
		{"not an object", `"hello"`, CodeInvalidDeltaFormat},
		{"garbage", `{`, CodeInvalidDeltaFormat},
		{"empty ops", `{"ops":[]}`, CodeInvalidDeltaFormat},
		{"op with two fields", `{"ops":[{"insert":"a","retain":1}]}`, CodeInvalidDeltaFormat},
		{"op with no fields", `{"ops":[{}]}`, CodeInvalidDeltaFormat},
		{"retain zero", `{"ops":[{"retain":0}]}`, CodeInvalidDeltaFormat},
		{"negative delete", `{"ops":[{"delete":-1}]}`, CodeInvalidDeltaFormat},
		{"numeric insert", `{"ops":[{"insert":42}]}`, CodeInvalidDeltaFormat},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, verr := v.ValidateDelta(json.RawMessage(tc.raw))
			if verr == nil {
				t.Fatalf("ValidateDelta(%s) = nil, want code %s", tc.raw, tc.wantCode)
			}
			if verr.Code != tc.wantCode {
				t.Fatalf("ValidateDelta(%s) code = %s, want %s", tc.raw, verr.Code, tc.wantCode)
			}
		})
	}
}

func TestValidateDelta_TooManyOps(t *testing.T) {
	v := NewDeltaValidator(0, 3)

	var buf bytes.Buffer
	buf.WriteString(`{"ops":[`)
	for i := 0; i < 4; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, `{"insert":"%d"}`, i)
	}
	buf.WriteString(`]}`)

	_, verr := v.ValidateDelta(buf.Bytes())
	if verr == nil || verr.Code != CodeTooManyOperations {
		t.Fatalf("ValidateDelta() = %v, want code %s", verr, CodeTooManyOperations)
	}

	// 恰好等于上限不报错
	buf.Reset()
	buf.WriteString(`{"ops":[{"insert":"a"},{"insert":"b"},{"insert":"c"}]}`)
	if _, verr := v.ValidateDelta(buf.Bytes()); verr != nil {
		t.Fatalf("ValidateDelta() at limit error = %v, want nil", verr)
	}
}

func TestCheckSize(t *testing.T) {
	v := NewDeltaValidator(16, 0)

	if verr := v.CheckSize(make([]byte, 16)); verr != nil {
		t.Fatalf("CheckSize(16) = %v, want nil", verr)
	}
	verr := v.CheckSize(make([]byte, 17))
	if verr == nil || verr.Code != CodeMessageTooLarge {
		t.Fatalf("CheckSize(17) = %v, want code %s", verr, CodeMessageTooLarge)
	}
}
