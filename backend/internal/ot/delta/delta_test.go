package delta

import (
	"encoding/json"
	"testing"
)

func TestOp_FieldCount(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`{"insert":"a"}`, 1},
		{`{"retain":5}`, 1},
		{`{"delete":2}`, 1},
		{`{"insert":"a","retain":1}`, 2},
		{`{}`, 0},
		// attributes 不计入互斥字段
		{`{"insert":"a","attributes":{"bold":true}}`, 1},
	}

	for _, tc := range cases {
		var op Op
		if err := json.Unmarshal([]byte(tc.raw), &op); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tc.raw, err)
		}
		if got := op.FieldCount(); got != tc.want {
			t.Fatalf("FieldCount(%s) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestOp_InsertIsTextOrEmbed(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{`{"insert":"Hello"}`, true},
		{`{"insert":""}`, true},
		{`{"insert":"日本語 🎉"}`, true},
		{`{"insert":{"image":"https://example.com/a.png"}}`, true},
		{`{"insert":42}`, false},
		{`{"insert":true}`, false},
		{`{"insert":["a"]}`, false},
		{`{"insert":null}`, false},
		{`{"retain":1}`, false},
	}

	for _, tc := range cases {
		var op Op
		if err := json.Unmarshal([]byte(tc.raw), &op); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tc.raw, err)
		}
		if got := op.InsertIsTextOrEmbed(); got != tc.want {
			t.Fatalf("InsertIsTextOrEmbed(%s) = %t, want %t", tc.raw, got, tc.want)
		}
	}
}

func TestDelta_RoundTripPreservesBytes(t *testing.T) {
	// 只解析不改写：retain/delete 指针与原始 insert 字节保持一致
	raw := `{"ops":[{"retain":3},{"insert":"héllo 🎉"},{"delete":1}]}`

	var d Delta
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(d.Ops) != 3 {
		t.Fatalf("len(Ops) = %d, want 3", len(d.Ops))
	}
	if d.Ops[0].Retain == nil || *d.Ops[0].Retain != 3 {
		t.Fatalf("Ops[0].Retain = %v, want 3", d.Ops[0].Retain)
	}
	if string(d.Ops[1].Insert) != `"héllo 🎉"` {
		t.Fatalf("Ops[1].Insert = %s, want original bytes", d.Ops[1].Insert)
	}
	if d.Ops[2].Delete == nil || *d.Ops[2].Delete != 1 {
		t.Fatalf("Ops[2].Delete = %v, want 1", d.Ops[2].Delete)
	}
}
