package ws

import (
	"net/http/httptest"
	"testing"
)

func TestExtractTokenFromSubprotocols(t *testing.T) {
	cases := []struct {
		name         string
		protocols    []string
		wantToken    string
		wantAccepted string
	}{
		{
			name:         "single token protocol",
			protocols:    []string{"access_token.abc.def.ghi"},
			wantToken:    "abc.def.ghi",
			wantAccepted: "access_token.abc.def.ghi",
		},
		{
			name:         "token among other protocols",
			protocols:    []string{"chat, access_token.xyz, superchat"},
			wantToken:    "xyz",
			wantAccepted: "access_token.xyz",
		},
		{
			name:      "no token protocol",
			protocols: []string{"chat, superchat"},
		},
		{
			name: "no header",
		},
		{
			// 浏览器可能把多个 subprotocol 拆成多个 header 行
			name:         "multiple header lines",
			protocols:    []string{"chat", "access_token.tok123"},
			wantToken:    "tok123",
			wantAccepted: "access_token.tok123",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws/docs/x/", nil)
			for _, p := range tc.protocols {
				r.Header.Add("Sec-WebSocket-Protocol", p)
			}
			token, accepted := extractTokenFromSubprotocols(r)
			if token != tc.wantToken {
				t.Fatalf("token = %q, want %q", token, tc.wantToken)
			}
			if accepted != tc.wantAccepted {
				t.Fatalf("accepted = %q, want %q", accepted, tc.wantAccepted)
			}
		})
	}
}

func TestColorForUserIsStable(t *testing.T) {
	c1 := colorForUser(42)
	c2 := colorForUser(42)
	if c1 != c2 {
		t.Fatalf("colorForUser(42) not stable: %s vs %s", c1, c2)
	}
	if c1 == "" {
		t.Fatalf("colorForUser(42) returned empty color")
	}
}
