package ws

import (
	"context"
	"testing"
)

func newTestConn(id, docID string) *Conn {
	// ws 为 nil：测试只走发送队列，不碰底层连接
	return newConn(id, nil, docID, Deps{})
}

func drain(c *Conn) [][]byte {
	var msgs [][]byte
	for {
		select {
		case m := <-c.send:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func TestHub_BroadcastExcludesSender(t *testing.T) {
	h := NewHub(nil)
	docID := "doc-1"

	sender := newTestConn("conn-a", docID)
	other := newTestConn("conn-b", docID)
	h.Join(docID, sender)
	h.Join(docID, other)

	h.Broadcast(context.Background(), docID, []byte(`{"type":"doc_update"}`), sender.id)

	if got := len(drain(sender)); got != 0 {
		t.Fatalf("sender received %d messages, want 0", got)
	}
	got := drain(other)
	if len(got) != 1 {
		t.Fatalf("other received %d messages, want 1", len(got))
	}
	if string(got[0]) != `{"type":"doc_update"}` {
		t.Fatalf("payload = %s, want byte-identical forward", got[0])
	}
}

func TestHub_BroadcastAllWhenNoExclude(t *testing.T) {
	h := NewHub(nil)
	docID := "doc-1"

	a := newTestConn("conn-a", docID)
	b := newTestConn("conn-b", docID)
	h.Join(docID, a)
	h.Join(docID, b)

	h.Broadcast(context.Background(), docID, []byte(`{"type":"doc_saved"}`), "")

	if len(drain(a)) != 1 || len(drain(b)) != 1 {
		t.Fatalf("expected both connections to receive the message")
	}
}

func TestHub_RoomsAreIsolated(t *testing.T) {
	h := NewHub(nil)

	a := newTestConn("conn-a", "doc-1")
	b := newTestConn("conn-b", "doc-2")
	h.Join("doc-1", a)
	h.Join("doc-2", b)

	h.Broadcast(context.Background(), "doc-1", []byte(`x`), "")

	if len(drain(a)) != 1 {
		t.Fatalf("doc-1 member should receive the message")
	}
	if len(drain(b)) != 0 {
		t.Fatalf("doc-2 member must not receive doc-1 broadcast")
	}
}

func TestHub_LeaveRemovesEmptyRoom(t *testing.T) {
	h := NewHub(nil)
	docID := "doc-1"

	c := newTestConn("conn-a", docID)
	h.Join(docID, c)
	if got := h.MemberCount(docID); got != 1 {
		t.Fatalf("MemberCount = %d, want 1", got)
	}

	h.Leave(docID, c)
	if got := h.MemberCount(docID); got != 0 {
		t.Fatalf("MemberCount after leave = %d, want 0", got)
	}
}

func TestHub_SlowConsumerNeverBlocks(t *testing.T) {
	h := NewHub(nil)
	docID := "doc-1"

	slow := newTestConn("conn-slow", docID)
	h.Join(docID, slow)

	// 队列容量之外的消息被丢弃，广播方不阻塞
	for i := 0; i < cap(slow.send)+10; i++ {
		h.Broadcast(context.Background(), docID, []byte(`m`), "")
	}

	if got := len(drain(slow)); got != cap(slow.send) {
		t.Fatalf("queued = %d, want %d (overflow dropped)", got, cap(slow.send))
	}
}

func TestHub_PresenceSnapshot(t *testing.T) {
	h := NewHub(nil)
	docID := "doc-1"

	a := newTestConn("conn-a", docID)
	a.userID = 1
	a.username = "alice"
	a.color = "#e74c3c"
	b := newTestConn("conn-b", docID)
	b.userID = 2
	b.username = "bob"
	b.color = "#3498db"
	h.Join(docID, a)
	h.Join(docID, b)

	users := h.PresenceSnapshot(docID)
	if len(users) != 2 {
		t.Fatalf("len(PresenceSnapshot) = %d, want 2", len(users))
	}
	seen := map[uint64]bool{}
	for _, u := range users {
		seen[u.UserID] = true
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("snapshot missing members: %v", users)
	}
}
