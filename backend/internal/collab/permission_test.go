package collab

import (
	"context"
	"errors"
	"testing"
)

// fakeDocumentStore 内存实现，权限判定测试用
type fakeDocumentStore struct {
	docs   map[string]*DocumentInfo
	grants map[string]map[uint64]Permission
}

func (f *fakeDocumentStore) GetDocumentInfo(_ context.Context, docID string) (*DocumentInfo, error) {
	doc, ok := f.docs[docID]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (f *fakeDocumentStore) GetCollaboratorPermission(_ context.Context, docID string, userID uint64) (Permission, error) {
	return f.grants[docID][userID], nil
}

func newFakeStore() *fakeDocumentStore {
	return &fakeDocumentStore{
		docs: map[string]*DocumentInfo{
			"doc-1": {ID: "doc-1", OwnerID: 1},
		},
		grants: map[string]map[uint64]Permission{
			"doc-1": {
				2: PermissionWrite,
				3: PermissionRead,
				// 拥有者残留的授权行，不应覆盖拥有者权限
				1: PermissionRead,
			},
		},
	}
}

func TestResolve_OwnerAlwaysWrite(t *testing.T) {
	r := NewResolver(newFakeStore())

	perm, err := r.Resolve(context.Background(), "doc-1", 1)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if perm != PermissionWrite {
		t.Fatalf("owner permission = %s, want write", perm)
	}
}

func TestResolve_Collaborators(t *testing.T) {
	r := NewResolver(newFakeStore())

	perm, err := r.Resolve(context.Background(), "doc-1", 2)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if perm != PermissionWrite {
		t.Fatalf("write collaborator permission = %s, want write", perm)
	}

	perm, err = r.Resolve(context.Background(), "doc-1", 3)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if perm != PermissionRead {
		t.Fatalf("read collaborator permission = %s, want read", perm)
	}
}

func TestResolve_StrangerGetsNone(t *testing.T) {
	r := NewResolver(newFakeStore())

	perm, err := r.Resolve(context.Background(), "doc-1", 99)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if perm != PermissionNone {
		t.Fatalf("stranger permission = %s, want none", perm)
	}
}

func TestResolve_MissingDocument(t *testing.T) {
	r := NewResolver(newFakeStore())

	_, err := r.Resolve(context.Background(), "doc-nope", 1)
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrDocumentNotFound", err)
	}
}

func TestParsePermission(t *testing.T) {
	cases := []struct {
		in   string
		want Permission
	}{
		{"write", PermissionWrite},
		{"read", PermissionRead},
		{"", PermissionNone},
		{"admin", PermissionNone},
	}
	for _, tc := range cases {
		if got := ParsePermission(tc.in); got != tc.want {
			t.Fatalf("ParsePermission(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
