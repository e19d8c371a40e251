package collab

import (
	"context"
	"errors"
	"time"
)

// Permission 文档访问级别
type Permission int

const (
	PermissionNone Permission = iota
	PermissionRead
	PermissionWrite
)

func (p Permission) String() string {
	switch p {
	case PermissionRead:
		return "read"
	case PermissionWrite:
		return "write"
	default:
		return "none"
	}
}

// ParsePermission 协作授权行里的字符串 -> Permission
func ParsePermission(s string) Permission {
	switch s {
	case "write":
		return PermissionWrite
	case "read":
		return PermissionRead
	default:
		return PermissionNone
	}
}

var ErrDocumentNotFound = errors.New("document not found")
var ErrUserNotFound = errors.New("user not found")

// DocumentInfo 权限判定需要的文档元信息
type DocumentInfo struct {
	ID        string
	Title     string
	OwnerID   uint64
	UpdatedAt time.Time
}

// 只声明接口，实现在 store 中
type DocumentStore interface {
	// GetDocumentInfo 文档不存在时返回 ErrDocumentNotFound
	GetDocumentInfo(ctx context.Context, docID string) (*DocumentInfo, error)
	// GetCollaboratorPermission 无授权行时返回 PermissionNone（不是错误）
	GetCollaboratorPermission(ctx context.Context, docID string, userID uint64) (Permission, error)
}

type UserStore interface {
	// GetUsernameByID 用户不存在时返回 ErrUserNotFound
	GetUsernameByID(ctx context.Context, userID uint64) (string, error)
}

// Resolver 权限解析：
// - 拥有者 -> WRITE
// - 协作授权 -> 按授权级别
// - 其余 -> NONE
// 文档不存在通过 ErrDocumentNotFound 区分，由调用方决定是否对外暴露。
type Resolver struct {
	docs DocumentStore
}

func NewResolver(docs DocumentStore) *Resolver {
	return &Resolver{docs: docs}
}

func (r *Resolver) Resolve(ctx context.Context, docID string, userID uint64) (Permission, error) {
	doc, err := r.docs.GetDocumentInfo(ctx, docID)
	if err != nil {
		return PermissionNone, err
	}
	if doc.OwnerID == userID {
		// 拥有者永远可写，即使还留有一条冲突的授权行
		return PermissionWrite, nil
	}
	perm, err := r.docs.GetCollaboratorPermission(ctx, docID, userID)
	if err != nil {
		return PermissionNone, err
	}
	return perm, nil
}
