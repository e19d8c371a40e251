package store

import (
	"time"
)

// gorm 模型。文档内容是编辑器兼容的 JSON（Quill delta 文档体），
// 服务端不解析，按 JSON 列原样存取。

type User struct {
	ID           uint64 `gorm:"primaryKey"`
	Username     string `gorm:"size:150;uniqueIndex"`
	PasswordHash []byte `gorm:"size:60"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Document struct {
	ID        string `gorm:"type:char(36);primaryKey"`
	Title     string `gorm:"size:255"`
	OwnerID   uint64 `gorm:"index:idx_documents_owner_updated,priority:1"`
	Content   []byte `gorm:"type:json"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index:idx_documents_owner_updated,priority:2,sort:desc"`
}

// Collaborator (文档, 用户) 唯一的协作授权行；permission ∈ {read, write}
type Collaborator struct {
	ID         uint64 `gorm:"primaryKey"`
	DocumentID string `gorm:"type:char(36);uniqueIndex:idx_collaborators_doc_user,priority:1"`
	UserID     uint64 `gorm:"uniqueIndex:idx_collaborators_doc_user,priority:2"`
	Permission string `gorm:"size:10"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DocumentVersion 版本快照，追加后裁剪到每文档最新 N 条
type DocumentVersion struct {
	ID         uint64 `gorm:"primaryKey"`
	DocumentID string `gorm:"type:char(36);index"`
	Title      string `gorm:"size:255"`
	Content    []byte `gorm:"type:json"`
	CreatedAt  time.Time
}

type Comment struct {
	ID          uint64 `gorm:"primaryKey"`
	DocumentID  string `gorm:"type:char(36);index"`
	UserID      uint64
	Content     string `gorm:"type:text"`
	RangeIndex  int64
	RangeLength int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
