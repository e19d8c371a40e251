package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"collabdocs/backend/internal/collab"
)

type DocumentStore struct{ db *gorm.DB }

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// ===== collab.DocumentStore 实现 =====

func (s *DocumentStore) GetDocumentInfo(ctx context.Context, docID string) (*collab.DocumentInfo, error) {
	var doc Document
	err := s.db.WithContext(ctx).
		Select("id", "title", "owner_id", "updated_at").
		First(&doc, "id = ?", docID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, collab.ErrDocumentNotFound
		}
		return nil, err
	}
	return &collab.DocumentInfo{
		ID:        doc.ID,
		Title:     doc.Title,
		OwnerID:   doc.OwnerID,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (s *DocumentStore) GetCollaboratorPermission(ctx context.Context, docID string, userID uint64) (collab.Permission, error) {
	var grant Collaborator
	err := s.db.WithContext(ctx).
		First(&grant, "document_id = ? AND user_id = ?", docID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 无授权行且非拥有者 = 无权限，不是错误
			return collab.PermissionNone, nil
		}
		return collab.PermissionNone, err
	}
	return collab.ParsePermission(grant.Permission), nil
}

// ===== CRUD =====

func (s *DocumentStore) Create(ctx context.Context, ownerID uint64, title string, content []byte) (*Document, error) {
	if content == nil {
		content = []byte(`{}`)
	}
	doc := &Document{
		ID:      uuid.NewString(),
		Title:   title,
		OwnerID: ownerID,
		Content: content,
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentStore) Get(ctx context.Context, docID string) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).First(&doc, "id = ?", docID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, collab.ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// ListForUser 拥有的 + 被共享的文档，按更新时间倒序
func (s *DocumentStore) ListForUser(ctx context.Context, userID uint64) ([]Document, error) {
	var docs []Document
	err := s.db.WithContext(ctx).
		Distinct("documents.*").
		Joins("LEFT JOIN collaborators ON collaborators.document_id = documents.id").
		Where("documents.owner_id = ? OR collaborators.user_id = ?", userID, userID).
		Order("documents.updated_at DESC").
		Find(&docs).Error
	return docs, err
}

// Update 更新标题/内容；nil 字段保持不变。更新会刷新 updated_at。
func (s *DocumentStore) Update(ctx context.Context, docID string, title *string, content []byte) (*Document, error) {
	updates := map[string]any{}
	if title != nil {
		updates["title"] = *title
	}
	if content != nil {
		updates["content"] = content
	}
	if len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&Document{}).Where("id = ?", docID).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, collab.ErrDocumentNotFound
		}
	}
	return s.Get(ctx, docID)
}

func (s *DocumentStore) Delete(ctx context.Context, docID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&Document{}, "id = ?", docID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return collab.ErrDocumentNotFound
		}
		if err := tx.Delete(&Collaborator{}, "document_id = ?", docID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&DocumentVersion{}, "document_id = ?", docID).Error; err != nil {
			return err
		}
		return tx.Delete(&Comment{}, "document_id = ?", docID).Error
	})
}

// Share 创建或更新 (文档, 用户) 的授权行
func (s *DocumentStore) Share(ctx context.Context, docID string, userID uint64, perm collab.Permission) error {
	grant := Collaborator{
		DocumentID: docID,
		UserID:     userID,
		Permission: perm.String(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"permission", "updated_at"}),
	}).Create(&grant).Error
}

func (s *DocumentStore) Unshare(ctx context.Context, docID string, userID uint64) error {
	return s.db.WithContext(ctx).
		Delete(&Collaborator{}, "document_id = ? AND user_id = ?", docID, userID).Error
}

func (s *DocumentStore) ListCollaborators(ctx context.Context, docID string) ([]Collaborator, error) {
	var grants []Collaborator
	err := s.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("created_at ASC").
		Find(&grants).Error
	return grants, err
}
