package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrCommentNotFound = errors.New("comment not found")

type CommentStore struct{ db *gorm.DB }

func NewCommentStore(db *gorm.DB) *CommentStore {
	return &CommentStore{db: db}
}

func (s *CommentStore) Create(ctx context.Context, c *Comment) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *CommentStore) Get(ctx context.Context, commentID uint64) (*Comment, error) {
	var c Comment
	err := s.db.WithContext(ctx).First(&c, "id = ?", commentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommentNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *CommentStore) ListForDocument(ctx context.Context, docID string) ([]Comment, error) {
	var comments []Comment
	err := s.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("created_at ASC").
		Find(&comments).Error
	return comments, err
}

func (s *CommentStore) UpdateContent(ctx context.Context, commentID uint64, content string) error {
	res := s.db.WithContext(ctx).Model(&Comment{}).
		Where("id = ?", commentID).
		Update("content", content)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCommentNotFound
	}
	return nil
}

func (s *CommentStore) Delete(ctx context.Context, commentID uint64) error {
	res := s.db.WithContext(ctx).Delete(&Comment{}, "id = ?", commentID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCommentNotFound
	}
	return nil
}
