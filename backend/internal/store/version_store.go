package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
)

var ErrVersionNotFound = errors.New("version not found")

// VersionStore 版本快照的追加-裁剪日志。
// 每次内容保存追加一条，按文档裁剪到最新 maxVersions 条。
type VersionStore struct {
	db          *sql.DB
	maxVersions int
}

func NewVersionStore(db *sql.DB, maxVersions int) *VersionStore {
	if maxVersions <= 0 {
		maxVersions = 50
	}
	return &VersionStore{db: db, maxVersions: maxVersions}
}

func (s *VersionStore) Append(ctx context.Context, docID string, title string, content []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_versions (document_id, title, content, created_at)
		VALUES (?, ?, ?, NOW())`,
		docID, title, content,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return err
	}
	return s.trim(ctx, docID)
}

// trim 删除每文档最新 maxVersions 条之外的快照
func (s *VersionStore) trim(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM document_versions
		WHERE document_id = ?
		  AND id NOT IN (
			SELECT id FROM (
				SELECT id FROM document_versions
				WHERE document_id = ?
				ORDER BY id DESC
				LIMIT ?
			) keep
		)`,
		docID, docID, s.maxVersions,
	)
	return err
}

type VersionMeta struct {
	ID        uint64    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *VersionStore) List(ctx context.Context, docID string) ([]VersionMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at FROM document_versions
		WHERE document_id = ? ORDER BY id DESC`,
		docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []VersionMeta
	for rows.Next() {
		var v VersionMeta
		if err := rows.Scan(&v.ID, &v.Title, &v.CreatedAt); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *VersionStore) Get(ctx context.Context, docID string, versionID uint64) (*DocumentVersion, error) {
	var v DocumentVersion
	err := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, title, content, created_at FROM document_versions
		WHERE document_id = ? AND id = ?`,
		docID, versionID,
	).Scan(&v.ID, &v.DocumentID, &v.Title, &v.Content, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}
	return &v, nil
}
