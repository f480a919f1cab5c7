package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/khotruyen/khotruyen/internal/model"
)

// PostgresBookmarkRepo はPostgreSQLを使用したブックマークリポジトリ。
type PostgresBookmarkRepo struct {
	db *sql.DB
}

// NewPostgresBookmarkRepo はPostgresBookmarkRepoを生成する。
func NewPostgresBookmarkRepo(db *sql.DB) *PostgresBookmarkRepo {
	return &PostgresBookmarkRepo{db: db}
}

// Exists は(userID, storyID)のブックマークが存在するかを返す。
func (r *PostgresBookmarkRepo) Exists(ctx context.Context, userID, storyID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM bookmarks WHERE user_id = $1 AND story_id = $2)`,
		userID, storyID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ブックマークの存在確認に失敗しました: %w", err)
	}
	return exists, nil
}

// Create はブックマークを作成する。
func (r *PostgresBookmarkRepo) Create(ctx context.Context, bookmark *model.Bookmark) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bookmarks (id, user_id, story_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, story_id) DO NOTHING`,
		bookmark.ID, bookmark.UserID, bookmark.StoryID, bookmark.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ブックマークの作成に失敗しました: %w", err)
	}
	return nil
}

// Delete は(userID, storyID)のブックマークを削除する。
func (r *PostgresBookmarkRepo) Delete(ctx context.Context, userID, storyID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE user_id = $1 AND story_id = $2`,
		userID, storyID,
	)
	if err != nil {
		return fmt.Errorf("ブックマークの削除に失敗しました: %w", err)
	}
	return nil
}

// ListByUserID はユーザーのブックマーク一覧を作成日時降順で返す。
func (r *PostgresBookmarkRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Bookmark, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, story_id, created_at
		 FROM bookmarks WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ブックマーク一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var bookmarks []*model.Bookmark
	for rows.Next() {
		bookmark := &model.Bookmark{}
		if err := rows.Scan(&bookmark.ID, &bookmark.UserID, &bookmark.StoryID, &bookmark.CreatedAt); err != nil {
			return nil, fmt.Errorf("ブックマークの読み取りに失敗しました: %w", err)
		}
		bookmarks = append(bookmarks, bookmark)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ブックマーク一覧の走査に失敗しました: %w", err)
	}

	return bookmarks, nil
}

// compile-time interface check
var _ BookmarkRepository = (*PostgresBookmarkRepo)(nil)
