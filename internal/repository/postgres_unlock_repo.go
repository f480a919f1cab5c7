package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/khotruyen/khotruyen/internal/model"
)

// PostgresUnlockRepo はPostgreSQLを使用したアンロック台帳リポジトリ。
type PostgresUnlockRepo struct {
	db *sql.DB
}

// NewPostgresUnlockRepo はPostgresUnlockRepoを生成する。
func NewPostgresUnlockRepo(db *sql.DB) *PostgresUnlockRepo {
	return &PostgresUnlockRepo{db: db}
}

// Exists は(userID, chapterID)のアンロック関係が存在するかを返す。
func (r *PostgresUnlockRepo) Exists(ctx context.Context, userID, chapterID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM chapter_unlocks WHERE user_id = $1 AND chapter_id = $2)`,
		userID, chapterID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("アンロック状態の確認に失敗しました: %w", err)
	}
	return exists, nil
}

// Create はアンロック関係を作成する。
// 一意性は呼び出し側の存在チェック任せで、テーブルに一意制約はない。
func (r *PostgresUnlockRepo) Create(ctx context.Context, unlock *model.ChapterUnlock) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chapter_unlocks (id, user_id, chapter_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		unlock.ID, unlock.UserID, unlock.ChapterID, unlock.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("アンロックの記録に失敗しました: %w", err)
	}
	return nil
}

// ListChapterIDsByUserAndStory はユーザーがアンロック済みの
// 指定ストーリー内チャプターID一覧を返す。
func (r *PostgresUnlockRepo) ListChapterIDsByUserAndStory(ctx context.Context, userID, storyID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT cu.chapter_id
		 FROM chapter_unlocks cu
		 JOIN chapters c ON c.id = cu.chapter_id
		 WHERE cu.user_id = $1 AND c.story_id = $2`,
		userID, storyID,
	)
	if err != nil {
		return nil, fmt.Errorf("アンロック済みチャプターの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("チャプターIDの読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アンロック一覧の走査に失敗しました: %w", err)
	}

	return ids, nil
}

// compile-time interface check
var _ UnlockRepository = (*PostgresUnlockRepo)(nil)
