package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/khotruyen/khotruyen/internal/model"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

const commentColumns = `id, story_id, user_id, body, status, created_at, updated_at`

func scanComment(row interface{ Scan(...any) error }) (*model.Comment, error) {
	comment := &model.Comment{}
	err := row.Scan(&comment.ID, &comment.StoryID, &comment.UserID,
		&comment.Body, &comment.Status, &comment.CreatedAt, &comment.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = $1`, id)

	comment, err := scanComment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	return comment, nil
}

// Create はコメントを作成する。
func (r *PostgresCommentRepo) Create(ctx context.Context, comment *model.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, story_id, user_id, body, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		comment.ID, comment.StoryID, comment.UserID, comment.Body,
		comment.Status, comment.CreatedAt, comment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateStatus はコメントのモデレーション状態を更新する。
func (r *PostgresCommentRepo) UpdateStatus(ctx context.Context, id string, status model.CommentStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE comments SET status = $1, updated_at = now() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("コメント状態の更新に失敗しました: %w", err)
	}
	return nil
}

// ListByStory はストーリーのコメントを作成日時降順で返す。
func (r *PostgresCommentRepo) ListByStory(ctx context.Context, storyID string, status model.CommentStatus) ([]*model.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE story_id = $1`
	args := []any{storyID}

	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectComments(rows)
}

// ListByStatus は全ストーリー横断で指定状態のコメントを返す。
func (r *PostgresCommentRepo) ListByStatus(ctx context.Context, status model.CommentStatus, limit int) ([]*model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments
		 WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("状態別コメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectComments(rows)
}

// DeleteByID は指定IDのコメントを削除する。
func (r *PostgresCommentRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}
	return nil
}

func collectComments(rows *sql.Rows) ([]*model.Comment, error) {
	var comments []*model.Comment
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("コメントの読み取りに失敗しました: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コメント一覧の走査に失敗しました: %w", err)
	}
	return comments, nil
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
