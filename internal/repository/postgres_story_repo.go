package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/khotruyen/khotruyen/internal/model"
)

// PostgresStoryRepo はPostgreSQLを使用したストーリーリポジトリ。
type PostgresStoryRepo struct {
	db *sql.DB
}

// NewPostgresStoryRepo はPostgresStoryRepoを生成する。
func NewPostgresStoryRepo(db *sql.DB) *PostgresStoryRepo {
	return &PostgresStoryRepo{db: db}
}

const storyColumns = `id, slug, title, author, description, cover_url, status, created_at, updated_at`

func scanStory(row interface{ Scan(...any) error }) (*model.Story, error) {
	story := &model.Story{}
	err := row.Scan(&story.ID, &story.Slug, &story.Title, &story.Author,
		&story.Description, &story.CoverURL, &story.Status, &story.CreatedAt, &story.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return story, nil
}

// FindByID は指定IDのストーリーを取得する。見つからない場合はnilを返す。
func (r *PostgresStoryRepo) FindByID(ctx context.Context, id string) (*model.Story, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+storyColumns+` FROM stories WHERE id = $1`, id)

	story, err := scanStory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ストーリーの取得に失敗しました: %w", err)
	}
	return story, nil
}

// FindBySlug はslugでストーリーを検索する。見つからない場合はnilを返す。
func (r *PostgresStoryRepo) FindBySlug(ctx context.Context, slug string) (*model.Story, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+storyColumns+` FROM stories WHERE slug = $1`, slug)

	story, err := scanStory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("slugによるストーリーの検索に失敗しました: %w", err)
	}
	return story, nil
}

// SlugExists はslugが使用済みかを返す。
func (r *PostgresStoryRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM stories WHERE slug = $1)`, slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("slugの存在確認に失敗しました: %w", err)
	}
	return exists, nil
}

// Create はストーリーを作成する。
func (r *PostgresStoryRepo) Create(ctx context.Context, story *model.Story) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stories (id, slug, title, author, description, cover_url, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		story.ID, story.Slug, story.Title, story.Author, story.Description,
		story.CoverURL, story.Status, story.CreatedAt, story.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ストーリーの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はストーリー情報を更新する。
func (r *PostgresStoryRepo) Update(ctx context.Context, story *model.Story) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE stories
		 SET title = $1, author = $2, description = $3, cover_url = $4, status = $5, updated_at = $6
		 WHERE id = $7`,
		story.Title, story.Author, story.Description, story.CoverURL,
		story.Status, story.UpdatedAt, story.ID,
	)
	if err != nil {
		return fmt.Errorf("ストーリーの更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのストーリーを削除する。
func (r *PostgresStoryRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM stories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ストーリーの削除に失敗しました: %w", err)
	}
	return nil
}

// List はストーリー一覧をオフセットページネーションで返す。
func (r *PostgresStoryRepo) List(ctx context.Context, search string, includeHidden bool, offset, limit int) ([]*model.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE 1=1`
	args := []any{}

	if !includeHidden {
		query += ` AND status != 'hidden'`
	}
	if search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(` AND title ILIKE $%d`, len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT $%d`, len(args))
	args = append(args, offset)
	query += fmt.Sprintf(` OFFSET $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ストーリー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var stories []*model.Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("ストーリーの読み取りに失敗しました: %w", err)
		}
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ストーリー一覧の走査に失敗しました: %w", err)
	}

	return stories, nil
}

// Count はListと同一条件での総件数を返す。
func (r *PostgresStoryRepo) Count(ctx context.Context, search string, includeHidden bool) (int, error) {
	query := `SELECT COUNT(*) FROM stories WHERE 1=1`
	args := []any{}

	if !includeHidden {
		query += ` AND status != 'hidden'`
	}
	if search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(` AND title ILIKE $%d`, len(args))
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ストーリー件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ StoryRepository = (*PostgresStoryRepo)(nil)
