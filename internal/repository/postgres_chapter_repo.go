package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/khotruyen/khotruyen/internal/model"
)

// PostgresChapterRepo はPostgreSQLを使用したチャプターリポジトリ。
type PostgresChapterRepo struct {
	db *sql.DB
}

// NewPostgresChapterRepo はPostgresChapterRepoを生成する。
func NewPostgresChapterRepo(db *sql.DB) *PostgresChapterRepo {
	return &PostgresChapterRepo{db: db}
}

const chapterColumns = `id, story_id, number, title, content, audio_url, is_locked, is_draft, created_at, updated_at`

func scanChapter(row interface{ Scan(...any) error }, chapter *model.Chapter) error {
	return row.Scan(&chapter.ID, &chapter.StoryID, &chapter.Number, &chapter.Title,
		&chapter.Content, &chapter.AudioURL, &chapter.IsLocked, &chapter.IsDraft,
		&chapter.CreatedAt, &chapter.UpdatedAt)
}

// FindByID は指定IDのチャプターを取得する。見つからない場合はnilを返す。
func (r *PostgresChapterRepo) FindByID(ctx context.Context, id string) (*model.Chapter, error) {
	chapter := &model.Chapter{}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE id = $1`, id)

	err := scanChapter(row, chapter)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("チャプターの取得に失敗しました: %w", err)
	}
	return chapter, nil
}

// FindByIDWithStory は指定IDのチャプターを所属ストーリー付きで取得する。
// 見つからない場合はnilを返す。
func (r *PostgresChapterRepo) FindByIDWithStory(ctx context.Context, id string) (*ChapterWithStory, error) {
	cs := &ChapterWithStory{}

	err := r.db.QueryRowContext(ctx,
		`SELECT c.id, c.story_id, c.number, c.title, c.content, c.audio_url,
		        c.is_locked, c.is_draft, c.created_at, c.updated_at,
		        s.id, s.slug, s.title, s.author, s.description, s.cover_url,
		        s.status, s.created_at, s.updated_at
		 FROM chapters c
		 JOIN stories s ON s.id = c.story_id
		 WHERE c.id = $1`,
		id,
	).Scan(&cs.Chapter.ID, &cs.Chapter.StoryID, &cs.Chapter.Number, &cs.Chapter.Title,
		&cs.Chapter.Content, &cs.Chapter.AudioURL, &cs.Chapter.IsLocked, &cs.Chapter.IsDraft,
		&cs.Chapter.CreatedAt, &cs.Chapter.UpdatedAt,
		&cs.Story.ID, &cs.Story.Slug, &cs.Story.Title, &cs.Story.Author,
		&cs.Story.Description, &cs.Story.CoverURL, &cs.Story.Status,
		&cs.Story.CreatedAt, &cs.Story.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("チャプターとストーリーの結合取得に失敗しました: %w", err)
	}
	return cs, nil
}

// FindByStoryAndNumber はストーリーIDとチャプター番号でチャプターを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresChapterRepo) FindByStoryAndNumber(ctx context.Context, storyID string, number int) (*model.Chapter, error) {
	chapter := &model.Chapter{}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE story_id = $1 AND number = $2`,
		storyID, number)

	err := scanChapter(row, chapter)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("番号によるチャプターの検索に失敗しました: %w", err)
	}
	return chapter, nil
}

// ListByStory はストーリーの全チャプターを番号昇順で返す。
func (r *PostgresChapterRepo) ListByStory(ctx context.Context, storyID string, includeDrafts bool) ([]*model.Chapter, error) {
	query := `SELECT ` + chapterColumns + ` FROM chapters WHERE story_id = $1`
	if !includeDrafts {
		query += ` AND is_draft = FALSE`
	}
	query += ` ORDER BY number ASC`

	rows, err := r.db.QueryContext(ctx, query, storyID)
	if err != nil {
		return nil, fmt.Errorf("チャプター一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var chapters []*model.Chapter
	for rows.Next() {
		chapter := &model.Chapter{}
		if err := scanChapter(rows, chapter); err != nil {
			return nil, fmt.Errorf("チャプターの読み取りに失敗しました: %w", err)
		}
		chapters = append(chapters, chapter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チャプター一覧の走査に失敗しました: %w", err)
	}

	return chapters, nil
}

// MaxNumber はストーリー内の最大チャプター番号を返す。チャプターが無い場合は0。
func (r *PostgresChapterRepo) MaxNumber(ctx context.Context, storyID string) (int, error) {
	var max int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number), 0) FROM chapters WHERE story_id = $1`, storyID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("最大チャプター番号の取得に失敗しました: %w", err)
	}
	return max, nil
}

// Create はチャプターを作成する。
func (r *PostgresChapterRepo) Create(ctx context.Context, chapter *model.Chapter) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chapters (id, story_id, number, title, content, audio_url, is_locked, is_draft, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		chapter.ID, chapter.StoryID, chapter.Number, chapter.Title, chapter.Content,
		chapter.AudioURL, chapter.IsLocked, chapter.IsDraft, chapter.CreatedAt, chapter.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("チャプターの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はチャプター情報を更新する。
func (r *PostgresChapterRepo) Update(ctx context.Context, chapter *model.Chapter) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chapters
		 SET title = $1, content = $2, audio_url = $3, is_locked = $4, is_draft = $5, updated_at = $6
		 WHERE id = $7`,
		chapter.Title, chapter.Content, chapter.AudioURL, chapter.IsLocked,
		chapter.IsDraft, chapter.UpdatedAt, chapter.ID,
	)
	if err != nil {
		return fmt.Errorf("チャプターの更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのチャプターを削除する。
func (r *PostgresChapterRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chapters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("チャプターの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ChapterRepository = (*PostgresChapterRepo)(nil)
