package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/khotruyen/khotruyen/internal/model"
)

// PostgresSourceFeedRepo はPostgreSQLを使用した提携元フィードリポジトリ。
type PostgresSourceFeedRepo struct {
	db *sql.DB
}

// NewPostgresSourceFeedRepo はPostgresSourceFeedRepoを生成する。
func NewPostgresSourceFeedRepo(db *sql.DB) *PostgresSourceFeedRepo {
	return &PostgresSourceFeedRepo{db: db}
}

const sourceFeedColumns = `id, story_id, feed_url, title, etag, last_modified, fetch_status,
	consecutive_errors, error_message, next_fetch_at, created_at, updated_at`

func scanSourceFeed(row interface{ Scan(...any) error }) (*model.SourceFeed, error) {
	feed := &model.SourceFeed{}
	var etag, lastModified, errorMessage sql.NullString

	err := row.Scan(&feed.ID, &feed.StoryID, &feed.FeedURL, &feed.Title,
		&etag, &lastModified, &feed.FetchStatus, &feed.ConsecutiveErrors,
		&errorMessage, &feed.NextFetchAt, &feed.CreatedAt, &feed.UpdatedAt)
	if err != nil {
		return nil, err
	}

	feed.ETag = nullStringValue(etag)
	feed.LastModified = nullStringValue(lastModified)
	feed.ErrorMessage = nullStringValue(errorMessage)
	return feed, nil
}

// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (r *PostgresSourceFeedRepo) FindByID(ctx context.Context, id string) (*model.SourceFeed, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sourceFeedColumns+` FROM source_feeds WHERE id = $1`, id)

	feed, err := scanSourceFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ソースフィードの取得に失敗しました: %w", err)
	}
	return feed, nil
}

// FindByFeedURL はフィードURLでフィードを検索する。見つからない場合はnilを返す。
func (r *PostgresSourceFeedRepo) FindByFeedURL(ctx context.Context, feedURL string) (*model.SourceFeed, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sourceFeedColumns+` FROM source_feeds WHERE feed_url = $1`, feedURL)

	feed, err := scanSourceFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("URLによるソースフィードの検索に失敗しました: %w", err)
	}
	return feed, nil
}

// Create はフィードを作成する。
func (r *PostgresSourceFeedRepo) Create(ctx context.Context, feed *model.SourceFeed) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO source_feeds (id, story_id, feed_url, title, etag, last_modified,
		   fetch_status, consecutive_errors, error_message, next_fetch_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		feed.ID, feed.StoryID, feed.FeedURL, feed.Title,
		nullString(feed.ETag), nullString(feed.LastModified),
		feed.FetchStatus, feed.ConsecutiveErrors, nullString(feed.ErrorMessage),
		feed.NextFetchAt, feed.CreatedAt, feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ソースフィードの作成に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのフィードを削除する。
func (r *PostgresSourceFeedRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM source_feeds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ソースフィードの削除に失敗しました: %w", err)
	}
	return nil
}

// ListAll は全フィードを作成日時の降順で取得する。管理画面用。
func (r *PostgresSourceFeedRepo) ListAll(ctx context.Context) ([]*model.SourceFeed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sourceFeedColumns+` FROM source_feeds ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("ソースフィード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.SourceFeed
	for rows.Next() {
		feed, err := scanSourceFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("ソースフィードの読み取りに失敗しました: %w", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ソースフィード一覧の走査に失敗しました: %w", err)
	}

	return feeds, nil
}

// ListDueForFetch はフェッチ期限が到来したアクティブなフィードを取得する。
// FOR UPDATE SKIP LOCKEDにより複数ワーカープロセス間での重複フェッチを防ぐ。
func (r *PostgresSourceFeedRepo) ListDueForFetch(ctx context.Context) ([]*model.SourceFeed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sourceFeedColumns+` FROM source_feeds
		 WHERE next_fetch_at <= now() AND fetch_status = 'active'
		 ORDER BY next_fetch_at ASC
		 FOR UPDATE SKIP LOCKED`,
	)
	if err != nil {
		return nil, fmt.Errorf("フェッチ対象フィードの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.SourceFeed
	for rows.Next() {
		feed, err := scanSourceFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("ソースフィードの読み取りに失敗しました: %w", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フェッチ対象フィードの走査に失敗しました: %w", err)
	}

	return feeds, nil
}

// UpdateFetchState はフィードのフェッチ状態を更新する。
func (r *PostgresSourceFeedRepo) UpdateFetchState(ctx context.Context, feed *model.SourceFeed) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE source_feeds
		 SET title = $1, etag = $2, last_modified = $3, fetch_status = $4,
		     consecutive_errors = $5, error_message = $6, next_fetch_at = $7, updated_at = now()
		 WHERE id = $8`,
		feed.Title, nullString(feed.ETag), nullString(feed.LastModified),
		feed.FetchStatus, feed.ConsecutiveErrors, nullString(feed.ErrorMessage),
		feed.NextFetchAt, feed.ID,
	)
	if err != nil {
		return fmt.Errorf("フェッチ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// IsImported は指定GUIDが取り込み済みかを返す。
func (r *PostgresSourceFeedRepo) IsImported(ctx context.Context, sourceFeedID, guid string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM imported_chapters WHERE source_feed_id = $1 AND guid = $2)`,
		sourceFeedID, guid,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("取り込み済み判定に失敗しました: %w", err)
	}
	return exists, nil
}

// MarkImported はGUIDと作成したチャプターIDの対応を記録する。
func (r *PostgresSourceFeedRepo) MarkImported(ctx context.Context, sourceFeedID, guid, chapterID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO imported_chapters (source_feed_id, guid, chapter_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (source_feed_id, guid) DO NOTHING`,
		sourceFeedID, guid, chapterID,
	)
	if err != nil {
		return fmt.Errorf("取り込み記録の作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SourceFeedRepository = (*PostgresSourceFeedRepo)(nil)
