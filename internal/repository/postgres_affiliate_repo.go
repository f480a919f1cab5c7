package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/khotruyen/khotruyen/internal/model"
)

// PostgresAffiliateRepo はPostgreSQLを使用したアフィリエイトリンクリポジトリ。
type PostgresAffiliateRepo struct {
	db *sql.DB
}

// NewPostgresAffiliateRepo はPostgresAffiliateRepoを生成する。
func NewPostgresAffiliateRepo(db *sql.DB) *PostgresAffiliateRepo {
	return &PostgresAffiliateRepo{db: db}
}

const affiliateColumns = `id, provider, target_url, label, is_active, story_id, chapter_id, created_at, updated_at`

func scanAffiliate(row interface{ Scan(...any) error }) (*model.AffiliateLink, error) {
	link := &model.AffiliateLink{}
	var storyID, chapterID sql.NullString

	err := row.Scan(&link.ID, &link.Provider, &link.TargetURL, &link.Label,
		&link.IsActive, &storyID, &chapterID, &link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		return nil, err
	}

	link.StoryID = nullStringValue(storyID)
	link.ChapterID = nullStringValue(chapterID)
	return link, nil
}

// FindByID は指定IDのリンクを取得する。見つからない場合はnilを返す。
func (r *PostgresAffiliateRepo) FindByID(ctx context.Context, id string) (*model.AffiliateLink, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+affiliateColumns+` FROM affiliate_links WHERE id = $1`, id)

	link, err := scanAffiliate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アフィリエイトリンクの取得に失敗しました: %w", err)
	}
	return link, nil
}

// FindActiveByStoryID はストーリーに紐付く有効なリンクを1件返す。
// 見つからない場合はnilを返す。
func (r *PostgresAffiliateRepo) FindActiveByStoryID(ctx context.Context, storyID string) (*model.AffiliateLink, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+affiliateColumns+` FROM affiliate_links
		 WHERE story_id = $1 AND is_active = TRUE
		 ORDER BY created_at DESC LIMIT 1`,
		storyID)

	link, err := scanAffiliate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("有効なアフィリエイトリンクの検索に失敗しました: %w", err)
	}
	return link, nil
}

// List は全リンクを作成日時降順で返す。
func (r *PostgresAffiliateRepo) List(ctx context.Context) ([]*model.AffiliateLink, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+affiliateColumns+` FROM affiliate_links ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("アフィリエイトリンク一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var links []*model.AffiliateLink
	for rows.Next() {
		link, err := scanAffiliate(rows)
		if err != nil {
			return nil, fmt.Errorf("アフィリエイトリンクの読み取りに失敗しました: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アフィリエイトリンク一覧の走査に失敗しました: %w", err)
	}

	return links, nil
}

// Create はリンクを作成する。
func (r *PostgresAffiliateRepo) Create(ctx context.Context, link *model.AffiliateLink) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO affiliate_links (id, provider, target_url, label, is_active, story_id, chapter_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		link.ID, link.Provider, link.TargetURL, link.Label, link.IsActive,
		nullString(link.StoryID), nullString(link.ChapterID), link.CreatedAt, link.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("アフィリエイトリンクの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はリンク情報を更新する。
func (r *PostgresAffiliateRepo) Update(ctx context.Context, link *model.AffiliateLink) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE affiliate_links
		 SET provider = $1, target_url = $2, label = $3, is_active = $4,
		     story_id = $5, chapter_id = $6, updated_at = $7
		 WHERE id = $8`,
		link.Provider, link.TargetURL, link.Label, link.IsActive,
		nullString(link.StoryID), nullString(link.ChapterID), link.UpdatedAt, link.ID,
	)
	if err != nil {
		return fmt.Errorf("アフィリエイトリンクの更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのリンクを削除する。
func (r *PostgresAffiliateRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM affiliate_links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("アフィリエイトリンクの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AffiliateRepository = (*PostgresAffiliateRepo)(nil)
