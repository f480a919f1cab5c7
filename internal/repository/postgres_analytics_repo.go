package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/khotruyen/khotruyen/internal/model"
)

// PostgresAnalyticsRepo はPostgreSQLを使用した分析イベントリポジトリ。
// イベントは追記専用で、更新APIは提供しない。
type PostgresAnalyticsRepo struct {
	db *sql.DB
}

// NewPostgresAnalyticsRepo はPostgresAnalyticsRepoを生成する。
func NewPostgresAnalyticsRepo(db *sql.DB) *PostgresAnalyticsRepo {
	return &PostgresAnalyticsRepo{db: db}
}

// Append はイベントを追記する。
func (r *PostgresAnalyticsRepo) Append(ctx context.Context, event *model.AnalyticsEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO analytics_events (id, event, user_id, story_id, chapter_id, affiliate_id, ip, user_agent, referer, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.Event, nullString(event.UserID), nullString(event.StoryID),
		nullString(event.ChapterID), nullString(event.AffiliateID),
		event.IP, event.UserAgent, event.Referer, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("分析イベントの記録に失敗しました: %w", err)
	}
	return nil
}

// SummaryByAffiliate は指定リンクのクリック/アンロック集計を返す。
func (r *PostgresAnalyticsRepo) SummaryByAffiliate(ctx context.Context, affiliateID string, topN int) (*model.AffiliateSummary, error) {
	summary := &model.AffiliateSummary{AffiliateID: affiliateID}

	err := r.db.QueryRowContext(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE event = $2),
		   COUNT(*) FILTER (WHERE event = $3)
		 FROM analytics_events WHERE affiliate_id = $1`,
		affiliateID, model.EventAffiliateClick, model.EventChapterUnlock,
	).Scan(&summary.Clicks, &summary.Unlocks)
	if err != nil {
		return nil, fmt.Errorf("クリック集計の取得に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT referer, COUNT(*) AS cnt
		 FROM analytics_events
		 WHERE affiliate_id = $1 AND event = $2 AND referer != ''
		 GROUP BY referer
		 ORDER BY cnt DESC
		 LIMIT $3`,
		affiliateID, model.EventAffiliateClick, topN,
	)
	if err != nil {
		return nil, fmt.Errorf("リファラ集計の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rc model.RefererCount
		if err := rows.Scan(&rc.Referer, &rc.Count); err != nil {
			return nil, fmt.Errorf("リファラ集計の読み取りに失敗しました: %w", err)
		}
		summary.TopReferers = append(summary.TopReferers, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("リファラ集計の走査に失敗しました: %w", err)
	}

	return summary, nil
}

// DeleteOlderThan は指定日時より古いイベントを削除し、削除件数を返す。
func (r *PostgresAnalyticsRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM analytics_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("古い分析イベントの削除に失敗しました: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ AnalyticsRepository = (*PostgresAnalyticsRepo)(nil)
