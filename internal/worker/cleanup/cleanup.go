// Package cleanup は分析イベントと期限切れトークンの自動削除ジョブを提供する。
// 保持期間（デフォルト365日）を超過した分析イベントと、
// 有効期限切れのリフレッシュトークンを日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AnalyticsPruner は古い分析イベントの削除インターフェース。
// repository.AnalyticsRepositoryの部分集合として定義する。
type AnalyticsPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenPruner は期限切れリフレッシュトークンの削除インターフェース。
// repository.RefreshTokenRepositoryの部分集合として定義する。
type TokenPruner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupJob は保持期間を超過したデータの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	analytics     AnalyticsPruner
	tokens        TokenPruner
	logger        *slog.Logger
	RetentionDays int // 分析イベントの保持日数（デフォルト: 365）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は365日。
func NewCleanupJob(analytics AnalyticsPruner, tokens TokenPruner, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		analytics:     analytics,
		tokens:        tokens,
		logger:        logger,
		RetentionDays: 365,
	}
}

// Run は保持期間を超過した分析イベントと期限切れトークンを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	cutoff := time.Now().AddDate(0, 0, -j.RetentionDays)
	eventsDeleted, err := j.analytics.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("分析イベントの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("分析イベントの削除に失敗: %w", err)
	}

	tokensDeleted, err := j.tokens.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("期限切れトークンの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れトークンの削除に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("events_deleted", eventsDeleted),
		slog.Int64("tokens_deleted", tokensDeleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// StartDaily は指定間隔でクリーンアップジョブを定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) StartDaily(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := j.Run(ctx); err != nil {
		j.logger.Error("クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("クリーンアップジョブの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
