// Package syndication は提携元フィードの登録・管理のビジネスロジックを提供する。
// フェッチ処理本体はworker/fetchパッケージが担う。
package syndication

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/khotruyen/khotruyen/internal/model"
	"github.com/khotruyen/khotruyen/internal/repository"
	"github.com/khotruyen/khotruyen/internal/security"
)

// Service は提携元フィードに関するビジネスロジックを提供する。
type Service struct {
	feedRepo  repository.SourceFeedRepository
	storyRepo repository.StoryRepository
	ssrfGuard security.SSRFGuardService
}

// NewService はServiceを生成する。
func NewService(
	feedRepo repository.SourceFeedRepository,
	storyRepo repository.StoryRepository,
	ssrfGuard security.SSRFGuardService,
) *Service {
	return &Service{
		feedRepo:  feedRepo,
		storyRepo: storyRepo,
		ssrfGuard: ssrfGuard,
	}
}

// Register は提携元フィードをストーリーに紐付けて登録する。
// フィードURLはSSRF検証を通過する必要があり、同一URLの二重登録は拒否される。
// 登録直後のフィードは即時フェッチ対象になる。
func (s *Service) Register(ctx context.Context, storyID, feedURL string) (*model.SourceFeed, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, model.NewInvalidRequestError("URL nguồn trống")
	}

	if err := s.ssrfGuard.ValidateURL(feedURL); err != nil {
		slog.Warn("source feed URL blocked",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewSSRFBlockedError()
	}

	story, err := s.storyRepo.FindByID(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to find story: %w", err)
	}
	if story == nil {
		return nil, model.NewStoryNotFoundError(storyID)
	}

	existing, err := s.feedRepo.FindByFeedURL(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to find source feed by URL: %w", err)
	}
	if existing != nil {
		return nil, model.NewInvalidRequestError("nguồn này đã được đăng ký")
	}

	now := time.Now()
	feed := &model.SourceFeed{
		ID:          uuid.New().String(),
		StoryID:     storyID,
		FeedURL:     feedURL,
		FetchStatus: model.FetchStatusActive,
		NextFetchAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.feedRepo.Create(ctx, feed); err != nil {
		return nil, fmt.Errorf("failed to create source feed: %w", err)
	}

	slog.Info("source feed registered",
		slog.String("source_feed_id", feed.ID),
		slog.String("story_id", storyID),
		slog.String("feed_url", feedURL),
	)
	return feed, nil
}

// Get は指定IDのフィードを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.SourceFeed, error) {
	feed, err := s.feedRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find source feed: %w", err)
	}
	if feed == nil {
		return nil, model.NewSourceFeedNotFoundError(id)
	}
	return feed, nil
}

// List は全フィードを返す。
func (s *Service) List(ctx context.Context) ([]*model.SourceFeed, error) {
	feeds, err := s.feedRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list source feeds: %w", err)
	}
	return feeds, nil
}

// Delete は指定IDのフィードを削除する。
// 取り込み済みのチャプターは削除されない。
func (s *Service) Delete(ctx context.Context, id string) error {
	feed, err := s.feedRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find source feed: %w", err)
	}
	if feed == nil {
		return model.NewSourceFeedNotFoundError(id)
	}

	if err := s.feedRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete source feed: %w", err)
	}

	slog.Info("source feed deleted", slog.String("source_feed_id", id))
	return nil
}

// Resume は停止されたフィードのフェッチを再開する。
// 連続エラー回数とエラーメッセージをリセットし、即時フェッチ対象にする。
// アクティブなフィードへの再開要求はエラーになる。
func (s *Service) Resume(ctx context.Context, id string) (*model.SourceFeed, error) {
	feed, err := s.feedRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find source feed: %w", err)
	}
	if feed == nil {
		return nil, model.NewSourceFeedNotFoundError(id)
	}
	if feed.FetchStatus != model.FetchStatusStopped {
		return nil, model.NewInvalidRequestError("nguồn này đang hoạt động")
	}

	feed.FetchStatus = model.FetchStatusActive
	feed.ConsecutiveErrors = 0
	feed.ErrorMessage = ""
	feed.NextFetchAt = time.Now()
	feed.UpdatedAt = time.Now()

	if err := s.feedRepo.UpdateFetchState(ctx, feed); err != nil {
		return nil, fmt.Errorf("failed to resume source feed: %w", err)
	}

	slog.Info("source feed resumed", slog.String("source_feed_id", id))
	return feed, nil
}
