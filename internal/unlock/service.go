// Package unlock はアンロック台帳の記録とアフィリエイトリダイレクトの
// ビジネスロジックを提供する。
//
// アンロックには2つの経路がある:
//   - 直接経路: 認証済みユーザーが明示的にチャプターをアンロックする
//   - リダイレクト経路: アフィリエイトリンクのクリック時に副作用として
//     ベストエフォートでアンロックを試みる
package unlock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/khotruyen/khotruyen/internal/metrics"
	"github.com/khotruyen/khotruyen/internal/model"
	"github.com/khotruyen/khotruyen/internal/repository"
)

// ClickContext はクリック/アンロック時のリクエストメタデータ。
// 分析イベントにそのまま記録される。
type ClickContext struct {
	IP        string
	UserAgent string
	Referer   string
}

// UnlockResult は直接アンロックの結果。
// Chapterは台帳が変更されたかどうかに関わらず常に全フィールドを持つ。
type UnlockResult struct {
	Chapter         *model.Chapter
	Unlocked        bool
	AlreadyUnlocked bool
}

// RedirectInput はアフィリエイトリダイレクトの入力。
// StoryID/ChapterIDはクエリパラメータ由来で、省略可能。
type RedirectInput struct {
	AffiliateID string
	StoryID     string
	ChapterID   string
}

// Service はアンロックとリダイレクトのビジネスロジックを提供する。
type Service struct {
	unlockRepo    repository.UnlockRepository
	chapterRepo   repository.ChapterRepository
	affiliateRepo repository.AffiliateRepository
	analyticsRepo repository.AnalyticsRepository
	collector     metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(
	unlockRepo repository.UnlockRepository,
	chapterRepo repository.ChapterRepository,
	affiliateRepo repository.AffiliateRepository,
	analyticsRepo repository.AnalyticsRepository,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		unlockRepo:    unlockRepo,
		chapterRepo:   chapterRepo,
		affiliateRepo: affiliateRepo,
		analyticsRepo: analyticsRepo,
		collector:     collector,
	}
}

// Unlock はチャプターの直接アンロックを処理する。
// すでにアンロック済みの場合は新しい記録を作らず成功を返す（冪等）。
// 匿名の閲覧者は台帳を変更できないが、クリックは分析イベントとして記録され、
// チャプター本体は台帳の状態に関わらず返される。
//
// 存在チェックと挿入は個別のクエリで行われ、トランザクションで括られない。
// 同一ユーザーの並行リクエストで重複行が生じうるが、読み取り側は
// 存在クエリのみを使うため観測可能な影響はない。
func (s *Service) Unlock(ctx context.Context, viewer model.Viewer, chapterID string, click ClickContext) (*UnlockResult, error) {
	cs, err := s.chapterRepo.FindByIDWithStory(ctx, chapterID)
	if err != nil {
		return nil, fmt.Errorf("failed to find chapter: %w", err)
	}
	if cs == nil || cs.Chapter.IsDraft {
		return nil, model.NewChapterNotFoundError(chapterID)
	}

	// ロックされていないチャプターは台帳に触れず即座に成功を返す
	if !cs.Chapter.IsLocked {
		return &UnlockResult{Chapter: &cs.Chapter, Unlocked: true}, nil
	}

	// 分析イベント用にストーリーのアフィリエイトリンクを解決する
	link, err := s.affiliateRepo.FindActiveByStoryID(ctx, cs.Story.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find affiliate link: %w", err)
	}
	affiliateID := ""
	if link != nil {
		affiliateID = link.ID
	}

	now := time.Now()

	if !viewer.Authenticated {
		// 匿名ユーザーはアンロックできないがクリックは記録する
		s.appendEvent(ctx, &model.AnalyticsEvent{
			ID:          uuid.New().String(),
			Event:       model.EventChapterUnlock,
			StoryID:     cs.Story.ID,
			ChapterID:   chapterID,
			AffiliateID: affiliateID,
			IP:          click.IP,
			UserAgent:   click.UserAgent,
			Referer:     click.Referer,
			CreatedAt:   now,
		})
		return &UnlockResult{Chapter: &cs.Chapter}, nil
	}

	exists, err := s.unlockRepo.Exists(ctx, viewer.UserID, chapterID)
	if err != nil {
		return nil, fmt.Errorf("failed to check unlock: %w", err)
	}
	if exists {
		return &UnlockResult{Chapter: &cs.Chapter, Unlocked: true, AlreadyUnlocked: true}, nil
	}

	record := &model.ChapterUnlock{
		ID:        uuid.New().String(),
		UserID:    viewer.UserID,
		ChapterID: chapterID,
		CreatedAt: now,
	}
	if err := s.unlockRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record unlock: %w", err)
	}

	s.appendEvent(ctx, &model.AnalyticsEvent{
		ID:          uuid.New().String(),
		Event:       model.EventChapterUnlock,
		UserID:      viewer.UserID,
		StoryID:     cs.Story.ID,
		ChapterID:   chapterID,
		AffiliateID: affiliateID,
		IP:          click.IP,
		UserAgent:   click.UserAgent,
		Referer:     click.Referer,
		CreatedAt:   now,
	})
	s.collector.RecordChapterUnlock("direct")

	slog.Info("chapter unlocked",
		slog.String("user_id", viewer.UserID),
		slog.String("chapter_id", chapterID),
		slog.String("path", "direct"),
	)
	return &UnlockResult{Chapter: &cs.Chapter, Unlocked: true}, nil
}

// RecordClickAndRedirect はアフィリエイトリンクのクリックを処理し、
// リダイレクト先URLを返す。
//
// 挙動:
//   - リンクが存在しない場合は404相当のエラーを返す
//   - リンクが無効化済みの場合は410相当のエラーを返し、分析イベントは記録しない
//   - 有効なリンクはクリックイベントを記録し、閲覧者が認証済みで
//     チャプターが指定されていればベストエフォートでアンロックを試みる
//   - 分析・アンロックの失敗はログに記録して握りつぶし、リダイレクトは常に行う
//     （ユーザーをマネタイズ先へ送ることが最優先）
//
// StoryID/ChapterIDのクエリパラメータが省略された場合はリンク自身の
// 紐付けにフォールバックする。
func (s *Service) RecordClickAndRedirect(ctx context.Context, viewer model.Viewer, input RedirectInput, click ClickContext) (string, error) {
	link, err := s.affiliateRepo.FindByID(ctx, input.AffiliateID)
	if err != nil {
		return "", fmt.Errorf("failed to find affiliate link: %w", err)
	}
	if link == nil {
		return "", model.NewAffiliateNotFoundError(input.AffiliateID)
	}
	if !link.IsActive {
		return "", model.NewAffiliateInactiveError()
	}

	storyID := input.StoryID
	if storyID == "" {
		storyID = link.StoryID
	}
	chapterID := input.ChapterID
	if chapterID == "" {
		chapterID = link.ChapterID
	}

	now := time.Now()
	userID := ""
	if viewer.Authenticated {
		userID = viewer.UserID
	}

	s.appendEvent(ctx, &model.AnalyticsEvent{
		ID:          uuid.New().String(),
		Event:       model.EventAffiliateClick,
		UserID:      userID,
		StoryID:     storyID,
		ChapterID:   chapterID,
		AffiliateID: link.ID,
		IP:          click.IP,
		UserAgent:   click.UserAgent,
		Referer:     click.Referer,
		CreatedAt:   now,
	})
	s.collector.RecordAffiliateClick(link.Provider)

	if viewer.Authenticated && chapterID != "" {
		s.tryUnlock(ctx, viewer, link, chapterID, click)
	}

	return link.TargetURL, nil
}

// tryUnlock はリダイレクト経路でのアンロックをベストエフォートで試みる。
// いかなる失敗もログに記録した上で破棄する。リダイレクト本体は
// この処理の結果に依存しない。
func (s *Service) tryUnlock(ctx context.Context, viewer model.Viewer, link *model.AffiliateLink, chapterID string, click ClickContext) {
	chapter, err := s.chapterRepo.FindByID(ctx, chapterID)
	if err != nil {
		slog.Warn("redirect unlock: failed to find chapter",
			slog.String("chapter_id", chapterID),
			slog.String("error", err.Error()),
		)
		return
	}
	if chapter == nil || !chapter.IsLocked || chapter.IsDraft {
		return
	}

	exists, err := s.unlockRepo.Exists(ctx, viewer.UserID, chapter.ID)
	if err != nil {
		slog.Warn("redirect unlock: failed to check unlock",
			slog.String("user_id", viewer.UserID),
			slog.String("chapter_id", chapter.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if exists {
		return
	}

	now := time.Now()
	record := &model.ChapterUnlock{
		ID:        uuid.New().String(),
		UserID:    viewer.UserID,
		ChapterID: chapter.ID,
		CreatedAt: now,
	}
	if err := s.unlockRepo.Create(ctx, record); err != nil {
		slog.Warn("redirect unlock: failed to record unlock",
			slog.String("user_id", viewer.UserID),
			slog.String("chapter_id", chapter.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.appendEvent(ctx, &model.AnalyticsEvent{
		ID:          uuid.New().String(),
		Event:       model.EventChapterUnlock,
		UserID:      viewer.UserID,
		StoryID:     chapter.StoryID,
		ChapterID:   chapter.ID,
		AffiliateID: link.ID,
		IP:          click.IP,
		UserAgent:   click.UserAgent,
		Referer:     click.Referer,
		CreatedAt:   now,
	})
	s.collector.RecordChapterUnlock("redirect")

	slog.Info("chapter unlocked",
		slog.String("user_id", viewer.UserID),
		slog.String("chapter_id", chapter.ID),
		slog.String("path", "redirect"),
	)
}

// appendEvent は分析イベントを追記する。失敗はログに記録して握りつぶす。
// 分析の欠落よりユーザー操作の完了を優先する。
func (s *Service) appendEvent(ctx context.Context, event *model.AnalyticsEvent) {
	if err := s.analyticsRepo.Append(ctx, event); err != nil {
		slog.Warn("failed to append analytics event",
			slog.String("event", string(event.Event)),
			slog.String("error", err.Error()),
		)
	}
}
