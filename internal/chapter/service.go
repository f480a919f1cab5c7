// Package chapter はチャプターの閲覧制御と管理操作のビジネスロジックを提供する。
package chapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/khotruyen/khotruyen/internal/model"
	"github.com/khotruyen/khotruyen/internal/repository"
)

// View はゲート判定済みのチャプター閲覧結果。
// FullAccessがfalseの場合、ハンドラーはContent/AudioURLを応答に含めない。
type View struct {
	Chapter    *model.Chapter
	Story      *model.Story
	Unlocked   bool
	FullAccess bool
}

// CreateChapterInput はチャプター作成の入力。
// Numberが0の場合はストーリー内の最大番号+1が割り当てられる。
type CreateChapterInput struct {
	StoryID  string
	Number   int
	Title    string
	Content  string
	AudioURL string
	IsLocked bool
	IsDraft  bool
}

// UpdateChapterInput はチャプター更新の入力。nilのフィールドは変更しない。
type UpdateChapterInput struct {
	Title    *string
	Content  *string
	AudioURL *string
	IsLocked *bool
	IsDraft  *bool
}

// Service はチャプターに関するビジネスロジックを提供する。
type Service struct {
	chapterRepo repository.ChapterRepository
	storyRepo   repository.StoryRepository
	unlockRepo  repository.UnlockRepository
}

// NewService はServiceを生成する。
func NewService(
	chapterRepo repository.ChapterRepository,
	storyRepo repository.StoryRepository,
	unlockRepo repository.UnlockRepository,
) *Service {
	return &Service{
		chapterRepo: chapterRepo,
		storyRepo:   storyRepo,
		unlockRepo:  unlockRepo,
	}
}

// GetForViewer はストーリーslugとチャプター番号からゲート判定済みの閲覧結果を返す。
// 非公開ストーリーと下書きチャプターは管理者以外には存在しないものとして扱う。
func (s *Service) GetForViewer(ctx context.Context, storySlug string, number int, viewer model.Viewer) (*View, error) {
	story, err := s.storyRepo.FindBySlug(ctx, storySlug)
	if err != nil {
		return nil, fmt.Errorf("failed to find story: %w", err)
	}
	if story == nil || (story.Status == model.StoryStatusHidden && !viewer.IsAdmin()) {
		return nil, model.NewStoryNotFoundError(storySlug)
	}

	chapter, err := s.chapterRepo.FindByStoryAndNumber(ctx, story.ID, number)
	if err != nil {
		return nil, fmt.Errorf("failed to find chapter: %w", err)
	}
	if chapter == nil || (chapter.IsDraft && !viewer.IsAdmin()) {
		return nil, model.NewChapterNotFoundError(fmt.Sprintf("%s/%d", storySlug, number))
	}

	unlocked := false
	if viewer.Authenticated && chapter.IsLocked {
		unlocked, err = s.unlockRepo.Exists(ctx, viewer.UserID, chapter.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check unlock: %w", err)
		}
	}

	return &View{
		Chapter:    chapter,
		Story:      story,
		Unlocked:   unlocked,
		FullAccess: EvaluateAccess(chapter, viewer, unlocked),
	}, nil
}

// ListForViewer はストーリーのチャプター一覧を返す。
// 一覧はメタデータのみで本文を含まないため、ゲート判定は各チャプターの
// アンロック済みフラグとしてのみ反映される。
func (s *Service) ListForViewer(ctx context.Context, storySlug string, viewer model.Viewer) ([]*View, error) {
	story, err := s.storyRepo.FindBySlug(ctx, storySlug)
	if err != nil {
		return nil, fmt.Errorf("failed to find story: %w", err)
	}
	if story == nil || (story.Status == model.StoryStatusHidden && !viewer.IsAdmin()) {
		return nil, model.NewStoryNotFoundError(storySlug)
	}

	chapters, err := s.chapterRepo.ListByStory(ctx, story.ID, viewer.IsAdmin())
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}

	unlockedSet := map[string]bool{}
	if viewer.Authenticated {
		ids, err := s.unlockRepo.ListChapterIDsByUserAndStory(ctx, viewer.UserID, story.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list unlocks: %w", err)
		}
		for _, id := range ids {
			unlockedSet[id] = true
		}
	}

	views := make([]*View, 0, len(chapters))
	for _, c := range chapters {
		unlocked := unlockedSet[c.ID]
		views = append(views, &View{
			Chapter:    c,
			Story:      story,
			Unlocked:   unlocked,
			FullAccess: EvaluateAccess(c, viewer, unlocked),
		})
	}
	return views, nil
}

// Get はIDでチャプターを取得する。管理操作用。
func (s *Service) Get(ctx context.Context, id string) (*model.Chapter, error) {
	chapter, err := s.chapterRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find chapter: %w", err)
	}
	if chapter == nil {
		return nil, model.NewChapterNotFoundError(id)
	}
	return chapter, nil
}

// Create はチャプターを作成する。
// Numberが0の場合はストーリー内の最大番号+1が割り当てられる。
// 明示指定された番号が既存と重複する場合はエラーを返す。
func (s *Service) Create(ctx context.Context, input CreateChapterInput) (*model.Chapter, error) {
	story, err := s.storyRepo.FindByID(ctx, input.StoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to find story: %w", err)
	}
	if story == nil {
		return nil, model.NewStoryNotFoundError(input.StoryID)
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, model.NewInvalidRequestError("title")
	}
	if input.Number < 0 {
		return nil, model.NewInvalidRequestError("number")
	}

	number := input.Number
	if number == 0 {
		max, err := s.chapterRepo.MaxNumber(ctx, input.StoryID)
		if err != nil {
			return nil, fmt.Errorf("failed to get max chapter number: %w", err)
		}
		number = max + 1
	} else {
		existing, err := s.chapterRepo.FindByStoryAndNumber(ctx, input.StoryID, number)
		if err != nil {
			return nil, fmt.Errorf("failed to check chapter number: %w", err)
		}
		if existing != nil {
			return nil, model.NewDuplicateNumberError(number)
		}
	}

	now := time.Now()
	chapter := &model.Chapter{
		ID:        uuid.New().String(),
		StoryID:   input.StoryID,
		Number:    number,
		Title:     title,
		Content:   input.Content,
		AudioURL:  input.AudioURL,
		IsLocked:  input.IsLocked,
		IsDraft:   input.IsDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.chapterRepo.Create(ctx, chapter); err != nil {
		return nil, fmt.Errorf("failed to create chapter: %w", err)
	}

	slog.Info("chapter created",
		slog.String("chapter_id", chapter.ID),
		slog.String("story_id", chapter.StoryID),
		slog.Int("number", chapter.Number),
	)
	return chapter, nil
}

// Update はチャプターを部分更新する。番号は作成後変更されない。
func (s *Service) Update(ctx context.Context, id string, input UpdateChapterInput) (*model.Chapter, error) {
	chapter, err := s.chapterRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find chapter: %w", err)
	}
	if chapter == nil {
		return nil, model.NewChapterNotFoundError(id)
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, model.NewInvalidRequestError("title")
		}
		chapter.Title = title
	}
	if input.Content != nil {
		chapter.Content = *input.Content
	}
	if input.AudioURL != nil {
		chapter.AudioURL = *input.AudioURL
	}
	if input.IsLocked != nil {
		chapter.IsLocked = *input.IsLocked
	}
	if input.IsDraft != nil {
		chapter.IsDraft = *input.IsDraft
	}
	chapter.UpdatedAt = time.Now()

	if err := s.chapterRepo.Update(ctx, chapter); err != nil {
		return nil, fmt.Errorf("failed to update chapter: %w", err)
	}

	return chapter, nil
}

// Delete はチャプターを削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	chapter, err := s.chapterRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find chapter: %w", err)
	}
	if chapter == nil {
		return model.NewChapterNotFoundError(id)
	}

	if err := s.chapterRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete chapter: %w", err)
	}

	slog.Info("chapter deleted", slog.String("chapter_id", id))
	return nil
}
