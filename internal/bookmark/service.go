// Package bookmark はストーリーブックマークのビジネスロジックを提供する。
package bookmark

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/khotruyen/khotruyen/internal/model"
	"github.com/khotruyen/khotruyen/internal/repository"
)

// Service はブックマークに関するビジネスロジックを提供する。
type Service struct {
	bookmarkRepo repository.BookmarkRepository
	storyRepo    repository.StoryRepository
}

// NewService はServiceを生成する。
func NewService(bookmarkRepo repository.BookmarkRepository, storyRepo repository.StoryRepository) *Service {
	return &Service{bookmarkRepo: bookmarkRepo, storyRepo: storyRepo}
}

// Add はストーリーをブックマークする。すでに存在する場合は何もしない（冪等）。
func (s *Service) Add(ctx context.Context, viewer model.Viewer, storyID string) error {
	if !viewer.Authenticated {
		return model.NewUnauthorizedError()
	}

	story, err := s.storyRepo.FindByID(ctx, storyID)
	if err != nil {
		return fmt.Errorf("failed to find story: %w", err)
	}
	if story == nil || story.Status == model.StoryStatusHidden {
		return model.NewStoryNotFoundError(storyID)
	}

	exists, err := s.bookmarkRepo.Exists(ctx, viewer.UserID, storyID)
	if err != nil {
		return fmt.Errorf("failed to check bookmark: %w", err)
	}
	if exists {
		return nil
	}

	bookmark := &model.Bookmark{
		ID:        uuid.New().String(),
		UserID:    viewer.UserID,
		StoryID:   storyID,
		CreatedAt: time.Now(),
	}
	if err := s.bookmarkRepo.Create(ctx, bookmark); err != nil {
		return fmt.Errorf("failed to create bookmark: %w", err)
	}
	return nil
}

// Remove はブックマークを解除する。存在しなくてもエラーにしない（冪等）。
func (s *Service) Remove(ctx context.Context, viewer model.Viewer, storyID string) error {
	if !viewer.Authenticated {
		return model.NewUnauthorizedError()
	}
	if err := s.bookmarkRepo.Delete(ctx, viewer.UserID, storyID); err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}
	return nil
}

// List はユーザーのブックマーク一覧を返す。
func (s *Service) List(ctx context.Context, viewer model.Viewer) ([]*model.Bookmark, error) {
	if !viewer.Authenticated {
		return nil, model.NewUnauthorizedError()
	}
	bookmarks, err := s.bookmarkRepo.ListByUserID(ctx, viewer.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	return bookmarks, nil
}
