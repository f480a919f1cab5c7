// Package comment はコメント投稿とモデレーションのビジネスロジックを提供する。
package comment

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

// MaxBodyLength はサニタイズ後のコメント本文の最大長。
const MaxBodyLength = 2000

// ModerationQueueLimit はモデレーション一覧のデフォルト件数。
const ModerationQueueLimit = 50

// Service はコメントに関するビジネスロジックを提供する。
type Service struct {
	commentRepo repository.CommentRepository
	storyRepo   repository.StoryRepository
	sanitizer   security.ContentSanitizerService
}

// NewService はServiceを生成する。
func NewService(
	commentRepo repository.CommentRepository,
	storyRepo repository.StoryRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		commentRepo: commentRepo,
		storyRepo:   storyRepo,
		sanitizer:   sanitizer,
	}
}

// Post は認証済みユーザーのコメントを投稿する。
// 本文は保存前にサニタイズされ、承認待ち状態で作成される。
func (s *Service) Post(ctx context.Context, viewer model.Viewer, storyID, body string) (*model.Comment, error) {
	if !viewer.Authenticated {
		return nil, model.NewUnauthorizedError()
	}

	story, err := s.storyRepo.FindByID(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to find story: %w", err)
	}
	if story == nil || story.Status == model.StoryStatusHidden {
		return nil, model.NewStoryNotFoundError(storyID)
	}

	sanitized := strings.TrimSpace(s.sanitizer.SanitizeComment(body))
	if sanitized == "" {
		return nil, model.NewInvalidRequestError("body")
	}
	if len(sanitized) > MaxBodyLength {
		return nil, model.NewInvalidRequestError("body")
	}

	now := time.Now()
	comment := &model.Comment{
		ID:        uuid.New().String(),
		StoryID:   storyID,
		UserID:    viewer.UserID,
		Body:      sanitized,
		Status:    model.CommentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	slog.Info("comment posted",
		slog.String("comment_id", comment.ID),
		slog.String("story_id", storyID),
	)
	return comment, nil
}

// ListApproved はストーリーの承認済みコメントを返す。公開API用。
func (s *Service) ListApproved(ctx context.Context, storyID string) ([]*model.Comment, error) {
	comments, err := s.commentRepo.ListByStory(ctx, storyID, model.CommentStatusApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

// ListPending は承認待ちコメントを古い順に返す。モデレーション画面用。
func (s *Service) ListPending(ctx context.Context) ([]*model.Comment, error) {
	comments, err := s.commentRepo.ListByStatus(ctx, model.CommentStatusPending, ModerationQueueLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending comments: %w", err)
	}
	return comments, nil
}

// Moderate はコメントを承認または却下する。
func (s *Service) Moderate(ctx context.Context, id string, approve bool) (*model.Comment, error) {
	comment, err := s.commentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find comment: %w", err)
	}
	if comment == nil {
		return nil, model.NewCommentNotFoundError(id)
	}

	status := model.CommentStatusRejected
	if approve {
		status = model.CommentStatusApproved
	}

	if err := s.commentRepo.UpdateStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("failed to update comment status: %w", err)
	}

	comment.Status = status
	comment.UpdatedAt = time.Now()

	slog.Info("comment moderated",
		slog.String("comment_id", id),
		slog.String("status", string(status)),
	)
	return comment, nil
}

// Delete はコメントを削除する。投稿者本人または管理者のみが削除できる。
func (s *Service) Delete(ctx context.Context, viewer model.Viewer, id string) error {
	comment, err := s.commentRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find comment: %w", err)
	}
	if comment == nil {
		return model.NewCommentNotFoundError(id)
	}

	if !viewer.IsAdmin() && comment.UserID != viewer.UserID {
		return model.NewForbiddenError()
	}

	if err := s.commentRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}

	slog.Info("comment deleted", slog.String("comment_id", id))
	return nil
}
