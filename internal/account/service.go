// Package account はプロフィール参照と退会のビジネスロジックを提供する。
package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/khotruyen/khotruyen/internal/model"
	"github.com/khotruyen/khotruyen/internal/repository"
)

// Service はアカウントに関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	refreshRepo repository.RefreshTokenRepository
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, refreshRepo repository.RefreshTokenRepository) *Service {
	return &Service{userRepo: userRepo, refreshRepo: refreshRepo}
}

// Profile は閲覧者自身のプロフィールを返す。
func (s *Service) Profile(ctx context.Context, viewer model.Viewer) (*model.User, error) {
	if !viewer.Authenticated {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByID(ctx, viewer.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Withdraw は閲覧者自身のアカウントを削除する。
// 全リフレッシュトークンを破棄した上でユーザーを削除する。
// identities、chapter_unlocks、comments、bookmarksはCASCADE削除される。
// 分析イベントは匿名化された記録として残る（user_idは外部キーではない）。
func (s *Service) Withdraw(ctx context.Context, viewer model.Viewer) error {
	if !viewer.Authenticated {
		return model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByID(ctx, viewer.UserID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	if err := s.refreshRepo.DeleteByUserID(ctx, viewer.UserID); err != nil {
		return fmt.Errorf("failed to delete refresh tokens: %w", err)
	}
	if err := s.userRepo.DeleteByID(ctx, viewer.UserID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("user withdrawn", slog.String("user_id", viewer.UserID))
	return nil
}
