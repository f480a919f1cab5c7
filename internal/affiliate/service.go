// Package affiliate はアフィリエイトリンクの管理と集計のビジネスロジックを提供する。
package affiliate

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

// TopReferersLimit は集計で返すリファラの上位件数。
const TopReferersLimit = 10

// CreateLinkInput はアフィリエイトリンク作成の入力。
type CreateLinkInput struct {
	Provider  string
	TargetURL string
	Label     string
	StoryID   string
	ChapterID string
}

// UpdateLinkInput はアフィリエイトリンク更新の入力。nilのフィールドは変更しない。
type UpdateLinkInput struct {
	Provider  *string
	TargetURL *string
	Label     *string
	IsActive  *bool
	StoryID   *string
	ChapterID *string
}

// Service はアフィリエイトリンクに関するビジネスロジックを提供する。
type Service struct {
	affiliateRepo repository.AffiliateRepository
	analyticsRepo repository.AnalyticsRepository
	ssrfGuard     security.SSRFGuardService
}

// NewService はServiceを生成する。
func NewService(
	affiliateRepo repository.AffiliateRepository,
	analyticsRepo repository.AnalyticsRepository,
	ssrfGuard security.SSRFGuardService,
) *Service {
	return &Service{
		affiliateRepo: affiliateRepo,
		analyticsRepo: analyticsRepo,
		ssrfGuard:     ssrfGuard,
	}
}

// Create はアフィリエイトリンクを作成する。
// target_urlはスキームとホストの静的検証に加え、内部ネットワーク宛を拒否する。
func (s *Service) Create(ctx context.Context, input CreateLinkInput) (*model.AffiliateLink, error) {
	provider := strings.TrimSpace(input.Provider)
	if provider == "" {
		return nil, model.NewInvalidRequestError("provider")
	}
	if err := s.validateTargetURL(input.TargetURL); err != nil {
		return nil, err
	}

	now := time.Now()
	link := &model.AffiliateLink{
		ID:        uuid.New().String(),
		Provider:  provider,
		TargetURL: input.TargetURL,
		Label:     strings.TrimSpace(input.Label),
		IsActive:  true,
		StoryID:   input.StoryID,
		ChapterID: input.ChapterID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.affiliateRepo.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to create affiliate link: %w", err)
	}

	slog.Info("affiliate link created",
		slog.String("affiliate_id", link.ID),
		slog.String("provider", link.Provider),
	)
	return link, nil
}

// Update はアフィリエイトリンクを部分更新する。
// IsActiveをfalseにすると以後のリダイレクト要求は410になるが、
// 過去のアンロック済み状態には影響しない。
func (s *Service) Update(ctx context.Context, id string, input UpdateLinkInput) (*model.AffiliateLink, error) {
	link, err := s.affiliateRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find affiliate link: %w", err)
	}
	if link == nil {
		return nil, model.NewAffiliateNotFoundError(id)
	}

	if input.Provider != nil {
		provider := strings.TrimSpace(*input.Provider)
		if provider == "" {
			return nil, model.NewInvalidRequestError("provider")
		}
		link.Provider = provider
	}
	if input.TargetURL != nil {
		if err := s.validateTargetURL(*input.TargetURL); err != nil {
			return nil, err
		}
		link.TargetURL = *input.TargetURL
	}
	if input.Label != nil {
		link.Label = strings.TrimSpace(*input.Label)
	}
	if input.IsActive != nil {
		link.IsActive = *input.IsActive
	}
	if input.StoryID != nil {
		link.StoryID = *input.StoryID
	}
	if input.ChapterID != nil {
		link.ChapterID = *input.ChapterID
	}
	link.UpdatedAt = time.Now()

	if err := s.affiliateRepo.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to update affiliate link: %w", err)
	}

	return link, nil
}

// Delete はアフィリエイトリンクを削除する。
// 分析イベントは残る（affiliate_idは外部キーではない）。
func (s *Service) Delete(ctx context.Context, id string) error {
	link, err := s.affiliateRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find affiliate link: %w", err)
	}
	if link == nil {
		return model.NewAffiliateNotFoundError(id)
	}

	if err := s.affiliateRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete affiliate link: %w", err)
	}

	slog.Info("affiliate link deleted", slog.String("affiliate_id", id))
	return nil
}

// Get はIDでアフィリエイトリンクを取得する。
func (s *Service) Get(ctx context.Context, id string) (*model.AffiliateLink, error) {
	link, err := s.affiliateRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find affiliate link: %w", err)
	}
	if link == nil {
		return nil, model.NewAffiliateNotFoundError(id)
	}
	return link, nil
}

// List は全アフィリエイトリンクを返す。
func (s *Service) List(ctx context.Context) ([]*model.AffiliateLink, error) {
	links, err := s.affiliateRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list affiliate links: %w", err)
	}
	return links, nil
}

// Summary は指定リンクのクリック/アンロック集計を返す。
// 削除済みリンクの集計も参照できるよう、リンクの存在チェックは行わない。
func (s *Service) Summary(ctx context.Context, affiliateID string) (*model.AffiliateSummary, error) {
	summary, err := s.analyticsRepo.SummaryByAffiliate(ctx, affiliateID, TopReferersLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize affiliate: %w", err)
	}
	return summary, nil
}

// validateTargetURL はtarget_urlの安全性を検証する。
func (s *Service) validateTargetURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return model.NewInvalidTargetURLError("URL trống")
	}
	if err := s.ssrfGuard.ValidateURL(rawURL); err != nil {
		return model.NewSSRFBlockedError()
	}
	return nil
}
