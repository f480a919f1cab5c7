// Package story はストーリーの登録・更新・一覧取得のビジネスロジックを提供する。
package story

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/khotruyen/khotruyen/internal/model"
	"github.com/khotruyen/khotruyen/internal/repository"
)

// DefaultPageSize はストーリー一覧のデフォルトページサイズ。
const DefaultPageSize = 20

// MaxPageSize はストーリー一覧の最大ページサイズ。
const MaxPageSize = 100

// CreateStoryInput はストーリー作成の入力。
type CreateStoryInput struct {
	Title       string
	Author      string
	Description string
	CoverURL    string
}

// UpdateStoryInput はストーリー更新の入力。nilのフィールドは変更しない。
type UpdateStoryInput struct {
	Title       *string
	Author      *string
	Description *string
	CoverURL    *string
	Status      *model.StoryStatus
}

// StoryPage はページネーション付きのストーリー一覧。
type StoryPage struct {
	Stories []*model.Story
	Total   int
	Offset  int
	Limit   int
}

// Service はストーリーに関するビジネスロジックを提供する。
type Service struct {
	storyRepo repository.StoryRepository
}

// NewService はServiceを生成する。
func NewService(storyRepo repository.StoryRepository) *Service {
	return &Service{storyRepo: storyRepo}
}

// Create はストーリーを作成する。slugはタイトルから生成され、
// 衝突時は連番サフィックスで一意化される。
func (s *Service) Create(ctx context.Context, input CreateStoryInput) (*model.Story, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, model.NewInvalidRequestError("title")
	}

	slug, err := s.uniqueSlug(ctx, title)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	story := &model.Story{
		ID:          uuid.New().String(),
		Slug:        slug,
		Title:       title,
		Author:      strings.TrimSpace(input.Author),
		Description: input.Description,
		CoverURL:    input.CoverURL,
		Status:      model.StoryStatusOngoing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.storyRepo.Create(ctx, story); err != nil {
		return nil, fmt.Errorf("failed to create story: %w", err)
	}

	slog.Info("story created",
		slog.String("story_id", story.ID),
		slog.String("slug", story.Slug),
	)
	return story, nil
}

// Update はストーリーを部分更新する。slugは作成後変更されない。
func (s *Service) Update(ctx context.Context, id string, input UpdateStoryInput) (*model.Story, error) {
	story, err := s.storyRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find story: %w", err)
	}
	if story == nil {
		return nil, model.NewStoryNotFoundError(id)
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, model.NewInvalidRequestError("title")
		}
		story.Title = title
	}
	if input.Author != nil {
		story.Author = strings.TrimSpace(*input.Author)
	}
	if input.Description != nil {
		story.Description = *input.Description
	}
	if input.CoverURL != nil {
		story.CoverURL = *input.CoverURL
	}
	if input.Status != nil {
		switch *input.Status {
		case model.StoryStatusOngoing, model.StoryStatusCompleted, model.StoryStatusHidden:
			story.Status = *input.Status
		default:
			return nil, model.NewInvalidRequestError("status")
		}
	}
	story.UpdatedAt = time.Now()

	if err := s.storyRepo.Update(ctx, story); err != nil {
		return nil, fmt.Errorf("failed to update story: %w", err)
	}

	return story, nil
}

// Delete はストーリーを削除する。チャプターとアンロック記録もCASCADE削除される。
func (s *Service) Delete(ctx context.Context, id string) error {
	story, err := s.storyRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find story: %w", err)
	}
	if story == nil {
		return model.NewStoryNotFoundError(id)
	}

	if err := s.storyRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}

	slog.Info("story deleted", slog.String("story_id", id))
	return nil
}

// GetBySlug はslugで公開ストーリーを取得する。
// 非公開（hidden）のストーリーは一般閲覧者には存在しないものとして扱う。
func (s *Service) GetBySlug(ctx context.Context, slug string, includeHidden bool) (*model.Story, error) {
	story, err := s.storyRepo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to find story by slug: %w", err)
	}
	if story == nil {
		return nil, model.NewStoryNotFoundError(slug)
	}
	if story.Status == model.StoryStatusHidden && !includeHidden {
		return nil, model.NewStoryNotFoundError(slug)
	}
	return story, nil
}

// GetByID はIDでストーリーを取得する。
func (s *Service) GetByID(ctx context.Context, id string) (*model.Story, error) {
	story, err := s.storyRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find story: %w", err)
	}
	if story == nil {
		return nil, model.NewStoryNotFoundError(id)
	}
	return story, nil
}

// List はストーリー一覧をページネーション付きで返す。
func (s *Service) List(ctx context.Context, search string, includeHidden bool, offset, limit int) (*StoryPage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	stories, err := s.storyRepo.List(ctx, search, includeHidden, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}

	total, err := s.storyRepo.Count(ctx, search, includeHidden)
	if err != nil {
		return nil, fmt.Errorf("failed to count stories: %w", err)
	}

	return &StoryPage{
		Stories: stories,
		Total:   total,
		Offset:  offset,
		Limit:   limit,
	}, nil
}

// uniqueSlug はタイトルからslugを生成し、衝突時は連番を付けて一意化する。
func (s *Service) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := Slugify(title)
	if base == "" {
		base = "truyen"
	}

	slug := base
	for i := 2; ; i++ {
		exists, err := s.storyRepo.SlugExists(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

var slugSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify はタイトルをURL安全なslugに変換する。
// ベトナム語のダイアクリティカルマークを除去し（đ→d含む）、
// 英数字以外をハイフンに置き換える。
func Slugify(title string) string {
	lower := strings.ToLower(strings.TrimSpace(title))

	// đはNFD分解で基底文字に戻らないため個別に変換する
	lower = strings.ReplaceAll(lower, "đ", "d")

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(t, lower)
	if err != nil {
		ascii = lower
	}

	slug := slugSeparators.ReplaceAllString(ascii, "-")
	return strings.Trim(slug, "-")
}
