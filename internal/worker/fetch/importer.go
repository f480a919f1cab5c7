package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/khotruyen/khotruyen/internal/model"
	"github.com/khotruyen/khotruyen/internal/repository"
	"github.com/khotruyen/khotruyen/internal/security"
)

// ChapterImporter はパース済みチャプター候補の取り込みインターフェース。
type ChapterImporter interface {
	// ImportChapters はチャプター候補を下書きチャプターとして取り込み、
	// 新規取り込み件数を返す。取り込み済みGUIDはスキップされる。
	ImportChapters(ctx context.Context, feed *model.SourceFeed, chapters []model.ParsedChapter) (int, error)
}

// Importer はフィードから取得したチャプター候補をDBに取り込む。
// 取り込まれたチャプターは必ず下書き・ロック状態で作成され、
// 管理者のレビューを経て公開される。
type Importer struct {
	feedRepo    repository.SourceFeedRepository
	chapterRepo repository.ChapterRepository
	sanitizer   security.ContentSanitizerService
	logger      *slog.Logger
}

// NewImporter はImporterを生成する。
func NewImporter(
	feedRepo repository.SourceFeedRepository,
	chapterRepo repository.ChapterRepository,
	sanitizer security.ContentSanitizerService,
	logger *slog.Logger,
) *Importer {
	return &Importer{
		feedRepo:    feedRepo,
		chapterRepo: chapterRepo,
		sanitizer:   sanitizer,
		logger:      logger,
	}
}

// ImportChapters はチャプター候補を下書きチャプターとして取り込む。
// 取り込み済みGUIDはスキップし、新規分のみをストーリー末尾の番号で作成する。
// 本文は保存前にサニタイズされる。
func (i *Importer) ImportChapters(ctx context.Context, feed *model.SourceFeed, chapters []model.ParsedChapter) (int, error) {
	imported := 0

	for _, pc := range chapters {
		if pc.GUID == "" {
			i.logger.Warn("GUIDの無いエントリをスキップします",
				slog.String("source_feed_id", feed.ID),
				slog.String("title", pc.Title),
			)
			continue
		}

		exists, err := i.feedRepo.IsImported(ctx, feed.ID, pc.GUID)
		if err != nil {
			return imported, fmt.Errorf("取り込み済み判定に失敗: %w", err)
		}
		if exists {
			continue
		}

		maxNumber, err := i.chapterRepo.MaxNumber(ctx, feed.StoryID)
		if err != nil {
			return imported, fmt.Errorf("チャプター番号の取得に失敗: %w", err)
		}

		now := time.Now()
		chapter := &model.Chapter{
			ID:        uuid.New().String(),
			StoryID:   feed.StoryID,
			Number:    maxNumber + 1,
			Title:     strings.TrimSpace(pc.Title),
			Content:   i.sanitizer.SanitizeChapter(pc.Content),
			IsLocked:  true,
			IsDraft:   true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if chapter.Title == "" {
			chapter.Title = fmt.Sprintf("Chương %d", chapter.Number)
		}

		if err := i.chapterRepo.Create(ctx, chapter); err != nil {
			return imported, fmt.Errorf("チャプターの作成に失敗: %w", err)
		}

		if err := i.feedRepo.MarkImported(ctx, feed.ID, pc.GUID, chapter.ID); err != nil {
			return imported, fmt.Errorf("取り込み記録の作成に失敗: %w", err)
		}

		imported++
	}

	return imported, nil
}

// convertGofeedItems はgofeedの記事をmodel.ParsedChapterに変換する。
func convertGofeedItems(items []*gofeed.Item) []model.ParsedChapter {
	chapters := make([]model.ParsedChapter, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		pc := model.ParsedChapter{
			GUID:    item.GUID,
			Title:   item.Title,
			Content: item.Content,
			Link:    item.Link,
		}

		// Contentが空の場合はDescriptionを使用
		if pc.Content == "" && item.Description != "" {
			pc.Content = item.Description
		}

		// GUIDが無い場合はLinkを識別子として使用
		if pc.GUID == "" {
			pc.GUID = item.Link
		}

		// 公開日時
		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			pc.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			pc.PublishedAt = &t
		}

		chapters = append(chapters, pc)
	}

	return chapters
}
