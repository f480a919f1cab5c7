package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/khotruyen/khotruyen/internal/model"
	"github.com/khotruyen/khotruyen/internal/repository"
)

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// FetchMetrics はフェッチ結果のメトリクス記録インターフェース。
type FetchMetrics interface {
	RecordFetchSuccess(feedID string)
	RecordFetchFailure(feedID string, reason string)
	RecordFetchLatency(duration time.Duration)
	RecordChaptersImported(count int)
}

// Fetcher は個別フィードのHTTPフェッチとパースを行う。
// ETag/Last-Modifiedを使用した条件付きGET、SSRF検証、
// gofeedによるパース、Importerによるチャプター取り込みを実行する。
type Fetcher struct {
	feedRepo      repository.SourceFeedRepository
	importer      ChapterImporter
	ssrfGuard     SSRFValidator
	collector     FetchMetrics
	logger        *slog.Logger
	timeout       time.Duration
	maxBodySize   int64
	fetchInterval time.Duration
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// fetchIntervalが0以下の場合はデフォルト60分を使用する。
func NewFetcher(
	feedRepo repository.SourceFeedRepository,
	importer ChapterImporter,
	ssrfGuard SSRFValidator,
	collector FetchMetrics,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
	fetchInterval time.Duration,
) *Fetcher {
	if fetchInterval <= 0 {
		fetchInterval = 60 * time.Minute
	}
	return &Fetcher{
		feedRepo:      feedRepo,
		importer:      importer,
		ssrfGuard:     ssrfGuard,
		collector:     collector,
		logger:        logger,
		timeout:       timeout,
		maxBodySize:   maxBodySize,
		fetchInterval: fetchInterval,
	}
}

// Fetch はフィードをフェッチし、結果に応じてフィード状態を更新する。
// SourceFeedFetcherインターフェースを実装する。
func (f *Fetcher) Fetch(ctx context.Context, feed *model.SourceFeed) error {
	start := time.Now()

	// SSRF検証
	if err := f.ssrfGuard.ValidateURL(feed.FeedURL); err != nil {
		f.logger.Error("SSRF検証に失敗しました",
			slog.String("source_feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		f.collector.RecordFetchFailure(feed.ID, "ssrf_blocked")
		ApplyStopFeed(feed, fmt.Sprintf("SSRF検証失敗: %s", err.Error()))
		f.updateState(ctx, feed)
		return fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	// HTTPリクエスト構築
	client := f.ssrfGuard.NewSafeClient(f.timeout, f.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}

	req.Header.Set("User-Agent", "KhoTruyen/1.0 Syndication Worker")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	// 条件付きGET: ETag
	if feed.ETag != "" {
		req.Header.Set("If-None-Match", feed.ETag)
	}
	// 条件付きGET: Last-Modified
	if feed.LastModified != "" {
		req.Header.Set("If-Modified-Since", feed.LastModified)
	}

	// HTTPリクエスト実行
	resp, err := client.Do(req)
	if err != nil {
		f.logger.Error("HTTPリクエストに失敗しました",
			slog.String("source_feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		f.collector.RecordFetchFailure(feed.ID, "http_error")
		ApplyBackoff(feed, fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()))
		f.updateState(ctx, feed)
		return fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)
	f.collector.RecordFetchLatency(duration)

	// HTTPステータスに基づく処理分岐
	result := ClassifyHTTPStatus(resp.StatusCode)

	switch result {
	case FetchResultNotModified:
		// 304: コンテンツ未変更 - next_fetch_atのみ更新
		f.logger.Info("フィードは未変更です（304）",
			slog.String("source_feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		f.collector.RecordFetchSuccess(feed.ID)
		ApplySuccess(feed, f.fetchInterval)
		return f.feedRepo.UpdateFetchState(ctx, feed)

	case FetchResultStop:
		// 404/410/401/403: フェッチ停止
		reason := fmt.Sprintf("HTTPステータス %d によりフェッチを停止しました", resp.StatusCode)
		f.logger.Warn("フィードフェッチを停止します",
			slog.String("source_feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		f.collector.RecordFetchFailure(feed.ID, "http_stop")
		ApplyStopFeed(feed, reason)
		return f.feedRepo.UpdateFetchState(ctx, feed)

	case FetchResultBackoff:
		// 429/5xx: バックオフ
		reason := fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode)
		f.logger.Warn("フィードフェッチにバックオフを適用します",
			slog.String("source_feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", feed.ConsecutiveErrors+1),
		)
		f.collector.RecordFetchFailure(feed.ID, "http_backoff")
		ApplyBackoff(feed, reason)
		return f.feedRepo.UpdateFetchState(ctx, feed)

	case FetchResultOK:
		// 200: 正常フェッチ - 以下で処理を続行
	default:
		f.logger.Warn("予期しないHTTPステータスコード",
			slog.String("source_feed_id", feed.ID),
			slog.Int("http_status", resp.StatusCode),
		)
		f.collector.RecordFetchFailure(feed.ID, "http_unknown")
		ApplyBackoff(feed, fmt.Sprintf("予期しないHTTPステータス: %d", resp.StatusCode))
		return f.feedRepo.UpdateFetchState(ctx, feed)
	}

	// レスポンスボディを読み込み（最大サイズ制限付き）
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		f.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("source_feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
		f.collector.RecordFetchFailure(feed.ID, "read_error")
		ApplyBackoff(feed, fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()))
		return f.feedRepo.UpdateFetchState(ctx, feed)
	}

	// ETag/Last-Modifiedを保存
	if etag := resp.Header.Get("ETag"); etag != "" {
		feed.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		feed.LastModified = lastMod
	}

	// gofeedでフィードをパース
	parser := gofeed.NewParser()
	parsedFeed, err := parser.ParseString(string(body))
	if err != nil {
		// 登録URLがフィードではなくHTMLページだった場合は、
		// headタグからフィードリンクを自動検出してURLを差し替える。
		// 差し替え後は次回フェッチで新URLが使われる。
		if discovered := f.discoverFeedURL(feed, resp.Header.Get("Content-Type"), body); discovered {
			f.updateState(ctx, feed)
			return nil
		}

		f.logger.Error("フィードのパースに失敗しました",
			slog.String("source_feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		f.collector.RecordFetchFailure(feed.ID, "parse_error")
		ApplyParseFailure(feed, err.Error())
		f.updateState(ctx, feed)
		return nil // パース失敗はフェッチエラーとしない（カウントして継続）
	}

	// フィードタイトルを更新
	if parsedFeed.Title != "" {
		feed.Title = parsedFeed.Title
	}

	// チャプター候補に変換して取り込み
	chapters := convertGofeedItems(parsedFeed.Items)
	imported, err := f.importer.ImportChapters(ctx, feed, chapters)
	if err != nil {
		f.logger.Error("チャプターの取り込みに失敗しました",
			slog.String("source_feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
		f.collector.RecordFetchFailure(feed.ID, "import_error")
		ApplyParseFailure(feed, fmt.Sprintf("取り込み失敗: %s", err.Error()))
		f.updateState(ctx, feed)
		return nil
	}

	if imported > 0 {
		f.collector.RecordChaptersImported(imported)
	}
	f.collector.RecordFetchSuccess(feed.ID)
	ApplySuccess(feed, f.fetchInterval)

	if err := f.feedRepo.UpdateFetchState(ctx, feed); err != nil {
		f.logger.Error("フィード状態の更新に失敗しました",
			slog.String("source_feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
		return err
	}

	f.logger.Info("フィードフェッチが完了しました",
		slog.String("source_feed_id", feed.ID),
		slog.String("feed_url", feed.FeedURL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("chapters_imported", imported),
		slog.Int("entries_total", len(chapters)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// discoverFeedURL はHTMLページからフィードリンクを自動検出し、
// 検出できた場合はフィードURLを差し替えてtrueを返す。
// 新URLは次回スケジュールで即時フェッチされる。
func (f *Fetcher) discoverFeedURL(feed *model.SourceFeed, contentType string, body []byte) bool {
	if !isHTMLContentType(contentType) {
		return false
	}

	candidates := feedLinksFromHTML(body, feed.FeedURL)
	best := selectBestFeedLink(candidates, feed.FeedURL)
	if best == nil {
		return false
	}

	if err := f.ssrfGuard.ValidateURL(best.URL); err != nil {
		f.logger.Warn("自動検出したフィードURLがSSRF検証に失敗しました",
			slog.String("source_feed_id", feed.ID),
			slog.String("discovered_url", best.URL),
			slog.String("error", err.Error()),
		)
		return false
	}

	f.logger.Info("HTMLページからフィードURLを自動検出しました",
		slog.String("source_feed_id", feed.ID),
		slog.String("page_url", feed.FeedURL),
		slog.String("discovered_url", best.URL),
	)

	feed.FeedURL = best.URL
	// 条件付きGETの状態は旧URLのものなのでクリアする
	feed.ETag = ""
	feed.LastModified = ""
	feed.ConsecutiveErrors = 0
	feed.ErrorMessage = ""
	feed.NextFetchAt = time.Now()
	feed.UpdatedAt = time.Now()
	return true
}

// updateState はフィード状態を更新し、失敗はログに記録するだけに留める。
func (f *Fetcher) updateState(ctx context.Context, feed *model.SourceFeed) {
	if err := f.feedRepo.UpdateFetchState(ctx, feed); err != nil {
		f.logger.Error("フィード状態の更新に失敗しました",
			slog.String("source_feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
	}
}
