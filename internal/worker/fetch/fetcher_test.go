package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/khotruyen/khotruyen/internal/model"
	"github.com/khotruyen/khotruyen/internal/security"
)

type mockSourceFeedRepo struct {
	updateFetchStateFn func(ctx context.Context, feed *model.SourceFeed) error
	isImportedFn       func(ctx context.Context, sourceFeedID, guid string) (bool, error)
	markImportedFn     func(ctx context.Context, sourceFeedID, guid, chapterID string) error
	listDueForFetchFn  func(ctx context.Context) ([]*model.SourceFeed, error)
}

func (m *mockSourceFeedRepo) FindByID(ctx context.Context, id string) (*model.SourceFeed, error) {
	return nil, nil
}
func (m *mockSourceFeedRepo) FindByFeedURL(ctx context.Context, feedURL string) (*model.SourceFeed, error) {
	return nil, nil
}
func (m *mockSourceFeedRepo) Create(ctx context.Context, feed *model.SourceFeed) error { return nil }
func (m *mockSourceFeedRepo) DeleteByID(ctx context.Context, id string) error          { return nil }
func (m *mockSourceFeedRepo) ListAll(ctx context.Context) ([]*model.SourceFeed, error) {
	return nil, nil
}
func (m *mockSourceFeedRepo) ListDueForFetch(ctx context.Context) ([]*model.SourceFeed, error) {
	if m.listDueForFetchFn != nil {
		return m.listDueForFetchFn(ctx)
	}
	return nil, nil
}
func (m *mockSourceFeedRepo) UpdateFetchState(ctx context.Context, feed *model.SourceFeed) error {
	if m.updateFetchStateFn != nil {
		return m.updateFetchStateFn(ctx, feed)
	}
	return nil
}
func (m *mockSourceFeedRepo) IsImported(ctx context.Context, sourceFeedID, guid string) (bool, error) {
	if m.isImportedFn != nil {
		return m.isImportedFn(ctx, sourceFeedID, guid)
	}
	return false, nil
}
func (m *mockSourceFeedRepo) MarkImported(ctx context.Context, sourceFeedID, guid, chapterID string) error {
	if m.markImportedFn != nil {
		return m.markImportedFn(ctx, sourceFeedID, guid, chapterID)
	}
	return nil
}

type mockImporter struct {
	importFn func(ctx context.Context, feed *model.SourceFeed, chapters []model.ParsedChapter) (int, error)
}

func (m *mockImporter) ImportChapters(ctx context.Context, feed *model.SourceFeed, chapters []model.ParsedChapter) (int, error) {
	return m.importFn(ctx, feed, chapters)
}

// allowAllSSRF はテスト用にすべてのURLを許可する。
type allowAllSSRF struct{}

func (allowAllSSRF) ValidateURL(rawURL string) error { return nil }
func (allowAllSSRF) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

type nopMetrics struct {
	successes int
	failures  []string
	imported  int
}

func (m *nopMetrics) RecordFetchSuccess(feedID string)                { m.successes++ }
func (m *nopMetrics) RecordFetchFailure(feedID string, reason string) { m.failures = append(m.failures, reason) }
func (m *nopMetrics) RecordFetchLatency(duration time.Duration)       {}
func (m *nopMetrics) RecordChaptersImported(count int)                { m.imported += count }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Truyện Tiên Nghịch</title>
    <item>
      <title>Chương 101</title>
      <guid>chap-101</guid>
      <description>&lt;p&gt;Nội dung chương&lt;/p&gt;</description>
    </item>
    <item>
      <title>Chương 102</title>
      <guid>chap-102</guid>
      <description>&lt;p&gt;Nội dung tiếp theo&lt;/p&gt;</description>
    </item>
  </channel>
</rss>`

func newTestFetcher(repo *mockSourceFeedRepo, importer ChapterImporter, collector FetchMetrics) *Fetcher {
	return NewFetcher(repo, importer, allowAllSSRF{}, collector, testLogger(),
		10*time.Second, 1<<20, time.Hour)
}

// 200応答でフィードがパースされ、取り込みと状態リセットが行われることを検証
func TestFetcher_Fetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v2"`)
		w.Write([]byte(sampleRSS))
	}))
	defer server.Close()

	var updated *model.SourceFeed
	repo := &mockSourceFeedRepo{
		updateFetchStateFn: func(ctx context.Context, feed *model.SourceFeed) error {
			updated = feed
			return nil
		},
	}
	var gotChapters []model.ParsedChapter
	importer := &mockImporter{
		importFn: func(ctx context.Context, feed *model.SourceFeed, chapters []model.ParsedChapter) (int, error) {
			gotChapters = chapters
			return len(chapters), nil
		},
	}
	collector := &nopMetrics{}

	feed := &model.SourceFeed{
		ID:                "feed-1",
		StoryID:           "story-1",
		FeedURL:           server.URL,
		FetchStatus:       model.FetchStatusActive,
		ConsecutiveErrors: 3,
	}

	if err := newTestFetcher(repo, importer, collector).Fetch(context.Background(), feed); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if len(gotChapters) != 2 {
		t.Fatalf("chapters = %d, want 2", len(gotChapters))
	}
	if gotChapters[0].GUID != "chap-101" {
		t.Errorf("GUID = %q", gotChapters[0].GUID)
	}
	if updated == nil {
		t.Fatal("UpdateFetchState was not called")
	}
	if updated.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", updated.ConsecutiveErrors)
	}
	if updated.ETag != `"v2"` {
		t.Errorf("ETag = %q", updated.ETag)
	}
	if updated.Title != "Truyện Tiên Nghịch" {
		t.Errorf("Title = %q", updated.Title)
	}
	if collector.successes != 1 || collector.imported != 2 {
		t.Errorf("metrics: successes = %d, imported = %d", collector.successes, collector.imported)
	}
}

// ETag/Last-Modifiedが条件付きGETヘッダーとして送信されることを検証
func TestFetcher_Fetch_ConditionalGet(t *testing.T) {
	var gotIfNoneMatch, gotIfModifiedSince string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIfNoneMatch = r.Header.Get("If-None-Match")
		gotIfModifiedSince = r.Header.Get("If-Modified-Since")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	repo := &mockSourceFeedRepo{}
	collector := &nopMetrics{}
	importer := &mockImporter{importFn: func(ctx context.Context, feed *model.SourceFeed, chapters []model.ParsedChapter) (int, error) {
		t.Error("importer should not be called on 304")
		return 0, nil
	}}

	feed := &model.SourceFeed{
		ID:           "feed-1",
		FeedURL:      server.URL,
		ETag:         `"v1"`,
		LastModified: "Mon, 02 Jan 2006 15:04:05 GMT",
	}

	if err := newTestFetcher(repo, importer, collector).Fetch(context.Background(), feed); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if gotIfNoneMatch != `"v1"` {
		t.Errorf("If-None-Match = %q", gotIfNoneMatch)
	}
	if gotIfModifiedSince != "Mon, 02 Jan 2006 15:04:05 GMT" {
		t.Errorf("If-Modified-Since = %q", gotIfModifiedSince)
	}
	if collector.successes != 1 {
		t.Errorf("successes = %d, want 1", collector.successes)
	}
}

// 410応答でフェッチが停止されることを検証
func TestFetcher_Fetch_GoneStopsFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	var updated *model.SourceFeed
	repo := &mockSourceFeedRepo{
		updateFetchStateFn: func(ctx context.Context, feed *model.SourceFeed) error {
			updated = feed
			return nil
		},
	}

	feed := &model.SourceFeed{ID: "feed-1", FeedURL: server.URL, FetchStatus: model.FetchStatusActive}

	importer := &mockImporter{importFn: func(ctx context.Context, feed *model.SourceFeed, chapters []model.ParsedChapter) (int, error) {
		return 0, nil
	}}
	if err := newTestFetcher(repo, importer, &nopMetrics{}).Fetch(context.Background(), feed); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if updated == nil || updated.FetchStatus != model.FetchStatusStopped {
		t.Errorf("feed not stopped: %+v", updated)
	}
}

// 500応答でバックオフが適用されることを検証
func TestFetcher_Fetch_ServerErrorBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var updated *model.SourceFeed
	repo := &mockSourceFeedRepo{
		updateFetchStateFn: func(ctx context.Context, feed *model.SourceFeed) error {
			updated = feed
			return nil
		},
	}

	feed := &model.SourceFeed{ID: "feed-1", FeedURL: server.URL, FetchStatus: model.FetchStatusActive}

	importer := &mockImporter{importFn: func(ctx context.Context, feed *model.SourceFeed, chapters []model.ParsedChapter) (int, error) {
		return 0, nil
	}}
	collector := &nopMetrics{}
	if err := newTestFetcher(repo, importer, collector).Fetch(context.Background(), feed); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if updated == nil {
		t.Fatal("UpdateFetchState was not called")
	}
	if updated.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", updated.ConsecutiveErrors)
	}
	if updated.FetchStatus != model.FetchStatusActive {
		t.Errorf("FetchStatus = %q, want active", updated.FetchStatus)
	}
	if !updated.NextFetchAt.After(time.Now().Add(25 * time.Minute)) {
		t.Errorf("NextFetchAt = %v, want >= 30m from now", updated.NextFetchAt)
	}
	if len(collector.failures) != 1 || collector.failures[0] != "http_backoff" {
		t.Errorf("failures = %v", collector.failures)
	}
}

// 不正なXMLでパース失敗が記録され、エラーは返らないことを検証
func TestFetcher_Fetch_ParseFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not a feed"))
	}))
	defer server.Close()

	var updated *model.SourceFeed
	repo := &mockSourceFeedRepo{
		updateFetchStateFn: func(ctx context.Context, feed *model.SourceFeed) error {
			updated = feed
			return nil
		},
	}

	feed := &model.SourceFeed{ID: "feed-1", FeedURL: server.URL, FetchStatus: model.FetchStatusActive}

	importer := &mockImporter{importFn: func(ctx context.Context, feed *model.SourceFeed, chapters []model.ParsedChapter) (int, error) {
		return 0, nil
	}}
	if err := newTestFetcher(repo, importer, &nopMetrics{}).Fetch(context.Background(), feed); err != nil {
		t.Fatalf("Fetch() should not return error on parse failure, got %v", err)
	}

	if updated == nil || updated.ConsecutiveErrors != 1 {
		t.Errorf("parse failure not counted: %+v", updated)
	}
	if updated != nil && !strings.Contains(updated.ErrorMessage, "パース失敗") {
		t.Errorf("ErrorMessage = %q", updated.ErrorMessage)
	}
}

// SSRF検証に失敗したフィードが停止されることを検証
func TestFetcher_Fetch_SSRFBlocked(t *testing.T) {
	var updated *model.SourceFeed
	repo := &mockSourceFeedRepo{
		updateFetchStateFn: func(ctx context.Context, feed *model.SourceFeed) error {
			updated = feed
			return nil
		},
	}
	importer := &mockImporter{importFn: func(ctx context.Context, feed *model.SourceFeed, chapters []model.ParsedChapter) (int, error) {
		return 0, nil
	}}

	// 本物のSSRFガードで内部アドレスを検証
	fetcher := NewFetcher(repo, importer, security.NewSSRFGuard(), &nopMetrics{}, testLogger(),
		10*time.Second, 1<<20, time.Hour)

	feed := &model.SourceFeed{ID: "feed-1", FeedURL: "http://169.254.169.254/meta", FetchStatus: model.FetchStatusActive}

	if err := fetcher.Fetch(context.Background(), feed); err == nil {
		t.Fatal("Fetch() expected error for internal address")
	}

	if updated == nil || updated.FetchStatus != model.FetchStatusStopped {
		t.Errorf("feed not stopped: %+v", updated)
	}
}
