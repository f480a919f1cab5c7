// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordAffiliateClick(provider string)
	RecordChapterUnlock(path string)
	RecordHTTPStatus(statusCode int)
	RecordFetchSuccess(feedID string)
	RecordFetchFailure(feedID string, reason string)
	RecordFetchLatency(duration time.Duration)
	RecordChaptersImported(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	affiliateClicks  *prometheus.CounterVec
	chapterUnlocks   *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	fetchSuccess     prometheus.Counter
	fetchFail        prometheus.Counter
	fetchLatency     prometheus.Histogram
	chaptersImported prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		affiliateClicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "khotruyen_affiliate_clicks_total",
			Help: "アフィリエイトリンククリックの合計数（プロバイダー別）",
		}, []string{"provider"}),
		chapterUnlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "khotruyen_chapter_unlocks_total",
			Help: "チャプターアンロックの合計数（経路別: direct, redirect）",
		}, []string{"path"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "khotruyen_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "khotruyen_feed_fetch_success_total",
			Help: "ソースフィードフェッチ成功の合計数",
		}),
		fetchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "khotruyen_feed_fetch_fail_total",
			Help: "ソースフィードフェッチ失敗の合計数",
		}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "khotruyen_feed_fetch_latency_seconds",
			Help:    "ソースフィードフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		chaptersImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "khotruyen_chapters_imported_total",
			Help: "フィードから取り込まれたチャプターの合計数",
		}),
	}

	reg.MustRegister(
		c.affiliateClicks,
		c.chapterUnlocks,
		c.httpStatus,
		c.fetchSuccess,
		c.fetchFail,
		c.fetchLatency,
		c.chaptersImported,
	)

	return c
}

// RecordAffiliateClick はアフィリエイトリンククリックを記録する。
func (c *Collector) RecordAffiliateClick(provider string) {
	c.affiliateClicks.WithLabelValues(provider).Inc()
}

// RecordChapterUnlock はチャプターアンロックを記録する。
// pathは "direct"（明示アンロック）または "redirect"（リダイレクト経由）。
func (c *Collector) RecordChapterUnlock(path string) {
	c.chapterUnlocks.WithLabelValues(path).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess(feedID string) {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はフェッチ失敗を記録する。
func (c *Collector) RecordFetchFailure(feedID string, reason string) {
	c.fetchFail.Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordChaptersImported は取り込まれたチャプター数を記録する。
func (c *Collector) RecordChaptersImported(count int) {
	c.chaptersImported.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
