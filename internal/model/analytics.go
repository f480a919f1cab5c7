package model

import "time"

// AnalyticsEventType は分析イベントの種別を表す。
type AnalyticsEventType string

const (
	// EventAffiliateClick はアフィリエイトリンクのクリックイベント。
	EventAffiliateClick AnalyticsEventType = "affiliate_click"
	// EventChapterUnlock はチャプターのアンロックイベント。
	EventChapterUnlock AnalyticsEventType = "chapter_unlock"
)

// AnalyticsEvent は追記専用の分析ログエントリを表す。
// アフィリエイトクリックとアンロックのたびに作成され、変更・削除されない。
// UserID/StoryID/ChapterIDは解決できた場合のみ設定される。
type AnalyticsEvent struct {
	ID          string
	Event       AnalyticsEventType
	UserID      string
	StoryID     string
	ChapterID   string
	AffiliateID string
	IP          string
	UserAgent   string
	Referer     string
	CreatedAt   time.Time
}

// AffiliateSummary はアフィリエイトリンク1件のクリック/アンロック集計を表す。
type AffiliateSummary struct {
	AffiliateID string
	Clicks      int
	Unlocks     int
	TopReferers []RefererCount
}

// RefererCount はリファラ別のクリック件数を表す。
type RefererCount struct {
	Referer string
	Count   int
}
