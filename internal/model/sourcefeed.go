package model

import "time"

// FetchStatus はソースフィードのフェッチ状態を表す。
type FetchStatus string

const (
	// FetchStatusActive はアクティブなフェッチ状態。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped は停止されたフェッチ状態。
	FetchStatusStopped FetchStatus = "stopped"
)

// SourceFeed は提携元サイトのRSS/Atomフィードを表す。
// 管理者がストーリーに紐付けて登録し、ワーカーが定期的にフェッチして
// 下書きチャプターとして取り込む。
type SourceFeed struct {
	ID                string
	StoryID           string
	FeedURL           string
	Title             string
	ETag              string
	LastModified      string
	FetchStatus       FetchStatus
	ConsecutiveErrors int
	ErrorMessage      string
	NextFetchAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ParsedChapter はフィードからパースされたチャプター候補を表す。
// GUIDは取り込み済み判定に使用する（フィード内で安定な識別子）。
type ParsedChapter struct {
	GUID        string
	Title       string
	Content     string
	Link        string
	PublishedAt *time.Time
}
