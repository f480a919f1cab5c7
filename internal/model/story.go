package model

import "time"

// StoryStatus はストーリーの公開状態を表す。
type StoryStatus string

const (
	// StoryStatusOngoing は連載中のストーリー。
	StoryStatusOngoing StoryStatus = "ongoing"
	// StoryStatusCompleted は完結済みのストーリー。
	StoryStatusCompleted StoryStatus = "completed"
	// StoryStatusHidden は非公開のストーリー。一覧・詳細APIから除外される。
	StoryStatusHidden StoryStatus = "hidden"
)

// Story は物語（テキスト小説またはオーディオブック）を表す。
// Slugはタイトルから生成され、全ストーリーの中で一意。
type Story struct {
	ID          string
	Slug        string
	Title       string
	Author      string
	Description string
	CoverURL    string
	Status      StoryStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
