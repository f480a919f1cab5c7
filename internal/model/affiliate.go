package model

import "time"

// AffiliateLink は外部のマネタイズ先URLを表す。
// StoryID/ChapterIDは任意の関連付けで、どちらも空でもよい。
// IsActiveがfalseのリンクへのリダイレクト要求にはHTTP 410を返す。
type AffiliateLink struct {
	ID        string
	Provider  string
	TargetURL string
	Label     string
	IsActive  bool
	StoryID   string
	ChapterID string
	CreatedAt time.Time
	UpdatedAt time.Time
}
