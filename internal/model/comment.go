package model

import "time"

// CommentStatus はコメントのモデレーション状態を表す。
type CommentStatus string

const (
	// CommentStatusPending は承認待ちのコメント。公開一覧には含まれない。
	CommentStatusPending CommentStatus = "pending"
	// CommentStatusApproved は承認済みのコメント。
	CommentStatusApproved CommentStatus = "approved"
	// CommentStatusRejected は却下されたコメント。
	CommentStatusRejected CommentStatus = "rejected"
)

// Comment はストーリーへのユーザーコメントを表す。
// Bodyは保存前にサニタイズ済みのHTML。
type Comment struct {
	ID        string
	StoryID   string
	UserID    string
	Body      string
	Status    CommentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Bookmark はユーザーのストーリーブックマークを表す。
type Bookmark struct {
	ID        string
	UserID    string
	StoryID   string
	CreatedAt time.Time
}
