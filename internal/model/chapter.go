package model

import "time"

// Chapter はストーリー内の1チャプターを表す。
// Numberはストーリー内で一意の連番。
// ContentとAudioURLはどちらか一方のみ設定されることが多いが、両方の保持も許容する。
// IsLockedがtrueのチャプターは、アンロック条件を満たさない閲覧者には
// Content/AudioURLを含まない制限ペイロードのみが返される。
type Chapter struct {
	ID        string
	StoryID   string
	Number    int
	Title     string
	Content   string
	AudioURL  string
	IsLocked  bool
	IsDraft   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChapterUnlock はアンロック台帳の1エントリを表す。
// (UserID, ChapterID)ペアの状態遷移は not-unlocked → unlocked の一方向のみで、
// 逆遷移は存在しない（アンロックは恒久的）。
type ChapterUnlock struct {
	ID        string
	UserID    string
	ChapterID string
	CreatedAt time.Time
}
