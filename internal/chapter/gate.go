package chapter

import "github.com/khotruyen/khotruyen/internal/model"

// EvaluateAccess はチャプターへのアクセス可否を判定する。
// trueの場合はContent/AudioURLを含む完全ペイロード、
// falseの場合はそれらを含まない制限ペイロードを返すべきことを意味する。
//
// 判定順序:
//  1. ロックされていないチャプターは誰でも閲覧できる
//  2. 管理者は常に閲覧できる
//  3. 認証済みユーザーはアンロック台帳に記録があれば閲覧できる
//  4. それ以外（匿名、未アンロック）は制限される
//
// 判定は閲覧のたびに行われ、結果はキャッシュされない。
// リンクの後からの無効化はアンロック済み状態に影響しない
// （台帳の記録はアンロック時点で確定する）。
func EvaluateAccess(chapter *model.Chapter, viewer model.Viewer, unlocked bool) bool {
	if !chapter.IsLocked {
		return true
	}
	if viewer.IsAdmin() {
		return true
	}
	return viewer.Authenticated && unlocked
}
