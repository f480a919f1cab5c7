package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/khotruyen/khotruyen/internal/model"
)

// 各PostgresリポジトリがNewで正しく初期化されることを検証
func TestNewPostgresRepos_Initialize(t *testing.T) {
	if NewPostgresUserRepo(nil) == nil {
		t.Fatal("expected non-nil user repo")
	}
	if NewPostgresStoryRepo(nil) == nil {
		t.Fatal("expected non-nil story repo")
	}
	if NewPostgresChapterRepo(nil) == nil {
		t.Fatal("expected non-nil chapter repo")
	}
	if NewPostgresUnlockRepo(nil) == nil {
		t.Fatal("expected non-nil unlock repo")
	}
	if NewPostgresAffiliateRepo(nil) == nil {
		t.Fatal("expected non-nil affiliate repo")
	}
	if NewPostgresAnalyticsRepo(nil) == nil {
		t.Fatal("expected non-nil analytics repo")
	}
}

// nullStringが空文字列を無効なNullStringに変換することを検証
func TestNullString(t *testing.T) {
	if ns := nullString(""); ns.Valid {
		t.Error("empty string should produce invalid NullString")
	}
	if ns := nullString("value"); !ns.Valid || ns.String != "value" {
		t.Errorf("nullString(%q) = %+v", "value", ns)
	}
}

// nullStringValueが無効なNullStringを空文字列に戻すことを検証
func TestNullStringValue(t *testing.T) {
	if v := nullStringValue(sql.NullString{}); v != "" {
		t.Errorf("nullStringValue(invalid) = %q, want empty", v)
	}
	if v := nullStringValue(sql.NullString{String: "x", Valid: true}); v != "x" {
		t.Errorf("nullStringValue(valid) = %q, want %q", v, "x")
	}
}

// アンロックエントリはuser/chapterの関連のみを持つこと
// （一意性はサービス層の存在チェックに委ねられる）
func TestChapterUnlock_Shape(t *testing.T) {
	unlock := &model.ChapterUnlock{
		ID:        "unlock-1",
		UserID:    "user-1",
		ChapterID: "chapter-1",
		CreatedAt: time.Now(),
	}

	if unlock.UserID == "" || unlock.ChapterID == "" {
		t.Fatal("unlock must reference a user and a chapter")
	}
}

// 期限切れリフレッシュトークンの判定基準を検証
func TestRefreshToken_Expiry(t *testing.T) {
	expired := &model.RefreshToken{
		ID:        "rt-1",
		UserID:    "user-1",
		Token:     "opaque",
		ExpiresAt: time.Now().Add(-time.Hour),
	}

	if expired.ExpiresAt.After(time.Now()) {
		t.Error("expected token to be expired")
	}
}
