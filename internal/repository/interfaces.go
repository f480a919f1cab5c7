// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/khotruyen/khotruyen/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// OAuth経由の新規登録で使用する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、refresh_tokens、chapter_unlocks等はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// RefreshTokenRepository はリフレッシュトークンの永続化インターフェース。
type RefreshTokenRepository interface {
	// Create はリフレッシュトークンを作成する。
	Create(ctx context.Context, token *model.RefreshToken) error
	// FindByToken はトークン値でリフレッシュトークンを取得する。
	// 期限切れまたは未登録の場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.RefreshToken, error)
	// DeleteByToken は指定トークンを削除する。ログアウトとローテーションで使用する。
	DeleteByToken(ctx context.Context, token string) error
	// DeleteByUserID は指定ユーザーの全トークンを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れトークンを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// StoryRepository はストーリーデータの永続化インターフェース。
type StoryRepository interface {
	// FindByID は指定IDのストーリーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Story, error)

	// FindBySlug はslugでストーリーを検索する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Story, error)

	// SlugExists はslugが使用済みかを返す。slug生成の一意性ループで使用する。
	SlugExists(ctx context.Context, slug string) (bool, error)

	// Create はストーリーを作成する。
	Create(ctx context.Context, story *model.Story) error

	// Update はストーリー情報を更新する。
	Update(ctx context.Context, story *model.Story) error

	// DeleteByID は指定IDのストーリーを削除する。チャプターはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// List は公開ストーリー一覧をオフセットページネーションで返す。
	// searchが空でない場合はタイトルの部分一致で絞り込む。
	// includeHiddenがfalseの場合はstatus='hidden'を除外する。
	List(ctx context.Context, search string, includeHidden bool, offset, limit int) ([]*model.Story, error)

	// Count はListと同一条件での総件数を返す。
	Count(ctx context.Context, search string, includeHidden bool) (int, error)
}

// ChapterWithStory はチャプターと所属ストーリーを結合した読み取り結果。
type ChapterWithStory struct {
	Chapter model.Chapter
	Story   model.Story
}

// ChapterRepository はチャプターデータの永続化インターフェース。
type ChapterRepository interface {
	// FindByID は指定IDのチャプターを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Chapter, error)

	// FindByIDWithStory は指定IDのチャプターを所属ストーリー付きで取得する。
	// 見つからない場合はnilを返す。
	FindByIDWithStory(ctx context.Context, id string) (*ChapterWithStory, error)

	// FindByStoryAndNumber はストーリーIDとチャプター番号でチャプターを検索する。
	// 見つからない場合はnilを返す。
	FindByStoryAndNumber(ctx context.Context, storyID string, number int) (*model.Chapter, error)

	// ListByStory はストーリーの全チャプターを番号昇順で返す。
	// includeDraftsがfalseの場合は下書きを除外する。
	ListByStory(ctx context.Context, storyID string, includeDrafts bool) ([]*model.Chapter, error)

	// MaxNumber はストーリー内の最大チャプター番号を返す。チャプターが無い場合は0。
	MaxNumber(ctx context.Context, storyID string) (int, error)

	// Create はチャプターを作成する。
	Create(ctx context.Context, chapter *model.Chapter) error

	// Update はチャプター情報を更新する。
	Update(ctx context.Context, chapter *model.Chapter) error

	// DeleteByID は指定IDのチャプターを削除する（ハードデリート）。
	DeleteByID(ctx context.Context, id string) error
}

// UnlockRepository はアンロック台帳の永続化インターフェース。
type UnlockRepository interface {
	// Exists は(userID, chapterID)のアンロック関係が存在するかを返す。
	Exists(ctx context.Context, userID, chapterID string) (bool, error)

	// Create はアンロック関係を作成する。
	// 一意性は呼び出し側の存在チェックで担保される前提で、
	// ストレージ層の一意制約は持たない。チェックと挿入はトランザクションで
	// 括られないため、並行時に重複行が生じうるが読み取りには影響しない。
	Create(ctx context.Context, unlock *model.ChapterUnlock) error

	// ListChapterIDsByUserAndStory はユーザーがアンロック済みの
	// 指定ストーリー内チャプターID一覧を返す。
	ListChapterIDsByUserAndStory(ctx context.Context, userID, storyID string) ([]string, error)
}

// AffiliateRepository はアフィリエイトリンクの永続化インターフェース。
type AffiliateRepository interface {
	// FindByID は指定IDのリンクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.AffiliateLink, error)

	// FindActiveByStoryID はストーリーに紐付く有効なリンクを1件返す。
	// 見つからない場合はnilを返す。
	FindActiveByStoryID(ctx context.Context, storyID string) (*model.AffiliateLink, error)

	// List は全リンクを作成日時降順で返す。
	List(ctx context.Context) ([]*model.AffiliateLink, error)

	// Create はリンクを作成する。
	Create(ctx context.Context, link *model.AffiliateLink) error

	// Update はリンク情報を更新する。
	Update(ctx context.Context, link *model.AffiliateLink) error

	// DeleteByID は指定IDのリンクを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// AnalyticsRepository は分析イベントの永続化インターフェース。追記専用。
type AnalyticsRepository interface {
	// Append はイベントを追記する。イベントの変更・削除APIは提供しない。
	Append(ctx context.Context, event *model.AnalyticsEvent) error

	// SummaryByAffiliate は指定リンクのクリック/アンロック集計を返す。
	// TopReferersはクリック件数上位topN件。
	SummaryByAffiliate(ctx context.Context, affiliateID string, topN int) (*model.AffiliateSummary, error)

	// DeleteOlderThan は指定日時より古いイベントを削除し、削除件数を返す。
	// 保持期間超過分の日次クリーンアップで使用する。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CommentRepository はコメントの永続化インターフェース。
type CommentRepository interface {
	// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Comment, error)

	// Create はコメントを作成する。
	Create(ctx context.Context, comment *model.Comment) error

	// UpdateStatus はコメントのモデレーション状態を更新する。
	UpdateStatus(ctx context.Context, id string, status model.CommentStatus) error

	// ListByStory はストーリーのコメントを作成日時降順で返す。
	// statusが空でない場合はその状態のみに絞り込む。
	ListByStory(ctx context.Context, storyID string, status model.CommentStatus) ([]*model.Comment, error)

	// ListByStatus は全ストーリー横断で指定状態のコメントを返す。モデレーション画面用。
	ListByStatus(ctx context.Context, status model.CommentStatus, limit int) ([]*model.Comment, error)

	// DeleteByID は指定IDのコメントを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// BookmarkRepository はブックマークの永続化インターフェース。
type BookmarkRepository interface {
	// Exists は(userID, storyID)のブックマークが存在するかを返す。
	Exists(ctx context.Context, userID, storyID string) (bool, error)

	// Create はブックマークを作成する。
	Create(ctx context.Context, bookmark *model.Bookmark) error

	// Delete は(userID, storyID)のブックマークを削除する。
	Delete(ctx context.Context, userID, storyID string) error

	// ListByUserID はユーザーのブックマーク一覧を作成日時降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Bookmark, error)
}

// SourceFeedRepository は提携元フィードの永続化インターフェース。
type SourceFeedRepository interface {
	// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.SourceFeed, error)

	// FindByFeedURL はフィードURLでフィードを検索する。見つからない場合はnilを返す。
	FindByFeedURL(ctx context.Context, feedURL string) (*model.SourceFeed, error)

	// Create はフィードを作成する。
	Create(ctx context.Context, feed *model.SourceFeed) error

	// DeleteByID は指定IDのフィードを削除する。
	DeleteByID(ctx context.Context, id string) error

	// ListAll は全フィードを作成日時の降順で取得する。管理画面用。
	ListAll(ctx context.Context) ([]*model.SourceFeed, error)

	// ListDueForFetch はフェッチ対象のフィードを取得する。
	// next_fetch_at <= now() かつ fetch_status = 'active' のフィードを
	// FOR UPDATE SKIP LOCKEDで排他的に取得する。
	ListDueForFetch(ctx context.Context) ([]*model.SourceFeed, error)

	// UpdateFetchState はフィードのフェッチ状態を更新する。
	// fetch_status、consecutive_errors、error_message、next_fetch_at、
	// etag、last_modified、titleを更新する。
	UpdateFetchState(ctx context.Context, feed *model.SourceFeed) error

	// IsImported は指定GUIDが取り込み済みかを返す。
	IsImported(ctx context.Context, sourceFeedID, guid string) (bool, error)

	// MarkImported はGUIDと作成したチャプターIDの対応を記録する。
	MarkImported(ctx context.Context, sourceFeedID, guid, chapterID string) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
