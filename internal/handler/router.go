package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/khotruyen/khotruyen/internal/metrics"
	"github.com/khotruyen/khotruyen/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder

	// メトリクス公開用
	Gatherer prometheus.Gatherer

	// 認証・アカウント
	AuthService    AuthServiceInterface
	AccountService AccountServiceInterface
	AuthConfig     AuthHandlerConfig

	// コンテンツ
	StoryService   StoryServiceInterface
	ChapterService ChapterServiceInterface

	// アンロックとアフィリエイト
	UnlockService    UnlockServiceInterface
	AffiliateService AffiliateServiceInterface

	// コミュニティ
	CommentService  CommentServiceInterface
	BookmarkService BookmarkServiceInterface

	// メディアと提携フィード
	MediaService       MediaServiceInterface
	MediaDir           string // 静的配信するメディアディレクトリ。空なら配信しない
	SyndicationService SyndicationServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → CORS → SecurityHeaders → Auth(Optional/Require) → Logging → RateLimit(General)
//
// Loggingを認証の内側に置くことでアクセスログにuser_idが入る。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	optionalAuth := middleware.NewOptionalAuth(deps.TokenVerifier)
	requireAuth := middleware.NewRequireAuth(deps.TokenVerifier)
	requireAdmin := middleware.NewRequireAdmin()
	logging := middleware.NewLoggingMiddleware(deps.Logger, deps.StatusRecorder)
	generalLimit := deps.RateLimiter.GeneralMiddleware()
	commentLimit := deps.RateLimiter.CommentMiddleware()

	authHandler := NewAuthHandler(deps.AuthService, deps.AccountService, deps.AuthConfig)
	storyHandler := NewStoryHandler(deps.StoryService)
	chapterHandler := NewChapterHandler(deps.ChapterService)
	unlockHandler := NewUnlockHandler(deps.UnlockService)
	affiliateHandler := NewAffiliateHandler(deps.AffiliateService)
	commentHandler := NewCommentHandler(deps.CommentService)
	bookmarkHandler := NewBookmarkHandler(deps.BookmarkService)
	mediaHandler := NewMediaHandler(deps.MediaService)
	feedHandler := NewFeedHandler(deps.SyndicationService)

	// --- 運用エンドポイント（認証・レート制限の外） ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証ルート ---
	r.Route("/auth", func(r chi.Router) {
		r.Use(optionalAuth, logging, generalLimit)

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)
		r.Get("/google/login", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", authHandler.Me)
			r.Delete("/me", authHandler.Withdraw)
		})
	})

	// --- 公開コンテンツルート（匿名可、認証済みならゲート判定に反映） ---
	r.Group(func(r chi.Router) {
		r.Use(optionalAuth, logging, generalLimit)

		r.Route("/api/stories", func(r chi.Router) {
			r.Get("/", storyHandler.ListStories)
			r.Get("/{slug}", storyHandler.GetStory)
		})

		// チャプター閲覧はゲート判定付き。アンロックは匿名でも呼び出せるが
		// 台帳の変更は認証済み閲覧者に限られる
		r.Route("/api/chapters", func(r chi.Router) {
			r.Get("/stories/{slug}/chapters", chapterHandler.ListChapters)
			r.Get("/stories/{slug}/chapters/{number}", chapterHandler.GetChapter)
			r.Post("/{id}/unlock", unlockHandler.UnlockChapter)
		})

		// コメント閲覧と投稿（投稿は認証+専用レート制限）
		r.Get("/api/stories/{id}/comments", commentHandler.ListComments)
		r.With(requireAuth, commentLimit).Post("/api/stories/{id}/comments", commentHandler.PostComment)

		// アフィリエイトリダイレクト。匿名でもクリックは記録される
		r.Get("/r/redirect/{affiliateId}", unlockHandler.Redirect)

		// クリック/アンロック集計は管理者のみ
		r.With(requireAuth, requireAdmin).Get("/r/{affiliateId}/analytics", affiliateHandler.GetSummary)
	})

	// --- 認証必須ルート ---
	r.Group(func(r chi.Router) {
		r.Use(requireAuth, logging, generalLimit)

		r.Delete("/api/comments/{id}", commentHandler.DeleteComment)

		r.Route("/api/bookmarks", func(r chi.Router) {
			r.Get("/", bookmarkHandler.ListBookmarks)
			r.Put("/{storyId}", bookmarkHandler.AddBookmark)
			r.Delete("/{storyId}", bookmarkHandler.RemoveBookmark)
		})
	})

	// --- 管理ルート ---
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(requireAuth, requireAdmin, logging, generalLimit)

		r.Route("/stories", func(r chi.Router) {
			r.Post("/", storyHandler.CreateStory)
			r.Patch("/{id}", storyHandler.UpdateStory)
			r.Delete("/{id}", storyHandler.DeleteStory)
		})

		r.Route("/chapters", func(r chi.Router) {
			r.Post("/", chapterHandler.CreateChapter)
			r.Patch("/{id}", chapterHandler.UpdateChapter)
			r.Delete("/{id}", chapterHandler.DeleteChapter)
		})

		r.Route("/affiliates", func(r chi.Router) {
			r.Get("/", affiliateHandler.ListLinks)
			r.Post("/", affiliateHandler.CreateLink)
			r.Get("/{id}", affiliateHandler.GetLink)
			r.Patch("/{id}", affiliateHandler.UpdateLink)
			r.Delete("/{id}", affiliateHandler.DeleteLink)
		})

		r.Route("/comments", func(r chi.Router) {
			r.Get("/pending", commentHandler.ListPendingComments)
			r.Post("/{id}/moderate", commentHandler.ModerateComment)
		})

		r.Route("/feeds", func(r chi.Router) {
			r.Get("/", feedHandler.ListFeeds)
			r.Post("/", feedHandler.RegisterFeed)
			r.Get("/{id}", feedHandler.GetFeed)
			r.Delete("/{id}", feedHandler.DeleteFeed)
			r.Post("/{id}/resume", feedHandler.ResumeFeed)
		})

		r.Post("/media", mediaHandler.Upload)
	})

	// --- 静的メディア配信 ---
	if deps.MediaDir != "" {
		fileServer := http.StripPrefix("/media/", http.FileServer(http.Dir(deps.MediaDir)))
		r.Get("/media/*", fileServer.ServeHTTP)
	}

	return r
}
