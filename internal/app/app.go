// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/khotruyen/khotruyen/internal/account"
	"github.com/khotruyen/khotruyen/internal/affiliate"
	"github.com/khotruyen/khotruyen/internal/auth"
	"github.com/khotruyen/khotruyen/internal/bookmark"
	"github.com/khotruyen/khotruyen/internal/chapter"
	"github.com/khotruyen/khotruyen/internal/comment"
	"github.com/khotruyen/khotruyen/internal/config"
	"github.com/khotruyen/khotruyen/internal/database"
	"github.com/khotruyen/khotruyen/internal/handler"
	"github.com/khotruyen/khotruyen/internal/logger"
	"github.com/khotruyen/khotruyen/internal/media"
	"github.com/khotruyen/khotruyen/internal/metrics"
	"github.com/khotruyen/khotruyen/internal/middleware"
	"github.com/khotruyen/khotruyen/internal/repository"
	"github.com/khotruyen/khotruyen/internal/security"
	"github.com/khotruyen/khotruyen/internal/story"
	"github.com/khotruyen/khotruyen/internal/syndication"
	"github.com/khotruyen/khotruyen/internal/unlock"
	"github.com/khotruyen/khotruyen/internal/worker/cleanup"
	fetchpkg "github.com/khotruyen/khotruyen/internal/worker/fetch"
	"golang.org/x/time/rate"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	refreshRepo := repository.NewPostgresRefreshTokenRepo(db)
	storyRepo := repository.NewPostgresStoryRepo(db)
	chapterRepo := repository.NewPostgresChapterRepo(db)
	unlockRepo := repository.NewPostgresUnlockRepo(db)
	affiliateRepo := repository.NewPostgresAffiliateRepo(db)
	analyticsRepo := repository.NewPostgresAnalyticsRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)
	bookmarkRepo := repository.NewPostgresBookmarkRepo(db)
	feedRepo := repository.NewPostgresSourceFeedRepo(db)

	// 3. セキュリティサービスとメトリクスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, tokenManager, userRepo, identRepo, refreshRepo,
		auth.ServiceConfig{
			AccessTokenTTL:  cfg.AccessTokenTTL,
			RefreshTokenTTL: cfg.RefreshTokenTTL,
		},
	)
	accountService := account.NewService(userRepo, refreshRepo)

	storyService := story.NewService(storyRepo)
	chapterService := chapter.NewService(chapterRepo, storyRepo, unlockRepo)
	unlockService := unlock.NewService(unlockRepo, chapterRepo, affiliateRepo, analyticsRepo, collector)
	affiliateService := affiliate.NewService(affiliateRepo, analyticsRepo, ssrfGuard)
	commentService := comment.NewService(commentRepo, storyRepo, sanitizer)
	bookmarkService := bookmark.NewService(bookmarkRepo, storyRepo)
	syndicationService := syndication.NewService(feedRepo, storyRepo, ssrfGuard)

	mediaService, err := media.NewService(cfg.MediaDir, cfg.MediaBaseURL, cfg.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("failed to init media service: %w", err)
	}

	// 5. レート制限の構成（configはreq/min単位なのでreq/secに変換）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.CommentRate = rate.Limit(float64(cfg.RateLimitComment) / 60.0)
	rateLimiterCfg.CommentBurst = cfg.RateLimitComment
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		TokenVerifier:     tokenManager,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		StatusRecorder:    collector,
		Gatherer:          registry,

		AuthService:    authService,
		AccountService: accountService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieSecure: cfg.CookieSecure,
		},

		StoryService:   storyService,
		ChapterService: chapterService,

		UnlockService:    unlockService,
		AffiliateService: affiliateService,

		CommentService:  commentService,
		BookmarkService: bookmarkService,

		MediaService:       mediaService,
		MediaDir:           cfg.MediaDir,
		SyndicationService: syndicationService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// フィード取り込みスケジューラと分析イベントのクリーンアップジョブを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	feedRepo := repository.NewPostgresSourceFeedRepo(db)
	chapterRepo := repository.NewPostgresChapterRepo(db)
	analyticsRepo := repository.NewPostgresAnalyticsRepo(db)
	refreshRepo := repository.NewPostgresRefreshTokenRepo(db)

	// 3. セキュリティサービスとメトリクスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. フェッチャーの初期化
	importer := fetchpkg.NewImporter(feedRepo, chapterRepo, sanitizer, slog.Default())
	fetcher := fetchpkg.NewFetcher(
		feedRepo, importer, ssrfGuard, collector,
		slog.Default(), cfg.FetchTimeout, cfg.FetchMaxSize, cfg.FetchInterval,
	)

	// 5. スケジューラの起動
	scheduler := fetchpkg.NewScheduler(
		feedRepo, fetcher, slog.Default(), cfg.FetchMaxConcurrent,
	)

	// 6. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(analyticsRepo, refreshRepo, slog.Default())
	cleanupJob.RetentionDays = cfg.AnalyticsRetentionDays

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("fetch_interval", cfg.FetchInterval),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
		slog.Int("analytics_retention_days", cfg.AnalyticsRetentionDays),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go cleanupJob.StartDaily(ctx, 24*time.Hour)

	// フェッチスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.FetchInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
