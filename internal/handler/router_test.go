package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/khotruyen/khotruyen/internal/auth"
	"github.com/khotruyen/khotruyen/internal/chapter"
	"github.com/khotruyen/khotruyen/internal/middleware"
	"github.com/khotruyen/khotruyen/internal/model"
	"github.com/khotruyen/khotruyen/internal/unlock"
)

// newTestRouter はミドルウェアチェーンを含む完全なルーターを組み立てる。
// サービスはテストごとに必要なものだけモックを渡す。
func newTestRouter(t *testing.T, deps *RouterDeps) (http.Handler, *auth.TokenManager) {
	t.Helper()

	tm := auth.NewTokenManager("test-secret", time.Hour)
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	deps.TokenVerifier = tm
	deps.CORSAllowedOrigin = "https://khotruyen.vn"
	deps.RateLimiter = rl
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewRouter(deps), tm
}

func bearerToken(t *testing.T, tm *auth.TokenManager, userID string, role model.Role) string {
	t.Helper()
	token, err := tm.Issue(&model.User{ID: userID, Role: role})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return "Bearer " + token
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

// アンロックが匿名でも呼び出せ、閲覧者が匿名として渡ることを検証
func TestRouter_UnlockAnonymousAllowed(t *testing.T) {
	svc := &mockUnlockService{
		unlockFn: func(ctx context.Context, viewer model.Viewer, chapterID string, click unlock.ClickContext) (*unlock.UnlockResult, error) {
			if viewer.Authenticated {
				t.Error("viewer should be anonymous")
			}
			return &unlock.UnlockResult{Chapter: unlockedTestChapter()}, nil
		},
	}
	router, _ := newTestRouter(t, &RouterDeps{UnlockService: svc})

	req := httptest.NewRequest(http.MethodPost, "/api/chapters/ch-1/unlock", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

// 認証済みトークンでアンロックが通り、閲覧者IDが解決されることを検証
func TestRouter_UnlockWithToken(t *testing.T) {
	svc := &mockUnlockService{
		unlockFn: func(ctx context.Context, viewer model.Viewer, chapterID string, click unlock.ClickContext) (*unlock.UnlockResult, error) {
			if viewer.UserID != "user-1" {
				t.Errorf("viewer.UserID = %q", viewer.UserID)
			}
			return &unlock.UnlockResult{Chapter: unlockedTestChapter(), Unlocked: true}, nil
		},
	}
	router, tm := newTestRouter(t, &RouterDeps{UnlockService: svc})

	req := httptest.NewRequest(http.MethodPost, "/api/chapters/ch-1/unlock", nil)
	req.Header.Set("Authorization", bearerToken(t, tm, "user-1", model.RoleUser))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

// 一般ユーザーのトークンで管理ルートが403になることを検証
func TestRouter_AdminRouteForbiddenForUser(t *testing.T) {
	svc := &mockChapterService{
		createFn: func(ctx context.Context, input chapter.CreateChapterInput) (*model.Chapter, error) {
			t.Error("service should not be called for non-admin")
			return nil, nil
		},
	}
	router, tm := newTestRouter(t, &RouterDeps{ChapterService: svc})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/chapters", jsonBody(`{"story_id":"s1"}`))
	req.Header.Set("Authorization", bearerToken(t, tm, "user-1", model.RoleUser))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestRouter_AdminRouteAllowsAdmin(t *testing.T) {
	svc := &mockChapterService{
		createFn: func(ctx context.Context, input chapter.CreateChapterInput) (*model.Chapter, error) {
			return &model.Chapter{ID: "ch-new", StoryID: input.StoryID}, nil
		},
	}
	router, tm := newTestRouter(t, &RouterDeps{ChapterService: svc})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/chapters", jsonBody(`{"story_id":"s1"}`))
	req.Header.Set("Authorization", bearerToken(t, tm, "admin-1", model.RoleAdmin))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
}

// リダイレクトエンドポイントが匿名でも通り、不正トークンでも壊れないことを検証
func TestRouter_RedirectAnonymous(t *testing.T) {
	svc := &mockUnlockService{
		redirectFn: func(ctx context.Context, viewer model.Viewer, input unlock.RedirectInput, click unlock.ClickContext) (string, error) {
			if viewer.Authenticated {
				t.Error("viewer should be anonymous")
			}
			return "https://shopee.vn/p/1", nil
		},
	}
	router, _ := newTestRouter(t, &RouterDeps{UnlockService: svc})

	req := httptest.NewRequest(http.MethodGet, "/r/redirect/aff-1", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302: %s", rec.Code, rec.Body.String())
	}
}

// 集計エンドポイントが管理者専用であることを検証
func TestRouter_AnalyticsRequiresAdmin(t *testing.T) {
	svc := &mockAffiliateService{
		summaryFn: func(ctx context.Context, affiliateID string) (*model.AffiliateSummary, error) {
			return &model.AffiliateSummary{AffiliateID: affiliateID}, nil
		},
	}
	router, tm := newTestRouter(t, &RouterDeps{AffiliateService: svc})

	req := httptest.NewRequest(http.MethodGet, "/r/aff-1/analytics", nil)
	req.Header.Set("Authorization", bearerToken(t, tm, "user-1", model.RoleUser))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/r/aff-1/analytics", nil)
	req.Header.Set("Authorization", bearerToken(t, tm, "admin-1", model.RoleAdmin))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

// 公開チャプター取得が匿名で通り、制限ペイロードになることを検証
func TestRouter_PublicChapterRestricted(t *testing.T) {
	svc := &mockChapterService{
		getForViewerFn: func(ctx context.Context, storySlug string, number int, viewer model.Viewer) (*chapter.View, error) {
			return &chapter.View{
				Chapter:    &model.Chapter{ID: "ch-1", Number: 1, Content: "bí mật", IsLocked: true},
				FullAccess: false,
			}, nil
		},
	}
	router, _ := newTestRouter(t, &RouterDeps{ChapterService: svc})

	req := httptest.NewRequest(http.MethodGet, "/api/chapters/stories/tien-nghich/chapters/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Chapter map[string]any `json:"chapter"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, exists := body.Chapter["content"]; exists {
		t.Error("anonymous response leaked content")
	}
}

// セキュリティヘッダーが全レスポンスに付与されることを検証
func TestRouter_SecurityHeaders(t *testing.T) {
	router, _ := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

// 存在しないルートで404が返ることを検証
func TestRouter_NotFound(t *testing.T) {
	router, _ := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodGet, "/no-such-route", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
