// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/khotruyen/khotruyen/internal/auth"
	"github.com/khotruyen/khotruyen/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// viewerContextKey はリクエストコンテキストに閲覧者情報を格納するためのキー。
var viewerContextKey = contextKey("viewer")

// TokenVerifier はアクセストークンの検証に必要なインターフェース。
// auth.TokenManagerの部分集合として定義する。
type TokenVerifier interface {
	Verify(tokenString string) (*auth.Claims, error)
}

// NewRequireAuth はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 検証済みの閲覧者情報をリクエストコンテキストに注入する。
// トークンが無い・不正な場合は401 Unauthorizedを返す。
func NewRequireAuth(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer, ok := viewerFromRequest(verifier, r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := ContextWithViewer(r.Context(), viewer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewOptionalAuth はBearerトークンがあれば検証し、閲覧者情報をコンテキストに注入する
// ミドルウェアを返す。トークンが無い・不正な場合は匿名閲覧者として処理を続行する。
// 公開エンドポイントで認証済みユーザーにだけ追加情報（解錠状態など）を返すために使う。
func NewOptionalAuth(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer, ok := viewerFromRequest(verifier, r)
			if !ok {
				viewer = model.Anonymous()
			}

			ctx := ContextWithViewer(r.Context(), viewer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRequireAdmin は管理者権限を要求するミドルウェアを返す。
// NewRequireAuthの後に配置する。管理者以外には403 Forbiddenを返す。
func NewRequireAdmin() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer := ViewerFromContext(r.Context())
			if !viewer.IsAdmin() {
				slog.Warn("admin access denied",
					slog.String("user_id", viewer.UserID),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// viewerFromRequest はAuthorizationヘッダーからBearerトークンを取り出して検証する。
func viewerFromRequest(verifier TokenVerifier, r *http.Request) (model.Viewer, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return model.Viewer{}, false
	}

	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return model.Viewer{}, false
	}

	claims, err := verifier.Verify(token)
	if err != nil {
		return model.Viewer{}, false
	}

	return model.Viewer{
		UserID:        claims.UserID,
		Role:          claims.Role,
		Authenticated: true,
	}, true
}

// ViewerFromContext はリクエストコンテキストから閲覧者情報を取得する。
// 認証ミドルウェアを通過していないコンテキストでは匿名閲覧者を返す。
func ViewerFromContext(ctx context.Context) model.Viewer {
	viewer, ok := ctx.Value(viewerContextKey).(model.Viewer)
	if !ok {
		return model.Anonymous()
	}
	return viewer
}

// ContextWithViewer はコンテキストに閲覧者情報を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithViewer(ctx context.Context, viewer model.Viewer) context.Context {
	return context.WithValue(ctx, viewerContextKey, viewer)
}
