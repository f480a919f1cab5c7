package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/khotruyen/khotruyen/internal/middleware"
	"github.com/khotruyen/khotruyen/internal/model"
)

// jsonBody はテスト用にJSON文字列をリクエストボディとして包む。
func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

// withViewer はリクエストのコンテキストに閲覧者を注入する。
func withViewer(r *http.Request, viewer model.Viewer) *http.Request {
	return r.WithContext(middleware.ContextWithViewer(r.Context(), viewer))
}

func testUserViewer() model.Viewer {
	return model.Viewer{UserID: "user-1", Role: model.RoleUser, Authenticated: true}
}

func testAdminViewer() model.Viewer {
	return model.Viewer{UserID: "admin-1", Role: model.RoleAdmin, Authenticated: true}
}
