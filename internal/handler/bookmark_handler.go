package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/khotruyen/khotruyen/internal/middleware"
	"github.com/khotruyen/khotruyen/internal/model"
)

// BookmarkServiceInterface はブックマークハンドラーが必要とするサービスインターフェース。
type BookmarkServiceInterface interface {
	Add(ctx context.Context, viewer model.Viewer, storyID string) error
	Remove(ctx context.Context, viewer model.Viewer, storyID string) error
	List(ctx context.Context, viewer model.Viewer) ([]*model.Bookmark, error)
}

// BookmarkHandler はブックマークのHTTPハンドラー。
type BookmarkHandler struct {
	service BookmarkServiceInterface
}

// NewBookmarkHandler はBookmarkHandlerを生成する。
func NewBookmarkHandler(service BookmarkServiceInterface) *BookmarkHandler {
	return &BookmarkHandler{service: service}
}

// bookmarkResponse はブックマークのAPIレスポンス。
type bookmarkResponse struct {
	StoryID   string    `json:"story_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AddBookmark はストーリーをブックマークに追加する。冪等。
// PUT /api/bookmarks/{storyId}
func (h *BookmarkHandler) AddBookmark(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())

	if err := h.service.Add(r.Context(), viewer, chi.URLParam(r, "storyId")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveBookmark はブックマークを解除する。冪等。
// DELETE /api/bookmarks/{storyId}
func (h *BookmarkHandler) RemoveBookmark(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())

	if err := h.service.Remove(r.Context(), viewer, chi.URLParam(r, "storyId")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListBookmarks は自分のブックマーク一覧を返す。
// GET /api/bookmarks
func (h *BookmarkHandler) ListBookmarks(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())

	bookmarks, err := h.service.List(r.Context(), viewer)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]bookmarkResponse, 0, len(bookmarks))
	for _, b := range bookmarks {
		resp = append(resp, bookmarkResponse{StoryID: b.StoryID, CreatedAt: b.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookmarks": resp})
}
