package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/khotruyen/khotruyen/internal/middleware"
	"github.com/khotruyen/khotruyen/internal/model"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	Post(ctx context.Context, viewer model.Viewer, storyID, body string) (*model.Comment, error)
	ListApproved(ctx context.Context, storyID string) ([]*model.Comment, error)
	ListPending(ctx context.Context) ([]*model.Comment, error)
	Moderate(ctx context.Context, id string, approve bool) (*model.Comment, error)
	Delete(ctx context.Context, viewer model.Viewer, id string) error
}

// CommentHandler はコメントのHTTPハンドラー。
type CommentHandler struct {
	service CommentServiceInterface
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(service CommentServiceInterface) *CommentHandler {
	return &CommentHandler{service: service}
}

// postCommentRequest はコメント投稿リクエストのボディ。
type postCommentRequest struct {
	Body string `json:"body"`
}

// moderateCommentRequest はモデレーションリクエストのボディ。
type moderateCommentRequest struct {
	Approve bool `json:"approve"`
}

// commentResponse はコメントのAPIレスポンス。
type commentResponse struct {
	ID        string    `json:"id"`
	StoryID   string    `json:"story_id"`
	UserID    string    `json:"user_id"`
	Body      string    `json:"body"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toCommentResponse(c *model.Comment) commentResponse {
	return commentResponse{
		ID:        c.ID,
		StoryID:   c.StoryID,
		UserID:    c.UserID,
		Body:      c.Body,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
	}
}

func toCommentListResponse(comments []*model.Comment) map[string]any {
	resp := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		resp = append(resp, toCommentResponse(c))
	}
	return map[string]any{"comments": resp}
}

// PostComment はストーリーへのコメント投稿を処理する。
// 本文はサニタイズの上、承認待ち状態で保存される。
// POST /api/stories/{id}/comments
func (h *CommentHandler) PostComment(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())
	storyID := chi.URLParam(r, "id")

	var req postCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	comment, err := h.service.Post(r.Context(), viewer, storyID, req.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCommentResponse(comment))
}

// ListComments はストーリーの承認済みコメント一覧を返す。
// GET /api/stories/{id}/comments
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.ListApproved(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCommentListResponse(comments))
}

// ListPendingComments は承認待ちコメントのモデレーションキューを返す。管理者専用。
// GET /api/admin/comments/pending
func (h *CommentHandler) ListPendingComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.ListPending(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCommentListResponse(comments))
}

// ModerateComment はコメントの承認/却下を処理する。管理者専用。
// POST /api/admin/comments/{id}/moderate
func (h *CommentHandler) ModerateComment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req moderateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	comment, err := h.service.Moderate(r.Context(), id, req.Approve)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCommentResponse(comment))
}

// DeleteComment はコメントを削除する。投稿者本人または管理者のみ。
// DELETE /api/comments/{id}
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())

	if err := h.service.Delete(r.Context(), viewer, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
