package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/khotruyen/khotruyen/internal/chapter"
	"github.com/khotruyen/khotruyen/internal/middleware"
	"github.com/khotruyen/khotruyen/internal/model"
)

// ChapterServiceInterface はチャプターハンドラーが必要とするサービスインターフェース。
type ChapterServiceInterface interface {
	GetForViewer(ctx context.Context, storySlug string, number int, viewer model.Viewer) (*chapter.View, error)
	ListForViewer(ctx context.Context, storySlug string, viewer model.Viewer) ([]*chapter.View, error)
	Create(ctx context.Context, input chapter.CreateChapterInput) (*model.Chapter, error)
	Update(ctx context.Context, id string, input chapter.UpdateChapterInput) (*model.Chapter, error)
	Delete(ctx context.Context, id string) error
}

// ChapterHandler はチャプターのHTTPハンドラー。
type ChapterHandler struct {
	service ChapterServiceInterface
}

// NewChapterHandler はChapterHandlerを生成する。
func NewChapterHandler(service ChapterServiceInterface) *ChapterHandler {
	return &ChapterHandler{service: service}
}

// createChapterRequest はチャプター作成リクエストのボディ。
type createChapterRequest struct {
	StoryID  string `json:"story_id"`
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	AudioURL string `json:"audio_url"`
	IsLocked bool   `json:"is_locked"`
	IsDraft  bool   `json:"is_draft"`
}

// updateChapterRequest はチャプター更新リクエストのボディ。nilのフィールドは変更しない。
type updateChapterRequest struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	AudioURL *string `json:"audio_url"`
	IsLocked *bool   `json:"is_locked"`
	IsDraft  *bool   `json:"is_draft"`
}

// chapterResponse はゲート判定済みチャプターのAPIレスポンス。
// unlockedは台帳の生フラグではなくアンロック述語の結果
// （ロックされていない、またはアンロック済み）を表す。
// フルアクセスでない場合、contentとaudio_urlのキー自体が省略される。
type chapterResponse struct {
	ID        string    `json:"id"`
	StoryID   string    `json:"story_id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	IsLocked  bool      `json:"is_locked"`
	Unlocked  bool      `json:"unlocked"`
	CreatedAt time.Time `json:"created_at"`
	Content   *string   `json:"content,omitempty"`
	AudioURL  *string   `json:"audio_url,omitempty"`
}

// adminChapterResponse は管理API用の全フィールドを含むレスポンス。
type adminChapterResponse struct {
	ID       string `json:"id"`
	StoryID  string `json:"story_id"`
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	AudioURL string `json:"audio_url"`
	IsLocked bool   `json:"is_locked"`
	IsDraft  bool   `json:"is_draft"`
}

// toChapterResponse はゲート判定結果をAPIレスポンスに変換する。
// FullAccessがfalseの場合は本文と音声URLを含めない。
func toChapterResponse(v *chapter.View) chapterResponse {
	resp := chapterResponse{
		ID:        v.Chapter.ID,
		StoryID:   v.Chapter.StoryID,
		Number:    v.Chapter.Number,
		Title:     v.Chapter.Title,
		IsLocked:  v.Chapter.IsLocked,
		Unlocked:  !v.Chapter.IsLocked || v.Unlocked,
		CreatedAt: v.Chapter.CreatedAt,
	}
	if v.FullAccess {
		content := v.Chapter.Content
		audioURL := v.Chapter.AudioURL
		resp.Content = &content
		if audioURL != "" {
			resp.AudioURL = &audioURL
		}
	}
	return resp
}

func toAdminChapterResponse(c *model.Chapter) adminChapterResponse {
	return adminChapterResponse{
		ID:       c.ID,
		StoryID:  c.StoryID,
		Number:   c.Number,
		Title:    c.Title,
		Content:  c.Content,
		AudioURL: c.AudioURL,
		IsLocked: c.IsLocked,
		IsDraft:  c.IsDraft,
	}
}

// ListChapters はストーリーのチャプター一覧をゲート判定付きで返す。
// 一覧の各要素もフルアクセスでなければ本文を含まない。
// GET /api/chapters/stories/{slug}/chapters
func (h *ChapterHandler) ListChapters(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())
	slug := chi.URLParam(r, "slug")

	views, err := h.service.ListForViewer(r.Context(), slug, viewer)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	chapters := make([]chapterResponse, 0, len(views))
	for _, v := range views {
		chapters = append(chapters, toChapterResponse(v))
	}

	writeJSON(w, http.StatusOK, map[string]any{"chapters": chapters})
}

// GetChapter はチャプターをゲート判定付きで返す。
// GET /api/chapters/stories/{slug}/chapters/{number}
func (h *ChapterHandler) GetChapter(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())
	slug := chi.URLParam(r, "slug")

	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("số chương không hợp lệ"))
		return
	}

	view, err := h.service.GetForViewer(r.Context(), slug, number, viewer)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"chapter": toChapterResponse(view)})
}

// CreateChapter はチャプターを作成する。管理者専用。
// numberが0の場合はストーリー末尾の番号が自動採番される。
// POST /api/admin/chapters
func (h *ChapterHandler) CreateChapter(w http.ResponseWriter, r *http.Request) {
	var req createChapterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	c, err := h.service.Create(r.Context(), chapter.CreateChapterInput{
		StoryID:  req.StoryID,
		Number:   req.Number,
		Title:    req.Title,
		Content:  req.Content,
		AudioURL: req.AudioURL,
		IsLocked: req.IsLocked,
		IsDraft:  req.IsDraft,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAdminChapterResponse(c))
}

// UpdateChapter はチャプターを部分更新する。番号は変更されない。管理者専用。
// PATCH /api/admin/chapters/{id}
func (h *ChapterHandler) UpdateChapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateChapterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	c, err := h.service.Update(r.Context(), id, chapter.UpdateChapterInput{
		Title:    req.Title,
		Content:  req.Content,
		AudioURL: req.AudioURL,
		IsLocked: req.IsLocked,
		IsDraft:  req.IsDraft,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAdminChapterResponse(c))
}

// DeleteChapter はチャプターを削除する。管理者専用。
// DELETE /api/admin/chapters/{id}
func (h *ChapterHandler) DeleteChapter(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
