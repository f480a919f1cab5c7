package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/khotruyen/khotruyen/internal/middleware"
	"github.com/khotruyen/khotruyen/internal/model"
	"github.com/khotruyen/khotruyen/internal/story"
)

// StoryServiceInterface はストーリーハンドラーが必要とするサービスインターフェース。
type StoryServiceInterface interface {
	Create(ctx context.Context, input story.CreateStoryInput) (*model.Story, error)
	Update(ctx context.Context, id string, input story.UpdateStoryInput) (*model.Story, error)
	Delete(ctx context.Context, id string) error
	GetBySlug(ctx context.Context, slug string, includeHidden bool) (*model.Story, error)
	List(ctx context.Context, search string, includeHidden bool, offset, limit int) (*story.StoryPage, error)
}

// StoryHandler はストーリーのHTTPハンドラー。
type StoryHandler struct {
	service StoryServiceInterface
}

// NewStoryHandler はStoryHandlerを生成する。
func NewStoryHandler(service StoryServiceInterface) *StoryHandler {
	return &StoryHandler{service: service}
}

// createStoryRequest はストーリー作成リクエストのボディ。
type createStoryRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	CoverURL    string `json:"cover_url"`
}

// updateStoryRequest はストーリー更新リクエストのボディ。nilのフィールドは変更しない。
type updateStoryRequest struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Description *string `json:"description"`
	CoverURL    *string `json:"cover_url"`
	Status      *string `json:"status"`
}

// storyResponse はストーリー情報のAPIレスポンス。
type storyResponse struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description string    `json:"description"`
	CoverURL    string    `json:"cover_url"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// storyPageResponse はページネーション付きストーリー一覧のレスポンス。
type storyPageResponse struct {
	Stories []storyResponse `json:"stories"`
	Total   int             `json:"total"`
	Offset  int             `json:"offset"`
	Limit   int             `json:"limit"`
}

func toStoryResponse(s *model.Story) storyResponse {
	return storyResponse{
		ID:          s.ID,
		Slug:        s.Slug,
		Title:       s.Title,
		Author:      s.Author,
		Description: s.Description,
		CoverURL:    s.CoverURL,
		Status:      string(s.Status),
		UpdatedAt:   s.UpdatedAt,
	}
}

// ListStories は公開ストーリーの一覧を返す。管理者には非公開ストーリーも含まれる。
// GET /api/stories?q=...&offset=...&limit=...
func (h *StoryHandler) ListStories(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	search := r.URL.Query().Get("q")

	page, err := h.service.List(r.Context(), search, viewer.IsAdmin(), offset, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	stories := make([]storyResponse, 0, len(page.Stories))
	for _, s := range page.Stories {
		stories = append(stories, toStoryResponse(s))
	}

	writeJSON(w, http.StatusOK, storyPageResponse{
		Stories: stories,
		Total:   page.Total,
		Offset:  page.Offset,
		Limit:   page.Limit,
	})
}

// GetStory はslugでストーリー詳細を返す。
// GET /api/stories/{slug}
func (h *StoryHandler) GetStory(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())
	slug := chi.URLParam(r, "slug")

	s, err := h.service.GetBySlug(r.Context(), slug, viewer.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toStoryResponse(s))
}

// CreateStory はストーリーを作成する。管理者専用。
// POST /api/admin/stories
func (h *StoryHandler) CreateStory(w http.ResponseWriter, r *http.Request) {
	var req createStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	s, err := h.service.Create(r.Context(), story.CreateStoryInput{
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		CoverURL:    req.CoverURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toStoryResponse(s))
}

// UpdateStory はストーリーを部分更新する。slugは変更されない。管理者専用。
// PATCH /api/admin/stories/{id}
func (h *StoryHandler) UpdateStory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	input := story.UpdateStoryInput{
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		CoverURL:    req.CoverURL,
	}
	if req.Status != nil {
		status := model.StoryStatus(*req.Status)
		input.Status = &status
	}

	s, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toStoryResponse(s))
}

// DeleteStory はストーリーを削除する。管理者専用。
// DELETE /api/admin/stories/{id}
func (h *StoryHandler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
