package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/khotruyen/khotruyen/internal/model"
)

// SyndicationServiceInterface は提携元フィードハンドラーが必要とするサービスインターフェース。
type SyndicationServiceInterface interface {
	Register(ctx context.Context, storyID, feedURL string) (*model.SourceFeed, error)
	Get(ctx context.Context, id string) (*model.SourceFeed, error)
	List(ctx context.Context) ([]*model.SourceFeed, error)
	Delete(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) (*model.SourceFeed, error)
}

// FeedHandler は提携元フィード管理のHTTPハンドラー。管理者専用。
type FeedHandler struct {
	service SyndicationServiceInterface
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(service SyndicationServiceInterface) *FeedHandler {
	return &FeedHandler{service: service}
}

// registerFeedRequest はフィード登録リクエストのボディ。
type registerFeedRequest struct {
	StoryID string `json:"story_id"`
	FeedURL string `json:"feed_url"`
}

// sourceFeedResponse は提携元フィードのAPIレスポンス。
type sourceFeedResponse struct {
	ID                string    `json:"id"`
	StoryID           string    `json:"story_id"`
	FeedURL           string    `json:"feed_url"`
	Title             string    `json:"title"`
	FetchStatus       string    `json:"fetch_status"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	NextFetchAt       time.Time `json:"next_fetch_at"`
}

func toSourceFeedResponse(feed *model.SourceFeed) sourceFeedResponse {
	return sourceFeedResponse{
		ID:                feed.ID,
		StoryID:           feed.StoryID,
		FeedURL:           feed.FeedURL,
		Title:             feed.Title,
		FetchStatus:       string(feed.FetchStatus),
		ConsecutiveErrors: feed.ConsecutiveErrors,
		ErrorMessage:      feed.ErrorMessage,
		NextFetchAt:       feed.NextFetchAt,
	}
}

// RegisterFeed は提携元フィードを登録する。
// POST /api/admin/feeds
func (h *FeedHandler) RegisterFeed(w http.ResponseWriter, r *http.Request) {
	var req registerFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	feed, err := h.service.Register(r.Context(), req.StoryID, req.FeedURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSourceFeedResponse(feed))
}

// GetFeed はフィード詳細を返す。
// GET /api/admin/feeds/{id}
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSourceFeedResponse(feed))
}

// ListFeeds はフィード一覧を返す。
// GET /api/admin/feeds
func (h *FeedHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]sourceFeedResponse, 0, len(feeds))
	for _, feed := range feeds {
		resp = append(resp, toSourceFeedResponse(feed))
	}
	writeJSON(w, http.StatusOK, map[string]any{"feeds": resp})
}

// DeleteFeed はフィードを削除する。取り込み済みチャプターは残る。
// DELETE /api/admin/feeds/{id}
func (h *FeedHandler) DeleteFeed(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ResumeFeed は停止されたフィードのフェッチを再開する。
// POST /api/admin/feeds/{id}/resume
func (h *FeedHandler) ResumeFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := h.service.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSourceFeedResponse(feed))
}
