package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/khotruyen/khotruyen/internal/affiliate"
	"github.com/khotruyen/khotruyen/internal/model"
)

// AffiliateServiceInterface はアフィリエイトハンドラーが必要とするサービスインターフェース。
type AffiliateServiceInterface interface {
	Create(ctx context.Context, input affiliate.CreateLinkInput) (*model.AffiliateLink, error)
	Update(ctx context.Context, id string, input affiliate.UpdateLinkInput) (*model.AffiliateLink, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*model.AffiliateLink, error)
	List(ctx context.Context) ([]*model.AffiliateLink, error)
	Summary(ctx context.Context, affiliateID string) (*model.AffiliateSummary, error)
}

// AffiliateHandler はアフィリエイトリンク管理のHTTPハンドラー。管理者専用。
type AffiliateHandler struct {
	service AffiliateServiceInterface
}

// NewAffiliateHandler はAffiliateHandlerを生成する。
func NewAffiliateHandler(service AffiliateServiceInterface) *AffiliateHandler {
	return &AffiliateHandler{service: service}
}

// createLinkRequest はアフィリエイトリンク作成リクエストのボディ。
type createLinkRequest struct {
	Provider  string `json:"provider"`
	TargetURL string `json:"target_url"`
	Label     string `json:"label"`
	StoryID   string `json:"story_id"`
	ChapterID string `json:"chapter_id"`
}

// updateLinkRequest はアフィリエイトリンク更新リクエストのボディ。nilのフィールドは変更しない。
type updateLinkRequest struct {
	Provider  *string `json:"provider"`
	TargetURL *string `json:"target_url"`
	Label     *string `json:"label"`
	IsActive  *bool   `json:"is_active"`
	StoryID   *string `json:"story_id"`
	ChapterID *string `json:"chapter_id"`
}

// affiliateLinkResponse はアフィリエイトリンクのAPIレスポンス。
type affiliateLinkResponse struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	TargetURL string    `json:"target_url"`
	Label     string    `json:"label"`
	IsActive  bool      `json:"is_active"`
	StoryID   string    `json:"story_id,omitempty"`
	ChapterID string    `json:"chapter_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// refererCountResponse はリファラ別件数のレスポンス。
type refererCountResponse struct {
	Referer string `json:"referer"`
	Count   int    `json:"count"`
}

// summaryResponse はアフィリエイトリンク集計のレスポンス。
type summaryResponse struct {
	AffiliateID string                 `json:"affiliate_id"`
	Clicks      int                    `json:"clicks"`
	Unlocks     int                    `json:"unlocks"`
	TopReferers []refererCountResponse `json:"top_referers"`
}

func toAffiliateLinkResponse(link *model.AffiliateLink) affiliateLinkResponse {
	return affiliateLinkResponse{
		ID:        link.ID,
		Provider:  link.Provider,
		TargetURL: link.TargetURL,
		Label:     link.Label,
		IsActive:  link.IsActive,
		StoryID:   link.StoryID,
		ChapterID: link.ChapterID,
		CreatedAt: link.CreatedAt,
	}
}

// CreateLink はアフィリエイトリンクを作成する。
// POST /api/admin/affiliates
func (h *AffiliateHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	link, err := h.service.Create(r.Context(), affiliate.CreateLinkInput{
		Provider:  req.Provider,
		TargetURL: req.TargetURL,
		Label:     req.Label,
		StoryID:   req.StoryID,
		ChapterID: req.ChapterID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAffiliateLinkResponse(link))
}

// UpdateLink はアフィリエイトリンクを部分更新する。
// PATCH /api/admin/affiliates/{id}
func (h *AffiliateHandler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	link, err := h.service.Update(r.Context(), id, affiliate.UpdateLinkInput{
		Provider:  req.Provider,
		TargetURL: req.TargetURL,
		Label:     req.Label,
		IsActive:  req.IsActive,
		StoryID:   req.StoryID,
		ChapterID: req.ChapterID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAffiliateLinkResponse(link))
}

// DeleteLink はアフィリエイトリンクを削除する。
// 既存の分析イベントは削除されず、集計APIからも参照可能なまま残る。
// DELETE /api/admin/affiliates/{id}
func (h *AffiliateHandler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetLink はアフィリエイトリンク詳細を返す。
// GET /api/admin/affiliates/{id}
func (h *AffiliateHandler) GetLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAffiliateLinkResponse(link))
}

// ListLinks はアフィリエイトリンク一覧を返す。
// GET /api/admin/affiliates
func (h *AffiliateHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]affiliateLinkResponse, 0, len(links))
	for _, link := range links {
		resp = append(resp, toAffiliateLinkResponse(link))
	}
	writeJSON(w, http.StatusOK, map[string]any{"affiliates": resp})
}

// GetSummary はアフィリエイトリンクのクリック/アンロック集計を返す。
// 削除済みリンクのIDでも過去イベントが集計される。
// GET /r/{affiliateId}/analytics（管理者のみ）
func (h *AffiliateHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), chi.URLParam(r, "affiliateId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	referers := make([]refererCountResponse, 0, len(summary.TopReferers))
	for _, rc := range summary.TopReferers {
		referers = append(referers, refererCountResponse{Referer: rc.Referer, Count: rc.Count})
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		AffiliateID: summary.AffiliateID,
		Clicks:      summary.Clicks,
		Unlocks:     summary.Unlocks,
		TopReferers: referers,
	})
}
