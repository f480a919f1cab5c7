package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/khotruyen/khotruyen/internal/media"
	"github.com/khotruyen/khotruyen/internal/model"
)

// MediaServiceInterface はメディアハンドラーが必要とするサービスインターフェース。
type MediaServiceInterface interface {
	Save(ctx context.Context, r io.Reader, contentType string, size int64) (*media.UploadResult, error)
}

// MediaHandler はカバー画像・音声ファイルアップロードのHTTPハンドラー。管理者専用。
type MediaHandler struct {
	service MediaServiceInterface
}

// NewMediaHandler はMediaHandlerを生成する。
func NewMediaHandler(service MediaServiceInterface) *MediaHandler {
	return &MediaHandler{service: service}
}

// uploadResponse はアップロード結果のAPIレスポンス。
type uploadResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Upload はファイルアップロードを処理する。
// ボディはmultipartではなく生のバイト列で、Content-TypeヘッダーでMIMEタイプを指定する。
// POST /api/admin/media
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidUploadError("thiếu Content-Type"))
		return
	}

	result, err := h.service.Save(r.Context(), r.Body, contentType, r.ContentLength)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		URL:      result.URL,
		Filename: result.Filename,
		Size:     result.Size,
	})
}
