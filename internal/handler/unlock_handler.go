package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/khotruyen/khotruyen/internal/middleware"
	"github.com/khotruyen/khotruyen/internal/model"
	"github.com/khotruyen/khotruyen/internal/unlock"
)

// UnlockServiceInterface はアンロックハンドラーが必要とするサービスインターフェース。
type UnlockServiceInterface interface {
	Unlock(ctx context.Context, viewer model.Viewer, chapterID string, click unlock.ClickContext) (*unlock.UnlockResult, error)
	RecordClickAndRedirect(ctx context.Context, viewer model.Viewer, input unlock.RedirectInput, click unlock.ClickContext) (string, error)
}

// UnlockHandler はチャプターアンロックとアフィリエイトリダイレクトのHTTPハンドラー。
type UnlockHandler struct {
	service UnlockServiceInterface
}

// NewUnlockHandler はUnlockHandlerを生成する。
func NewUnlockHandler(service UnlockServiceInterface) *UnlockHandler {
	return &UnlockHandler{service: service}
}

// unlockedChapterPayload はアンロック応答に含まれるチャプター本体。
// アンロック操作の応答は台帳の状態に関わらず常に全フィールドを返す。
type unlockedChapterPayload struct {
	ID       string `json:"id"`
	StoryID  string `json:"story_id"`
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	AudioURL string `json:"audio_url"`
	IsLocked bool   `json:"is_locked"`
}

// unlockResponse はアンロック結果のAPIレスポンス。
type unlockResponse struct {
	Unlocked        bool                   `json:"unlocked"`
	AlreadyUnlocked bool                   `json:"already_unlocked"`
	Chapter         unlockedChapterPayload `json:"chapter"`
}

// UnlockChapter はチャプターの直接アンロックを処理する。冪等。
// 匿名の閲覧者も呼び出せるが、台帳は変更されずクリックだけが記録される。
// POST /api/chapters/{id}/unlock
func (h *UnlockHandler) UnlockChapter(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())
	chapterID := chi.URLParam(r, "id")

	result, err := h.service.Unlock(r.Context(), viewer, chapterID, clickContextFromRequest(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, unlockResponse{
		Unlocked:        result.Unlocked,
		AlreadyUnlocked: result.AlreadyUnlocked,
		Chapter: unlockedChapterPayload{
			ID:       result.Chapter.ID,
			StoryID:  result.Chapter.StoryID,
			Number:   result.Chapter.Number,
			Title:    result.Chapter.Title,
			Content:  result.Chapter.Content,
			AudioURL: result.Chapter.AudioURL,
			IsLocked: result.Chapter.IsLocked,
		},
	})
}

// Redirect はアフィリエイトリンク経由のクリックを記録し、外部URLへリダイレクトする。
// リンクに紐付くチャプターがあり閲覧者が認証済みの場合、副作用としてアンロックを試みる。
// アンロックの失敗はリダイレクトを妨げない。
// GET /r/redirect/{affiliateId}?storyId=&chapterId=
func (h *UnlockHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())

	input := unlock.RedirectInput{
		AffiliateID: chi.URLParam(r, "affiliateId"),
		StoryID:     r.URL.Query().Get("storyId"),
		ChapterID:   r.URL.Query().Get("chapterId"),
	}

	targetURL, err := h.service.RecordClickAndRedirect(r.Context(), viewer, input, clickContextFromRequest(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, targetURL, http.StatusFound)
}
