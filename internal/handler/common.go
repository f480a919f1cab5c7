// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/khotruyen/khotruyen/internal/model"
	"github.com/khotruyen/khotruyen/internal/unlock"
)

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeInvalidBody はJSONボディの解析失敗レスポンスを書き込む。
func writeInvalidBody(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest,
		model.NewInvalidRequestError("không đọc được nội dung JSON"))
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "Đã xảy ra lỗi hệ thống.",
		Category: "system",
		Action:   "Vui lòng thử lại sau ít phút.",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeStoryNotFound, model.ErrCodeChapterNotFound,
		model.ErrCodeAffiliateNotFound, model.ErrCodeCommentNotFound,
		model.ErrCodeUserNotFound, model.ErrCodeSourceFeedNotFound:
		return http.StatusNotFound
	case model.ErrCodeAffiliateInactive:
		return http.StatusGone
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials, model.ErrCodeInvalidRefresh:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeEmailTaken, model.ErrCodeDuplicateNumber:
		return http.StatusConflict
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidTargetURL, model.ErrCodeInvalidUpload:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// clickContextFromRequest はリクエストから分析イベント用のクリック文脈を抽出する。
func clickContextFromRequest(r *http.Request) unlock.ClickContext {
	// X-Forwarded-Forは「client, proxy1, proxy2」形式なので先頭を使う
	ip := r.Header.Get("X-Forwarded-For")
	if i := strings.IndexByte(ip, ','); i >= 0 {
		ip = strings.TrimSpace(ip[:i])
	}
	if ip == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip = host
	}
	return unlock.ClickContext{
		IP:        ip,
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	}
}
