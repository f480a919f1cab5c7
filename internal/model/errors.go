package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// Message/Actionはユーザー向けのためプラットフォームのロケール（ベトナム語）で保持する。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, content, affiliate, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeStoryNotFound      = "STORY_NOT_FOUND"
	ErrCodeChapterNotFound    = "CHAPTER_NOT_FOUND"
	ErrCodeAffiliateNotFound  = "AFFILIATE_NOT_FOUND"
	ErrCodeAffiliateInactive  = "AFFILIATE_INACTIVE"
	ErrCodeCommentNotFound    = "COMMENT_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeSourceFeedNotFound = "SOURCE_FEED_NOT_FOUND"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidRefresh     = "INVALID_REFRESH_TOKEN"
	ErrCodeDuplicateNumber    = "DUPLICATE_CHAPTER_NUMBER"
	ErrCodeInvalidTargetURL   = "INVALID_TARGET_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeInvalidUpload      = "INVALID_UPLOAD"
)

// NewStoryNotFoundError はストーリー未検出エラーを生成する。
func NewStoryNotFoundError(ref string) *APIError {
	return &APIError{
		Code:     ErrCodeStoryNotFound,
		Message:  fmt.Sprintf("Không tìm thấy truyện: %s", ref),
		Category: "content",
		Action:   "Vui lòng kiểm tra lại đường dẫn truyện.",
	}
}

// NewChapterNotFoundError はチャプター未検出エラーを生成する。
func NewChapterNotFoundError(ref string) *APIError {
	return &APIError{
		Code:     ErrCodeChapterNotFound,
		Message:  fmt.Sprintf("Không tìm thấy chương: %s", ref),
		Category: "content",
		Action:   "Vui lòng kiểm tra lại chương truyện.",
	}
}

// NewAffiliateNotFoundError はアフィリエイトリンク未検出エラーを生成する。
func NewAffiliateNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeAffiliateNotFound,
		Message:  fmt.Sprintf("Không tìm thấy liên kết: %s", id),
		Category: "affiliate",
		Action:   "Vui lòng kiểm tra lại liên kết.",
	}
}

// NewAffiliateInactiveError は無効化済みアフィリエイトリンクへのアクセスエラーを生成する。
// ハンドラー側でHTTP 410 (Gone)にマッピングされる。
func NewAffiliateInactiveError() *APIError {
	return &APIError{
		Code:     ErrCodeAffiliateInactive,
		Message:  "Liên kết này đã ngừng hoạt động.",
		Category: "affiliate",
		Action:   "Liên kết không còn khả dụng.",
	}
}

// NewCommentNotFoundError はコメント未検出エラーを生成する。
func NewCommentNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeCommentNotFound,
		Message:  fmt.Sprintf("Không tìm thấy bình luận: %s", id),
		Category: "content",
		Action:   "Vui lòng kiểm tra lại bình luận.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "Không tìm thấy tài khoản.",
		Category: "auth",
		Action:   "Vui lòng đăng nhập lại.",
	}
}

// NewSourceFeedNotFoundError はソースフィード未検出エラーを生成する。
func NewSourceFeedNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeSourceFeedNotFound,
		Message:  fmt.Sprintf("Không tìm thấy nguồn cập nhật: %s", id),
		Category: "content",
		Action:   "Vui lòng kiểm tra lại nguồn cập nhật.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Bạn cần đăng nhập để tiếp tục.",
		Category: "auth",
		Action:   "Vui lòng đăng nhập.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Bạn không có quyền thực hiện thao tác này.",
		Category: "auth",
		Action:   "Vui lòng liên hệ quản trị viên.",
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Dữ liệu gửi lên không hợp lệ: %s", reason),
		Category: "validation",
		Action:   "Vui lòng kiểm tra lại dữ liệu và thử lại.",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "Email này đã được sử dụng.",
		Category: "auth",
		Action:   "Vui lòng dùng email khác hoặc đăng nhập.",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// メール未登録とパスワード不一致を区別しない（列挙攻撃対策）。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Email hoặc mật khẩu không đúng.",
		Category: "auth",
		Action:   "Vui lòng kiểm tra lại thông tin đăng nhập.",
	}
}

// NewInvalidRefreshError はリフレッシュトークン不正エラーを生成する。
func NewInvalidRefreshError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRefresh,
		Message:  "Phiên đăng nhập đã hết hạn.",
		Category: "auth",
		Action:   "Vui lòng đăng nhập lại.",
	}
}

// NewDuplicateNumberError はチャプター番号重複エラーを生成する。
func NewDuplicateNumberError(number int) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateNumber,
		Message:  fmt.Sprintf("Chương số %d đã tồn tại trong truyện này.", number),
		Category: "validation",
		Action:   "Vui lòng chọn số chương khác.",
	}
}

// NewInvalidTargetURLError はアフィリエイトURL不正エラーを生成する。
func NewInvalidTargetURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTargetURL,
		Message:  fmt.Sprintf("URL đích không hợp lệ: %s", reason),
		Category: "validation",
		Action:   "Vui lòng nhập URL bắt đầu bằng http:// hoặc https://.",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "URL này bị chặn vì lý do bảo mật.",
		Category: "validation",
		Action:   "Vui lòng dùng URL công khai; địa chỉ mạng nội bộ không được phép.",
	}
}

// NewInvalidUploadError はアップロードファイル不正エラーを生成する。
func NewInvalidUploadError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidUpload,
		Message:  fmt.Sprintf("Tệp tải lên không hợp lệ: %s", reason),
		Category: "validation",
		Action:   "Chỉ chấp nhận tệp hình ảnh hoặc âm thanh.",
	}
}
