package model

// Viewer は1リクエストの閲覧者状態を表す。
// Authorizationヘッダーのトークン検証に成功した場合のみAuthenticatedがtrueになる。
// トークンが無い・不正・期限切れの場合は匿名の閲覧者として扱われ、
// リクエスト自体は拒否されない（閲覧系エンドポイントでは制限ペイロードに縮退する）。
type Viewer struct {
	UserID        string
	Role          Role
	Authenticated bool
}

// Anonymous は匿名の閲覧者を返す。
func Anonymous() Viewer {
	return Viewer{}
}

// IsAdmin は閲覧者が認証済みの管理者かを返す。
func (v Viewer) IsAdmin() bool {
	return v.Authenticated && v.Role == RoleAdmin
}
