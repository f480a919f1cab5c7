// Package security はHTMLサニタイズとSSRF防止を提供する。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
// チャプター本文はフィード取り込み時、コメントは投稿受付時にサニタイズする。
type ContentSanitizerService interface {
	// SanitizeChapter はチャプター本文HTMLをサニタイズする。
	// 段落・見出し・リスト・リンク・画像などの読み物向けタグを許可し、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeChapter(rawHTML string) string

	// SanitizeComment はコメント本文HTMLをサニタイズする。
	// チャプターより厳しい許可リスト（p, br, strong, em, code のみ）を適用し、
	// リンクと画像も除去する。
	SanitizeComment(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	chapterPolicy *bluemonday.Policy
	commentPolicy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// チャプター用とコメント用の2つの許可リストポリシーを構築する。
func NewContentSanitizer() *contentSanitizer {
	chapter := bluemonday.NewPolicy()

	// チャプター本文向け許可タグ。
	// 許可リストに含めないタグ（script, iframe, style等）と
	// on*イベント属性は自動的に除去される。
	chapter.AllowElements(
		"p", "br", "h2", "h3", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	// リンク: 絶対URLのみ、別タブで開き、リファラを渡さない
	chapter.AllowAttrs("href").OnElements("a")
	chapter.AllowRelativeURLs(false)
	chapter.AddTargetBlankToFullyQualifiedLinks(true)
	chapter.RequireNoReferrerOnLinks(true)

	// 画像: httpsのsrcのみ許可
	chapter.AllowAttrs("src").OnElements("img")
	chapter.AllowAttrs("alt").OnElements("img")
	chapter.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	// コメント向けは最小限のインライン装飾のみ
	comment := bluemonday.NewPolicy()
	comment.AllowElements("p", "br", "strong", "em", "code")

	return &contentSanitizer{
		chapterPolicy: chapter,
		commentPolicy: comment,
	}
}

// SanitizeChapter はチャプター本文HTMLをサニタイズする。
func (s *contentSanitizer) SanitizeChapter(rawHTML string) string {
	return s.chapterPolicy.Sanitize(rawHTML)
}

// SanitizeComment はコメント本文HTMLをサニタイズする。
func (s *contentSanitizer) SanitizeComment(rawHTML string) string {
	return s.commentPolicy.Sanitize(rawHTML)
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
