package fetch

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// feedCandidate はHTMLページから検出されたフィードリンク候補。
type feedCandidate struct {
	URL      string
	MIMEType string
	Title    string
}

// isHTMLContentType はContent-TypeがHTMLページを示すかを判定する。
func isHTMLContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.Contains(strings.ToLower(mediaType), "html")
}

// feedLinksFromHTML はHTMLのheadタグから rel="alternate" の
// RSS/Atomフィードリンクを検出する。相対URLはbaseURLを基準に解決される。
// 提携元がフィードURLではなく作品ページのURLを登録してくるケースの救済に使う。
func feedLinksFromHTML(htmlBody []byte, baseURL string) []feedCandidate {
	var candidates []feedCandidate

	baseU, err := url.Parse(baseURL)
	if err != nil {
		return candidates
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return candidates

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "head" {
				inHead = true
				continue
			}
			if tagName == "body" {
				// headを抜けたら解析終了
				return candidates
			}
			if !inHead || tagName != "link" || !hasAttr {
				continue
			}

			var rel, linkType, href, title string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = string(val)
				case "title":
					title = string(val)
				}
				if !more {
					break
				}
			}

			if rel != "alternate" || href == "" {
				continue
			}
			if linkType != "application/rss+xml" && linkType != "application/atom+xml" {
				continue
			}

			ref, err := url.Parse(href)
			if err != nil {
				continue
			}

			candidates = append(candidates, feedCandidate{
				URL:      baseU.ResolveReference(ref).String(),
				MIMEType: linkType,
				Title:    title,
			})

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "head" {
				return candidates
			}
		}
	}
}

// selectBestFeedLink は複数のフィード候補から最適なものを選択する。
// 優先順位: 登録URLと同一ホスト > Atom > 出現順。
func selectBestFeedLink(candidates []feedCandidate, inputURL string) *feedCandidate {
	if len(candidates) == 0 {
		return nil
	}

	inputHost := hostOf(inputURL)

	bestIdx := 0
	bestScore := -1
	for i, c := range candidates {
		score := 0
		if hostOf(c.URL) == inputHost {
			score += 100
		}
		if c.MIMEType == "application/atom+xml" {
			score += 10
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	return &candidates[bestIdx]
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
