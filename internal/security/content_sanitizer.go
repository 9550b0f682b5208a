package security

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はポッドキャストフィード由来のテキストを保存前に無害化するインターフェース。
type Sanitizer interface {
	// Sanitize は説教の説明文HTMLを許可リストのタグのみに絞る。
	Sanitize(rawHTML string) string

	// PlainText はタグをすべて除去し、空白を詰めたプレーンテキストを返す。
	// タイトルや話者名に使う。
	PlainText(raw string) string
}

var whitespace = regexp.MustCompile(`\s+`)

// ContentSanitizer はbluemondayのポリシーでサニタイズを行う。ポリシーはスレッドセーフ。
type ContentSanitizer struct {
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerを生成する。
// 説明文は段落、改行、リスト、強調、リンクのみ許可する。
// リンクはhttp(s)の絶対URLのみで、target="_blank"とrel="noopener noreferrer"を付与する。
func NewContentSanitizer() *ContentSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "ul", "ol", "li", "strong", "em", "b", "i", "blockquote")

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.RequireParseableURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &ContentSanitizer{
		policy: p,
		strict: bluemonday.StrictPolicy(),
	}
}

// Sanitize は許可リスト外のタグと属性を除去する。
func (s *ContentSanitizer) Sanitize(rawHTML string) string {
	return strings.TrimSpace(s.policy.Sanitize(rawHTML))
}

// PlainText はタグを除去して文字参照を戻し、連続する空白を1つにする。
func (s *ContentSanitizer) PlainText(raw string) string {
	text := html.UnescapeString(s.strict.Sanitize(raw))
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}
