package bible

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	stripPolicy   = bluemonday.StrictPolicy()
	verseMarker   = regexp.MustCompile(`(\d+)\s+`)
	repeatedSpace = regexp.MustCompile(`[ \t\r\n]+`)
)

// ParseVerses は章の本文を節ごとのテキストに分割する。
// マークアップを除去した後、節番号（数字と空白）を区切りとして分割し、番号自体は捨てる。
// 節番号が見つからない場合は本文全体を1節として返す。空の本文は空スライスを返す。
// 戻り値のインデックスN-1が第N節に対応する。
func ParseVerses(content string) []string {
	cleaned := strings.TrimSpace(stripMarkup(content))
	if cleaned == "" {
		return []string{}
	}

	parts := verseMarker.Split(cleaned, -1)
	verses := make([]string, 0, len(parts))
	// 最初の要素は最初の節番号より前のテキスト
	for _, p := range parts[1:] {
		if v := strings.TrimSpace(p); v != "" {
			verses = append(verses, v)
		}
	}

	if len(verses) == 0 {
		return []string{cleaned}
	}
	return verses
}

// stripMarkup はタグを除去し、文字参照を元の文字に戻す。
func stripMarkup(content string) string {
	text := html.UnescapeString(stripPolicy.Sanitize(content))
	return repeatedSpace.ReplaceAllString(text, " ")
}
