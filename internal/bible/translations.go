// Package bible は聖書テキストプロバイダ（api.bible）のクライアントと、
// 聖書リーダー画面向けのサービスを提供する。
package bible

import (
	"regexp"
	"strings"

	"github.com/hitoshi/churchconnect/internal/model"
)

// Translation は選択可能な聖書翻訳。
type Translation struct {
	Key  string // 短縮名（ASVなど）
	ID   string // プロバイダの翻訳ID
	Name string
}

var translations = []Translation{
	{Key: "ASV", ID: "06125adad2d5898a-01", Name: "American Standard Version"},
	{Key: "BBE", ID: "65eec8e0b60e656b-01", Name: "Bible in Basic English"},
	{Key: "WEB", ID: "9879dbb7cfe39e4d-01", Name: "World English Bible"},
	{Key: "KJV", ID: "de4e12af7f28f06d-02", Name: "King James Version"},
}

// DefaultTranslation はリーダーの既定の翻訳。
const DefaultTranslation = "KJV"

// providerIDPattern はプロバイダの翻訳IDの形式。
var providerIDPattern = regexp.MustCompile(`^[0-9a-f]{16}-[0-9]{2}$`)

// Translations は選択可能な翻訳の一覧を返す。
func Translations() []Translation {
	out := make([]Translation, len(translations))
	copy(out, translations)
	return out
}

// ResolveTranslation は短縮名またはプロバイダIDを翻訳IDに解決する。
// 短縮名は大文字小文字を区別しない。
func ResolveTranslation(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, t := range translations {
		if strings.EqualFold(t.Key, s) || t.ID == s {
			return t.ID, nil
		}
	}
	if providerIDPattern.MatchString(s) {
		return s, nil
	}
	return "", model.NewUnknownTranslationError(s)
}
