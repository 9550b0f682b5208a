// Package notify はエラーや操作結果を利用者向けの通知（トースト相当）に変換する。
// データアクセス層は通知を直接発行せず、ハンドラーがこのパッケージで変換する。
package notify

import (
	"context"
	"errors"

	"github.com/hitoshi/churchconnect/internal/model"
)

// Variant は通知の表示種別。
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantSuccess     Variant = "success"
	VariantDestructive Variant = "destructive"
)

// Notification は利用者に表示する通知。
type Notification struct {
	Variant     Variant
	Title       string
	Description string
}

// カテゴリごとの通知タイトル。
var categoryTitles = map[string]string{
	model.CategoryAuth:       "認証エラー",
	model.CategoryValidation: "入力エラー",
	model.CategoryBible:      "聖書を表示できません",
	model.CategoryContent:    "コンテンツエラー",
	model.CategorySystem:     "エラーが発生しました",
}

// Success は成功通知を返す。
func Success(title, description string) *Notification {
	return &Notification{Variant: VariantSuccess, Title: title, Description: description}
}

// Info は情報通知を返す。
func Info(title, description string) *Notification {
	return &Notification{Variant: VariantDefault, Title: title, Description: description}
}

// FromError はエラーを失敗通知に変換する。errがnilの場合はnilを返す。
// APIError以外のエラーの詳細は利用者に見せず、汎用の文言にする。
func FromError(err error) *Notification {
	if err == nil {
		return nil
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		title, ok := categoryTitles[apiErr.Category]
		if !ok {
			title = categoryTitles[model.CategorySystem]
		}
		desc := apiErr.Message
		if apiErr.Action != "" {
			desc += " " + apiErr.Action
		}
		return &Notification{Variant: VariantDestructive, Title: title, Description: desc}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Notification{
			Variant:     VariantDestructive,
			Title:       categoryTitles[model.CategorySystem],
			Description: "リクエストがタイムアウトしました。再度お試しください。",
		}
	}

	return &Notification{
		Variant:     VariantDestructive,
		Title:       categoryTitles[model.CategorySystem],
		Description: "予期しないエラーが発生しました。しばらく待ってから再度お試しください。",
	}
}
