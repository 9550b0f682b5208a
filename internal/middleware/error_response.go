package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/churchconnect/internal/model"
	"github.com/hitoshi/churchconnect/internal/notify"
)

// NotificationBody は画面に表示する通知のJSON表現。
type NotificationBody struct {
	Variant     string `json:"variant"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法、画面に出す通知を含む。
type ErrorResponseBody struct {
	Code         string            `json:"code"`
	Message      string            `json:"message"`
	Category     string            `json:"category"`
	Action       string            `json:"action"`
	Notification *NotificationBody `json:"notification,omitempty"`
}

// NewNotificationBody は通知をJSON表現に変換する。nilの場合はnilを返す。
func NewNotificationBody(n *notify.Notification) *NotificationBody {
	if n == nil {
		return nil
	}
	return &NotificationBody{
		Variant:     string(n.Variant),
		Title:       n.Title,
		Description: n.Description,
	}
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:         apiErr.Code,
		Message:      apiErr.Message,
		Category:     apiErr.Category,
		Action:       apiErr.Action,
		Notification: NewNotificationBody(notify.FromError(apiErr)),
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: model.CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	})
}
