package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/churchconnect/internal/model"
	"github.com/hitoshi/churchconnect/internal/notify"
)

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func TestWriteErrorResponse_DomainErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		err      *model.APIError
		category string
	}{
		{"未認証", http.StatusUnauthorized, model.NewUnauthorizedError(), model.CategoryAuth},
		{"入力エラー", http.StatusBadRequest, model.NewValidationError("ノートの本文を入力してください。"), model.CategoryValidation},
		{"削除の確認なし", http.StatusPreconditionRequired, model.NewConfirmationRequiredError(), model.CategoryValidation},
		{"聖書APIの障害", http.StatusBadGateway, model.NewScriptureUnavailableError("status 500"), model.CategoryBible},
		{"状態確定のタイムアウト", http.StatusServiceUnavailable, model.NewSessionResolveTimeoutError(), model.CategorySystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.status, tt.err)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			body := decodeErrorBody(t, w)
			if body.Code != tt.err.Code || body.Message != tt.err.Message || body.Action != tt.err.Action {
				t.Errorf("body = %+v, want fields of %+v", body, tt.err)
			}
			if body.Category != tt.category {
				t.Errorf("category = %q, want %q", body.Category, tt.category)
			}

			want := notify.FromError(tt.err)
			if body.Notification == nil {
				t.Fatal("エラーレスポンスには通知を含めるべき")
			}
			if body.Notification.Variant != string(notify.VariantDestructive) ||
				body.Notification.Title != want.Title || body.Notification.Description != want.Description {
				t.Errorf("notification = %+v, want %+v", body.Notification, want)
			}
		})
	}
}

func TestWriteInternalServerError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	body := decodeErrorBody(t, w)
	if body.Code != "INTERNAL_ERROR" || body.Category != model.CategorySystem {
		t.Errorf("body = %+v", body)
	}
	if body.Action == "" {
		t.Error("利用者向けの対処方法を含めるべき")
	}
	if body.Notification == nil || body.Notification.Variant != "destructive" {
		t.Errorf("notification = %+v", body.Notification)
	}
}

func TestNewNotificationBody(t *testing.T) {
	if NewNotificationBody(nil) != nil {
		t.Error("nilの通知はnilに変換するべき")
	}

	got := NewNotificationBody(&notify.Notification{Variant: notify.VariantSuccess, Title: "保存しました", Description: "ノートを保存しました。"})
	want := &NotificationBody{Variant: "success", Title: "保存しました", Description: "ノートを保存しました。"}
	if *got != *want {
		t.Errorf("NewNotificationBody = %+v, want %+v", got, want)
	}
}

func TestErrorResponseBody_OmitsEmptyNotification(t *testing.T) {
	data, err := json.Marshal(ErrorResponseBody{Code: "X"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]any
	json.Unmarshal(data, &m)
	for _, key := range []string{"code", "message", "category", "action"} {
		if _, ok := m[key]; !ok {
			t.Errorf("field %q is missing", key)
		}
	}
	if _, ok := m["notification"]; ok {
		t.Error("通知がない場合はnotificationを省略するべき")
	}
}
