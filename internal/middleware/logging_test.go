package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

// captureLog はDebug以上を出力するJSONロガーと、その出力を1行分デコードする関数を返す。
func captureLog(t *testing.T) (*slog.Logger, func() map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() map[string]any {
		t.Helper()
		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
		}
		return entry
	}
}

func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	logger, entry := captureLog(t)
	handler := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sermons":[]}`))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/sermons", nil))

	e := entry()
	if e["msg"] != "http_request" || e["method"] != "GET" || e["path"] != "/api/sermons" {
		t.Errorf("entry = %v", e)
	}
	if e["status"] != float64(200) {
		t.Errorf("status = %v, want 200", e["status"])
	}
	if e["bytes"] != float64(len(`{"sermons":[]}`)) {
		t.Errorf("bytes = %v", e["bytes"])
	}
	if d, ok := e["duration_ms"].(float64); !ok || d < 0 {
		t.Errorf("duration_ms = %v", e["duration_ms"])
	}
	if _, ok := e["user_id"]; ok {
		t.Error("未認証リクエストにuser_idを含めてはならない")
	}
}

func TestLoggingMiddleware_UserID(t *testing.T) {
	t.Run("コンテキストのユーザーID", func(t *testing.T) {
		logger, entry := captureLog(t)
		handler := NewLoggingMiddleware(logger)(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), "user-123"))
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if got := entry()["user_id"]; got != "user-123" {
			t.Errorf("user_id = %v, want user-123", got)
		}
	})

	t.Run("内側で確定したユーザーID", func(t *testing.T) {
		logger, entry := captureLog(t)
		handler := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recordUserID(r.Context(), "user-456")
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/events", nil))

		if got := entry()["user_id"]; got != "user-456" {
			t.Errorf("user_id = %v, want user-456", got)
		}
	})
}

func TestLoggingMiddleware_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusCreated, "INFO"},
		{http.StatusUnauthorized, "WARN"},
		{http.StatusPreconditionRequired, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			logger, entry := captureLog(t)
			handler := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			e := entry()
			if e["status"] != float64(tt.status) {
				t.Errorf("status = %v, want %d", e["status"], tt.status)
			}
			if e["level"] != tt.level {
				t.Errorf("level = %v, want %s", e["level"], tt.level)
			}
		})
	}
}

func TestLoggingMiddleware_FirstStatusWins(t *testing.T) {
	logger, entry := captureLog(t)
	handler := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := entry()["status"]; got != float64(404) {
		t.Errorf("status = %v, want 404", got)
	}
}

func TestLoggingMiddleware_RoutePattern(t *testing.T) {
	logger, entry := captureLog(t)

	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(logger))
	r.Delete("/api/bible/notes/{id}", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/bible/notes/note-42", nil))

	e := entry()
	if e["route"] != "/api/bible/notes/{id}" {
		t.Errorf("route = %v, want /api/bible/notes/{id}", e["route"])
	}
	if e["path"] != "/api/bible/notes/note-42" {
		t.Errorf("path = %v", e["path"])
	}
}

func TestRequestIDFrom(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantKeep bool
	}{
		{"未指定", "", false},
		{"英数字とハイフン", "req-abc_1.2", true},
		{"長すぎる", strings.Repeat("a", maxRequestIDLength+1), false},
		{"改行を含む", "abc\ninjected", false},
		{"空白を含む", "abc def", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(requestIDHeader, tt.header)
			}

			got := requestIDFrom(req)
			if tt.wantKeep && got != tt.header {
				t.Errorf("requestIDFrom = %q, want %q", got, tt.header)
			}
			if !tt.wantKeep && (got == tt.header || got == "") {
				t.Errorf("requestIDFrom = %q, want a generated ID", got)
			}
		})
	}
}
