package bible

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/hitoshi/churchconnect/internal/model"
	"github.com/hitoshi/churchconnect/internal/notify"
)

// mockProvider はProviderのモック。
type mockProvider struct {
	listBooksFn     func(ctx context.Context, translationID string) ([]Book, error)
	fetchChapterFn  func(ctx context.Context, translationID, bookID string, chapter int) (*Chapter, error)
	countChaptersFn func(ctx context.Context, translationID, bookID string) (int, error)
}

func (m *mockProvider) ListBooks(ctx context.Context, translationID string) ([]Book, error) {
	return m.listBooksFn(ctx, translationID)
}

func (m *mockProvider) FetchChapter(ctx context.Context, translationID, bookID string, chapter int) (*Chapter, error) {
	return m.fetchChapterFn(ctx, translationID, bookID, chapter)
}

func (m *mockProvider) CountChapters(ctx context.Context, translationID, bookID string) (int, error) {
	return m.countChaptersFn(ctx, translationID, bookID)
}

func newTestReader(p Provider) *Reader {
	var buf bytes.Buffer
	return NewReader(p, newTestLogger(&buf))
}

func TestReader_Books_Success(t *testing.T) {
	r := newTestReader(&mockProvider{
		listBooksFn: func(ctx context.Context, translationID string) ([]Book, error) {
			if translationID != "de4e12af7f28f06d-02" {
				t.Errorf("translationID = %q", translationID)
			}
			return []Book{{ID: "GEN", Name: "Genesis"}}, nil
		},
	})

	list, err := r.Books(context.Background(), "KJV")
	if err != nil {
		t.Fatalf("Books がエラーを返した: %v", err)
	}
	if len(list.Books) != 1 || list.Notification != nil {
		t.Errorf("結果 = %+v", list)
	}
}

func TestReader_Books_FailureYieldsEmptyListAndNotification(t *testing.T) {
	r := newTestReader(&mockProvider{
		listBooksFn: func(ctx context.Context, translationID string) ([]Book, error) {
			return nil, &StatusError{Status: http.StatusBadGateway}
		},
	})

	list, err := r.Books(context.Background(), "WEB")
	if err != nil {
		t.Fatalf("プロバイダの失敗はエラーにしない: %v", err)
	}
	if list.Books == nil || len(list.Books) != 0 {
		t.Errorf("空の一覧を期待したが %v", list.Books)
	}
	if list.Notification == nil || list.Notification.Variant != notify.VariantDestructive {
		t.Errorf("失敗通知を期待したが %+v", list.Notification)
	}
}

func TestReader_Books_UnknownTranslation(t *testing.T) {
	called := false
	r := newTestReader(&mockProvider{
		listBooksFn: func(ctx context.Context, translationID string) ([]Book, error) {
			called = true
			return nil, nil
		},
	})

	_, err := r.Books(context.Background(), "NIV")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnknownTranslation {
		t.Fatalf("UNKNOWN_TRANSLATION を期待したが %v", err)
	}
	if called {
		t.Error("未知の翻訳でプロバイダが呼ばれた")
	}
}

func TestReader_ChapterCount(t *testing.T) {
	tests := []struct {
		name  string
		count int
		err   error
		want  int
	}{
		{"成功", 50, nil, 50},
		{"失敗時は1", 0, errors.New("timeout"), 1},
		{"0章は1", 0, nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReader(&mockProvider{
				countChaptersFn: func(ctx context.Context, translationID, bookID string) (int, error) {
					return tt.count, tt.err
				},
			})
			got, err := r.ChapterCount(context.Background(), "KJV", "GEN")
			if err != nil {
				t.Fatalf("ChapterCount がエラーを返した: %v", err)
			}
			if got != tt.want {
				t.Errorf("章数 = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReader_Chapter_Validation(t *testing.T) {
	r := newTestReader(&mockProvider{
		fetchChapterFn: func(ctx context.Context, translationID, bookID string, chapter int) (*Chapter, error) {
			t.Error("検証エラー時にプロバイダが呼ばれた")
			return nil, nil
		},
	})

	for _, tc := range []struct {
		book    string
		chapter int
	}{{"", 1}, {"GEN", 0}, {"GEN", -3}} {
		_, err := r.Chapter(context.Background(), "KJV", tc.book, tc.chapter)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
			t.Errorf("Chapter(%q, %d) = %v, want VALIDATION", tc.book, tc.chapter, err)
		}
	}
}

func TestReader_Chapter_ProviderFailure(t *testing.T) {
	r := newTestReader(&mockProvider{
		fetchChapterFn: func(ctx context.Context, translationID, bookID string, chapter int) (*Chapter, error) {
			return nil, ErrKeyMissing
		},
	})

	_, err := r.Chapter(context.Background(), "KJV", "GEN", 1)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeScriptureKeyMissing {
		t.Fatalf("SCRIPTURE_KEY_MISSING を期待したが %v", err)
	}
}

func TestScriptureError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"キー未設定", ErrKeyMissing, model.ErrCodeScriptureKeyMissing},
		{"401", &StatusError{Status: 401}, model.ErrCodeScriptureKeyMissing},
		{"404", &StatusError{Status: 404}, model.ErrCodeScriptureUnavailable},
		{"500", &StatusError{Status: 500}, model.ErrCodeScriptureUnavailable},
		{"タイムアウト", context.DeadlineExceeded, model.ErrCodeScriptureUnavailable},
		{"その他", errors.New("dial tcp"), model.ErrCodeScriptureUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScriptureError(tt.err).Code; got != tt.want {
				t.Errorf("Code = %q, want %q", got, tt.want)
			}
		})
	}
}
