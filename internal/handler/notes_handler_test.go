package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/churchconnect/internal/middleware"
	"github.com/hitoshi/churchconnect/internal/model"
)

// mockNotesService はNotesServiceInterfaceのモック実装。
type mockNotesService struct {
	createFn         func(ctx context.Context, userID string, in model.NewBibleNote) (*model.BibleNote, error)
	listFn           func(ctx context.Context, userID string) ([]model.BibleNote, error)
	listForChapterFn func(ctx context.Context, userID, translation, book string, chapter int) ([]model.BibleNote, error)
	updateFn         func(ctx context.Context, userID, noteID, content string) (*model.BibleNote, error)
	deleteFn         func(ctx context.Context, userID, noteID string, confirmed bool) error
}

func (m *mockNotesService) Create(ctx context.Context, userID string, in model.NewBibleNote) (*model.BibleNote, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return &model.BibleNote{}, nil
}

func (m *mockNotesService) List(ctx context.Context, userID string) ([]model.BibleNote, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return []model.BibleNote{}, nil
}

func (m *mockNotesService) ListForChapter(ctx context.Context, userID, translation, book string, chapter int) ([]model.BibleNote, error) {
	if m.listForChapterFn != nil {
		return m.listForChapterFn(ctx, userID, translation, book, chapter)
	}
	return []model.BibleNote{}, nil
}

func (m *mockNotesService) Update(ctx context.Context, userID, noteID, content string) (*model.BibleNote, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, noteID, content)
	}
	return &model.BibleNote{}, nil
}

func (m *mockNotesService) Delete(ctx context.Context, userID, noteID string, confirmed bool) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, noteID, confirmed)
	}
	return nil
}

// testNoteID はテスト用のノートID。
const testNoteID = "3f2b8c1e-6d4a-4e0b-9a7c-1d2e3f4a5b6c"

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

func TestNotesHandler_Create_Success(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := &mockNotesService{
		createFn: func(ctx context.Context, userID string, in model.NewBibleNote) (*model.BibleNote, error) {
			if userID != "user-123" {
				t.Errorf("userID = %q, want user-123", userID)
			}
			if in.Translation != kjvID || in.Book != "JHN" || in.Chapter != 3 || in.Verse != 16 || in.Content != "神は愛" {
				t.Errorf("input = %+v", in)
			}
			return &model.BibleNote{ID: "note-1", UserID: userID, Translation: in.Translation, Book: in.Book,
				Chapter: in.Chapter, Verse: in.Verse, Content: in.Content, CreatedAt: now, UpdatedAt: now}, nil
		},
	}

	body := `{"bible_version":"` + kjvID + `","book":"JHN","chapter":3,"verse":16,"content":"神は愛"}`
	req := withUserID(jsonRequest(http.MethodPost, "/api/bible/notes", body), "user-123")
	w := httptest.NewRecorder()
	NewNotesHandler(svc).Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	resp := decodeBody(t, w)
	note, _ := resp["note"].(map[string]any)
	if note["id"] != "note-1" || note["verse"] != float64(16) {
		t.Errorf("note = %v", note)
	}
	if notificationVariant(resp) != "success" {
		t.Errorf("notification = %v", resp["notification"])
	}
}

func TestNotesHandler_Create_EmptyContentIsValidationError(t *testing.T) {
	svc := &mockNotesService{
		createFn: func(ctx context.Context, userID string, in model.NewBibleNote) (*model.BibleNote, error) {
			return nil, model.NewValidationError("ノートの本文を入力してください。")
		},
	}

	req := withUserID(jsonRequest(http.MethodPost, "/api/bible/notes", `{"bible_version":"KJV","book":"JHN","chapter":3,"verse":16,"content":"  "}`), "user-123")
	w := httptest.NewRecorder()
	NewNotesHandler(svc).Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestNotesHandler_RequiresUser(t *testing.T) {
	h := NewNotesHandler(&mockNotesService{})
	for name, fn := range map[string]http.HandlerFunc{
		"List": h.List, "Create": h.Create, "Update": h.Update, "Delete": h.Delete,
	} {
		w := httptest.NewRecorder()
		fn(w, jsonRequest(http.MethodPost, "/api/bible/notes", `{}`))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want %d", name, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestNotesHandler_List_AllAndByChapter(t *testing.T) {
	var listed, chapterListed bool
	svc := &mockNotesService{
		listFn: func(ctx context.Context, userID string) ([]model.BibleNote, error) {
			listed = true
			return []model.BibleNote{{ID: "n1"}, {ID: "n2"}}, nil
		},
		listForChapterFn: func(ctx context.Context, userID, translation, book string, chapter int) ([]model.BibleNote, error) {
			chapterListed = true
			if translation != "KJV" || book != "GEN" || chapter != 1 {
				t.Errorf("ListForChapter(%q, %q, %d)", translation, book, chapter)
			}
			return []model.BibleNote{{ID: "n3"}}, nil
		},
	}
	h := NewNotesHandler(svc)

	w := httptest.NewRecorder()
	h.List(w, withUserID(httptest.NewRequest(http.MethodGet, "/api/bible/notes", nil), "user-123"))
	if notes, _ := decodeBody(t, w)["notes"].([]any); len(notes) != 2 || !listed {
		t.Errorf("全件取得: notes = %v", notes)
	}

	w = httptest.NewRecorder()
	h.List(w, withUserID(httptest.NewRequest(http.MethodGet, "/api/bible/notes?translation=KJV&book=GEN&chapter=1", nil), "user-123"))
	if notes, _ := decodeBody(t, w)["notes"].([]any); len(notes) != 1 || !chapterListed {
		t.Errorf("章で絞り込み: notes = %v", notes)
	}
}

func TestNotesHandler_Update_NotFound(t *testing.T) {
	const otherNoteID = "9c1d2e3f-4a5b-4c6d-8e7f-0a1b2c3d4e5f"
	svc := &mockNotesService{
		updateFn: func(ctx context.Context, userID, noteID, content string) (*model.BibleNote, error) {
			if noteID != otherNoteID {
				t.Errorf("noteID = %q", noteID)
			}
			return nil, model.NewNoteNotFoundError(noteID)
		},
	}

	req := withUserID(jsonRequest(http.MethodPut, "/api/bible/notes/"+otherNoteID, `{"content":"書き換え"}`), "user-123")
	req = withChiURLParams(req, "id", otherNoteID)
	w := httptest.NewRecorder()
	NewNotesHandler(svc).Update(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestNotesHandler_Update_Success(t *testing.T) {
	svc := &mockNotesService{
		updateFn: func(ctx context.Context, userID, noteID, content string) (*model.BibleNote, error) {
			return &model.BibleNote{ID: noteID, UserID: userID, Content: content}, nil
		},
	}

	req := withUserID(jsonRequest(http.MethodPut, "/api/bible/notes/"+testNoteID, `{"content":"更新後"}`), "user-123")
	req = withChiURLParams(req, "id", testNoteID)
	w := httptest.NewRecorder()
	NewNotesHandler(svc).Update(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	note, _ := decodeBody(t, w)["note"].(map[string]any)
	if note["content"] != "更新後" {
		t.Errorf("content = %v", note["content"])
	}
}

func TestNotesHandler_Delete_Confirmation(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		header     string
		wantStatus int
		wantConf   bool
	}{
		{"確認なし", "/api/bible/notes/" + testNoteID, "", http.StatusPreconditionRequired, false},
		{"クエリで確認", "/api/bible/notes/" + testNoteID + "?confirm=true", "", http.StatusOK, true},
		{"ヘッダーで確認", "/api/bible/notes/" + testNoteID, "true", http.StatusOK, true},
		{"不正な確認値", "/api/bible/notes/" + testNoteID + "?confirm=yes", "", http.StatusPreconditionRequired, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockNotesService{
				deleteFn: func(ctx context.Context, userID, noteID string, confirmed bool) error {
					if confirmed != tt.wantConf {
						t.Errorf("confirmed = %v, want %v", confirmed, tt.wantConf)
					}
					if !confirmed {
						return model.NewConfirmationRequiredError()
					}
					return nil
				},
			}

			req := withUserID(httptest.NewRequest(http.MethodDelete, tt.target, nil), "user-123")
			if tt.header != "" {
				req.Header.Set("X-Confirm", tt.header)
			}
			req = withChiURLParams(req, "id", testNoteID)
			w := httptest.NewRecorder()
			NewNotesHandler(svc).Delete(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNotesHandler_Delete_Twice_SecondIsNotFound(t *testing.T) {
	deleted := map[string]bool{}
	svc := &mockNotesService{
		deleteFn: func(ctx context.Context, userID, noteID string, confirmed bool) error {
			if deleted[noteID] {
				return model.NewNoteNotFoundError(noteID)
			}
			deleted[noteID] = true
			return nil
		},
	}
	h := NewNotesHandler(svc)

	for i, want := range []int{http.StatusOK, http.StatusNotFound} {
		req := withUserID(httptest.NewRequest(http.MethodDelete, "/api/bible/notes/"+testNoteID+"?confirm=true", nil), "user-123")
		req = withChiURLParams(req, "id", testNoteID)
		w := httptest.NewRecorder()
		h.Delete(w, req)
		if w.Code != want {
			t.Errorf("delete #%d: status = %d, want %d", i+1, w.Code, want)
		}
	}
}

func TestNotesHandler_MalformedIDIsNotFound(t *testing.T) {
	svc := &mockNotesService{
		updateFn: func(ctx context.Context, userID, noteID, content string) (*model.BibleNote, error) {
			t.Fatal("不正なIDでサービスを呼んではならない")
			return nil, nil
		},
		deleteFn: func(ctx context.Context, userID, noteID string, confirmed bool) error {
			t.Fatal("不正なIDでサービスを呼んではならない")
			return nil
		},
	}
	h := NewNotesHandler(svc)

	for _, id := range []string{"note-1", "1 OR 1=1", "3f2b8c1e-6d4a-4e0b-9a7c"} {
		req := withUserID(jsonRequest(http.MethodPut, "/api/bible/notes/x", `{"content":"更新"}`), "user-123")
		req = withChiURLParams(req, "id", id)
		w := httptest.NewRecorder()
		h.Update(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("Update(%q): status = %d, want %d", id, w.Code, http.StatusNotFound)
		}
		if code := errorCode(t, w); code != model.ErrCodeNoteNotFound {
			t.Errorf("Update(%q): code = %q", id, code)
		}

		req = withUserID(httptest.NewRequest(http.MethodDelete, "/api/bible/notes/x?confirm=true", nil), "user-123")
		req = withChiURLParams(req, "id", id)
		w = httptest.NewRecorder()
		h.Delete(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("Delete(%q): status = %d, want %d", id, w.Code, http.StatusNotFound)
		}
	}
}

func TestNotesHandler_UppercaseIDIsNormalized(t *testing.T) {
	svc := &mockNotesService{
		deleteFn: func(ctx context.Context, userID, noteID string, confirmed bool) error {
			if noteID != testNoteID {
				t.Errorf("noteID = %q, want %q", noteID, testNoteID)
			}
			return nil
		},
	}

	req := withUserID(httptest.NewRequest(http.MethodDelete, "/api/bible/notes/x?confirm=true", nil), "user-123")
	req = withChiURLParams(req, "id", strings.ToUpper(testNoteID))
	w := httptest.NewRecorder()
	NewNotesHandler(svc).Delete(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
