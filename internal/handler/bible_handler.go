package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/churchconnect/internal/bible"
	"github.com/hitoshi/churchconnect/internal/middleware"
	"github.com/hitoshi/churchconnect/internal/model"
	"github.com/hitoshi/churchconnect/internal/notify"
)

// BibleReaderInterface は聖書リーダーハンドラーが必要とするサービスインターフェース。
// bible.Readerが実装する。
type BibleReaderInterface interface {
	Books(ctx context.Context, translation string) (*bible.BookList, error)
	ChapterCount(ctx context.Context, translation, bookID string) (int, error)
	Chapter(ctx context.Context, translation, bookID string, chapter int) (*bible.Chapter, error)
}

// ChapterNotesLister は表示中の章に付いたノートの取得インターフェース。notes.Serviceが実装する。
type ChapterNotesLister interface {
	ListForChapter(ctx context.Context, userID, translation, book string, chapter int) ([]model.BibleNote, error)
}

// BibleHandler は聖書リーダーのHTTPハンドラー。
type BibleHandler struct {
	reader BibleReaderInterface
	notes  ChapterNotesLister
}

// NewBibleHandler はBibleHandlerを生成する。
func NewBibleHandler(reader BibleReaderInterface, notes ChapterNotesLister) *BibleHandler {
	return &BibleHandler{reader: reader, notes: notes}
}

// Translations は選択可能な翻訳の一覧を返す。
// GET /api/bible/translations
func (h *BibleHandler) Translations(w http.ResponseWriter, r *http.Request) {
	list := bible.Translations()
	out := make([]translationResponse, 0, len(list))
	for _, t := range list {
		out = append(out, translationResponse{Key: t.Key, ID: t.ID, Name: t.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"translations": out,
		"default":      bible.DefaultTranslation,
	})
}

// Books は翻訳の書一覧を返す。プロバイダの障害時は空の一覧と通知を200で返す。
// GET /api/bible/{translation}/books
func (h *BibleHandler) Books(w http.ResponseWriter, r *http.Request) {
	list, err := h.reader.Books(r.Context(), chi.URLParam(r, "translation"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookListResponse{
		TranslationID: list.TranslationID,
		Books:         list.Books,
		Notification:  notificationOf(list.Notification),
	})
}

// Chapters は書の章数を返す。
// GET /api/bible/{translation}/books/{book}/chapters
func (h *BibleHandler) Chapters(w http.ResponseWriter, r *http.Request) {
	book := chi.URLParam(r, "book")
	n, err := h.reader.ChapterCount(r.Context(), chi.URLParam(r, "translation"), book)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"book_id": book,
		"count":   n,
	})
}

// Chapter は章の節一覧と、その章に付いた自分のノートを返す。
// ノートの取得に失敗しても本文は返し、通知で知らせる。
// GET /api/bible/{translation}/books/{book}/chapters/{chapter}
func (h *BibleHandler) Chapter(w http.ResponseWriter, r *http.Request) {
	translationID, err := bible.ResolveTranslation(chi.URLParam(r, "translation"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	book := chi.URLParam(r, "book")
	number, err := strconv.Atoi(chi.URLParam(r, "chapter"))
	if err != nil || number < 1 {
		handleServiceError(w, model.NewValidationError("章は1以上の数値で指定してください。"))
		return
	}

	ch, err := h.reader.Chapter(r.Context(), translationID, book, number)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := chapterResponse{
		TranslationID: translationID,
		BookID:        book,
		Chapter:       number,
		Reference:     ch.Reference,
		Verses:        toVerseResponses(ch.Verses),
		Notes:         []noteResponse{},
	}

	userID, err := middleware.UserIDFromContext(r.Context())
	if err == nil {
		notes, err := h.notes.ListForChapter(r.Context(), userID, translationID, strings.TrimSpace(book), number)
		if err != nil {
			slog.Warn("章のノート取得に失敗しました",
				slog.String("user_id", userID),
				slog.String("book_id", book),
				slog.Int("chapter", number),
				slog.String("error", err.Error()),
			)
			resp.Notification = notificationOf(notify.FromError(err))
		} else {
			resp.Notes = toNoteResponses(notes)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
