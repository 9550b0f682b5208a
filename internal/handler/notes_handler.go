package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/churchconnect/internal/middleware"
	"github.com/hitoshi/churchconnect/internal/model"
	"github.com/hitoshi/churchconnect/internal/notify"
)

// confirmHeader は削除の確認済みを示すリクエストヘッダー。
const confirmHeader = "X-Confirm"

// NotesServiceInterface はノートハンドラーが必要とするサービスインターフェース。
// notes.Serviceが実装する。
type NotesServiceInterface interface {
	Create(ctx context.Context, userID string, in model.NewBibleNote) (*model.BibleNote, error)
	List(ctx context.Context, userID string) ([]model.BibleNote, error)
	ListForChapter(ctx context.Context, userID, translation, book string, chapter int) ([]model.BibleNote, error)
	Update(ctx context.Context, userID, noteID, content string) (*model.BibleNote, error)
	Delete(ctx context.Context, userID, noteID string, confirmed bool) error
}

// NotesHandler は聖書ノートのHTTPハンドラー。すべての操作はログイン中のユーザーのノートに限られる。
type NotesHandler struct {
	service NotesServiceInterface
}

// NewNotesHandler はNotesHandlerを生成する。
func NewNotesHandler(service NotesServiceInterface) *NotesHandler {
	return &NotesHandler{service: service}
}

type createNoteRequest struct {
	Translation string `json:"bible_version"`
	Book        string `json:"book"`
	Chapter     int    `json:"chapter"`
	Verse       int    `json:"verse"`
	Content     string `json:"content"`
}

type updateNoteRequest struct {
	Content string `json:"content"`
}

type noteMutationResponse struct {
	Note         *noteResponse                `json:"note,omitempty"`
	Notification *middleware.NotificationBody `json:"notification"`
}

// requireUserID は認証ガードが注入したユーザーIDを返す。見つからない場合は401を書き込む。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// List は自分のノートを返す。translation・book・chapterを指定するとその章のノートに絞り込む。
// GET /api/bible/notes
func (h *NotesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var (
		notes []model.BibleNote
		err   error
	)
	if q.Has("book") || q.Has("chapter") {
		notes, err = h.service.ListForChapter(r.Context(), userID, q.Get("translation"), q.Get("book"), queryInt(r, "chapter"))
	} else {
		notes, err = h.service.List(r.Context(), userID)
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": toNoteResponses(notes)})
}

// Create はノートを作成する。
// POST /api/bible/notes
func (h *NotesHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, newInvalidRequestError())
		return
	}

	note, err := h.service.Create(r.Context(), userID, model.NewBibleNote{
		Translation: req.Translation,
		Book:        req.Book,
		Chapter:     req.Chapter,
		Verse:       req.Verse,
		Content:     req.Content,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := toNoteResponse(note)
	writeJSON(w, http.StatusCreated, noteMutationResponse{
		Note:         &resp,
		Notification: notificationOf(notify.Success("ノートを保存しました", "")),
	})
}

// Update はノートの本文を更新する。
// PUT /api/bible/notes/{id}
func (h *NotesHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	noteID, ok := noteIDParam(w, r)
	if !ok {
		return
	}

	var req updateNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, newInvalidRequestError())
		return
	}

	note, err := h.service.Update(r.Context(), userID, noteID, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := toNoteResponse(note)
	writeJSON(w, http.StatusOK, noteMutationResponse{
		Note:         &resp,
		Notification: notificationOf(notify.Success("ノートを更新しました", "")),
	})
}

// Delete はノートを削除する。?confirm=trueまたはX-Confirm: trueで確認済みであることを示す。
// DELETE /api/bible/notes/{id}
func (h *NotesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	noteID, ok := noteIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, noteID, isConfirmed(r)); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, noteMutationResponse{
		Notification: notificationOf(notify.Success("ノートを削除しました", "")),
	})
}

// noteIDParam はURLのノートIDを取り出す。UUIDでない場合は存在しないノートとして404を返す。
func noteIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	parsed, err := uuid.Parse(id)
	if err != nil {
		handleServiceError(w, model.NewNoteNotFoundError(id))
		return "", false
	}
	return parsed.String(), true
}

func isConfirmed(r *http.Request) bool {
	if v, err := strconv.ParseBool(r.URL.Query().Get("confirm")); err == nil && v {
		return true
	}
	v, err := strconv.ParseBool(r.Header.Get(confirmHeader))
	return err == nil && v
}
