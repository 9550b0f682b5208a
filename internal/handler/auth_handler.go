package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/churchconnect/internal/middleware"
	"github.com/hitoshi/churchconnect/internal/model"
	"github.com/hitoshi/churchconnect/internal/notify"
	"github.com/hitoshi/churchconnect/internal/session"
)

// minPasswordLength は登録時のパスワードの最小文字数。
const minPasswordLength = 8

// BranchLister はブランチ一覧の取得インターフェース。repository.BranchRepositoryが実装する。
type BranchLister interface {
	List(ctx context.Context) ([]model.Branch, error)
}

// AuthHandler はログイン・登録・ログアウトと認証状態のHTTPハンドラー。
// 操作対象はブラウザセッションごとのSession（BrowserSessionMiddlewareが注入する）。
type AuthHandler struct {
	branches       BranchLister
	resolveTimeout time.Duration
	release        func(sessionID string)
}

// NewAuthHandler はAuthHandlerを生成する。
// releaseはログアウト成功後にブラウザセッションの状態を破棄する。nilの場合は何もしない。
func NewAuthHandler(branches BranchLister, resolveTimeout time.Duration, release func(sessionID string)) *AuthHandler {
	return &AuthHandler{
		branches:       branches,
		resolveTimeout: resolveTimeout,
		release:        release,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	BranchID             string `json:"branch_id"`
}

// validate は登録フォームの送信前検証を行う。
func (req *registerRequest) validate() *model.APIError {
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		return model.NewValidationError("有効なメールアドレスを入力してください。")
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		return model.NewValidationError("パスワードは8文字以上で入力してください。")
	}
	if req.Password != req.PasswordConfirmation {
		return model.NewValidationError("パスワードが一致しません。")
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return model.NewValidationError("氏名を入力してください。")
	}
	if strings.TrimSpace(req.BranchID) == "" {
		return model.NewValidationError("所属するブランチを選択してください。")
	}
	return nil
}

// currentSession はリクエストに紐づくSessionを返す。見つからない場合は401を書き込む。
func currentSession(w http.ResponseWriter, r *http.Request) (middleware.Session, bool) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, false
	}
	return sess, true
}

// Login はメールアドレスとパスワードでログインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, newInvalidRequestError())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		handleServiceError(w, model.NewValidationError("メールアドレスとパスワードを入力してください。"))
		return
	}

	state, err := sess.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := toAuthStateResponse(state)
	resp.Notification = notificationOf(notify.Success("ログインしました", "おかえりなさい。"))
	writeJSON(w, http.StatusOK, resp)
}

// Register はユーザーを登録する。
// メール確認が必要な場合は202と未ログインの状態を返す。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, newInvalidRequestError())
		return
	}
	if apiErr := req.validate(); apiErr != nil {
		handleServiceError(w, apiErr)
		return
	}

	outcome, state, err := sess.Register(r.Context(), session.Credentials{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		BranchID:  req.BranchID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := toAuthStateResponse(state)
	resp.Outcome = string(outcome)
	if outcome == session.OutcomeConfirmationRequired {
		resp.Notification = notificationOf(notify.Info("確認メールを送信しました", "メールに記載されたリンクから登録を完了してください。"))
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	resp.Notification = notificationOf(notify.Success("登録が完了しました", "ようこそ。"))
	writeJSON(w, http.StatusCreated, resp)
}

// Logout はログアウトする。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}

	if err := sess.Logout(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}

	resp := toAuthStateResponse(sess.State())
	if h.release != nil {
		if sessionID, err := middleware.SessionIDFromContext(r.Context()); err == nil {
			h.release(sessionID)
		}
	}
	resp.Notification = notificationOf(notify.Success("ログアウトしました", ""))
	writeJSON(w, http.StatusOK, resp)
}

// State は現在の認証状態を返す。
// 確定待ちがタイムアウトした場合はloading=trueのまま返す。
// GET /auth/state
func (h *AuthHandler) State(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.resolveTimeout)
	defer cancel()

	state, err := sess.WaitResolved(ctx)
	if err != nil {
		slog.Warn("認証状態の確定を待たずに応答します",
			slog.String("error", err.Error()),
		)
		state = sess.State()
	}
	writeJSON(w, http.StatusOK, toAuthStateResponse(state))
}

// Branches は登録画面のブランチ選択肢を返す。取得できない場合も固定の候補は返さない。
// GET /api/branches
func (h *AuthHandler) Branches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.branches.List(r.Context())
	if err != nil {
		slog.Error("ブランチ一覧の取得に失敗しました", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	out := make([]*branchResponse, 0, len(branches))
	for i := range branches {
		out = append(out, toBranchResponse(&branches[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": out})
}
