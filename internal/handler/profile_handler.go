package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/hitoshi/churchconnect/internal/middleware"
	"github.com/hitoshi/churchconnect/internal/model"
	"github.com/hitoshi/churchconnect/internal/notify"
	"github.com/hitoshi/churchconnect/internal/profile"
)

// avatarFormField はプロフィール画像アップロードのフォームフィールド名。
const avatarFormField = "avatar"

// multipartOverhead はマルチパートのヘッダー分として画像サイズ上限に上乗せする量。
const multipartOverhead = 64 << 10

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
// profile.Serviceが実装する。
type ProfileServiceInterface interface {
	Update(ctx context.Context, sess profile.Session, in profile.UpdateInput) (model.AuthState, error)
	UploadAvatar(ctx context.Context, sess profile.Session, r io.Reader) (model.AuthState, error)
}

// ProfileHandler はプロフィール表示・編集のHTTPハンドラー。
type ProfileHandler struct {
	service       ProfileServiceInterface
	maxAvatarSize int64
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface, maxAvatarSize int64) *ProfileHandler {
	return &ProfileHandler{service: service, maxAvatarSize: maxAvatarSize}
}

type updateProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BranchID  string `json:"branch_id"`
}

type switchBranchRequest struct {
	BranchID string `json:"branch_id"`
}

// Get はログイン中のユーザーと所属ブランチを返す。
// GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	state, ok := middleware.AuthStateFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, toAuthStateResponse(state))
}

// Update は氏名と所属ブランチを更新する。
// PUT /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, newInvalidRequestError())
		return
	}

	state, err := h.service.Update(r.Context(), sess, profile.UpdateInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		BranchID:  req.BranchID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := toAuthStateResponse(state)
	resp.Notification = notificationOf(notify.Success("プロフィールを更新しました", ""))
	writeJSON(w, http.StatusOK, resp)
}

// SwitchBranch は所属ブランチを切り替える。失敗した場合ブランチは変わらない。
// PUT /api/profile/branch
func (h *ProfileHandler) SwitchBranch(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}

	var req switchBranchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, newInvalidRequestError())
		return
	}
	if req.BranchID == "" {
		handleServiceError(w, model.NewValidationError("切り替え先のブランチを選択してください。"))
		return
	}

	state, err := sess.SwitchBranch(r.Context(), req.BranchID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := toAuthStateResponse(state)
	resp.Notification = notificationOf(notify.Success("ブランチを切り替えました", ""))
	writeJSON(w, http.StatusOK, resp)
}

// UploadAvatar はプロフィール画像をアップロードする。
// POST /api/profile/avatar (multipart/form-data, フィールド名 avatar)
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxAvatarSize+multipartOverhead)
	file, _, err := r.FormFile(avatarFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handleServiceError(w, model.NewValidationError("画像のサイズが大きすぎます。"))
			return
		}
		handleServiceError(w, model.NewValidationError("アップロードする画像を選択してください。"))
		return
	}
	defer file.Close()

	state, err := h.service.UploadAvatar(r.Context(), sess, file)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := toAuthStateResponse(state)
	resp.Notification = notificationOf(notify.Success("プロフィール画像を更新しました", ""))
	writeJSON(w, http.StatusOK, resp)
}
