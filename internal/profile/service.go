// Package profile はプロフィール編集とプロフィール画像アップロードのドメインロジックを提供する。
package profile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/churchconnect/internal/model"
	"github.com/hitoshi/churchconnect/internal/repository"
)

// minNameLength は氏名の最小文字数。
const minNameLength = 2

// allowedImageTypes は受け付ける画像のContent-Typeと拡張子。
var allowedImageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Session はプロフィール操作の対象となるログイン中のセッション。session.Holderが実装する。
type Session interface {
	State() model.AuthState
	SwitchBranch(ctx context.Context, branchID string) (model.AuthState, error)
	RefreshProfile(ctx context.Context) (model.AuthState, error)
	AccessToken(ctx context.Context) (string, error)
}

// Storage はファイルストレージ操作。supabase.StorageClientが実装する。
type Storage interface {
	Upload(ctx context.Context, bucket, path, contentType string, body io.Reader, accessToken string) error
	PublicURL(bucket, path string) string
}

// UpdateInput はプロフィール編集の入力。BranchIDが空の場合はブランチを変更しない。
type UpdateInput struct {
	FirstName string
	LastName  string
	BranchID  string
}

// Service はプロフィールのサービス層。
type Service struct {
	profiles repository.ProfileRepository
	storage  Storage
	bucket   string
	maxSize  int64
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(profiles repository.ProfileRepository, storage Storage, bucket string, maxSize int64, logger *slog.Logger) *Service {
	return &Service{
		profiles: profiles,
		storage:  storage,
		bucket:   bucket,
		maxSize:  maxSize,
		logger:   logger,
	}
}

func currentUser(sess Session) (*model.User, error) {
	state := sess.State()
	if !state.Authenticated || state.User == nil {
		return nil, model.NewUnauthorizedError()
	}
	return state.User, nil
}

// Update は氏名を更新し、ブランチが変わる場合は切り替える。
// 更新後はセッションを再ハイドレーションし、最新の状態を返す。
func (s *Service) Update(ctx context.Context, sess Session, in UpdateInput) (model.AuthState, error) {
	user, err := currentUser(sess)
	if err != nil {
		return sess.State(), err
	}

	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if utf8.RuneCountInString(first) < minNameLength {
		return sess.State(), model.NewValidationError(fmt.Sprintf("名は%d文字以上で入力してください。", minNameLength))
	}
	if utf8.RuneCountInString(last) < minNameLength {
		return sess.State(), model.NewValidationError(fmt.Sprintf("姓は%d文字以上で入力してください。", minNameLength))
	}

	updated, err := s.profiles.UpdateName(ctx, user.ID, first, last)
	if err != nil {
		s.logger.Error("プロフィールの更新に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return sess.State(), fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	if updated == nil {
		return sess.State(), model.NewProfileNotFoundError()
	}

	branchID := strings.TrimSpace(in.BranchID)
	if branchID != "" && branchID != user.BranchID {
		if _, err := sess.SwitchBranch(ctx, branchID); err != nil {
			return sess.State(), err
		}
	}

	state, err := sess.RefreshProfile(ctx)
	if err != nil {
		s.logger.Warn("プロフィール更新後の再取得に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return state, nil
}

// UploadAvatar はプロフィール画像をストレージの{ユーザーID}.{拡張子}に上書き保存し、
// 公開URLをプロフィールに設定する。画像の種別は内容から判定する。
func (s *Service) UploadAvatar(ctx context.Context, sess Session, r io.Reader) (model.AuthState, error) {
	user, err := currentUser(sess)
	if err != nil {
		return sess.State(), err
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return sess.State(), model.NewAvatarUploadFailedError("ファイルを読み込めませんでした")
	}
	if len(data) == 0 {
		return sess.State(), model.NewValidationError("アップロードする画像を選択してください。")
	}
	if int64(len(data)) > s.maxSize {
		return sess.State(), model.NewValidationError(fmt.Sprintf("画像は%dバイト以下にしてください。", s.maxSize))
	}

	contentType := http.DetectContentType(data)
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return sess.State(), model.NewValidationError("画像ファイル（JPEG、PNG、GIF、WebP）を選択してください。")
	}

	accessToken, err := sess.AccessToken(ctx)
	if err != nil {
		return sess.State(), err
	}

	path := user.ID + "." + ext
	if err := s.storage.Upload(ctx, s.bucket, path, contentType, bytes.NewReader(data), accessToken); err != nil {
		s.logger.Error("プロフィール画像のアップロードに失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return sess.State(), model.NewAvatarUploadFailedError("ストレージへの保存に失敗しました")
	}

	publicURL := s.storage.PublicURL(s.bucket, path)
	if err := s.profiles.UpdateAvatar(ctx, user.ID, publicURL); err != nil {
		s.logger.Error("プロフィール画像URLの保存に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return sess.State(), model.NewAvatarUploadFailedError("プロフィールの更新に失敗しました")
	}

	s.logger.Info("プロフィール画像を更新しました",
		slog.String("user_id", user.ID),
		slog.String("content_type", contentType),
		slog.Int("size", len(data)),
	)

	state, err := sess.RefreshProfile(ctx)
	if err != nil {
		s.logger.Warn("プロフィール画像更新後の再取得に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return state, nil
}
