package bible

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/churchconnect/internal/model"
	"github.com/hitoshi/churchconnect/internal/notify"
)

// Provider はReaderが使用するプロバイダ操作。Clientが実装する。
type Provider interface {
	ListBooks(ctx context.Context, translationID string) ([]Book, error)
	FetchChapter(ctx context.Context, translationID, bookID string, chapter int) (*Chapter, error)
	CountChapters(ctx context.Context, translationID, bookID string) (int, error)
}

// BookList は書一覧の取得結果。取得に失敗した場合もBooksは空スライスで、Notificationが設定される。
type BookList struct {
	TranslationID string
	Books         []Book
	Notification  *notify.Notification
}

// Reader は聖書リーダー画面のサービス。
// プロバイダの障害で閲覧全体が止まらないよう、書一覧と章数の失敗は既定値で続行する。
type Reader struct {
	provider Provider
	logger   *slog.Logger
}

// NewReader はReaderを生成する。
func NewReader(provider Provider, logger *slog.Logger) *Reader {
	return &Reader{provider: provider, logger: logger}
}

// Books は翻訳の書一覧を返す。
// 未知の翻訳の場合のみエラーを返し、プロバイダの失敗は空の一覧と通知で表す。
func (r *Reader) Books(ctx context.Context, translation string) (*BookList, error) {
	id, err := ResolveTranslation(translation)
	if err != nil {
		return nil, err
	}

	books, err := r.provider.ListBooks(ctx, id)
	if err != nil {
		r.logger.Warn("書一覧の取得に失敗しました",
			slog.String("translation_id", id),
			slog.String("error", err.Error()),
		)
		return &BookList{
			TranslationID: id,
			Books:         []Book{},
			Notification:  notify.FromError(ScriptureError(err)),
		}, nil
	}
	return &BookList{TranslationID: id, Books: books}, nil
}

// ChapterCount は書の章数を返す。取得に失敗した場合や0章の場合は1を返す。
func (r *Reader) ChapterCount(ctx context.Context, translation, bookID string) (int, error) {
	id, err := ResolveTranslation(translation)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(bookID) == "" {
		return 0, model.NewValidationError("書を指定してください。")
	}

	n, err := r.provider.CountChapters(ctx, id, bookID)
	if err != nil {
		r.logger.Warn("章数の取得に失敗したため1章として扱います",
			slog.String("translation_id", id),
			slog.String("book_id", bookID),
			slog.String("error", err.Error()),
		)
		return 1, nil
	}
	if n < 1 {
		return 1, nil
	}
	return n, nil
}

// Chapter は章の節一覧を返す。
func (r *Reader) Chapter(ctx context.Context, translation, bookID string, chapter int) (*Chapter, error) {
	id, err := ResolveTranslation(translation)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(bookID) == "" {
		return nil, model.NewValidationError("書を指定してください。")
	}
	if chapter < 1 {
		return nil, model.NewValidationError("章は1以上で指定してください。")
	}

	ch, err := r.provider.FetchChapter(ctx, id, bookID, chapter)
	if err != nil {
		r.logger.Error("章の取得に失敗しました",
			slog.String("translation_id", id),
			slog.String("book_id", bookID),
			slog.Int("chapter", chapter),
			slog.String("error", err.Error()),
		)
		return nil, ScriptureError(err)
	}
	return ch, nil
}

// ScriptureError はプロバイダ呼び出しのエラーを利用者向けのAPIErrorに変換する。
func ScriptureError(err error) *model.APIError {
	if errors.Is(err, ErrKeyMissing) {
		return model.NewScriptureKeyMissingError()
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return model.NewScriptureKeyMissingError()
		case http.StatusNotFound:
			return model.NewScriptureUnavailableError("指定された箇所が見つかりません")
		}
		return model.NewScriptureUnavailableError(fmt.Sprintf("status %d", se.Status))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewScriptureUnavailableError("タイムアウトしました")
	}
	return model.NewScriptureUnavailableError("通信に失敗しました")
}
