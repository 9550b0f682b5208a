// Package notes は聖書ノートのドメインロジックを提供する。
package notes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/churchconnect/internal/model"
	"github.com/hitoshi/churchconnect/internal/repository"
)

// maxContentLength はノート本文の最大文字数。
const maxContentLength = 10000

// Recorder はノート操作の記録先。metrics.Collectorが実装する。
type Recorder interface {
	RecordNoteOperation(operation, outcome string)
}

// Service は聖書ノートのサービス層。
// 入力検証はリポジトリ呼び出しの前に行い、不正な入力ではストアに一切アクセスしない。
type Service struct {
	repo     repository.BibleNoteRepository
	logger   *slog.Logger
	recorder Recorder
}

// NewService はServiceの新しいインスタンスを生成する。recorderはnilでもよい。
func NewService(repo repository.BibleNoteRepository, logger *slog.Logger, recorder Recorder) *Service {
	return &Service{repo: repo, logger: logger, recorder: recorder}
}

func (s *Service) record(operation string, err error) {
	if s.recorder == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.recorder.RecordNoteOperation(operation, outcome)
}

// Create はノートを作成する。IDとタイムスタンプはストアが採番する。
func (s *Service) Create(ctx context.Context, userID string, in model.NewBibleNote) (note *model.BibleNote, err error) {
	defer func() { s.record("create", err) }()

	in.Translation = strings.TrimSpace(in.Translation)
	in.Book = strings.TrimSpace(in.Book)
	content := strings.TrimSpace(in.Content)

	switch {
	case in.Translation == "":
		return nil, model.NewValidationError("翻訳を指定してください。")
	case in.Book == "":
		return nil, model.NewValidationError("書を指定してください。")
	case in.Chapter < 1:
		return nil, model.NewValidationError("章は1以上で指定してください。")
	case in.Verse < 1:
		return nil, model.NewValidationError("節は1以上で指定してください。")
	}
	if err := validateContent(content); err != nil {
		return nil, err
	}

	note = &model.BibleNote{
		UserID:      userID,
		Translation: in.Translation,
		Book:        in.Book,
		Chapter:     in.Chapter,
		Verse:       in.Verse,
		Content:     content,
	}
	if err := s.repo.Create(ctx, note); err != nil {
		s.logger.Error("ノートの作成に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("ノートの作成に失敗しました: %w", err)
	}

	s.logger.Info("ノートを作成しました",
		slog.String("user_id", userID),
		slog.String("note_id", note.ID),
	)
	return note, nil
}

// List はユーザーのノートを新しい順で返す。
func (s *Service) List(ctx context.Context, userID string) ([]model.BibleNote, error) {
	notes, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ノート一覧の取得に失敗しました: %w", err)
	}
	if notes == nil {
		notes = []model.BibleNote{}
	}
	return notes, nil
}

// ListForChapter はリーダーで表示中の章に付いたノートを節の順で返す。
func (s *Service) ListForChapter(ctx context.Context, userID, translation, book string, chapter int) ([]model.BibleNote, error) {
	if strings.TrimSpace(translation) == "" || strings.TrimSpace(book) == "" || chapter < 1 {
		return nil, model.NewValidationError("翻訳・書・章を指定してください。")
	}
	notes, err := s.repo.ListByChapter(ctx, userID, translation, book, chapter)
	if err != nil {
		return nil, fmt.Errorf("章のノート取得に失敗しました: %w", err)
	}
	if notes == nil {
		notes = []model.BibleNote{}
	}
	return notes, nil
}

// Update はノートの本文を更新する。本文とupdated_at以外は変更しない。
// 他人のノートは存在しないノートと同じ扱いになる。
func (s *Service) Update(ctx context.Context, userID, noteID, content string) (note *model.BibleNote, err error) {
	defer func() { s.record("update", err) }()

	content = strings.TrimSpace(content)
	if err := validateContent(content); err != nil {
		return nil, err
	}

	note, err = s.repo.UpdateContent(ctx, userID, noteID, content)
	if err != nil {
		s.logger.Error("ノートの更新に失敗しました",
			slog.String("user_id", userID),
			slog.String("note_id", noteID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("ノートの更新に失敗しました: %w", err)
	}
	if note == nil {
		return nil, model.NewNoteNotFoundError(noteID)
	}
	return note, nil
}

// Delete はノートを削除する。confirmedがfalseの場合はストアにアクセスせず確認を求める。
// 既に削除済みのノートを再度削除するとNOTE_NOT_FOUNDを返す。
func (s *Service) Delete(ctx context.Context, userID, noteID string, confirmed bool) (err error) {
	defer func() { s.record("delete", err) }()

	if !confirmed {
		return model.NewConfirmationRequiredError()
	}

	deleted, err := s.repo.Delete(ctx, userID, noteID)
	if err != nil {
		s.logger.Error("ノートの削除に失敗しました",
			slog.String("user_id", userID),
			slog.String("note_id", noteID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("ノートの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNoteNotFoundError(noteID)
	}

	s.logger.Info("ノートを削除しました",
		slog.String("user_id", userID),
		slog.String("note_id", noteID),
	)
	return nil
}

func validateContent(content string) error {
	if content == "" {
		return model.NewValidationError("ノートの本文を入力してください。")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return model.NewValidationError(fmt.Sprintf("ノートの本文は%d文字以内で入力してください。", maxContentLength))
	}
	return nil
}
