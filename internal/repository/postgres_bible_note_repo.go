package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/churchconnect/internal/model"
)

// PostgresBibleNoteRepo はPostgreSQLを使用した聖書ノートリポジトリ。
type PostgresBibleNoteRepo struct {
	db *sql.DB
}

// NewPostgresBibleNoteRepo はPostgresBibleNoteRepoを生成する。
func NewPostgresBibleNoteRepo(db *sql.DB) *PostgresBibleNoteRepo {
	return &PostgresBibleNoteRepo{db: db}
}

const noteColumns = `id, user_id, bible_version, book, chapter, verse, note_content, created_at, updated_at`

func scanNote(row interface{ Scan(...any) error }, n *model.BibleNote) error {
	return row.Scan(&n.ID, &n.UserID, &n.Translation, &n.Book, &n.Chapter, &n.Verse, &n.Content, &n.CreatedAt, &n.UpdatedAt)
}

// Create はノートを作成し、採番されたIDとタイムスタンプをnoteに設定する。
func (r *PostgresBibleNoteRepo) Create(ctx context.Context, note *model.BibleNote) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO bible_notes (user_id, bible_version, book, chapter, verse, note_content)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		note.UserID, note.Translation, note.Book, note.Chapter, note.Verse, note.Content,
	).Scan(&note.ID, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bible note: %w", err)
	}
	return nil
}

// ListByUser はユーザーのノートを作成日時の降順で返す。
func (r *PostgresBibleNoteRepo) ListByUser(ctx context.Context, userID string) ([]model.BibleNote, error) {
	return r.list(ctx,
		`SELECT `+noteColumns+` FROM bible_notes
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
}

// ListByChapter はユーザーのノートのうち指定章のものを節の昇順で返す。
func (r *PostgresBibleNoteRepo) ListByChapter(ctx context.Context, userID, translation, book string, chapter int) ([]model.BibleNote, error) {
	return r.list(ctx,
		`SELECT `+noteColumns+` FROM bible_notes
		 WHERE user_id = $1 AND bible_version = $2 AND book = $3 AND chapter = $4
		 ORDER BY verse ASC, created_at ASC`,
		userID, translation, book, chapter,
	)
}

// UpdateContent は本文とupdated_atのみを更新する。
// 他ユーザーのノートは存在しないものとして扱い、nilを返す。
func (r *PostgresBibleNoteRepo) UpdateContent(ctx context.Context, userID, id, content string) (*model.BibleNote, error) {
	note := &model.BibleNote{}
	err := scanNote(r.db.QueryRowContext(ctx,
		`UPDATE bible_notes SET note_content = $3, updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+noteColumns,
		id, userID, content,
	), note)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update bible note: %w", err)
	}
	return note, nil
}

// Delete はノートを削除する。削除対象が存在しなかった場合はfalseを返す。
func (r *PostgresBibleNoteRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM bible_notes WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete bible note: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func (r *PostgresBibleNoteRepo) list(ctx context.Context, query string, args ...any) ([]model.BibleNote, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bible notes: %w", err)
	}
	defer rows.Close()

	notes := []model.BibleNote{}
	for rows.Next() {
		var n model.BibleNote
		if err := scanNote(rows, &n); err != nil {
			return nil, fmt.Errorf("failed to scan bible note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bible notes: %w", err)
	}
	return notes, nil
}

// compile-time interface check
var _ BibleNoteRepository = (*PostgresBibleNoteRepo)(nil)
