package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/churchconnect/internal/model"
)

// PostgresSermonRepo はPostgreSQLを使用した説教リポジトリ。
type PostgresSermonRepo struct {
	db *sql.DB
}

// NewPostgresSermonRepo はPostgresSermonRepoを生成する。
func NewPostgresSermonRepo(db *sql.DB) *PostgresSermonRepo {
	return &PostgresSermonRepo{db: db}
}

// Upsert は(branch_id, guid)をキーに説教を冪等に登録する。
// 既存の説教は上書き更新し、履歴は保持しない。新規作成の場合はtrueを返す。
func (r *PostgresSermonRepo) Upsert(ctx context.Context, sermon *model.Sermon) (bool, error) {
	if sermon.GUID == "" {
		return false, fmt.Errorf("sermon guid is required for upsert")
	}

	var inserted bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO sermons (branch_id, guid, title, description, speaker, sermon_date, media_url, media_type, thumbnail_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (branch_id, guid) WHERE guid IS NOT NULL DO UPDATE SET
		     title = EXCLUDED.title,
		     description = EXCLUDED.description,
		     speaker = EXCLUDED.speaker,
		     sermon_date = EXCLUDED.sermon_date,
		     media_url = EXCLUDED.media_url,
		     media_type = EXCLUDED.media_type,
		     thumbnail_url = EXCLUDED.thumbnail_url,
		     updated_at = now()
		 RETURNING id, created_at, updated_at, (xmax = 0)`,
		sermon.BranchID, sermon.GUID, sermon.Title, sermon.Description, sermon.Speaker,
		sermon.SermonDate, nullString(sermon.MediaURL), nullString(string(sermon.MediaType)),
		nullString(sermon.ThumbnailURL),
	).Scan(&sermon.ID, &sermon.CreatedAt, &sermon.UpdatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert sermon: %w", err)
	}
	return inserted, nil
}

// compile-time interface check
var _ SermonRepository = (*PostgresSermonRepo)(nil)
