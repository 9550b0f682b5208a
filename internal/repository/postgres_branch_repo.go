package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/churchconnect/internal/model"
)

// PostgresBranchRepo はPostgreSQLを使用したブランチリポジトリ。
type PostgresBranchRepo struct {
	db *sql.DB
}

// NewPostgresBranchRepo はPostgresBranchRepoを生成する。
func NewPostgresBranchRepo(db *sql.DB) *PostgresBranchRepo {
	return &PostgresBranchRepo{db: db}
}

const branchColumns = `id, name, location, description, logo, sermon_feed_url, created_at, updated_at`

func scanBranch(row interface{ Scan(...any) error }) (*model.Branch, error) {
	b := &model.Branch{}
	var description, logo, feedURL sql.NullString
	if err := row.Scan(&b.ID, &b.Name, &b.Location, &description, &logo, &feedURL, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Description = description.String
	b.Logo = logo.String
	b.SermonFeedURL = feedURL.String
	return b, nil
}

// List は全ブランチを名前順で返す。
func (r *PostgresBranchRepo) List(ctx context.Context) ([]model.Branch, error) {
	return r.list(ctx, `SELECT `+branchColumns+` FROM branches ORDER BY name ASC`)
}

// FindByID は指定IDのブランチを取得する。見つからない場合はnilを返す。
func (r *PostgresBranchRepo) FindByID(ctx context.Context, id string) (*model.Branch, error) {
	b, err := scanBranch(r.db.QueryRowContext(ctx,
		`SELECT `+branchColumns+` FROM branches WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find branch by ID: %w", err)
	}
	return b, nil
}

// ListWithSermonFeed は説教フィードURLが設定されたブランチを返す。
func (r *PostgresBranchRepo) ListWithSermonFeed(ctx context.Context) ([]model.Branch, error) {
	return r.list(ctx,
		`SELECT `+branchColumns+` FROM branches
		 WHERE sermon_feed_url IS NOT NULL AND sermon_feed_url <> ''
		 ORDER BY name ASC`,
	)
}

func (r *PostgresBranchRepo) list(ctx context.Context, query string) ([]model.Branch, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	defer rows.Close()

	branches := []model.Branch{}
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan branch: %w", err)
		}
		branches = append(branches, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate branches: %w", err)
	}
	return branches, nil
}

// compile-time interface check
var _ BranchRepository = (*PostgresBranchRepo)(nil)
