package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/churchconnect/internal/model"
)

// ErrNotFound は更新対象の行が存在しない場合に返される。
var ErrNotFound = errors.New("record not found")

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `id, first_name, last_name, branch_id, role, avatar, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (*model.Profile, error) {
	p := &model.Profile{}
	var branchID, avatar sql.NullString
	var role string
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &branchID, &role, &avatar, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.BranchID = branchID.String
	p.Avatar = avatar.String
	p.Role = model.ParseRole(role)
	return p, nil
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}
	return p, nil
}

// Create はプロフィールを作成する。同じIDが既に存在する場合は何もしない。
func (r *PostgresProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	role := profile.Role
	if !role.Valid() {
		role = model.DefaultRole
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, first_name, last_name, branch_id, role)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		profile.ID, profile.FirstName, profile.LastName, nullString(profile.BranchID), string(role),
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// UpdateName は氏名を更新する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) UpdateName(ctx context.Context, id, firstName, lastName string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`UPDATE profiles SET first_name = $2, last_name = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING `+profileColumns,
		id, firstName, lastName,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile name: %w", err)
	}
	return p, nil
}

// UpdateBranch は所属ブランチを更新する。
func (r *PostgresProfileRepo) UpdateBranch(ctx context.Context, id, branchID string) error {
	return r.execSingle(ctx, "update profile branch",
		`UPDATE profiles SET branch_id = $2, updated_at = now() WHERE id = $1`,
		id, branchID,
	)
}

// UpdateAvatar はアバター画像のURLを更新する。
func (r *PostgresProfileRepo) UpdateAvatar(ctx context.Context, id, avatarURL string) error {
	return r.execSingle(ctx, "update profile avatar",
		`UPDATE profiles SET avatar = $2, updated_at = now() WHERE id = $1`,
		id, avatarURL,
	)
}

func (r *PostgresProfileRepo) execSingle(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("failed to %s: %w", op, ErrNotFound)
	}
	return nil
}

// nullString は空文字列をNULLとして渡す。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
