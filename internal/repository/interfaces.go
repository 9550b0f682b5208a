// Package repository はデータ永続化のインターフェースを定義する。
// 実装はBaaSのリレーショナルストア（PostgreSQL）に直接SQLを発行する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/churchconnect/internal/model"
)

// ProfileRepository はユーザープロフィールの永続化インターフェース。
// プロフィールのIDは認証ユーザーのIDと一致する。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// Create はプロフィールを作成する。同じIDが既に存在する場合は何もしない。
	Create(ctx context.Context, profile *model.Profile) error

	// UpdateName は氏名を更新する。見つからない場合はnilを返す。
	UpdateName(ctx context.Context, id, firstName, lastName string) (*model.Profile, error)

	// UpdateBranch は所属ブランチを更新する。対象が存在しない場合はエラーを返す。
	UpdateBranch(ctx context.Context, id, branchID string) error

	// UpdateAvatar はアバター画像のURLを更新する。対象が存在しない場合はエラーを返す。
	UpdateAvatar(ctx context.Context, id, avatarURL string) error
}

// BranchRepository はブランチの参照インターフェース。
type BranchRepository interface {
	// List は全ブランチを名前順で返す。
	List(ctx context.Context) ([]model.Branch, error)

	// FindByID は指定IDのブランチを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Branch, error)

	// ListWithSermonFeed は説教フィードURLが設定されたブランチを返す。
	ListWithSermonFeed(ctx context.Context) ([]model.Branch, error)
}

// BibleNoteRepository は聖書ノートの永続化インターフェース。
// すべての操作は所有者のuserIDでスコープされ、他人のノートは存在しないものとして扱う。
type BibleNoteRepository interface {
	// Create はノートを作成し、採番されたIDとタイムスタンプをnoteに設定する。
	Create(ctx context.Context, note *model.BibleNote) error

	// ListByUser はユーザーのノートを作成日時の降順で返す。
	ListByUser(ctx context.Context, userID string) ([]model.BibleNote, error)

	// ListByChapter はユーザーのノートのうち指定章のものを節の昇順で返す。
	ListByChapter(ctx context.Context, userID, translation, book string, chapter int) ([]model.BibleNote, error)

	// UpdateContent は本文とupdated_atのみを更新する。見つからない場合はnilを返す。
	UpdateContent(ctx context.Context, userID, id, content string) (*model.BibleNote, error)

	// Delete はノートを削除する。削除対象が存在しなかった場合はfalseを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// ContentRepository はブランチ単位の読み取り専用コンテンツの参照インターフェース。
type ContentRepository interface {
	// ListEvents はfrom以降に開始する行事を開始日時の昇順で返す。
	ListEvents(ctx context.Context, branchID string, from time.Time, limit int) ([]model.Event, error)

	// ListSermons は説教を日付の降順で返す。
	ListSermons(ctx context.Context, branchID string, limit int) ([]model.Sermon, error)

	// ListAnnouncements はnow時点で掲載中のお知らせを重要度、作成日時の順で返す。
	ListAnnouncements(ctx context.Context, branchID string, now time.Time, limit int) ([]model.Announcement, error)

	// ListMedia はメディアを作成日時の降順で返す。mediaTypeが空の場合は全種別を返す。
	ListMedia(ctx context.Context, branchID string, mediaType model.MediaType, limit int) ([]model.Media, error)

	// ListGroups は小グループを名前順で返す。
	ListGroups(ctx context.Context, branchID string) ([]model.Group, error)

	// ListRadioStations はラジオ局を返す。配信中の局を先に並べる。
	ListRadioStations(ctx context.Context, branchID string) ([]model.RadioStation, error)

	// ListForums は掲示板をタイトル順で返す。
	ListForums(ctx context.Context, branchID string) ([]model.Forum, error)

	// ListBlogPosts は公開済みのブログ記事を公開日時の降順で返す。
	ListBlogPosts(ctx context.Context, branchID string, now time.Time, limit int) ([]model.BlogPost, error)
}

// SermonRepository はフィード同期で取り込んだ説教の永続化インターフェース。
type SermonRepository interface {
	// Upsert は(branch_id, guid)をキーに説教を冪等に登録する。
	// 新規作成の場合はtrueを返す。
	Upsert(ctx context.Context, sermon *model.Sermon) (bool, error)
}
