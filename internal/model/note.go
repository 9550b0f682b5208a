package model

import "time"

// BibleNote は聖書の節ごとに付けるユーザーのメモを表す。
// 作成したユーザーのみが閲覧・更新・削除できる。
type BibleNote struct {
	ID          string
	UserID      string
	Translation string // 翻訳ID（bible_version列）
	Book        string
	Chapter     int // 1以上
	Verse       int // 1以上
	Content     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewBibleNote はメモ作成時の入力を表す。
type NewBibleNote struct {
	Translation string
	Book        string
	Chapter     int
	Verse       int
	Content     string
}
