// Package model はドメインモデルを定義する。
package model

import "time"

// Role は教会アプリ内でのユーザーの役割を表す。
type Role string

const (
	// RoleAdmin は全ブランチを管理できる管理者。
	RoleAdmin Role = "admin"
	// RoleBranchAdmin は所属ブランチのみを管理できる管理者。
	RoleBranchAdmin Role = "branch_admin"
	// RoleMember は一般会員。プロフィール未取得時の既定値でもある。
	RoleMember Role = "member"
	// RoleGuest はゲスト。
	RoleGuest Role = "guest"
)

// DefaultRole はプロフィールが取得できない場合に割り当てる役割。
const DefaultRole = RoleMember

// Valid は役割が定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleBranchAdmin, RoleMember, RoleGuest:
		return true
	}
	return false
}

// ParseRole は文字列を役割に変換する。未知の値はDefaultRoleになる。
func ParseRole(s string) Role {
	r := Role(s)
	if r.Valid() {
		return r
	}
	return DefaultRole
}

// User はアプリケーション上のユーザー（認証IDとプロフィールを合成したもの）を表す。
// Emailは認証セッション由来で、profilesテーブルには保存しない。
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	BranchID  string // 空文字はブランチ未所属
	Role      Role
	Avatar    string // 公開URL。空文字は未設定
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile はprofilesテーブルの1行を表す。
type Profile struct {
	ID        string
	FirstName string
	LastName  string
	BranchID  string
	Role      Role
	Avatar    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToUser はプロフィールと認証情報のメールアドレスからUserを組み立てる。
func (p *Profile) ToUser(email string) *User {
	return &User{
		ID:        p.ID,
		Email:     email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		BranchID:  p.BranchID,
		Role:      p.Role,
		Avatar:    p.Avatar,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// MinimalUser はセッションから得られる最小限の情報だけでUserを組み立てる。
// プロフィール取得に失敗してもログイン状態を維持するために使う。
func MinimalUser(id, email string) *User {
	return &User{
		ID:    id,
		Email: email,
		Role:  DefaultRole,
	}
}

// Branch は教会の拠点（ブランチ）を表す。
type Branch struct {
	ID            string
	Name          string
	Location      string
	Description   string
	Logo          string
	SermonFeedURL string // 説教ポッドキャストのフィードURLまたはWebサイトURL
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AuthState はブラウザセッションごとの認証状態を表す。
// Authenticatedがtrueの場合、Userは必ず非nilである。
// Loadingがtrueの間は認証ガードの判定を保留する。
type AuthState struct {
	User          *User
	Branch        *Branch
	Authenticated bool
	Loading       bool
}

// UnauthenticatedState は未ログイン状態の初期値を返す。
func UnauthenticatedState() AuthState {
	return AuthState{}
}
