// Package session はブラウザセッションごとの認証状態（AuthState）を管理する。
//
// 状態の遷移はすべてReduceを通して行う。BaaSからの認証イベントは
// Holderの専用ゴルーチンに渡され、プロフィールとブランチの取得（ハイドレーション）は
// そのゴルーチン上で順番に実行される。
package session

import "github.com/hitoshi/churchconnect/internal/model"

// TransitionKind は状態遷移の種類を表す。
type TransitionKind int

const (
	// LoadingStarted は操作の開始によりloadingをtrueにする。
	LoadingStarted TransitionKind = iota
	// LoadingRestored は操作の失敗によりloadingを直前の値に戻す。
	LoadingRestored
	// SignedIn はハイドレーション済みのユーザーで認証済み状態にする。
	// トークンのリフレッシュやユーザー更新による再ハイドレーションも同じ遷移を使う。
	SignedIn
	// SignedOut は未認証の初期状態に戻す。
	SignedOut
	// BranchSwitched は所属ブランチを差し替える。
	BranchSwitched
)

func (k TransitionKind) String() string {
	switch k {
	case LoadingStarted:
		return "loading_started"
	case LoadingRestored:
		return "loading_restored"
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case BranchSwitched:
		return "branch_switched"
	default:
		return "unknown"
	}
}

// Transition はReduceに渡す遷移を表す。
type Transition struct {
	Kind    TransitionKind
	User    *model.User   // SignedIn
	Branch  *model.Branch // SignedIn, BranchSwitched
	Loading bool          // LoadingRestored
}

// InitialState はセッション確認前の状態を返す。確認が終わるまでloadingはtrue。
func InitialState() model.AuthState {
	return model.AuthState{Loading: true}
}

// Reduce は現在の状態と遷移から次の状態を返す純粋関数。
// Authenticatedがtrueの状態は必ずUserを持つ。
func Reduce(s model.AuthState, t Transition) model.AuthState {
	switch t.Kind {
	case LoadingStarted:
		s.Loading = true
		return s

	case LoadingRestored:
		s.Loading = t.Loading
		return s

	case SignedIn:
		if t.User == nil {
			return model.UnauthenticatedState()
		}
		return model.AuthState{
			User:          t.User,
			Branch:        t.Branch,
			Authenticated: true,
			Loading:       false,
		}

	case SignedOut:
		return model.UnauthenticatedState()

	case BranchSwitched:
		s.Loading = false
		if !s.Authenticated || s.User == nil || t.Branch == nil {
			return s
		}
		user := *s.User
		user.BranchID = t.Branch.ID
		s.User = &user
		s.Branch = t.Branch
		return s
	}
	return s
}
