package session

import (
	"testing"

	"github.com/hitoshi/churchconnect/internal/model"
)

func authenticatedState() model.AuthState {
	return model.AuthState{
		User:          &model.User{ID: "user-1", Email: "ama@example.com", BranchID: "branch-1", Role: model.RoleMember},
		Branch:        &model.Branch{ID: "branch-1", Name: "Central"},
		Authenticated: true,
	}
}

func TestInitialState_IsLoading(t *testing.T) {
	s := InitialState()
	if !s.Loading || s.Authenticated || s.User != nil || s.Branch != nil {
		t.Errorf("初期状態が不正: %+v", s)
	}
}

func TestReduce_SignedOut_AlwaysResets(t *testing.T) {
	starts := map[string]model.AuthState{
		"初期状態":     InitialState(),
		"認証済み":     authenticatedState(),
		"認証済みで処理中": Reduce(authenticatedState(), Transition{Kind: LoadingStarted}),
		"未認証":      model.UnauthenticatedState(),
	}
	for name, start := range starts {
		t.Run(name, func(t *testing.T) {
			got := Reduce(start, Transition{Kind: SignedOut})
			want := model.AuthState{}
			if got != want {
				t.Errorf("Reduce(SignedOut) = %+v, want %+v", got, want)
			}
		})
	}
}

func TestReduce_SignedIn_SetsAuthenticated(t *testing.T) {
	user := &model.User{ID: "user-1"}
	branch := &model.Branch{ID: "branch-1"}

	got := Reduce(InitialState(), Transition{Kind: SignedIn, User: user, Branch: branch})
	if !got.Authenticated || got.Loading || got.User != user || got.Branch != branch {
		t.Errorf("Reduce(SignedIn) = %+v", got)
	}
}

func TestReduce_SignedInWithoutUser_IsUnauthenticated(t *testing.T) {
	got := Reduce(authenticatedState(), Transition{Kind: SignedIn})
	if got.Authenticated || got.User != nil {
		t.Errorf("ユーザーなしで認証済みになってはならない: %+v", got)
	}
}

func TestReduce_LoadingStartedAndRestored(t *testing.T) {
	start := authenticatedState()

	loading := Reduce(start, Transition{Kind: LoadingStarted})
	if !loading.Loading || loading.User != start.User || loading.Branch != start.Branch {
		t.Errorf("LoadingStarted はloading以外を変更してはならない: %+v", loading)
	}

	restored := Reduce(loading, Transition{Kind: LoadingRestored, Loading: false})
	if restored != start {
		t.Errorf("LoadingRestored = %+v, want %+v", restored, start)
	}
}

func TestReduce_BranchSwitched(t *testing.T) {
	start := Reduce(authenticatedState(), Transition{Kind: LoadingStarted})
	next := &model.Branch{ID: "branch-2", Name: "North"}

	got := Reduce(start, Transition{Kind: BranchSwitched, Branch: next})
	if got.Loading {
		t.Error("loadingが解除されていない")
	}
	if got.Branch != next || got.User.BranchID != "branch-2" {
		t.Errorf("ブランチが切り替わっていない: %+v, user=%+v", got.Branch, got.User)
	}
	if start.User.BranchID != "branch-1" {
		t.Error("元の状態のユーザーが書き換えられた")
	}
}

func TestReduce_BranchSwitched_IgnoredWhenUnauthenticated(t *testing.T) {
	start := model.AuthState{Loading: true}
	got := Reduce(start, Transition{Kind: BranchSwitched, Branch: &model.Branch{ID: "branch-2"}})
	if got.Branch != nil || got.Authenticated || got.Loading {
		t.Errorf("未認証でブランチが設定された: %+v", got)
	}
}

func TestTransitionKind_String(t *testing.T) {
	if SignedIn.String() != "signed_in" || BranchSwitched.String() != "branch_switched" {
		t.Errorf("String() が不正: %s, %s", SignedIn, BranchSwitched)
	}
	if TransitionKind(99).String() != "unknown" {
		t.Errorf("未知の遷移: %s", TransitionKind(99))
	}
}
