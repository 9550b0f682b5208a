package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/churchconnect/internal/middleware"
	"github.com/hitoshi/churchconnect/internal/model"
	"github.com/hitoshi/churchconnect/internal/session"
)

// --- モック定義 ---

// mockSession はmiddleware.Sessionのモック実装。
type mockSession struct {
	state            model.AuthState
	waitResolvedFn   func(ctx context.Context) (model.AuthState, error)
	loginFn          func(ctx context.Context, email, password string) (model.AuthState, error)
	registerFn       func(ctx context.Context, cred session.Credentials) (session.RegisterOutcome, model.AuthState, error)
	logoutFn         func(ctx context.Context) error
	switchBranchFn   func(ctx context.Context, branchID string) (model.AuthState, error)
	refreshProfileFn func(ctx context.Context) (model.AuthState, error)
}

func (m *mockSession) State() model.AuthState { return m.state }

func (m *mockSession) WaitResolved(ctx context.Context) (model.AuthState, error) {
	if m.waitResolvedFn != nil {
		return m.waitResolvedFn(ctx)
	}
	return m.state, nil
}

func (m *mockSession) Login(ctx context.Context, email, password string) (model.AuthState, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return m.state, nil
}

func (m *mockSession) Register(ctx context.Context, cred session.Credentials) (session.RegisterOutcome, model.AuthState, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, cred)
	}
	return session.OutcomeSignedIn, m.state, nil
}

func (m *mockSession) Logout(ctx context.Context) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx)
	}
	m.state = model.UnauthenticatedState()
	return nil
}

func (m *mockSession) SwitchBranch(ctx context.Context, branchID string) (model.AuthState, error) {
	if m.switchBranchFn != nil {
		return m.switchBranchFn(ctx, branchID)
	}
	return m.state, nil
}

func (m *mockSession) RefreshProfile(ctx context.Context) (model.AuthState, error) {
	if m.refreshProfileFn != nil {
		return m.refreshProfileFn(ctx)
	}
	return m.state, nil
}

func (m *mockSession) AccessToken(ctx context.Context) (string, error) { return "access-token", nil }

// --- テストヘルパー ---

func testUser() *model.User {
	return &model.User{
		ID:        "user-123",
		Email:     "member@example.com",
		FirstName: "Grace",
		LastName:  "Hopper",
		BranchID:  "branch-1",
		Role:      model.RoleMember,
	}
}

func testBranch() *model.Branch {
	return &model.Branch{ID: "branch-1", Name: "Central", Location: "Tokyo"}
}

func authenticated() model.AuthState {
	return model.AuthState{User: testUser(), Branch: testBranch(), Authenticated: true}
}

// withSession はテスト用にリクエストコンテキストにSessionを注入するヘルパー。
func withSession(r *http.Request, sess middleware.Session) *http.Request {
	return r.WithContext(middleware.ContextWithSession(r.Context(), "sid-1", sess))
}

// withAuthState はテスト用に認証ガード通過後のコンテキストを作るヘルパー。
func withAuthState(r *http.Request, state model.AuthState) *http.Request {
	return r.WithContext(middleware.ContextWithAuthState(r.Context(), state))
}

// withChiURLParams はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeBody はレスポンスボディをmapにデコードするヘルパー。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return result
}

// errorCode はエラーレスポンスのcodeを返す。
func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	code, _ := decodeBody(t, w)["code"].(string)
	return code
}

// notificationVariant はレスポンスに含まれる通知の種別を返す。通知がなければ空文字を返す。
func notificationVariant(body map[string]any) string {
	n, ok := body["notification"].(map[string]any)
	if !ok {
		return ""
	}
	v, _ := n["variant"].(string)
	return v
}
