package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/churchconnect/internal/middleware"
	"github.com/hitoshi/churchconnect/internal/model"
)

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error { return m.err }

type routerFixture struct {
	handler  http.Handler
	sessions map[string]*mockSession
	released []string
	limiter  *middleware.RateLimiter
}

// newRouterFixture はモックを組み込んだルーターを生成する。
// 新しいセッションIDに対しては未ログインのmockSessionを割り当てる。
func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{sessions: map[string]*mockSession{}}
	f.limiter = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(f.limiter.Stop)

	f.handler = NewRouter(&RouterDeps{
		Logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Sessions: func(id string) middleware.Session {
			if s, ok := f.sessions[id]; ok {
				return s
			}
			s := &mockSession{}
			f.sessions[id] = s
			return s
		},
		ReleaseSession: func(id string) {
			f.released = append(f.released, id)
			delete(f.sessions, id)
		},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       f.limiter,
		ResolveTimeout:    100 * time.Millisecond,
		HealthChecker:     &mockHealthChecker{},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics"))
		}),
		Branches:       &mockBranchLister{},
		ContentService: &mockContentService{},
		BibleReader:    &mockBibleReader{},
		NotesService:   &mockNotesService{},
		ProfileService: &mockProfileService{},
		MaxAvatarSize:  1 << 20,
	})
	return f
}

// login は指定したセッションIDを認証済みにする。
func (f *routerFixture) login(sessionID string) {
	f.sessions[sessionID] = &mockSession{state: authenticated()}
}

func (f *routerFixture) do(req *http.Request, sessionID string) *httptest.ResponseRecorder {
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID})
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

const testCSRFToken = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// withCSRF は状態変更リクエストにCSRFトークンを付ける。
func withCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	req.Header.Set("X-CSRF-Token", testCSRFToken)
	return req
}

func TestNewRouter_Health(t *testing.T) {
	f := newRouterFixture(t)
	w := f.do(httptest.NewRequest(http.MethodGet, "/health", nil), "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("/health はセッションCookieを発行してはならない")
	}
}

func TestHealth_DBDown_Returns503(t *testing.T) {
	w := httptest.NewRecorder()
	Health(&mockHealthChecker{err: errors.New("connection refused")})(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestNewRouter_Metrics(t *testing.T) {
	f := newRouterFixture(t)
	w := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil), "")
	if w.Code != http.StatusOK || w.Body.String() != "# metrics" {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestNewRouter_PublicRoutes_NoAuthRequired(t *testing.T) {
	f := newRouterFixture(t)
	for _, path := range []string{"/auth/state", "/auth/csrf-token", "/api/branches", "/api/bible/translations"} {
		w := f.do(httptest.NewRequest(http.MethodGet, path, nil), "")
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}

func TestNewRouter_IssuesSessionCookie(t *testing.T) {
	f := newRouterFixture(t)
	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/state", nil), "")

	var sessionCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("セッションCookieが発行されていない")
	}
	if _, ok := f.sessions[sessionCookie.Value]; !ok {
		t.Error("発行されたセッションIDでSessionが生成されていない")
	}
}

func TestNewRouter_ProtectedRoutes_Unauthenticated_Return401(t *testing.T) {
	f := newRouterFixture(t)
	paths := []string{
		"/api/dashboard", "/api/events", "/api/sermons", "/api/media", "/api/music",
		"/api/radio", "/api/announcements", "/api/groups", "/api/forums", "/api/blog",
		"/api/profile", "/api/bible/notes", "/api/bible/KJV/books",
		"/api/bible/KJV/books/GEN/chapters", "/api/bible/KJV/books/GEN/chapters/1",
	}
	sid := uuid.NewString()
	for _, path := range paths {
		w := f.do(httptest.NewRequest(http.MethodGet, path, nil), sid)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want %d", path, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestNewRouter_ProtectedRoutes_Authenticated_Succeed(t *testing.T) {
	f := newRouterFixture(t)
	sid := uuid.NewString()
	f.login(sid)

	paths := []string{
		"/api/dashboard", "/api/events", "/api/sermons", "/api/media", "/api/music",
		"/api/radio", "/api/announcements", "/api/groups", "/api/forums", "/api/blog",
		"/api/profile", "/api/bible/notes", "/api/bible/KJV/books",
		"/api/bible/KJV/books/GEN/chapters", "/api/bible/KJV/books/GEN/chapters/1",
	}
	for _, path := range paths {
		w := f.do(httptest.NewRequest(http.MethodGet, path, nil), sid)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}

func TestNewRouter_StateChangingRoutes_RequireCSRF(t *testing.T) {
	f := newRouterFixture(t)
	sid := uuid.NewString()
	f.login(sid)

	req := jsonRequest(http.MethodPost, "/api/bible/notes", `{"bible_version":"KJV","book":"GEN","chapter":1,"verse":1,"content":"x"}`)
	if w := f.do(req, sid); w.Code != http.StatusForbidden {
		t.Errorf("CSRFトークンなし: status = %d, want %d", w.Code, http.StatusForbidden)
	}

	req = withCSRF(jsonRequest(http.MethodPost, "/api/bible/notes", `{"bible_version":"KJV","book":"GEN","chapter":1,"verse":1,"content":"x"}`))
	if w := f.do(req, sid); w.Code != http.StatusCreated {
		t.Errorf("CSRFトークンあり: status = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestNewRouter_NoteRoutes(t *testing.T) {
	f := newRouterFixture(t)
	sid := uuid.NewString()
	f.login(sid)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodPut, "/api/bible/notes/" + testNoteID, `{"content":"更新"}`, http.StatusOK},
		{http.MethodDelete, "/api/bible/notes/" + testNoteID + "?confirm=true", "", http.StatusOK},
		{http.MethodPut, "/api/bible/notes/not-a-uuid", `{"content":"更新"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		req := withCSRF(httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body)))
		if w := f.do(req, sid); w.Code != tt.want {
			t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, w.Code, tt.want)
		}
	}
}

func TestNewRouter_AuthFlow_LoginStateLogout(t *testing.T) {
	f := newRouterFixture(t)
	sid := uuid.NewString()
	sess := &mockSession{}
	sess.loginFn = func(ctx context.Context, email, password string) (model.AuthState, error) {
		sess.state = authenticated()
		return sess.state, nil
	}
	f.sessions[sid] = sess

	// ログイン前は保護されたルートに入れない
	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/dashboard", nil), sid); w.Code != http.StatusUnauthorized {
		t.Fatalf("ログイン前: status = %d, want 401", w.Code)
	}

	req := withCSRF(jsonRequest(http.MethodPost, "/auth/login", `{"email":"member@example.com","password":"secret123"}`))
	if w := f.do(req, sid); w.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200", w.Code)
	}

	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/dashboard", nil), sid); w.Code != http.StatusOK {
		t.Errorf("ログイン後: status = %d, want 200", w.Code)
	}

	if w := f.do(withCSRF(httptest.NewRequest(http.MethodPost, "/auth/logout", nil)), sid); w.Code != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", w.Code)
	}

	if len(f.released) != 1 || f.released[0] != sid {
		t.Errorf("ログアウト後にセッションが破棄されていない: %v", f.released)
	}

	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/dashboard", nil), sid); w.Code != http.StatusUnauthorized {
		t.Errorf("ログアウト後: status = %d, want 401", w.Code)
	}
}

func TestNewRouter_SecurityAndCORSHeaders(t *testing.T) {
	f := newRouterFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/branches", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := f.do(req, "")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-IDが設定されていない")
	}
}

func TestNewRouter_AuthRateLimit(t *testing.T) {
	f := newRouterFixture(t)

	var last int
	for i := 0; i < 11; i++ {
		req := withCSRF(jsonRequest(http.MethodPost, "/auth/login", `{"email":"a@example.com","password":"x"}`))
		req.RemoteAddr = "203.0.113.9:5000"
		last = f.do(req, "").Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("11回目のログイン: status = %d, want %d", last, http.StatusTooManyRequests)
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewUnauthorizedError(), http.StatusUnauthorized},
		{model.NewInvalidCredentialsError("x"), http.StatusUnauthorized},
		{model.NewValidationError("x"), http.StatusBadRequest},
		{model.NewUnknownTranslationError("x"), http.StatusBadRequest},
		{model.NewNoteNotFoundError("x"), http.StatusNotFound},
		{model.NewBranchNotFoundError("x"), http.StatusNotFound},
		{model.NewConfirmationRequiredError(), http.StatusPreconditionRequired},
		{model.NewScriptureUnavailableError("x"), http.StatusBadGateway},
		{model.NewScriptureKeyMissingError(), http.StatusServiceUnavailable},
		{model.NewSessionResolveTimeoutError(), http.StatusServiceUnavailable},
		{model.NewAuthUnavailableError(), http.StatusServiceUnavailable},
		{model.NewCSRFValidationError(), http.StatusForbidden},
		{&model.APIError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.err.Code, got, tt.want)
		}
	}
}
