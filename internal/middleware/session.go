// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/churchconnect/internal/model"
	"github.com/hitoshi/churchconnect/internal/session"
)

// SessionCookieName はブラウザセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey    = contextKey("user_id")
	sessionIDContextKey = contextKey("session_id")
	sessionContextKey   = contextKey("session")
	authStateContextKey = contextKey("auth_state")
)

// Session はブラウザセッション1つ分の認証状態ホルダー。session.Holderが実装する。
type Session interface {
	State() model.AuthState
	WaitResolved(ctx context.Context) (model.AuthState, error)
	Login(ctx context.Context, email, password string) (model.AuthState, error)
	Register(ctx context.Context, cred session.Credentials) (session.RegisterOutcome, model.AuthState, error)
	Logout(ctx context.Context) error
	SwitchBranch(ctx context.Context, branchID string) (model.AuthState, error)
	RefreshProfile(ctx context.Context) (model.AuthState, error)
	AccessToken(ctx context.Context) (string, error)
}

// SessionLookup はセッションIDに対応するSessionを返す。存在しなければ生成する。
type SessionLookup func(sessionID string) Session

// CookieConfig はセッションCookieの設定。
type CookieConfig struct {
	Secure bool
	Domain string
	MaxAge int // 秒
}

// NewBrowserSessionMiddleware はHTTP Only CookieのセッションIDからSessionを取り出し、
// リクエストコンテキストに注入するミドルウェアを返す。
// Cookieがない、またはUUIDとして不正な場合は新しいセッションIDを発行する。
func NewBrowserSessionMiddleware(lookup SessionLookup, config CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := ""
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				if _, err := uuid.Parse(cookie.Value); err == nil {
					sessionID = cookie.Value
				}
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			// スライディング有効期限
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookieName,
				Value:    sessionID,
				Path:     "/",
				Domain:   config.Domain,
				MaxAge:   config.MaxAge,
				HttpOnly: true,
				Secure:   config.Secure,
				SameSite: http.SameSiteLaxMode,
			})

			ctx := context.WithValue(r.Context(), sessionIDContextKey, sessionID)
			ctx = context.WithValue(ctx, sessionContextKey, lookup(sessionID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewAuthGuardMiddleware は認証状態の確定（loading=false）を待ってから、
// 未認証のリクエストを401で拒否するミドルウェアを返す。
// resolveTimeout以内に確定しない場合は503を返す。
// 認証済みの場合はユーザーIDと認証状態をコンテキストに注入する。
func NewAuthGuardMiddleware(resolveTimeout time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := SessionFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), resolveTimeout)
			state, err := sess.WaitResolved(ctx)
			cancel()
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					slog.Warn("認証状態の確定待ちがタイムアウトしました",
						slog.String("path", r.URL.Path),
						slog.Duration("timeout", resolveTimeout),
					)
					WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewSessionResolveTimeoutError())
					return
				}
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if !state.Authenticated || state.User == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			recordUserID(r.Context(), state.User.ID)
			ctx = context.WithValue(r.Context(), userIDContextKey, state.User.ID)
			ctx = context.WithValue(ctx, authStateContextKey, state)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext はリクエストコンテキストからSessionを取得する。
func SessionFromContext(ctx context.Context) (Session, error) {
	sess, ok := ctx.Value(sessionContextKey).(Session)
	if !ok || sess == nil {
		return nil, fmt.Errorf("session not found in context")
	}
	return sess, nil
}

// SessionIDFromContext はリクエストコンテキストからブラウザセッションIDを取得する。
func SessionIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(sessionIDContextKey).(string)
	if !ok || id == "" {
		return "", fmt.Errorf("session ID not found in context")
	}
	return id, nil
}

// AuthStateFromContext は認証ガードが確定させた認証状態を取得する。
func AuthStateFromContext(ctx context.Context) (model.AuthState, bool) {
	state, ok := ctx.Value(authStateContextKey).(model.AuthState)
	return state, ok
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ガードを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ContextWithSession はコンテキストにセッションIDとSessionを注入する。テスト用。
func ContextWithSession(ctx context.Context, sessionID string, sess Session) context.Context {
	ctx = context.WithValue(ctx, sessionIDContextKey, sessionID)
	return context.WithValue(ctx, sessionContextKey, sess)
}

// ContextWithAuthState はコンテキストに認証済みの状態を注入する。テスト用。
func ContextWithAuthState(ctx context.Context, state model.AuthState) context.Context {
	if state.User != nil {
		ctx = context.WithValue(ctx, userIDContextKey, state.User.ID)
	}
	return context.WithValue(ctx, authStateContextKey, state)
}
