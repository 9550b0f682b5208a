package supabase

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthEvent は認証状態の変化を表すイベント名。
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

// AuthUser は認証サービス上のユーザーを表す。
type AuthUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Session は認証サービスが発行したトークンの組を表す。
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         AuthUser  `json:"user"`
}

// Expired はnow時点でアクセストークンの期限が切れている（または切れかけている）かを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Add(expiryMargin).Before(s.ExpiresAt)
}

// expiryMargin は期限切れ直前のトークンを先にリフレッシュするための余裕。
const expiryMargin = 30 * time.Second

// tokenResponse は/auth/v1/tokenおよび/auth/v1/signupのレスポンス。
type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         AuthUser `json:"user"`

	// メール確認待ちのsignupではユーザーオブジェクトがトップレベルで返る
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (r *tokenResponse) hasSession() bool {
	return r.AccessToken != ""
}

func (r *tokenResponse) session(now time.Time) *Session {
	expiresAt := now.Add(time.Duration(r.ExpiresIn) * time.Second)
	if r.ExpiresAt > 0 {
		expiresAt = time.Unix(r.ExpiresAt, 0)
	}
	return &Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		ExpiresAt:    expiresAt,
		User:         r.User,
	}
}

func (r *tokenResponse) user() AuthUser {
	if r.User.ID != "" {
		return r.User
	}
	return AuthUser{ID: r.ID, Email: r.Email}
}

// Claims はBaaSが発行するアクセストークンのクレーム。
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// ParseAccessToken はアクセストークンの署名を検証してクレームを返す。
// 有効期限はSession.ExpiresAtで判定するため、ここでは検証しない。
// secretが空の場合は署名を検証せずにクレームのみを読み取る。
func ParseAccessToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	if secret == "" {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, fmt.Errorf("failed to decode access token: %w", err)
		}
		if claims.Subject == "" {
			return nil, errors.New("access token has no subject")
		}
		return claims, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("failed to verify access token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
