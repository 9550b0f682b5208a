package supabase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ErrNoSession はセッションが存在しないことを表す。
var ErrNoSession = errors.New("no session")

// ErrSessionRevoked はリフレッシュトークンが失効しセッションを破棄したことを表す。
var ErrSessionRevoked = errors.New("session revoked")

// AuthListener は認証状態の変化を受け取るコールバック。
// 呼び出し元のゴルーチン上で同期的に呼ばれるため、重い処理をしてはならない。
type AuthListener func(event AuthEvent, session *Session)

// AuthClient はブラウザセッション1つ分のBaaS認証クライアント。
// トークンはTokenStoreにstoreKeyで保存され、再起動後も復元できる。
type AuthClient struct {
	cfg        Config
	httpClient *http.Client
	store      TokenStore
	storeKey   string
	storeTTL   time.Duration
	logger     *slog.Logger
	now        func() time.Time

	refreshMu sync.Mutex // リフレッシュトークンは使い捨てのため、リフレッシュを直列化する

	mu        sync.Mutex
	session   *Session
	listeners map[int]AuthListener
	nextID    int
}

// NewAuthClient はAuthClientを生成する。
// storeTTLはリフレッシュトークンを保持する期間（セッションの最大寿命）。
func NewAuthClient(cfg Config, httpClient *http.Client, store TokenStore, storeKey string, storeTTL time.Duration, logger *slog.Logger) *AuthClient {
	return &AuthClient{
		cfg:        cfg,
		httpClient: httpClient,
		store:      store,
		storeKey:   storeKey,
		storeTTL:   storeTTL,
		logger:     logger,
		now:        time.Now,
		listeners:  make(map[int]AuthListener),
	}
}

// OnAuthStateChange はリスナーを登録し、登録解除関数を返す。
func (c *AuthClient) OnAuthStateChange(fn AuthListener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *AuthClient) emit(event AuthEvent, session *Session) {
	c.mu.Lock()
	listeners := make([]AuthListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(event, session)
	}
}

func (c *AuthClient) headers(accessToken string) map[string]string {
	h := map[string]string{"apikey": c.cfg.AnonKey}
	if accessToken != "" {
		h["Authorization"] = "Bearer " + accessToken
	} else {
		h["Authorization"] = "Bearer " + c.cfg.AnonKey
	}
	return h
}

func (c *AuthClient) endpoint(path string) string {
	return c.cfg.URL + "/auth/v1" + path
}

// GetSession は有効なセッションを返す。セッションがない場合はnilを返す。
// メモリ上にない場合はTokenStoreから復元し、期限切れであればリフレッシュする。
// リフレッシュトークンが無効になっている場合は保存済みセッションを破棄してnilを返す。
func (c *AuthClient) GetSession(ctx context.Context) (*Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil {
		stored, err := c.store.Load(ctx, c.storeKey)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			return nil, nil
		}
		if err := c.verify(stored); err != nil {
			c.logger.Warn("保存済みセッションのトークンが不正です",
				slog.String("error", err.Error()),
			)
			c.clear(ctx)
			return nil, nil
		}
		session = stored
		c.setSession(session)
	}

	if !session.Expired(c.now()) {
		return copySession(session), nil
	}

	refreshed, err := c.refresh(ctx, session.RefreshToken)
	if err != nil {
		if isRevoked(err) {
			c.logger.Info("保存済みセッションのリフレッシュトークンが無効です",
				slog.String("user_id", session.User.ID),
				slog.String("error", err.Error()),
			)
			c.clear(ctx)
			return nil, nil
		}
		return nil, err
	}
	return refreshed, nil
}

// ValidAccessToken は期限内のアクセストークンを返す。
// 期限切れ（または期限直前）の場合はリフレッシュしてTOKEN_REFRESHEDを通知する。
// リフレッシュトークンが失効していた場合はセッションを破棄してSIGNED_OUTを通知し、ErrSessionRevokedを返す。
func (c *AuthClient) ValidAccessToken(ctx context.Context) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return "", ErrNoSession
	}
	if !session.Expired(c.now()) {
		return session.AccessToken, nil
	}

	refreshed, err := c.refresh(ctx, session.RefreshToken)
	if err != nil {
		if isRevoked(err) {
			c.logger.Info("リフレッシュトークンが失効したためセッションを破棄します",
				slog.String("user_id", session.User.ID),
				slog.String("error", err.Error()),
			)
			c.clear(ctx)
			c.emit(EventSignedOut, nil)
			return "", ErrSessionRevoked
		}
		return "", err
	}
	return refreshed.AccessToken, nil
}

func isRevoked(err error) bool {
	return IsStatus(err, http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden)
}

// verify は復元したセッションのアクセストークンがユーザーと一致するかを検証する。
func (c *AuthClient) verify(session *Session) error {
	claims, err := ParseAccessToken(session.AccessToken, c.cfg.JWTSecret)
	if err != nil {
		return err
	}
	if claims.Subject != session.User.ID {
		return fmt.Errorf("access token subject %q does not match user %q", claims.Subject, session.User.ID)
	}
	return nil
}

func (c *AuthClient) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var resp tokenResponse
	err := doJSON(ctx, c.httpClient, http.MethodPost,
		c.endpoint("/token?grant_type=refresh_token"),
		c.headers(""),
		map[string]string{"refresh_token": refreshToken},
		&resp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	session := resp.session(c.now())
	if err := c.persist(ctx, session); err != nil {
		return nil, err
	}
	c.emit(EventTokenRefreshed, copySession(session))
	return copySession(session), nil
}

// SignInWithPassword はメールアドレスとパスワードでログインする。
// 成功時はSIGNED_INを通知する。
func (c *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var resp tokenResponse
	err := doJSON(ctx, c.httpClient, http.MethodPost,
		c.endpoint("/token?grant_type=password"),
		c.headers(""),
		map[string]string{"email": email, "password": password},
		&resp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}
	if !resp.hasSession() {
		return nil, fmt.Errorf("failed to sign in: no session issued")
	}

	session := resp.session(c.now())
	if err := c.persist(ctx, session); err != nil {
		return nil, err
	}
	c.emit(EventSignedIn, copySession(session))
	return copySession(session), nil
}

// SignUpResult はユーザー登録の結果を表す。
// メール確認が必要な場合はSessionがnilになる。
type SignUpResult struct {
	User    AuthUser
	Session *Session
}

// SignUp はユーザーを登録する。metadataはユーザーメタデータとして保存される。
// 即時にセッションが発行された場合はSIGNED_INを通知する。
func (c *AuthClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error) {
	var resp tokenResponse
	err := doJSON(ctx, c.httpClient, http.MethodPost,
		c.endpoint("/signup"),
		c.headers(""),
		map[string]any{"email": email, "password": password, "data": metadata},
		&resp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}

	result := &SignUpResult{User: resp.user()}
	if !resp.hasSession() {
		return result, nil
	}

	session := resp.session(c.now())
	if err := c.persist(ctx, session); err != nil {
		return nil, err
	}
	result.Session = copySession(session)
	c.emit(EventSignedIn, copySession(session))
	return result, nil
}

// SignOut はログアウトする。成功時はSIGNED_OUTを通知する。
// トークンが既に無効な場合もローカルのセッションを破棄して成功とする。
func (c *AuthClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session != nil {
		err := doJSON(ctx, c.httpClient, http.MethodPost,
			c.endpoint("/logout"),
			c.headers(session.AccessToken),
			nil, nil,
		)
		if err != nil && !IsStatus(err, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound) {
			return fmt.Errorf("failed to sign out: %w", err)
		}
	}

	c.clear(ctx)
	c.emit(EventSignedOut, nil)
	return nil
}

// ReloadUser は認証サービスから最新のユーザー情報を取得し、USER_UPDATEDを通知する。
func (c *AuthClient) ReloadUser(ctx context.Context) (*AuthUser, error) {
	accessToken, err := c.ValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var user AuthUser
	err = doJSON(ctx, c.httpClient, http.MethodGet,
		c.endpoint("/user"),
		c.headers(accessToken),
		nil, &user,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil, ErrNoSession
	}

	updated := copySession(session)
	updated.User = user
	if err := c.persist(ctx, updated); err != nil {
		return nil, err
	}
	c.emit(EventUserUpdated, copySession(updated))
	return &user, nil
}

// Close はすべてのリスナーを解除する。保存済みトークンは削除しない。
func (c *AuthClient) Close() {
	c.mu.Lock()
	c.listeners = make(map[int]AuthListener)
	c.mu.Unlock()
}

func (c *AuthClient) persist(ctx context.Context, session *Session) error {
	if err := c.store.Save(ctx, c.storeKey, session, c.storeTTL); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	c.setSession(session)
	return nil
}

func (c *AuthClient) setSession(session *Session) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
}

func (c *AuthClient) clear(ctx context.Context) {
	c.setSession(nil)
	if err := c.store.Delete(ctx, c.storeKey); err != nil {
		c.logger.Warn("保存済みセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

func copySession(s *Session) *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
