package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/churchconnect/internal/model"
	"github.com/hitoshi/churchconnect/internal/supabase"
)

// AuthClient はHolderが使用するBaaS認証クライアントの操作。
type AuthClient interface {
	GetSession(ctx context.Context) (*supabase.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*supabase.SignUpResult, error)
	SignOut(ctx context.Context) error
	ReloadUser(ctx context.Context) (*supabase.AuthUser, error)
	OnAuthStateChange(fn supabase.AuthListener) func()
	ValidAccessToken(ctx context.Context) (string, error)
	Close()
}

// ProfileStore はハイドレーションとブランチ切り替えに必要なプロフィール操作。
type ProfileStore interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	Create(ctx context.Context, profile *model.Profile) error
	UpdateBranch(ctx context.Context, id, branchID string) error
}

// BranchStore はブランチの取得操作。
type BranchStore interface {
	FindByID(ctx context.Context, id string) (*model.Branch, error)
}

// Recorder はハイドレーション結果の記録先。metrics.Collectorが実装する。
type Recorder interface {
	RecordHydration(outcome string)
}

// ハイドレーション結果のラベル。
const (
	HydrationOK       = "ok"
	HydrationFallback = "fallback"
)

// Credentials はユーザー登録の入力を表す。
type Credentials struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	BranchID  string
}

// RegisterOutcome はユーザー登録の結果を表す。
type RegisterOutcome string

const (
	// OutcomeSignedIn は登録と同時にセッションが発行されログイン済みになったことを表す。
	OutcomeSignedIn RegisterOutcome = "signed_in"
	// OutcomeConfirmationRequired はメール確認待ちであることを表す。
	OutcomeConfirmationRequired RegisterOutcome = "confirmation_required"
)

// Options はHolderの動作設定。
type Options struct {
	HydrateTimeout  time.Duration // 1回のハイドレーションの上限時間
	RefreshInterval time.Duration // 認証済みセッションのトークン期限を確認する間隔
	Recorder        Recorder
}

// notification は専用ゴルーチンに渡す仕事の単位。
// eventが空の場合はinit（初回のセッション確認）またはbarrierを表す。
type notification struct {
	init    bool
	event   supabase.AuthEvent
	session *supabase.Session
	barrier chan struct{}
}

// Holder はブラウザセッション1つ分の認証状態を保持する。
// 状態を書き換えるのはHolder自身のみで、読み取り側はStateでコピーを受け取る。
type Holder struct {
	auth     AuthClient
	profiles ProfileStore
	branches BranchStore
	logger   *slog.Logger
	opts     Options

	mu      sync.Mutex
	state   model.AuthState
	changed chan struct{}

	inbox       chan notification
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	closeOnce   sync.Once
	unsubscribe func()
}

// NewHolder はHolderを生成し、専用ゴルーチンを起動する。
// 初回のセッション確認（Initialize）は専用ゴルーチン上で非同期に実行される。
func NewHolder(auth AuthClient, profiles ProfileStore, branches BranchStore, logger *slog.Logger, opts Options) *Holder {
	if opts.HydrateTimeout <= 0 {
		opts.HydrateTimeout = 10 * time.Second
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 20 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Holder{
		auth:     auth,
		profiles: profiles,
		branches: branches,
		logger:   logger,
		opts:     opts,
		state:    InitialState(),
		changed:  make(chan struct{}),
		inbox:    make(chan notification, 16),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	// リスナーは受け渡しのみを行い、ハイドレーションは専用ゴルーチンで実行する
	h.unsubscribe = auth.OnAuthStateChange(func(event supabase.AuthEvent, session *supabase.Session) {
		h.enqueue(notification{event: event, session: session})
	})

	go h.run()
	go h.refreshLoop()
	h.enqueue(notification{init: true})
	return h
}

// refreshLoop は認証済みの間、期限が近づいたアクセストークンをリフレッシュする。
// リフレッシュ結果はTOKEN_REFRESHEDまたはSIGNED_OUTの通知として専用ゴルーチンに届く。
func (h *Holder) refreshLoop() {
	ticker := time.NewTicker(h.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !h.State().Authenticated {
				continue
			}
			ctx, cancel := context.WithTimeout(h.ctx, h.opts.HydrateTimeout)
			_, err := h.auth.ValidAccessToken(ctx)
			cancel()
			if err != nil && !errors.Is(err, supabase.ErrSessionRevoked) && h.ctx.Err() == nil {
				h.logger.Warn("アクセストークンのリフレッシュに失敗しました",
					slog.String("error", err.Error()),
				)
			}
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Holder) enqueue(n notification) bool {
	select {
	case h.inbox <- n:
		return true
	case <-h.done:
		return false
	}
}

func (h *Holder) run() {
	defer close(h.done)
	for {
		select {
		case n := <-h.inbox:
			h.handle(n)
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Holder) handle(n notification) {
	switch {
	case n.barrier != nil:
		close(n.barrier)
	case n.init:
		h.initialize()
	case n.event == supabase.EventSignedOut:
		h.apply(Transition{Kind: SignedOut})
	case n.event == supabase.EventSignedIn, n.event == supabase.EventTokenRefreshed, n.event == supabase.EventUserUpdated:
		if n.session == nil {
			return
		}
		h.hydrate(n.session)
	default:
		h.logger.Debug("未対応の認証イベントを無視しました", slog.String("event", string(n.event)))
	}
}

// initialize は保存済みのセッションを確認し、あればハイドレーションする。
func (h *Holder) initialize() {
	ctx, cancel := context.WithTimeout(h.ctx, h.opts.HydrateTimeout)
	defer cancel()

	session, err := h.auth.GetSession(ctx)
	if err != nil {
		h.logger.Warn("セッションの確認に失敗しました",
			slog.String("error", err.Error()),
		)
		h.apply(Transition{Kind: SignedOut})
		return
	}
	if session == nil {
		h.apply(Transition{Kind: SignedOut})
		return
	}
	h.hydrate(session)
}

// hydrate はセッションのユーザーのプロフィールとブランチを取得して認証済み状態にする。
// プロフィールの取得に失敗しても、セッションのIDとメールアドレスだけで認証済みにする。
func (h *Holder) hydrate(session *supabase.Session) {
	ctx, cancel := context.WithTimeout(h.ctx, h.opts.HydrateTimeout)
	defer cancel()

	userID := session.User.ID
	email := session.User.Email

	profile, err := h.loadProfile(ctx, session.User)
	if err != nil || profile == nil {
		attrs := []any{slog.String("user_id", userID)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		h.logger.Warn("プロフィールを取得できないため最小限のユーザー情報で続行します", attrs...)
		h.record(HydrationFallback)
		h.apply(Transition{Kind: SignedIn, User: model.MinimalUser(userID, email)})
		return
	}

	user := profile.ToUser(email)
	var branch *model.Branch
	if user.BranchID != "" {
		branch, err = h.branches.FindByID(ctx, user.BranchID)
		if err != nil {
			h.logger.Warn("ブランチの取得に失敗しました",
				slog.String("user_id", userID),
				slog.String("branch_id", user.BranchID),
				slog.String("error", err.Error()),
			)
			branch = nil
		}
	}

	h.record(HydrationOK)
	h.apply(Transition{Kind: SignedIn, User: user, Branch: branch})
}

// loadProfile はプロフィールを取得する。
// 未作成の場合は登録時のユーザーメタデータから役割memberで作成する。
func (h *Holder) loadProfile(ctx context.Context, authUser supabase.AuthUser) (*model.Profile, error) {
	profile, err := h.profiles.FindByID(ctx, authUser.ID)
	if err != nil || profile != nil {
		return profile, err
	}

	created := &model.Profile{
		ID:        authUser.ID,
		FirstName: metadataString(authUser.UserMetadata, "first_name"),
		LastName:  metadataString(authUser.UserMetadata, "last_name"),
		BranchID:  metadataString(authUser.UserMetadata, "branch_id"),
		Role:      model.DefaultRole,
	}
	if err := h.profiles.Create(ctx, created); err != nil {
		return nil, err
	}
	h.logger.Info("ユーザーメタデータからプロフィールを作成しました", slog.String("user_id", authUser.ID))
	return h.profiles.FindByID(ctx, authUser.ID)
}

func metadataString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (h *Holder) record(outcome string) {
	if h.opts.Recorder != nil {
		h.opts.Recorder.RecordHydration(outcome)
	}
}

// apply は遷移を適用し、待機中のWaitResolvedを起こす。
func (h *Holder) apply(t Transition) model.AuthState {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = Reduce(h.state, t)
	close(h.changed)
	h.changed = make(chan struct{})
	return h.state
}

// State は現在の状態のコピーを返す。
func (h *Holder) State() model.AuthState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return copyState(h.state)
}

func copyState(s model.AuthState) model.AuthState {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	if s.Branch != nil {
		b := *s.Branch
		s.Branch = &b
	}
	return s
}

// WaitResolved はloadingがfalseになるまで待ち、その時点の状態を返す。
func (h *Holder) WaitResolved(ctx context.Context) (model.AuthState, error) {
	for {
		h.mu.Lock()
		if !h.state.Loading {
			s := copyState(h.state)
			h.mu.Unlock()
			return s, nil
		}
		changed := h.changed
		h.mu.Unlock()

		select {
		case <-changed:
		case <-h.done:
			return h.State(), errors.New("session holder closed")
		case <-ctx.Done():
			return h.State(), ctx.Err()
		}
	}
}

// sync は専用ゴルーチンがここまでに受け取った通知をすべて処理するまで待つ。
func (h *Holder) sync(ctx context.Context) error {
	barrier := make(chan struct{})
	if !h.enqueue(notification{barrier: barrier}) {
		return errors.New("session holder closed")
	}
	select {
	case <-barrier:
		return nil
	case <-h.done:
		return errors.New("session holder closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin はloadingをtrueにする。
func (h *Holder) begin() {
	h.apply(Transition{Kind: LoadingStarted})
}

// restore は失敗した操作のloadingを解除する。
func (h *Holder) restore() {
	h.apply(Transition{Kind: LoadingRestored, Loading: false})
}

// Login はパスワードでログインする。
// 認証済みへの遷移はSIGNED_INの通知経由で行われ、ここでは反映を待ってから状態を返す。
func (h *Holder) Login(ctx context.Context, email, password string) (model.AuthState, error) {
	h.begin()

	if _, err := h.auth.SignInWithPassword(ctx, strings.TrimSpace(email), password); err != nil {
		h.logger.Warn("ログインに失敗しました",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		h.restore()
		if supabase.IsStatus(err, 400, 401, 422) {
			return h.State(), model.NewInvalidCredentialsError("メールアドレスまたはパスワードが正しくありません")
		}
		return h.State(), model.NewAuthUnavailableError()
	}

	if err := h.sync(ctx); err != nil {
		return h.State(), err
	}
	return h.State(), nil
}

// Register はユーザーを登録する。
// セッションが即時発行された場合はログイン済みとして扱い、そうでなければメール確認待ちを返す。
func (h *Holder) Register(ctx context.Context, cred Credentials) (RegisterOutcome, model.AuthState, error) {
	h.begin()

	metadata := map[string]any{
		"first_name": strings.TrimSpace(cred.FirstName),
		"last_name":  strings.TrimSpace(cred.LastName),
		"branch_id":  cred.BranchID,
	}
	result, err := h.auth.SignUp(ctx, strings.TrimSpace(cred.Email), cred.Password, metadata)
	if err != nil {
		h.logger.Warn("ユーザー登録に失敗しました",
			slog.String("email", cred.Email),
			slog.String("error", err.Error()),
		)
		h.restore()
		return "", h.State(), model.NewRegistrationFailedError(registrationReason(err))
	}

	if result.Session == nil {
		h.restore()
		return OutcomeConfirmationRequired, h.State(), nil
	}

	if err := h.sync(ctx); err != nil {
		return "", h.State(), err
	}
	return OutcomeSignedIn, h.State(), nil
}

func registrationReason(err error) string {
	var apiErr *supabase.Error
	if errors.As(err, &apiErr) && apiErr.Status < 500 && apiErr.Message != "" {
		return apiErr.Message
	}
	return "登録処理中にエラーが発生しました"
}

// Logout はログアウトする。状態のリセットはSIGNED_OUTの通知経由で行われる。
func (h *Holder) Logout(ctx context.Context) error {
	h.begin()

	if err := h.auth.SignOut(ctx); err != nil {
		h.logger.Warn("ログアウトに失敗しました",
			slog.String("error", err.Error()),
		)
		h.restore()
		return model.NewLogoutFailedError()
	}
	return h.sync(ctx)
}

// SwitchBranch は所属ブランチを切り替える。
// 失敗した場合はブランチを変更せず、loadingを元に戻す。
func (h *Holder) SwitchBranch(ctx context.Context, branchID string) (model.AuthState, error) {
	current := h.State()
	if !current.Authenticated || current.User == nil {
		return current, model.NewUnauthorizedError()
	}
	h.begin()

	fail := func(err error, apiErr *model.APIError) (model.AuthState, error) {
		h.logger.Warn("ブランチの切り替えに失敗しました",
			slog.String("user_id", current.User.ID),
			slog.String("branch_id", branchID),
			slog.String("error", err.Error()),
		)
		h.restore()
		return h.State(), apiErr
	}

	branch, err := h.branches.FindByID(ctx, branchID)
	if err != nil {
		return fail(err, model.NewBranchSwitchFailedError())
	}
	if branch == nil {
		return fail(fmt.Errorf("branch %s not found", branchID), model.NewBranchNotFoundError(branchID))
	}
	if err := h.profiles.UpdateBranch(ctx, current.User.ID, branchID); err != nil {
		return fail(err, model.NewBranchSwitchFailedError())
	}

	return copyState(h.apply(Transition{Kind: BranchSwitched, Branch: branch})), nil
}

// RefreshProfile はプロフィール更新後にユーザー情報を再取得し、再ハイドレーションを待つ。
func (h *Holder) RefreshProfile(ctx context.Context) (model.AuthState, error) {
	if _, err := h.auth.ReloadUser(ctx); err != nil {
		h.logger.Warn("ユーザー情報の再取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return h.State(), err
	}
	if err := h.sync(ctx); err != nil {
		return h.State(), err
	}
	return h.State(), nil
}

// AccessToken はBaaSへのユーザー権限でのリクエストに使うトークンを返す。
// 期限が近い場合はリフレッシュしてから返す。セッションが失われている場合はUNAUTHORIZEDを返す。
func (h *Holder) AccessToken(ctx context.Context) (string, error) {
	token, err := h.auth.ValidAccessToken(ctx)
	if err != nil {
		if errors.Is(err, supabase.ErrNoSession) || errors.Is(err, supabase.ErrSessionRevoked) {
			return "", model.NewUnauthorizedError()
		}
		h.logger.Warn("アクセストークンを取得できませんでした",
			slog.String("error", err.Error()),
		)
		return "", model.NewAuthUnavailableError()
	}
	return token, nil
}

// Close は専用ゴルーチンを停止し、認証クライアントのリスナーを解除する。
func (h *Holder) Close() {
	h.closeOnce.Do(func() {
		h.unsubscribe()
		h.cancel()
		<-h.done
		h.auth.Close()
	})
}
