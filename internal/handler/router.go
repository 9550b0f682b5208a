package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/churchconnect/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Sessions          middleware.SessionLookup
	ReleaseSession    func(sessionID string) // ログアウト後にセッションの状態を破棄する
	Cookie            middleware.CookieConfig
	CSRF              middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	ResolveTimeout    time.Duration // 認証ガードが状態の確定を待つ上限

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証・ブランチ
	Branches BranchLister

	// コンテンツ
	ContentService ContentServiceInterface

	// 聖書
	BibleReader  BibleReaderInterface
	NotesService NotesServiceInterface

	// プロフィール
	ProfileService ProfileServiceInterface
	MaxAvatarSize  int64
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → BrowserSession → CSRF
//	  → (認証が必要なルートのみ) AuthGuard → RateLimit(General)
//
// ログイン・登録にはIP単位のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Cookie.Secure))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))

	authHandler := NewAuthHandler(deps.Branches, deps.ResolveTimeout, deps.ReleaseSession)
	contentHandler := NewContentHandler(deps.ContentService)
	bibleHandler := NewBibleHandler(deps.BibleReader, deps.NotesService)
	notesHandler := NewNotesHandler(deps.NotesService)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.MaxAvatarSize)

	// --- セッション不要のルート ---
	r.Get("/health", Health(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBrowserSessionMiddleware(deps.Sessions, deps.Cookie))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		// --- 認証不要のルート ---
		r.Route("/auth", func(r chi.Router) {
			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
			r.Get("/state", authHandler.State)
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/login", authHandler.Login)
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/register", authHandler.Register)
			r.Post("/logout", authHandler.Logout)
		})
		r.Get("/api/branches", authHandler.Branches)
		r.Get("/api/bible/translations", bibleHandler.Translations)

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAuthGuardMiddleware(deps.ResolveTimeout))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/api/dashboard", contentHandler.Dashboard)
			r.Get("/api/events", contentHandler.Events)
			r.Get("/api/sermons", contentHandler.Sermons)
			r.Get("/api/media", contentHandler.Media)
			r.Get("/api/music", contentHandler.Music)
			r.Get("/api/radio", contentHandler.Radio)
			r.Get("/api/announcements", contentHandler.Announcements)
			r.Get("/api/groups", contentHandler.Groups)
			r.Get("/api/forums", contentHandler.Forums)
			r.Get("/api/blog", contentHandler.Blog)

			r.Route("/api/profile", func(r chi.Router) {
				r.Get("/", profileHandler.Get)
				r.Put("/", profileHandler.Update)
				r.Put("/branch", profileHandler.SwitchBranch)
				r.Post("/avatar", profileHandler.UploadAvatar)
			})

			r.Route("/api/bible", func(r chi.Router) {
				r.Route("/notes", func(r chi.Router) {
					r.Get("/", notesHandler.List)
					r.Post("/", notesHandler.Create)
					r.Put("/{id}", notesHandler.Update)
					r.Delete("/{id}", notesHandler.Delete)
				})
				r.Get("/{translation}/books", bibleHandler.Books)
				r.Get("/{translation}/books/{book}/chapters", bibleHandler.Chapters)
				r.Get("/{translation}/books/{book}/chapters/{chapter}", bibleHandler.Chapter)
			})
		})
	})

	return r
}
