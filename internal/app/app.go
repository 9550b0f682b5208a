package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/churchconnect/internal/bible"
	"github.com/hitoshi/churchconnect/internal/config"
	"github.com/hitoshi/churchconnect/internal/content"
	"github.com/hitoshi/churchconnect/internal/database"
	"github.com/hitoshi/churchconnect/internal/handler"
	"github.com/hitoshi/churchconnect/internal/logger"
	"github.com/hitoshi/churchconnect/internal/metrics"
	"github.com/hitoshi/churchconnect/internal/middleware"
	"github.com/hitoshi/churchconnect/internal/notes"
	"github.com/hitoshi/churchconnect/internal/profile"
	"github.com/hitoshi/churchconnect/internal/repository"
	"github.com/hitoshi/churchconnect/internal/security"
	"github.com/hitoshi/churchconnect/internal/session"
	"github.com/hitoshi/churchconnect/internal/supabase"
	"github.com/hitoshi/churchconnect/internal/worker/cleanup"
	fetchpkg "github.com/hitoshi/churchconnect/internal/worker/fetch"
)

const (
	// tokenKeyPrefix はRedisに保存するセッショントークンのキー接頭辞。
	tokenKeyPrefix = "churchconnect:session:"

	dbConnectTimeout = 10 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定ファイル由来のログレベルで再設定する
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(logger.Setup(w, logger.ParseLevel(cfg.LogLevel)))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return fmt.Errorf("unsupported command %q", cmd)
	}
}

// supabaseConfig はConfigからBaaSクライアントの接続設定を組み立てる。
func supabaseConfig(cfg *config.Config) supabase.Config {
	return supabase.Config{
		URL:            cfg.SupabaseURL,
		AnonKey:        cfg.SupabaseAnonKey,
		ServiceRoleKey: cfg.SupabaseServiceRoleKey,
		JWTSecret:      cfg.SupabaseJWTSecret,
	}
}

// newTokenStore はREDIS_URLが設定されていればRedis、なければメモリのTokenStoreを返す。
// 戻り値のcloseは接続を閉じる関数で、メモリの場合は何もしない。
func newTokenStore(ctx context.Context, redisURL string) (supabase.TokenStore, func(), error) {
	if redisURL == "" {
		slog.Warn("REDIS_URL is not set; session tokens are kept in memory")
		return supabase.NewMemoryTokenStore(), func() {}, nil
	}

	client, err := supabase.NewRedisClient(ctx, redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("redis connection established")
	return supabase.NewRedisTokenStore(client, tokenKeyPrefix), func() { client.Close() }, nil
}

// newKeySource は聖書APIキーの取得元を返す。
// BIBLE_API_KEYが設定されていればそれを使い、なければEdge Functionから取得する。
func newKeySource(cfg *config.Config, functions *supabase.FunctionsClient) bible.KeySource {
	if cfg.BibleAPIKey != "" {
		return bible.StaticKeySource(cfg.BibleAPIKey)
	}
	return bible.NewFunctionKeySource(functions, cfg.BibleKeyFunction)
}

// newRegistry はプロセス・ランタイムのメトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Connect(context.Background(), cfg.DatabaseURL, database.DefaultPoolOptions(), dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	branchRepo := repository.NewPostgresBranchRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	noteRepo := repository.NewPostgresBibleNoteRepo(db)
	contentRepo := repository.NewPostgresContentRepo(db)

	// 3. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 4. BaaSクライアントの初期化
	tokenStore, closeStore, err := newTokenStore(context.Background(), cfg.RedisURL)
	if err != nil {
		return err
	}
	defer closeStore()

	baasCfg := supabaseConfig(cfg)
	baasHTTP := &http.Client{Timeout: 15 * time.Second}
	functions := supabase.NewFunctionsClient(baasCfg, baasHTTP)
	storage := supabase.NewStorageClient(baasCfg, baasHTTP)

	// 5. 聖書APIクライアントの初期化
	bibleClient := bible.NewClient(
		cfg.BibleAPIBaseURL,
		&http.Client{Timeout: cfg.BibleRequestTimeout},
		newKeySource(cfg, functions),
		cfg.BibleAPIRatePerSec,
		slog.Default(),
		collector,
	)
	bibleReader := bible.NewReader(bibleClient, slog.Default())

	// 6. ブラウザセッションの管理
	storeTTL := time.Duration(cfg.SessionMaxAge) * time.Second
	manager := session.NewManager(func(sessionID string) *session.Holder {
		auth := supabase.NewAuthClient(baasCfg, baasHTTP, tokenStore, sessionID, storeTTL,
			slog.Default().With(slog.String("component", "auth")))
		return session.NewHolder(auth, profileRepo, branchRepo, slog.Default(), session.Options{
			HydrateTimeout: cfg.SessionResolveTimeout,
			Recorder:       collector,
		})
	}, cfg.SessionIdleTimeout, slog.Default())
	defer manager.Close()

	metrics.RegisterActiveSessions(reg, manager.Len)

	// 7. ドメインサービスの初期化
	notesService := notes.NewService(noteRepo, slog.Default(), collector)
	contentService := content.NewService(contentRepo)
	profileService := profile.NewService(profileRepo, storage, cfg.AvatarBucket, cfg.AvatarMaxSize, slog.Default())

	// 8. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger: slog.Default(),
		Sessions: func(sessionID string) middleware.Session {
			return manager.Get(sessionID)
		},
		ReleaseSession: manager.Remove,
		Cookie: middleware.CookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
			MaxAge: cfg.SessionMaxAge,
		},
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		ResolveTimeout:    cfg.SessionResolveTimeout,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		Branches: branchRepo,

		ContentService: contentService,

		BibleReader:  bibleReader,
		NotesService: notesService,

		ProfileService: profileService,
		MaxAvatarSize:  cfg.AvatarMaxSize,
	}

	router := handler.NewRouter(deps)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、説教フィードの同期スケジューラとお知らせのクリーンアップジョブを起動する。
// メトリクスはSERVER_PORTの/metricsで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Connect(context.Background(), cfg.DatabaseURL, database.DefaultPoolOptions(), dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	branchRepo := repository.NewPostgresBranchRepo(db)
	sermonRepo := repository.NewPostgresSermonRepo(db)

	// 3. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 4. フェッチャーとスケジューラの初期化
	fetcher := fetchpkg.NewFetcher(
		sermonRepo,
		security.NewGuard(),
		security.NewContentSanitizer(),
		collector,
		slog.Default(),
		cfg.SermonFetchTimeout,
		cfg.SermonFetchMaxSize,
	)
	scheduler := fetchpkg.NewScheduler(branchRepo, fetcher, slog.Default(), cfg.SermonMaxConcurrent)

	// 5. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SermonSyncInterval),
		slog.Int("max_concurrent", cfg.SermonMaxConcurrent),
	)

	// クリーンアップジョブを日次でバックグラウンド実行（起動直後に1回実行される）
	go cleanupJob.Start(ctx, 24*time.Hour)

	// 同期スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.SermonSyncInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	status, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(status.Version)),
		slog.Bool("dirty", status.Dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
