package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database（BaaSのPostgreSQL）
	DatabaseURL string

	// BaaS（認証・ストレージ・Edge Function）
	SupabaseURL            string
	SupabaseAnonKey        string
	SupabaseServiceRoleKey string
	SupabaseJWTSecret      string

	// Scripture provider
	BibleAPIBaseURL     string
	BibleAPIKey         string
	BibleKeyFunction    string
	BibleAPIRatePerSec  float64
	BibleRequestTimeout time.Duration

	// Session
	SessionMaxAge         int
	SessionIdleTimeout    time.Duration
	SessionResolveTimeout time.Duration
	RedisURL              string

	// Avatar
	AvatarBucket  string
	AvatarMaxSize int64

	// Sermon sync
	SermonSyncInterval  time.Duration
	SermonFetchTimeout  time.Duration
	SermonFetchMaxSize  int64
	SermonMaxConcurrent int

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitAuth    int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 作業ディレクトリに.envファイル（ENV_FILEで変更可能）があれば先に読み込むが、
// 既に設定済みの環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := loadDotEnv(getEnvString("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SupabaseURL = strings.TrimRight(os.Getenv("SUPABASE_URL"), "/")
	if cfg.SupabaseURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}

	cfg.SupabaseAnonKey = os.Getenv("SUPABASE_ANON_KEY")
	if cfg.SupabaseAnonKey == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SupabaseServiceRoleKey = getEnvString("SUPABASE_SERVICE_ROLE_KEY", "")
	cfg.SupabaseJWTSecret = getEnvString("SUPABASE_JWT_SECRET", "")
	cfg.BibleAPIBaseURL = strings.TrimRight(getEnvString("BIBLE_API_BASE_URL", "https://api.scripture.api.bible/v1"), "/")
	cfg.BibleAPIKey = getEnvString("BIBLE_API_KEY", "")
	cfg.BibleKeyFunction = getEnvString("BIBLE_KEY_FUNCTION", "get-bible-api-key")
	cfg.BibleAPIRatePerSec = getEnvFloat("BIBLE_API_RATE_PER_SEC", 5)
	cfg.BibleRequestTimeout = getEnvDuration("BIBLE_REQUEST_TIMEOUT", 10*time.Second)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800)
	cfg.SessionIdleTimeout = getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute)
	cfg.SessionResolveTimeout = getEnvDuration("SESSION_RESOLVE_TIMEOUT", 10*time.Second)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.AvatarBucket = getEnvString("AVATAR_BUCKET", "avatars")
	cfg.AvatarMaxSize = getEnvInt64("AVATAR_MAX_SIZE", 5242880)
	cfg.SermonSyncInterval = getEnvDuration("SERMON_SYNC_INTERVAL", 1*time.Hour)
	cfg.SermonFetchTimeout = getEnvDuration("SERMON_FETCH_TIMEOUT", 15*time.Second)
	cfg.SermonFetchMaxSize = getEnvInt64("SERMON_FETCH_MAX_SIZE", 10485760)
	cfg.SermonMaxConcurrent = getEnvInt("SERMON_MAX_CONCURRENT", 4)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")

	return cfg, nil
}

// loadDotEnv は.envファイルを読み込む。ファイルが存在しない場合は何もしない。
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
