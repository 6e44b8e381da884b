package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// devJWTSecret は開発環境でJWT_SECRET未設定時に使用する署名鍵。
// APP_ENV=production では使用されない。
const devJWTSecret = "epiflipboard-dev-secret-do-not-use-in-production"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Environment
	AppEnv string

	// Database
	IdentityDatabaseURL string
	ContentDatabaseURL  string
	ActivityDatabaseURL string

	// Auth
	JWTSecret string

	// Server
	ServerPort string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Rate Limit (req/min)
	RateLimitGeneral int
	RateLimitAuth    int

	// Image probe
	ImageProbeTimeout  time.Duration
	ImageProbeMinWidth int
	ImageProbeMaxBytes int64

	// Ingest
	IngestOPMLURL       string
	IngestFeedURLs      []string
	IngestInterval      time.Duration
	IngestMaxEntries    int
	IngestMaxConcurrent int
	FetchTimeout        time.Duration
	FetchMaxSize        int64

	// Cleanup
	CleanupInterval time.Duration
}

// IsProduction は本番環境で動作しているかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envが存在しない場合は無視する
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.AppEnv = getEnvString("APP_ENV", "development")

	// Required fields
	var missing []string

	for _, target := range []struct {
		prefix string
		dst    *string
	}{
		{IdentityDBPrefix, &cfg.IdentityDatabaseURL},
		{ContentDBPrefix, &cfg.ContentDatabaseURL},
		{ActivityDBPrefix, &cfg.ActivityDatabaseURL},
	} {
		u, err := BuildDatabaseURL(target.prefix)
		if err != nil {
			missing = append(missing, target.prefix)
			continue
		}
		*target.dst = u
	}

	secret, err := LoadSecret("JWT_SECRET", cfg.IsProduction())
	if err != nil {
		missing = append(missing, "JWT_SECRET")
	}
	if secret == "" {
		secret = devJWTSecret
	}
	cfg.JWTSecret = secret

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", cfg.IsProduction())
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.ImageProbeTimeout = getEnvDuration("IMAGE_PROBE_TIMEOUT", 5*time.Second)
	cfg.ImageProbeMinWidth = getEnvInt("IMAGE_PROBE_MIN_WIDTH", 800)
	cfg.ImageProbeMaxBytes = getEnvInt64("IMAGE_PROBE_MAX_BYTES", 1<<20)
	cfg.IngestOPMLURL = getEnvString("INGEST_OPML_URL", "")
	cfg.IngestFeedURLs = getEnvList("INGEST_FEED_URLS")
	cfg.IngestInterval = getEnvDuration("INGEST_INTERVAL", time.Hour)
	cfg.IngestMaxEntries = getEnvInt("INGEST_MAX_ENTRIES", 5)
	cfg.IngestMaxConcurrent = getEnvInt("INGEST_MAX_CONCURRENT", 4)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)

	return cfg, nil
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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

// getEnvList はカンマ区切りの環境変数を空要素を除いたスライスとして返す。
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
