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
	// Database
	DatabaseURL string

	// TMDb（映画・シリーズ）
	TMDbAPIKey       string
	TMDbBaseURL      string
	TMDbImageBaseURL string
	TMDbLanguage     string

	// Open Library（書籍）
	OpenLibraryBaseURL     string
	OpenLibraryCoverURL    string
	OpenLibrarySearchLimit int

	// Upstream（外部API共通）
	UpstreamTimeout          time.Duration
	UpstreamMaxSize          int64
	UpstreamRatePerSec       int
	UpstreamFailureThreshold uint32
	UpstreamBreakerTimeout   time.Duration

	// Session
	SessionMaxAge int

	// Rate Limit
	RateLimitGeneral  int
	RateLimitFavorite int

	// Cleanup
	OrphanRetention time.Duration
	CleanupInterval time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// LoadDotEnv は.envファイルが存在する場合に環境変数へ読み込む。
// 既に設定されている環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.TMDbAPIKey = os.Getenv("TMDB_API_KEY")
	if cfg.TMDbAPIKey == "" {
		missing = append(missing, "TMDB_API_KEY")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.TMDbBaseURL = getEnvString("TMDB_BASE_URL", "https://api.themoviedb.org/3")
	cfg.TMDbImageBaseURL = getEnvString("TMDB_IMAGE_BASE_URL", "https://image.tmdb.org/t/p/w300")
	cfg.TMDbLanguage = getEnvString("TMDB_LANGUAGE", "es-ES")
	cfg.OpenLibraryBaseURL = getEnvString("OPENLIBRARY_BASE_URL", "https://openlibrary.org")
	cfg.OpenLibraryCoverURL = getEnvString("OPENLIBRARY_COVER_URL", "https://covers.openlibrary.org/b/id")
	cfg.OpenLibrarySearchLimit = getEnvInt("OPENLIBRARY_SEARCH_LIMIT", 10)
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second)
	cfg.UpstreamMaxSize = getEnvInt64("UPSTREAM_MAX_SIZE", 2097152)
	cfg.UpstreamRatePerSec = getEnvInt("UPSTREAM_RATE_PER_SEC", 20)
	cfg.UpstreamFailureThreshold = uint32(getEnvInt("UPSTREAM_FAILURE_THRESHOLD", 5))
	cfg.UpstreamBreakerTimeout = getEnvDuration("UPSTREAM_BREAKER_TIMEOUT", 30*time.Second)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 1209600)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitFavorite = getEnvInt("RATE_LIMIT_FAVORITE", 30)
	cfg.OrphanRetention = getEnvDuration("ORPHAN_RETENTION", 30*24*time.Hour)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

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
	if err != nil || i < 0 {
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
