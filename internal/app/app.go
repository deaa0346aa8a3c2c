package app

import (
	"context"
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

	"github.com/hitoshi/mediafav/internal/auth"
	"github.com/hitoshi/mediafav/internal/catalog"
	"github.com/hitoshi/mediafav/internal/config"
	"github.com/hitoshi/mediafav/internal/database"
	"github.com/hitoshi/mediafav/internal/favorite"
	"github.com/hitoshi/mediafav/internal/handler"
	"github.com/hitoshi/mediafav/internal/logger"
	"github.com/hitoshi/mediafav/internal/metrics"
	"github.com/hitoshi/mediafav/internal/middleware"
	"github.com/hitoshi/mediafav/internal/openlibrary"
	"github.com/hitoshi/mediafav/internal/repository"
	"github.com/hitoshi/mediafav/internal/security"
	"github.com/hitoshi/mediafav/internal/tmdb"
	"github.com/hitoshi/mediafav/internal/upstream"
	"github.com/hitoshi/mediafav/internal/user"
	"github.com/hitoshi/mediafav/internal/worker/cleanup"
)

// dotEnvPath は起動時に読み込む.envファイルのパス。
const dotEnvPath = ".env"

// Init はアプリケーションの初期化を行う。
// .envファイルと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envファイルを読み込む（既存の環境変数が優先）
	if err := config.LoadDotEnv(dotEnvPath); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

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
		slog.String("mode", cmd.Description()),
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
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. 外部APIの接続先を検証（DB接続より先に設定ミスを検出する）
	ssrfGuard := security.NewSSRFGuard()
	if err := ssrfGuard.ValidateEndpoints(map[string]string{
		"TMDB_BASE_URL":        cfg.TMDbBaseURL,
		"OPENLIBRARY_BASE_URL": cfg.OpenLibraryBaseURL,
	}); err != nil {
		return fmt.Errorf("invalid upstream endpoint: %w", err)
	}

	// 2. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 4. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	favoriteRepo := repository.NewPostgresFavoriteRepo(db)

	// 5. ドメインサービスの初期化
	authService := auth.NewService(
		userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	catalogService := newCatalogService(cfg, ssrfGuard, collector)

	favoriteService := favorite.NewService(favoriteRepo)
	favoriteService.SetMetrics(collector)

	userService := user.NewService(userRepo, sessionRepo, favoriteRepo)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitFavorite),
	)
	defer rateLimiter.Stop()

	authConfig := handler.AuthHandlerConfig{
		CookieDomain:  cfg.CookieDomain,
		CookieSecure:  cfg.CookieSecure,
		SessionMaxAge: cfg.SessionMaxAge,
	}

	deps := &handler.RouterDeps{
		HealthChecker:     db,
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    rateLimiter,
		StatusRecorder: collector,
		MetricsHandler: metrics.Handler(registry),
		Logger:         slog.Default(),

		AuthService: authService,
		AuthConfig:  authConfig,

		CatalogService:  catalogService,
		FavoriteService: favoriteService,
		UserService:     userService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

// newCatalogService は外部APIクライアントと正規化処理を組み立てたカタログサービスを返す。
// 外部APIへの接続はSSRF対策済みのHTTPクライアントを経由する。
func newCatalogService(cfg *config.Config, guard security.SSRFGuardService, collector metrics.MetricsCollector) *catalog.Service {
	newFetcher := func(source string) *upstream.Fetcher {
		return upstream.NewFetcher(upstream.Options{
			Source:           source,
			HTTPClient:       guard.NewSafeClient(cfg.UpstreamTimeout),
			RatePerSec:       cfg.UpstreamRatePerSec,
			MaxBodySize:      cfg.UpstreamMaxSize,
			FailureThreshold: cfg.UpstreamFailureThreshold,
			BreakerTimeout:   cfg.UpstreamBreakerTimeout,
			Logger:           slog.Default(),
			Metrics:          collector,
		})
	}

	tmdbClient := tmdb.NewClient(newFetcher(catalog.SourceTMDb), cfg.TMDbBaseURL, cfg.TMDbAPIKey, cfg.TMDbLanguage)
	olClient := openlibrary.NewClient(newFetcher(catalog.SourceOpenLibrary), cfg.OpenLibraryBaseURL)

	normalizer := catalog.NewNormalizer(security.NewTextSanitizer(), cfg.TMDbImageBaseURL, cfg.OpenLibraryCoverURL)
	normalizer.SetMetrics(collector)

	return catalog.NewService(tmdbClient, olClient, normalizer, cfg.OpenLibrarySearchLimit)
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、クリーンアップジョブを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	favoriteRepo := repository.NewPostgresFavoriteRepo(db)

	// 3. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, favoriteRepo, slog.Default())
	cleanupJob.Retention = cfg.OrphanRetention

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

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("orphan_retention", cfg.OrphanRetention),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.ApplyMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
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
