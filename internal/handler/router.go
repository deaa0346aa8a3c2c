package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/mediafav/internal/middleware"
)

// HealthChecker はDB等の疎通確認を行うインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder // nilの場合はHTTPステータスを記録しない
	MetricsHandler    http.Handler              // nilの場合は/metricsを公開しない
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// カタログ
	CatalogService CatalogServiceInterface

	// お気に入り
	FavoriteService FavoriteServiceInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Metrics → CORS
//	/api/*: Session → RateLimit(General) → CSRF [→ RateLimit(Favorite)]
//
// 認証ルート（/auth/*）と/api/recommendationsはセッション必須チェックの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	catalogHandler := NewCatalogHandler(deps.CatalogService)
	favHandler := NewFavoriteHandler(deps.FavoriteService)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// ログイン状態を表示に反映するだけのため、セッションは任意
		r.With(middleware.NewOptionalSessionMiddleware(deps.SessionFinder)).
			Get("/recommendations", catalogHandler.Recommendations)

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: Session → RateLimit(General) → CSRF
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
			r.Use(deps.RateLimiter.GeneralMiddleware())
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

			// カタログ
			r.Get("/dashboard", catalogHandler.Dashboard)
			r.Get("/search", catalogHandler.Search)
			r.Get("/detail/{kind}/*", catalogHandler.Detail)

			// お気に入り（変更系はお気に入り専用レート制限を追加）
			r.Route("/favorites", func(r chi.Router) {
				r.Get("/", favHandler.List)
				r.Group(func(r chi.Router) {
					r.Use(deps.RateLimiter.FavoriteMutationMiddleware())
					r.Post("/", favHandler.Add)
					r.Delete("/", favHandler.Remove)
					r.Post("/clear", favHandler.Clear)
				})
			})

			// ユーザー管理
			r.Delete("/users/me", userHandler.Withdraw)
		})
	})

	return r
}

// healthHandler はヘルスチェックエンドポイントのハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
