// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/eloboard/internal/metrics"
	"github.com/hitoshi/eloboard/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger            *slog.Logger
	HealthChecker     HealthChecker
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	AdminToken        string

	// メトリクス
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	// リーダーボード
	LeaderboardService LeaderboardServiceInterface

	// 管理用ロスター操作
	RosterService RosterServiceInterface
	RosterView    RosterViewInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → Metrics → SecurityHeaders → CORS → RateLimit(General)
//
// /admin 以下はさらに AdminToken → RateLimit(Admin) を通る。
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(metrics.NewStatusMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	leaderboardHandler := NewLeaderboardHandler(deps.LeaderboardService)
	adminHandler := NewAdminHandler(deps.RosterService, deps.RosterView)

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/leaderboard", leaderboardHandler.GetLeaderboard)

		// 管理用ルート
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.NewAdminTokenMiddleware(deps.AdminToken))
			r.Use(deps.RateLimiter.AdminMiddleware())

			r.Get("/list", adminHandler.ListRoster)
			r.Post("/add", adminHandler.AddPlayer)
			r.Delete("/remove/{id}", adminHandler.RemovePlayer)
		})
	})

	return r
}
