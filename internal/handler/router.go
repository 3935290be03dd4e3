package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/sweetshop/internal/guard"
	"github.com/hitoshi/sweetshop/internal/middleware"
	"github.com/hitoshi/sweetshop/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionLoader     middleware.SessionLoader
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 認証・セッション
	SessionService     SessionServiceInterface
	SessionInvalidator SessionInvalidator
	SessionMetrics     SessionMetricsRecorder
	Cookies            CookieConfig

	// カタログ・在庫
	CatalogService    CatalogServiceInterface
	InventoryService  InventoryServiceInterface
	LowStockThreshold int

	// 画像プロキシ
	ImageGuard        security.ImageGuardService
	ImageProxyTimeout time.Duration
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → SecurityHeaders → CORS → Session → Logging → CSRF → RateLimit(General)
//
// アクセス制御はルートグループごとにmiddleware.Requireで宣言する。
// 変更系のルートには変更専用レート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionMiddleware(deps.SessionLoader))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
	r.Use(deps.RateLimiter.GeneralMiddleware())

	responder := NewErrorResponder(deps.SessionInvalidator, deps.SessionMetrics, deps.Cookies)
	authHandler := NewAuthHandler(deps.SessionService, responder, deps.Cookies, deps.SessionMetrics)
	sweetsHandler := NewSweetsHandler(deps.CatalogService, responder)
	inventoryHandler := NewInventoryHandler(deps.InventoryService, responder, deps.LowStockThreshold)
	imageHandler := NewImageHandler(deps.ImageGuard, deps.ImageProxyTimeout, deps.Logger)

	mutation := deps.RateLimiter.MutationMiddleware()

	// --- 公開ルート ---

	r.Get("/health", healthCheck)
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// セッション復元と状態照会は匿名でも200を返す
	r.Get("/api/session", authHandler.Session)
	r.Get("/api/auth/me", authHandler.Me)

	// ログアウトはセッションの有無にかかわらず成功する
	r.With(mutation).Post("/api/auth/logout", authHandler.Logout)

	// --- 未認証ユーザー専用ルート ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.Require(guard.RequirementAnonymousOnly))
		r.Use(mutation)

		r.Post("/api/auth/login", authHandler.Login)
		r.Post("/api/auth/register", authHandler.Register)
	})

	// --- 認証済みユーザーのルート ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.Require(guard.RequirementAuthenticated))

		r.Patch("/api/session/profile", authHandler.UpdateProfile)

		// 商品関連のGETは認証済み、変更系は管理者グループで定義する。
		// 同一パスにメソッド別の要件を載せるため、サブルーターは使わない。
		r.Get("/api/sweets", sweetsHandler.List)
		r.Get("/api/sweets/search", sweetsHandler.Search)
		r.Get("/api/sweets/quick-filter", sweetsHandler.QuickFilter)
		r.Get("/api/sweets/categories", sweetsHandler.Categories)
		r.Get("/api/sweets/{id}", sweetsHandler.Get)
		r.With(mutation).Post("/api/sweets/{id}/purchase", sweetsHandler.Purchase)

		r.Get("/api/image-proxy", imageHandler.Proxy)
	})

	// --- 管理者専用ルート ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.Require(guard.RequirementAdminOnly))
		r.Use(mutation)

		r.Post("/api/sweets", sweetsHandler.Create)
		r.Put("/api/sweets/{id}", sweetsHandler.Update)
		r.Delete("/api/sweets/{id}", sweetsHandler.Delete)
		r.Post("/api/sweets/{id}/restock", sweetsHandler.Restock)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Require(guard.RequirementAdminOnly))

		r.Get("/api/inventory/stats", inventoryHandler.Stats)
		r.Get("/api/inventory/low-stock", inventoryHandler.LowStock)
		r.Get("/api/inventory/out-of-stock", inventoryHandler.OutOfStock)
		r.With(mutation).Post("/api/inventory/bulk-restock", inventoryHandler.BulkRestock)
	})

	return r
}

// healthCheck は死活監視用のエンドポイント。
func healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
