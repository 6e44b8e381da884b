package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kelps/epiflipboard/internal/layout"
	"github.com/kelps/epiflipboard/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenVerifier     middleware.TokenVerifier
	Cookie            middleware.SessionCookie
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.HTTPStatusRecorder
	MetricsHandler    http.Handler

	// サービス
	AccountService  AccountServiceInterface
	ArticleService  ArticleServiceInterface
	ActivityService ActivityServiceInterface
	FeedService     FeedServiceInterface
	CommentService  CommentServiceInterface
	LibraryService  LibraryServiceInterface
	ImageChecker    layout.ImageChecker
	Readiness       ReadinessChecker
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → Metrics → SecurityHeaders → CORS → Session → CSRF
//
// /api 配下にはさらにユーザー単位（未ログインはIP単位）のレート制限を掛け、
// ログイン・登録にはIP単位の試行回数制限を追加する。
// 認証が必要かどうかは各ハンドラーが入力検証の後に判定する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Cookie.Secure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionMiddleware(deps.TokenVerifier))
	r.Use(middleware.NewCSRFMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AccountService, deps.Cookie)
	articleHandler := NewArticleHandler(deps.ArticleService, deps.ActivityService, deps.ImageChecker)
	feedHandler := NewFeedHandler(deps.FeedService, deps.ActivityService, deps.ArticleService, deps.ImageChecker)
	commentHandler := NewCommentHandler(deps.CommentService)
	libraryHandler := NewLibraryHandler(deps.LibraryService)
	healthHandler := NewHealthHandler(deps.Readiness)

	// --- ヘルスチェック・メトリクス（レート制限なし） ---
	r.Get("/livez", healthHandler.Livez)
	r.Get("/readyz", healthHandler.Readyz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// アカウント
		r.Route("/account", func(r chi.Router) {
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/login", authHandler.Login)
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/register", authHandler.Register)
			r.Post("/logout", authHandler.Logout)
			r.With(middleware.RequireSession).Get("/profile", authHandler.Profile)
			r.Put("/profile", authHandler.UpdateProfile)
			r.Delete("/", authHandler.DeleteAccount)
		})

		// 記事
		r.Get("/home", articleHandler.Home)
		r.Get("/search", articleHandler.Search)
		r.Route("/articles", func(r chi.Router) {
			r.Get("/", articleHandler.ListArticles)
			r.Get("/by-ids", articleHandler.ListArticlesByIDs)
			r.Post("/mark", libraryHandler.Mark)
			r.With(middleware.RequireSession).Get("/marked", libraryHandler.ListMarked)
		})
		r.Get("/tags/search", articleHandler.SearchTags)
		r.Get("/publishers/search", articleHandler.SearchPublishers)

		// コメント
		r.Get("/comments", commentHandler.ListComments)
		r.Post("/comments", commentHandler.CreateComment)

		// 閲覧履歴
		r.With(middleware.RequireSession).Get("/history", libraryHandler.ListHistory)
		r.Post("/history/record", libraryHandler.RecordRead)

		// フィード
		r.Route("/feeds", func(r chi.Router) {
			r.Get("/", feedHandler.SearchFeeds)
			r.Post("/", feedHandler.CreateFeed)
			r.With(middleware.RequireSession).Get("/followed", feedHandler.ListFollowed)

			r.Route("/{feedId}", func(r chi.Router) {
				r.Get("/", feedHandler.GetFeedPage)
				r.Put("/", feedHandler.UpdateFeed)
				r.Delete("/", feedHandler.DeleteFeed)
				r.Get("/follow", feedHandler.GetFollowState)
				r.Post("/follow", feedHandler.ToggleFollow)
			})
		})
	})

	return r
}
