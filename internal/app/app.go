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
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kelps/epiflipboard/internal/activity"
	"github.com/kelps/epiflipboard/internal/article"
	"github.com/kelps/epiflipboard/internal/auth"
	"github.com/kelps/epiflipboard/internal/comment"
	"github.com/kelps/epiflipboard/internal/config"
	"github.com/kelps/epiflipboard/internal/database"
	"github.com/kelps/epiflipboard/internal/feed"
	"github.com/kelps/epiflipboard/internal/handler"
	"github.com/kelps/epiflipboard/internal/imageprobe"
	"github.com/kelps/epiflipboard/internal/library"
	"github.com/kelps/epiflipboard/internal/logger"
	"github.com/kelps/epiflipboard/internal/metrics"
	"github.com/kelps/epiflipboard/internal/middleware"
	"github.com/kelps/epiflipboard/internal/repository"
	"github.com/kelps/epiflipboard/internal/security"
	"github.com/kelps/epiflipboard/internal/worker/cleanup"
	"github.com/kelps/epiflipboard/internal/worker/ingest"
)

// shutdownTimeout はグレースフルシャットダウンの最大待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
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
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.ServerPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// databaseURLs はConfigから3つのデータベースURLを取り出す。
func databaseURLs(cfg *config.Config) database.URLs {
	return database.URLs{
		Identity: cfg.IdentityDatabaseURL,
		Content:  cfg.ContentDatabaseURL,
		Activity: cfg.ActivityDatabaseURL,
	}
}

// runServe はAPIサーバーモードで起動する。
// 3つのDB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	pools, err := database.OpenPools(ctx, databaseURLs(cfg))
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer pools.Close()

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(pools.Identity)
	articleRepo := repository.NewPostgresArticleRepo(pools.Content)
	tagRepo := repository.NewPostgresTagRepo(pools.Content)
	publisherRepo := repository.NewPostgresPublisherRepo(pools.Content)
	feedRepo := repository.NewPostgresFeedRepo(pools.Activity)
	followRepo := repository.NewPostgresFollowRepo(pools.Activity)
	commentRepo := repository.NewPostgresCommentRepo(pools.Activity)
	markRepo := repository.NewPostgresMarkRepo(pools.Activity)
	historyRepo := repository.NewPostgresHistoryRepo(pools.Activity)
	userActivityRepo := repository.NewPostgresUserActivityRepo(pools.Activity)

	// 3. メトリクスとセキュリティ
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 4. ドメインサービスの初期化
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}
	accountService := auth.NewService(userRepo, userActivityRepo, auth.NewPasswordService(), tokens)
	articleService := article.NewService(articleRepo, tagRepo, publisherRepo, commentRepo, markRepo)
	activityService := activity.NewService(followRepo, feedRepo, articleService)
	feedService := feed.NewFeedService(feedRepo, followRepo)
	commentService := comment.NewService(commentRepo, userRepo, sanitizer)
	libraryService := library.NewService(markRepo, historyRepo, articleService)
	prober := imageprobe.NewProber(ssrfGuard, collector, imageprobe.Config{
		Timeout:  cfg.ImageProbeTimeout,
		MaxBytes: cfg.ImageProbeMaxBytes,
		MinWidth: cfg.ImageProbeMinWidth,
	})

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:        slog.Default(),
		TokenVerifier: tokens,
		Cookie: middleware.SessionCookie{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		StatusRecorder:    collector,
		MetricsHandler:    metrics.Handler(registry),

		AccountService:  accountService,
		ArticleService:  articleService,
		ActivityService: activityService,
		FeedService:     feedService,
		CommentService:  commentService,
		LibraryService:  libraryService,
		ImageChecker:    prober,
		Readiness:       pools,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("API server starting", slog.String("addr", server.Addr))
	return serveUntilDone(ctx, server)
}

// runWorker はワーカーモードで起動する。
// 記事の取り込みスケジューラと孤立フォローのクリーンアップジョブを起動し、
// /metricsと/livezのみを公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	pools, err := database.OpenPools(ctx, databaseURLs(cfg))
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer pools.Close()

	// 2. リポジトリとセキュリティサービスの初期化
	articleRepo := repository.NewPostgresArticleRepo(pools.Content)
	publisherRepo := repository.NewPostgresPublisherRepo(pools.Content)
	ssrfGuard := security.NewSSRFGuard()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. 取り込みスケジューラの初期化
	sources := ingest.NewSourceLoader(cfg.IngestOPMLURL, cfg.IngestFeedURLs, ssrfGuard, cfg.FetchTimeout, cfg.FetchMaxSize)
	fetcher := ingest.NewFetcher(
		articleRepo, publisherRepo, ssrfGuard, security.NewTextSanitizer(),
		ingest.NewBackoffTracker(), collector, slog.Default(),
		ingest.FetcherConfig{
			Timeout:     cfg.FetchTimeout,
			MaxBodySize: cfg.FetchMaxSize,
			MaxEntries:  cfg.IngestMaxEntries,
		},
	)
	scheduler := ingest.NewScheduler(sources, fetcher, slog.Default(), cfg.IngestMaxConcurrent)

	// 4. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(pools.Activity, slog.Default())

	// 5. メトリクスとlivenessのみを公開するHTTPサーバー
	mux := metrics.SetupMetricsRoute(registry)
	mux.HandleFunc("/livez", handler.NewHealthHandler(pools).Livez)
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("worker starting",
		slog.Duration("ingest_interval", cfg.IngestInterval),
		slog.Int("max_concurrent", cfg.IngestMaxConcurrent),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	go cleanupJob.Start(ctx, cfg.CleanupInterval)
	go scheduler.Start(ctx, cfg.IngestInterval)

	err = serveUntilDone(ctx, server)
	slog.Info("worker stopped gracefully")
	return err
}

// serveUntilDone はctxがキャンセルされるまでサーバーを動かし、その後グレースフルシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}

// runMigrate はidentity、content、activityの順にマイグレーションを実行する。
func runMigrate(cfg *config.Config) error {
	urls := databaseURLs(cfg)
	slog.Info("running database migrations",
		slog.String("identity", maskDatabaseURL(urls.Identity)),
		slog.String("content", maskDatabaseURL(urls.Content)),
		slog.String("activity", maskDatabaseURL(urls.Activity)),
	)

	if err := database.RunAllMigrations(urls); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /livez エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/livez", port)
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
// スキームとホスト以降のみを残す。
func maskDatabaseURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return "***"
	}
	if _, host, ok := strings.Cut(rest, "@"); ok {
		return scheme + "://***@" + host
	}
	return scheme + "://" + rest
}
