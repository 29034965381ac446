package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/eloboard/internal/cache"
	"github.com/hitoshi/eloboard/internal/config"
	"github.com/hitoshi/eloboard/internal/database"
	"github.com/hitoshi/eloboard/internal/faceit"
	"github.com/hitoshi/eloboard/internal/handler"
	"github.com/hitoshi/eloboard/internal/leaderboard"
	"github.com/hitoshi/eloboard/internal/logger"
	"github.com/hitoshi/eloboard/internal/metrics"
	"github.com/hitoshi/eloboard/internal/middleware"
	"github.com/hitoshi/eloboard/internal/repository"
	"github.com/hitoshi/eloboard/internal/roster"
	"github.com/hitoshi/eloboard/internal/security"
	fetchpkg "github.com/hitoshi/eloboard/internal/worker/fetch"
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
		slog.String("tracked_game", cfg.TrackedGame),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandRefresh:
		return runRefresh(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// engine はserveとworkerで共有するコンポーネント群。
type engine struct {
	db         *sql.DB
	rosterRepo repository.RosterRepository
	client     *faceit.Client
	fetcher    *fetchpkg.Fetcher
	closers    []func() error
}

// Close はengineが保持する外部接続を閉じる。
func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			slog.Warn("接続のクローズに失敗しました", slog.String("error", err.Error()))
		}
	}
}

// buildEngine はDB接続、プロフィールキャッシュ、外部クライアント、フェッチャーを構築する。
func buildEngine(ctx context.Context, cfg *config.Config, collector metrics.MetricsCollector) (*engine, error) {
	e := &engine{}

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	e.db = db
	e.closers = append(e.closers, db.Close)

	if err := db.PingContext(ctx); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	// 2. リポジトリ
	e.rosterRepo = repository.NewPostgresRosterRepo(db)

	// 3. プロフィールキャッシュ（REDIS_URL があれば共有キャッシュ）
	profileCache, closeCache, err := newProfileCache(ctx, cfg)
	if err != nil {
		e.Close()
		return nil, err
	}
	if closeCache != nil {
		e.closers = append(e.closers, closeCache)
	}

	// 4. 外部レーティングサービスクライアント
	if !cfg.FaceitConfigured() {
		slog.Warn("FACEIT_API_KEY が設定されていません。リーダーボード取得と管理操作は利用できません")
	}
	e.client = faceit.NewClient(
		&http.Client{Timeout: cfg.FetchTimeout + time.Second},
		slog.Default(),
		faceit.ClientConfig{
			BaseURL:   cfg.FaceitBaseURL,
			APIKey:    cfg.FaceitAPIKey,
			Timeout:   cfg.FetchTimeout,
			RateLimit: cfg.RemoteRateLimit,
			RateBurst: cfg.RemoteRateBurst,
		},
	)

	// 5. フェッチャー
	e.fetcher = fetchpkg.NewFetcher(
		e.client, profileCache, collector, slog.Default(),
		cfg.FetchMaxConcurrent, cfg.ProfileCacheTTL,
	)

	return e, nil
}

// newProfileCache はREDIS_URLが設定されていればRedisCacheを、なければMemoryCacheを返す。
func newProfileCache(ctx context.Context, cfg *config.Config) (fetchpkg.ProfileCache, func() error, error) {
	if cfg.RedisURL == "" {
		slog.Info("プロセス内プロフィールキャッシュを使用します",
			slog.Duration("ttl", cfg.ProfileCacheTTL),
		)
		return cache.NewMemoryCache(), nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("Redisプロフィールキャッシュを使用します",
		slog.String("addr", opts.Addr),
		slog.Duration("ttl", cfg.ProfileCacheTTL),
	)
	// キーの有効期限は鮮度判定より長くとり、古いエントリの掃除のみに使う
	return cache.NewRedisCache(rdb, slog.Default(), cache.WithKeyExpiry(10*cfg.ProfileCacheTTL)), rdb.Close, nil
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. 共有コンポーネント
	e, err := buildEngine(context.Background(), cfg, collector)
	if err != nil {
		return err
	}
	defer e.Close()

	// 3. ドメインサービス
	sanitizer := security.NewProfileSanitizer(cfg.AvatarFallback)
	assembler := leaderboard.NewAssembler(cfg.TrackedGame, sanitizer)
	leaderboardService := leaderboard.NewService(
		e.rosterRepo, e.fetcher, assembler, e.client, collector, slog.Default(),
	)
	rosterService := roster.NewService(e.rosterRepo, e.client, slog.Default())

	if cfg.AdminToken == "" {
		slog.Warn("ADMIN_TOKEN が設定されていません。管理用APIは無効です")
	}

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAdmin),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		HealthChecker:     e.db,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		AdminToken:        cfg.AdminToken,

		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),

		LeaderboardService: leaderboardService,
		RosterService:      rosterService,
		RosterView:         leaderboardService,
	})

	// 5. HTTPサーバーの起動
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

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Int("fetch_width", e.fetcher.Width()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
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
// ロスター全体を定期的に解決し、共有プロフィールキャッシュを温める。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := buildEngine(ctx, cfg, metrics.Nop{})
	if err != nil {
		return err
	}
	defer e.Close()

	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL が設定されていないため、ワーカーのキャッシュはAPIサーバーと共有されません")
	}

	scheduler := fetchpkg.NewScheduler(e.rosterRepo, e.fetcher, slog.Default())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("refresh_interval", cfg.RefreshInterval),
		slog.Int("max_concurrent", e.fetcher.Width()),
	)

	// リフレッシュスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.RefreshInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runRefresh はロスター全体の解決を1回だけ実行する。
// 全件が外部サービス側の理由で失敗した場合はエラーを返し、終了コードで外部スケジューラに知らせる。
func runRefresh(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	e, err := buildEngine(ctx, cfg, metrics.Nop{})
	if err != nil {
		return err
	}
	defer e.Close()

	scheduler := fetchpkg.NewScheduler(e.rosterRepo, e.fetcher, slog.Default())
	failed, err := scheduler.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	if failed {
		return errors.New("refresh failed: every roster lookup failed")
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
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
// パースできない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("redacted")
	}
	u.RawQuery = ""
	return u.String()
}
