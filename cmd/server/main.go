package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"erpquery/internal/cache"
	"erpquery/internal/catalog"
	"erpquery/internal/config"
	"erpquery/internal/handler"
	"erpquery/internal/logger"
	"erpquery/internal/repository"
	"erpquery/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer func() { _ = log.Sync() }()

	log.Info("ERP query bridge",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gin.SetMode(cfg.Server.GinMode)

	cat, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	log.Info("catalog loaded",
		zap.Int("services", len(cat.Services)),
		zap.Int("known_entities", len(cat.KnownEntities)),
	)

	var store cache.Cache
	if cfg.Cache.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Prefix:   "erpquery:",
		}, log)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rc.Close()
		store = rc
		log.Info("using redis cache", zap.String("addr", cfg.Cache.RedisAddr))
	} else {
		mc := cache.NewMemoryCache()
		go mc.Run(ctx, cfg.Cache.CleanupInterval, log)
		store = mc
		log.Info("using in-memory cache")
	}

	var chat service.ChatCompleter
	if cfg.OpenAI.Enabled {
		chat = service.NewOpenAIClient(&cfg.OpenAI, log)
		log.Info("OpenAI client initialized",
			zap.String("api_base", cfg.OpenAI.APIBase),
			zap.String("chat_model", cfg.OpenAI.ChatModel),
			zap.Float64("temperature", cfg.OpenAI.ChatTemperature),
			zap.Int("max_tokens", cfg.OpenAI.ChatMaxTokens),
		)
	} else {
		log.Warn("OpenAI is disabled, every query will fail interpretation. Set OPENAI_API_KEY to enable it")
	}

	interpreter, err := service.NewLLMInterpreter(chat, store, cfg.Cache.InterpreterTTL, log)
	if err != nil {
		return err
	}

	if cfg.ERP.BaseURL == "" {
		log.Warn("ERP_BASE_URL is not set, remote fetches will fail")
	}
	fetcher := repository.NewODataClient(cfg.ERP, cat, store, cfg.Cache.EntityDataTTL, log)

	sessions := service.NewSessionStore(cfg.Session.IdleTimeout, log)
	go sessions.Run(ctx, cfg.Session.SweepInterval)

	queryService := service.NewQueryService(cat, interpreter, fetcher, sessions, log)
	queryService.SetPageSize(cfg.ERP.PageSize)

	var history service.QueryHistory
	if cfg.PostgreSQL.DSN != "" {
		repo, err := repository.NewQueryLogRepository(
			cfg.PostgreSQL.DSN,
			cfg.PostgreSQL.MaxConnections,
			cfg.PostgreSQL.MaxIdleConnections,
		)
		if err != nil {
			return err
		}
		defer repo.Close()
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		queryService.SetQueryLogger(repo)
		history = repo
		log.Info("query audit log enabled")
	}

	limiter := handler.NewRateLimiter(cfg.Server.RateLimitRequests, cfg.Server.RateLimitWindow)
	go func() {
		ticker := time.NewTicker(cfg.Server.RateLimitWindow)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Prune()
			}
		}
	}()

	router := newRouter(cfg, cat, queryService, sessions, history, limiter, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func newRouter(
	cfg *config.Config,
	cat *catalog.Catalog,
	queryService *service.QueryService,
	sessions *service.SessionStore,
	history service.QueryHistory,
	limiter *handler.RateLimiter,
	log *zap.Logger,
) *gin.Engine {
	queryHandler := handler.NewQueryHandler(queryService, log)
	sessionHandler := handler.NewSessionHandler(sessions, history, log)
	catalogHandler := handler.NewCatalogHandler(cat)
	diagnosticsHandler := handler.NewDiagnosticsHandler(queryService)

	router := gin.New()
	router.Use(gin.Recovery(), handler.RequestID(), handler.Logger(log))

	corsConfig := cors.DefaultConfig()
	if cfg.Server.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.Server.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "X-API-Key", "X-Request-ID"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"service":    "erp-query-bridge",
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	protected := []gin.HandlerFunc{
		limiter.Middleware(),
		handler.APIKeyAuth(cfg.Server.APIKey, cfg.DebugMode()),
	}

	router.POST("/query", append(protected, queryHandler.Query)...)

	apiV1 := router.Group("/api/v1", protected...)
	{
		apiV1.POST("/query", queryHandler.Query)
		apiV1.GET("/services", catalogHandler.Services)
		apiV1.GET("/session/:id", sessionHandler.Get)
		apiV1.DELETE("/session/:id", sessionHandler.Delete)
		apiV1.GET("/session/:id/history", sessionHandler.History)
		apiV1.GET("/diagnostics/entities", diagnosticsHandler.Entities)
	}

	setupStaticFiles(router, cfg.Server.WidgetDir, log)
	return router
}
