package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"diary/internal/analysis"
	"diary/internal/auth"
	"diary/internal/clients"
	"diary/internal/config"
	"diary/internal/diary"
	"diary/internal/gateway"
	"diary/internal/handler"
	"diary/internal/httpmiddleware"
	"diary/internal/logging"
	"diary/internal/queue"
	"diary/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if db == nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err != nil {
		log.Warn("db not reachable", zap.Error(err))
	} else if err := db.Migrate(ctx); err != nil {
		log.Warn("migration failed", zap.Error(err))
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey, log)
	}

	gw := gateway.New(cfg.DnevnikAPIURL, cfg.DnevnikToken, cfg.GatewayTimeout, log)
	svc, err := diary.New(ctx, gw, diary.Options{
		Concurrency:  cfg.MaxConcurrent,
		SubjectRetry: diary.RetryPolicy{Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff},
		Location:     cfg.Location(),
		Logger:       log,
	})
	if err != nil {
		return err
	}

	reports := analysis.NewRepository(db.Client)
	if cfg.QueueBackend == "memory" {
		// nothing else can drain an in-process queue
		worker, err := newAnalysisWorker(cfg, svc, q, reports, log)
		if err != nil {
			log.Warn("analysis worker disabled", zap.Error(err))
		} else {
			go func() { _ = worker.Run(ctx) }()
		}
	}

	issuer := auth.Issuer{
		Name:       cfg.JWTIssuer,
		Key:        []byte(cfg.JWTSigningKey),
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}
	h := handler.New(
		svc,
		clients.NewService(clients.NewRepository(db.Client), issuer, log),
		reports,
		q,
		map[string]handler.HealthCheck{
			"db":    db.Healthy,
			"redis": redisClient.Healthy,
		},
		cfg.Location(),
		log,
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        24 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewLimiter(cfg.RateLimitPerMin, httpmiddleware.ClientIP).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Routes(r, auth.ClientAuth(issuer))

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: r,
		// Aggregation endpoints fan out across every student of the class.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}

func newAnalysisWorker(cfg config.App, svc *diary.Service, q queue.Queue, reports *analysis.Repository, log *zap.Logger) (*analysis.Worker, error) {
	prompts, err := analysis.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	llm, err := analysis.NewOpenAI(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel, log)
	if err != nil {
		return nil, err
	}
	runner := analysis.NewService(svc, prompts, llm, log)
	return analysis.NewWorker(q, runner, reports, log), nil
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")

		// HSTS only behind TLS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
