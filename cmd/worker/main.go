package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"diary/internal/analysis"
	"diary/internal/config"
	"diary/internal/diary"
	"diary/internal/gateway"
	"diary/internal/logging"
	"diary/internal/queue"
	"diary/internal/store"
)

// Worker consumes analysis jobs, asks the language model for a summary and
// stores the outcome.
func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	if cfg.QueueBackend == "memory" {
		log.Fatal("memory queue is process-local; the api runs analyses itself in that mode")
	}
	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	if !redisClient.Healthy(ctx) {
		log.Warn("redis not available yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}
	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey, log)

	prompts, err := analysis.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		log.Fatal("load prompts", zap.Error(err))
	}
	llm, err := analysis.NewOpenAI(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel, log)
	if err != nil {
		log.Fatal("language model client", zap.Error(err))
	}

	gw := gateway.New(cfg.DnevnikAPIURL, cfg.DnevnikToken, cfg.GatewayTimeout, log)
	svc, err := diary.New(ctx, gw, diary.Options{
		Concurrency:  cfg.MaxConcurrent,
		SubjectRetry: diary.RetryPolicy{Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff},
		Location:     cfg.Location(),
		Logger:       log,
	})
	if err != nil {
		log.Fatal("diary session", zap.Error(err))
	}

	worker := analysis.NewWorker(q, analysis.NewService(svc, prompts, llm, log), analysis.NewRepository(db.Client), log)
	if err := worker.Run(ctx); err != nil {
		log.Fatal("worker failed", zap.Error(err))
	}
}
