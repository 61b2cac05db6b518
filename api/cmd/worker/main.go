// cmd/worker runs the analysis pipeline side: pulling jobs off the
// priority queue, calling the analysis API and watermark probe, fusing a
// verdict, persisting it, and notifying the chat (spec §4.4, §4.5, §4.6).
package main

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"imageverify/api/internal/analysisapi"
	"imageverify/api/internal/blobstore"
	"imageverify/api/internal/config"
	"imageverify/api/internal/gemini"
	"imageverify/api/internal/httpserver"
	"imageverify/api/internal/logging"
	"imageverify/api/internal/notify"
	"imageverify/api/internal/progress"
	"imageverify/api/internal/queue"
	"imageverify/api/internal/store"
	"imageverify/api/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logging.New()
	defer log.Sync()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatal("sql.Open", zap.Error(err))
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			log.Fatal("db ping", zap.Error(err))
		}
	}

	if err := store.Migrate("migrations", cfg.DatabaseURL, log); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("redis.ParseURL", zap.Error(err))
	}
	rdb := redis.NewClient(opt)

	ctx := context.Background()
	blobs, err := blobstore.New(ctx, cfg.S3Region, cfg.S3Endpoint, cfg.S3Bucket)
	if err != nil {
		log.Fatal("blobstore.New", zap.Error(err))
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal("tgbotapi.NewBotAPI", zap.Error(err))
	}

	pool := &worker.Pool{
		Log:         log,
		Queue:       queue.New(rdb, cfg.JobTimeout),
		Blobs:       blobs,
		Analysis:    analysisapi.New(cfg.AnalysisAPIURL, cfg.AnalysisAPITimeout),
		Watermark:   gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel),
		Analyses:    store.NewAnalysisRepo(db),
		Users:       store.NewUserRepo(db),
		Progress:    progress.NewNotifier(bot),
		Renderer:    notify.NewRenderer(bot),
		JobTimeout:  cfg.JobTimeout,
		WorkerCount: cfg.WorkerCount,
	}

	addr := "0.0.0.0:" + cfg.Port
	mux := httpserver.NewHealthMux(
		func(ctx context.Context) error { return db.PingContext(ctx) },
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	)
	go func() {
		if err := httpserver.Serve(addr, mux); err != nil {
			log.Fatal("Serve", zap.Error(err))
		}
	}()

	log.Info("worker pool starting", zap.Int("workers", cfg.WorkerCount))
	pool.Run(ctx)
}
