// cmd/bot runs the Telegram ingress side of the pipeline: receiving
// updates (webhook or long-polling), running the scenario state machine,
// and enqueueing jobs for cmd/worker to process (spec §4.1, §4.2, §4.3).
package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"imageverify/api/internal/blobstore"
	"imageverify/api/internal/config"
	"imageverify/api/internal/httpserver"
	"imageverify/api/internal/logging"
	"imageverify/api/internal/middleware"
	"imageverify/api/internal/progress"
	"imageverify/api/internal/queue"
	"imageverify/api/internal/ratelimit"
	"imageverify/api/internal/ssm"
	"imageverify/api/internal/store"
	"imageverify/api/internal/telegram"
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
	bot.Debug = false

	users := store.NewUserRepo(db)
	analyses := store.NewAnalysisRepo(db)
	q := queue.New(rdb, cfg.JobTimeout)
	ssmStore := ssm.NewStore(rdb)
	progressNotifier := progress.NewNotifier(bot)
	downloader := telegram.NewDownloader(bot, blobs)

	chain := &middleware.Chain{
		Log:             log,
		RateLimiter:     ratelimit.New(rdb, cfg.RateLimitCapacity, cfg.RateLimitWindow),
		Velocity:        ratelimit.NewNamed(rdb, "velocity", cfg.UploadVelocityCapacity, cfg.UploadVelocityWindow),
		Analyses:        analyses,
		DuplicateWindow: cfg.DuplicateWindow,
	}

	router := &telegram.Router{
		Bot:             bot,
		Log:             log,
		Users:           users,
		SSM:             ssmStore,
		Middleware:      chain,
		Queue:           q,
		Progress:        progressNotifier,
		Downloader:      downloader,
		DailyFreeQuota:  cfg.DailyFreeQuota,
		QueueDepthLimit: cfg.QueueDepthLimit,
		MaxUploadBytes:  cfg.MaxUploadBytes,
	}

	addr := "0.0.0.0:" + cfg.Port
	healthCheck := httpserver.HealthCheck(func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})

	if strings.TrimSpace(cfg.WebhookURL) != "" {
		runWebhook(addr, bot, router, cfg.WebhookURL, healthCheck, log)
	} else {
		runPolling(addr, bot, router, healthCheck, log)
	}
}

func runWebhook(addr string, bot *tgbotapi.BotAPI, r *telegram.Router, baseURL string, health httpserver.HealthCheck, log *zap.Logger) {
	path := "/webhook/" + shortHash(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		log.Fatal("NewWebhook", zap.Error(err))
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		log.Fatal("set webhook", zap.Error(err))
	}

	// tgbotapi.ListenForWebhook always registers its handler on
	// http.DefaultServeMux, so the health check is added there too rather
	// than on a fresh mux that ListenAndServe would never see hit.
	updates := bot.ListenForWebhook(path)
	http.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := health(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		ctx := context.Background()
		for upd := range updates {
			r.HandleUpdate(ctx, upd)
		}
	}()

	log.Info("webhook mode", zap.String("addr", addr), zap.String("path", path))
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal("ListenAndServe", zap.Error(err))
	}
}

func runPolling(addr string, bot *tgbotapi.BotAPI, r *telegram.Router, health httpserver.HealthCheck, log *zap.Logger) {
	go func() {
		if err := httpserver.Serve(addr, httpserver.NewHealthMux(health)); err != nil {
			log.Fatal("Serve", zap.Error(err))
		}
	}()

	ctx := context.Background()
	offset := 0
	baseDelay := time.Second
	maxDelay := 15 * time.Second

	for {
		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := retryDelayFromError(err)
			if d < baseDelay {
				d = baseDelay
			}
			if d > maxDelay {
				d = maxDelay
			}
			log.Warn("polling error", zap.Error(err), zap.Duration("retry_in", d))
			time.Sleep(d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			r.HandleUpdate(ctx, upd)
		}
		if len(updates) == 0 {
			time.Sleep(200 * time.Millisecond)
		}
	}
}

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, convErr := strconv.Atoi(m[1]); convErr == nil && n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return time.Second
}

func shortHash(s string) string {
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}
