package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-board/activity"
	"kanban-board/api"
	"kanban-board/board"
	"kanban-board/config"
	"kanban-board/storage"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	persist, closeStore := openStore(ctx, cfg)
	defer closeStore()

	var feed activity.Notifier = activity.Discard
	if cfg.Activity.Queue != "" {
		if err := activity.EnsureQueue(ctx, cfg.Storage.ConnectionString, cfg.Activity.Queue); err != nil {
			log.Fatalf("create queue: %v", err)
		}
		pub, err := activity.NewQueuePublisher(cfg.Storage.ConnectionString, cfg.Activity.Queue)
		if err != nil {
			log.Fatalf("activity: %v", err)
		}
		f := activity.NewFeed(pub, activity.Config{
			Workers:        cfg.Activity.Workers,
			Buffer:         cfg.Activity.Buffer,
			PublishTimeout: cfg.Activity.PublishTimeout,
			HandoffTimeout: cfg.Activity.HandoffTimeout,
		}, logger)
		defer f.Close()
		feed = f
	}

	svc := board.NewService(nil, persist, feed, logger)
	if err := svc.Load(ctx); err != nil {
		log.Fatalf("load board: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding},
	}))
	api.Register(e, svc, logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	log.WithFields(log.Fields{"addr": cfg.ListenAddr, "backend": cfg.Storage.Backend}).Info("kanban board listening")
	if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
}

// openStore builds the configured persistence backend.
func openStore(ctx context.Context, cfg *config.Config) (board.Persister, func()) {
	var base board.Persister
	var clients []*redis.Client
	redisClient := func() *redis.Client {
		opts, err := storage.ParseRedisConnection(cfg.Storage.RedisConnection)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rc := redis.NewClient(opts)
		clients = append(clients, rc)
		return rc
	}

	switch cfg.Storage.Backend {
	case config.BackendFile:
		fs, err := storage.NewFileStore(cfg.Storage.Dir, cfg.Storage.Key)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		base = fs
	case config.BackendRedis:
		base = storage.NewRedisStore(redisClient(), cfg.Storage.Key)
	case config.BackendTable:
		if err := storage.EnsureTable(ctx, cfg.Storage.ConnectionString, cfg.Storage.Table); err != nil {
			log.Fatalf("create table: %v", err)
		}
		ts, err := storage.NewTableStore(cfg.Storage.ConnectionString, cfg.Storage.Table, cfg.Storage.Key)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		base = ts
		if cfg.CacheEnabled() {
			base = storage.NewCache(ts, redisClient(), cfg.Storage.Key, cfg.Storage.CacheTTL)
		}
	}

	return storage.WithTimeout(base, cfg.Storage.Timeout), func() {
		for _, rc := range clients {
			_ = rc.Close()
		}
	}
}
