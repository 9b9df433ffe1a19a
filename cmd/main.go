package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"civictrack/backend/internal/api/handler"
	"civictrack/backend/internal/audit"
	"civictrack/backend/internal/auth"
	"civictrack/backend/internal/complaint"
	"civictrack/backend/internal/config"
	"civictrack/backend/internal/hub"
	"civictrack/backend/internal/localization"
	"civictrack/backend/internal/metrics"
	"civictrack/backend/internal/notification"
	"civictrack/backend/internal/scheduler"
	"civictrack/backend/internal/sla"
	"civictrack/backend/internal/storage"
	"civictrack/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	return logger
}

// setupStorage відкриває сховище згідно з конфігурацією та запускає міграції
func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) storage.Storage {
	if cfg.Storage.Driver == "memory" {
		logger.Warn("using in-memory storage, data is lost on restart")
		return storage.NewMemoryStore()
	}

	db, err := storage.Connect(ctx, cfg.Database.DSN, cfg.Database.LogSQL)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	s := storage.NewStorageService(db)
	if err := s.Migrate(ctx); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database connection established, migrations complete")
	return s
}

func setupRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	return rdb
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := newLogger(cfg)
	defer logger.Sync()
	logger.Info("starting CivicTrack backend", zap.String("environment", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()

	// 1. Ініціалізація залежностей
	store := setupStorage(ctx, cfg, logger)
	rdb := setupRedis(ctx, cfg, logger)

	localizer, err := localization.NewLocalizer()
	if err != nil {
		logger.Fatal("failed to load translations", zap.Error(err))
	}
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	auditLog := audit.NewLog(cfg.Audit.Capacity)

	// 2. Сповіщення: хаб WebSocket та, за наявності токена, Telegram
	var broker hub.Broker
	if rdb != nil {
		broker = hub.NewRedisBroker(rdb, hub.DefaultChannel, logger)
	}
	notificationHub := hub.NewManagerService(broker, logger)

	notifications := notification.NewService(store, localizer, logger)
	notifications.SetDefaultLanguage(cfg.Localization.DefaultLanguage)
	notifications.SetStoreTimeout(cfg.Storage.Timeout)
	notifications.AddPublisher("websocket", notificationHub)

	var bot *tgbotapi.BotAPI
	if cfg.Telegram.Token != "" {
		bot, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal("failed to start Telegram bot", zap.Error(err))
		}
		bot.Debug = false
		logger.Info("telegram bot authorized", zap.String("account", bot.Self.UserName))
		notifications.AddPublisher("telegram", telegram.NewNotifier(store, bot, logger))
	}

	// 3. Бізнес-сервіси
	complaints := complaint.NewService(store, notifications, auditLog, logger, complaint.Options{
		SLAWindow:    cfg.SLA.DefaultWindow,
		StoreTimeout: cfg.Storage.Timeout,
	})

	var locker sla.Locker
	if rdb != nil {
		locker = sla.NewRedisLocker(rdb, sla.DefaultLockKey, cfg.SLA.LockTTL, logger)
	}
	scanner := sla.NewScanner(store, notifications, locker, logger, sla.Options{
		ApproachingWindow:     cfg.SLA.ApproachingWindow,
		NotifyCitizenOnBreach: cfg.SLA.NotifyCitizenOnBreach,
		EscalationRecipients:  cfg.SLA.EscalationRecipients,
	})

	// 4. Періодичні задачі
	tasks := scheduler.New(logger)
	if err := tasks.Add("sla-sweep", cfg.SLA.Schedule, cfg.SLA.LockTTL, func(ctx context.Context) error {
		_, err := scanner.Sweep(ctx)
		return err
	}); err != nil {
		logger.Fatal("failed to schedule SLA sweep", zap.Error(err))
	}
	if err := tasks.Add("notification-purge", cfg.Notifications.PurgeSchedule, time.Minute, func(ctx context.Context) error {
		_, err := notifications.Purge(ctx, cfg.Notifications.Retention)
		return err
	}); err != nil {
		logger.Fatal("failed to schedule notification purge", zap.Error(err))
	}

	// 5. Запуск основних Goroutines
	go notificationHub.Run(ctx)
	tasks.Start()
	if bot != nil {
		botService := telegram.NewBotService(bot, store, issuer, notifications, localizer, logger)
		botService.SetDefaultLanguage(cfg.Localization.DefaultLanguage)
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		go botService.Run(ctx, bot.GetUpdatesChan(u))
	}

	// 6. Налаштування Gin та роутингу
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	h := handler.NewHandler(complaints, notifications, scanner, auditLog, issuer, notificationHub, logger)
	h.DevTokens = cfg.Auth.DevTokens
	h.SweepTimeout = cfg.SLA.LockTTL
	h.Tasks = tasks
	h.RegisterRoutes(r)

	server := &http.Server{
		Addr:           cfg.HTTP.Addr,
		Handler:        r,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	tasks.Stop(shutdownCtx)
	if bot != nil {
		bot.StopReceivingUpdates()
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Warn("redis close failed", zap.Error(err))
		}
	}
}
