package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vkuzn/gatelink/config"
	appmodel "github.com/vkuzn/gatelink/internal/app/model"
	apprepository "github.com/vkuzn/gatelink/internal/app/repository"
	appserver "github.com/vkuzn/gatelink/internal/app/server"
	appservice "github.com/vkuzn/gatelink/internal/app/service"
	"github.com/vkuzn/gatelink/internal/bot"
	"github.com/vkuzn/gatelink/internal/infra/logger"
	infraNATS "github.com/vkuzn/gatelink/internal/infra/nats"
	infraPostgres "github.com/vkuzn/gatelink/internal/infra/postgres"
	infraPrometheus "github.com/vkuzn/gatelink/internal/infra/prometheus"
	infraRedis "github.com/vkuzn/gatelink/internal/infra/redis"
	"github.com/vkuzn/gatelink/internal/telegram"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("nats_host", cfg.NATS.Host),
		zap.String("public_base_url", cfg.Telegram.PublicBaseURL),
		zap.Int("admins", len(cfg.Telegram.AdminIDs)),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	err = infraPostgres.AutoMigrate(ctx, gormDB,
		&appmodel.Link{},
		&appmodel.User{},
		&appmodel.RequiredChannel{},
		&appmodel.BroadcastRecord{},
		&appmodel.RedeemEvent{},
	)
	if err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully")

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server", zap.String("addr", promServer.Addr))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() { _ = promServer.Close() }()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	linkRepo := apprepository.NewLinkRepository(gormDB)
	userRepo := apprepository.NewUserRepository(gormDB)
	channelRepo := apprepository.NewChannelRepository(gormDB)
	broadcastRepo := apprepository.NewBroadcastRepository(gormDB)
	eventRepo := apprepository.NewRedeemEventRepository(gormDB)

	linkService, err := appservice.NewLinkService(ctx, linkRepo)
	if err != nil {
		log.Fatal("Failed to initialize link service", zap.Error(err))
	}

	tgClient := telegram.NewClient(cfg.Telegram.Token, log)

	meCtx, meCancel := context.WithTimeout(ctx, 10*time.Second)
	me, err := tgClient.GetMe(meCtx)
	meCancel()
	if err != nil {
		log.Fatal("Failed to identify bot account", zap.Error(err))
	}
	log.Info("Bot identified", zap.String("username", me.Username))

	gate := appservice.NewMembershipGate(channelRepo, tgClient, redisClient, log,
		appservice.WithQueryTimeout(parseDuration(cfg.Gate.QueryTimeout, 5*time.Second)),
		appservice.WithInviteTTL(parseDuration(cfg.Gate.InviteTTL, 24*time.Hour)),
	)

	broadcasts := appservice.NewBroadcastService(userRepo, broadcastRepo, tgClient,
		[]byte(cfg.Broadcast.Secret), log,
		appservice.WithSendDelay(parseDuration(cfg.Broadcast.SendDelay, 50*time.Millisecond)),
		appservice.WithConfirmTTL(parseDuration(cfg.Broadcast.ConfirmTTL, 5*time.Minute)),
	)
	broadcasts.OnComplete = func(record appmodel.BroadcastRecord) {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		text := fmt.Sprintf("Broadcast finished: %d sent, %d failed (of %d).",
			record.SuccessCount, record.FailureCount, record.TotalRecipients)
		if err := tgClient.SendMessage(notifyCtx, record.AdminID, text, nil); err != nil {
			log.Warn("Failed to notify admin of broadcast completion", zap.Error(err))
		}
	}

	publisher := appservice.NewRedeemPublisher(js)
	consumer := appservice.NewRedeemConsumer(js, log, eventRepo)
	if err := consumer.Start(); err != nil {
		log.Fatal("Failed to start redemption event consumer", zap.Error(err))
	}

	botRouter := bot.NewRouter(bot.Dependencies{
		Logger:     log,
		API:        tgClient,
		Links:      linkService,
		Gate:       gate,
		Broadcasts: broadcasts,
		Users:      userRepo,
		Channels:   channelRepo,
		Stats:      appservice.NewStatsService(pool),
		Config: bot.Config{
			BotUsername:   me.Username,
			PublicBaseURL: cfg.Telegram.PublicBaseURL,
			AdminIDs:      cfg.Telegram.AdminIDs,
		},
	})

	if cfg.Telegram.PublicBaseURL != "" {
		hookCtx, hookCancel := context.WithTimeout(ctx, 10*time.Second)
		webhookURL := fmt.Sprintf("%s/webhook/%s", cfg.Telegram.PublicBaseURL, cfg.Telegram.Token)
		err = tgClient.SetWebhook(hookCtx, webhookURL)
		hookCancel()
		if err != nil {
			log.Fatal("Failed to set webhook", zap.Error(err))
		}
		log.Info("Webhook registered")
	}

	srv := appserver.New(appserver.Dependencies{
		Logger:    log,
		Redis:     redisClient,
		Links:     linkService,
		Publisher: publisher,
		BotRouter: botRouter,
		BotToken:  cfg.Telegram.Token,
	})

	stopCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.Listen(cfg.Server.Addr); err != nil {
			log.Error("Fiber server exited", zap.Error(err))
			stop()
		}
	}()

	<-stopCtx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown failed", zap.Error(err))
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
