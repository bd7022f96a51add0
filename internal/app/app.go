package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"mealio_backend/database"
	"mealio_backend/internal/config"
	"mealio_backend/internal/gateways"
	"mealio_backend/internal/handlers"
	"mealio_backend/internal/logger"
	"mealio_backend/internal/notify"
	"mealio_backend/internal/realtime"
	"mealio_backend/internal/realtime/feed"
	"mealio_backend/internal/repositories"
	chatrepo "mealio_backend/internal/repositories/chat"
	"mealio_backend/internal/routes"
	"mealio_backend/internal/services"
	"mealio_backend/internal/validator"
	"mealio_backend/internal/workers"
	"mealio_backend/ws"
)

func Run() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Server.Env)
	logger.Info("Logger initialized", "env", cfg.Server.Env)

	logger.Info("Connecting to database...")
	gormDB, err := database.ConnectGorm()
	if err != nil {
		logger.Fatal("Failed to connect to GORM", "error", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		logger.Fatal("Failed to get *sql.DB from GORM", "error", err)
	}
	if err = sqlDB.Ping(); err != nil {
		logger.Fatal("Database unavailable", "error", err)
	}
	logger.Info("Database connected")

	if err := database.AutoMigrate(); err != nil {
		logger.Fatal("Migration failed", "error", err)
	}

	ctx := context.Background()
	ginRouter := SetupRouter(ctx, cfg, gormDB)

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info(fmt.Sprintf("🚀 Server starting on %s", address))
	if err := ginRouter.Run(address); err != nil {
		logger.Fatal("Server startup error", "error", err)
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, gormDB *gorm.DB) *gin.Engine {
	// --- Change feed ---
	// Postgres LISTEN/NOTIFY carries persisted changes across nodes. With
	// no DSN (tests, single-process dev) the in-memory feed stands in.
	var changeFeed interface {
		feed.Feed
		feed.Publisher
	}
	if cfg.Database.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Fatal("Failed to create pgx pool", "error", err)
		}
		pgFeed := feed.NewPostgresFeed(pool)
		pgFeed.Start(ctx)
		changeFeed = pgFeed
		logger.Info("Change feed: postgres LISTEN/NOTIFY")
	} else {
		changeFeed = feed.NewMemoryFeed()
		logger.Warn("Change feed: in-memory (single process only)")
	}

	// --- Broadcast transport ---
	var transport realtime.Transport
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("Redis unavailable", "error", err)
		}
		transport = realtime.NewRedisTransport(rdb, changeFeed)
		logger.Info("Broadcast transport: redis", "addr", cfg.Redis.Addr)
	} else {
		transport = realtime.NewMemoryTransport(changeFeed)
		logger.Warn("Broadcast transport: in-memory (single process only)")
	}

	// --- Repositories ---
	userRepo := repositories.NewUserRepository(gormDB)
	groupRepo := repositories.NewGroupRepository(gormDB)
	notificationRepo := repositories.NewNotificationRepository(gormDB, changeFeed)
	preferenceRepo := repositories.NewPreferenceRepository(gormDB)
	messageRepo := chatrepo.NewMessageRepository(gormDB, changeFeed)

	// --- Services ---
	tracker := realtime.NewTracker(groupRepo)
	notificationService := services.NewNotificationService(notificationRepo)
	preferenceService := services.NewPreferenceService(preferenceRepo)
	chatService := services.NewChatService(messageRepo, userRepo, transport, tracker)

	// --- WebSocket hub ---
	wsManager := ws.NewManager()
	go wsManager.Run()
	wsHandler := ws.NewHandler(wsManager, chatService)

	// --- Delivery channels and fan-out ---
	smsGateway := gateways.NewHTTPSMSGateway(cfg.SMS.BaseURL, cfg.SMS.APIKey, cfg.SMS.Sender)
	speechClient := gateways.NewHTTPSpeechClient(cfg.TTS.BaseURL, cfg.TTS.APIKey)
	dispatcher := notify.NewDispatcher(
		notificationService,
		preferenceService,
		userRepo,
		notify.NewInAppChannel(wsManager),
		notify.NewSMSChannel(smsGateway),
		notify.NewVoiceChannel(speechClient),
	)

	// Cross-node in-app delivery: notifications persisted on other nodes
	// arrive over the change feed and are pushed to local sockets.
	bridge := notify.NewFeedBridge(changeFeed, notificationService, wsManager)
	bridge.Start()

	// --- Background workers ---
	notificationWorker := workers.NewNotificationWorker(
		notificationRepo,
		cfg.Notifications.RetentionDays,
		time.Duration(cfg.Notifications.CleanupInterval)*time.Hour,
	)
	notificationWorker.Start(ctx)

	// --- Handlers ---
	v := validator.New()
	base := handlers.NewBaseHandler(v)
	appHandlers := &routes.AppHandlers{
		NotificationHandler: handlers.NewNotificationHandler(base, notificationService, dispatcher),
		PreferenceHandler:   handlers.NewPreferenceHandler(base, preferenceService),
		PresenceHandler:     handlers.NewPresenceHandler(base, tracker),
		ChatHandler:         handlers.NewChatHandler(base, chatService),
	}

	ginRouter := initializeGinRouter(cfg)
	routes.RegisterRoutes(ginRouter, appHandlers, wsHandler)
	return ginRouter
}

func initializeGinRouter(cfg *config.Config) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())
	return ginRouter
}
