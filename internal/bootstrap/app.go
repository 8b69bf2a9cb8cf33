package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"dahdouh-ai/internal/ai"
	appsvc "dahdouh-ai/internal/app"
	"dahdouh-ai/internal/cache"
	"dahdouh-ai/internal/config"
	"dahdouh-ai/internal/model"
	"dahdouh-ai/internal/platform/database"
	rabbitmqClient "dahdouh-ai/internal/platform/rabbitmq"
	redisClient "dahdouh-ai/internal/platform/redis"
	"dahdouh-ai/internal/repository"
	"dahdouh-ai/internal/storage"
	"dahdouh-ai/internal/worker"
)

type App struct {
	Config      *config.Config
	Log         zerolog.Logger
	DB          *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	TitleWorker *worker.ChatTitleWorker

	AuthService *appsvc.AuthService
	ChatService *appsvc.ChatService
	TurnService *appsvc.TurnService

	// Uploader writes to the configured backend, a DisabledStore when storage is off.
	Uploader      *storage.Uploader
	LocalUploader *storage.Uploader
	LocalFiles    *storage.LocalStore
	StorageHealth func(ctx context.Context) error

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, StartedAt: time.Now()}

	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DB = db
	if err := db.AutoMigrate(&model.User{}, &model.Chat{}, &model.Message{}); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	a.Redis, err = redisClient.New(ctx, cfg.Redis)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	if err := a.initStorage(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	userRepo := repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)
	historyCache := cache.NewHistoryCache(a.Redis, cfg.HistoryTTL())
	locker := cache.NewChatLocker(a.Redis, cfg.LockExpiry(), log)

	var publisher appsvc.TurnEventPublisher
	if cfg.RabbitMQ.Enabled {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.TurnEventQueue)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		publisher = rabbitmqClient.NewTurnPublisher(a.MQConn, cfg.RabbitMQ.TurnEventQueue)

		a.TitleWorker = worker.NewChatTitleWorker(a.MQConn, chatRepo, historyCache, cfg.RabbitMQ.TurnEventQueue, log)
		if err := a.TitleWorker.Start(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("start chat title worker failed: %w", err)
		}
	} else {
		log.Warn().Msg("rabbitmq disabled, chats will not be auto-titled")
	}

	gateway := ai.NewGateway(log,
		ai.NewTextProvider(cfg.Text),
		ai.NewVisionProvider(cfg.Vision, cfg.MaxUploadBytes()),
	)

	a.AuthService = appsvc.NewAuthService(
		userRepo,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	a.ChatService = appsvc.NewChatService(chatRepo, historyCache, log)
	a.TurnService = appsvc.NewTurnService(
		chatRepo,
		gateway,
		a.Uploader,
		locker,
		publisher,
		historyCache,
		appsvc.TurnServiceConfig{
			SystemPrompt: cfg.Text.SystemPrompt,
			MaxContext:   cfg.Text.MaxContextMessage,
		},
		log,
	)
	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	cfg := a.Config
	local, err := storage.NewLocalStore(cfg.Storage.LocalDir, cfg.App.BaseURL)
	if err != nil {
		return err
	}
	a.LocalFiles = local
	a.LocalUploader = storage.NewUploader(local, cfg.MaxUploadBytes(), a.Log)

	switch cfg.Storage.Backend {
	case config.StorageBackendS3:
		s3Store, err := storage.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("init s3 storage failed: %w", err)
		}
		a.Uploader = storage.NewUploader(s3Store, cfg.MaxUploadBytes(), a.Log)
		a.StorageHealth = s3Store.Health
	case config.StorageBackendLocal:
		a.Uploader = a.LocalUploader
		a.StorageHealth = local.Health
	default:
		a.Uploader = storage.NewUploader(storage.DisabledStore{}, cfg.MaxUploadBytes(), a.Log)
		a.Log.Warn().Msg("object storage disabled, image turns are sent inline only")
	}
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.TitleWorker != nil {
		a.TitleWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
