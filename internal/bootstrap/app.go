package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"geminichat/internal/ai"
	"geminichat/internal/app"
	"geminichat/internal/config"
	"geminichat/internal/model"
	mysqlClient "geminichat/internal/platform/mysql"
	rabbitmqClient "geminichat/internal/platform/rabbitmq"
	redisClient "geminichat/internal/platform/redis"
	"geminichat/internal/repository"
	"geminichat/internal/worker"
)

type App struct {
	Config       *config.Config
	MySQL        *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	Gemini       *ai.GeminiClient
	TitleService *app.TitleService
	RenameWorker *worker.RenameWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(&model.User{}, &model.Session{}, &model.Message{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	geminiClient := ai.NewGeminiClient()
	sessionRepo := repository.NewSessionRepository(mysqlDB)
	messageRepo := repository.NewMessageRepository(mysqlDB)
	titleService := app.NewTitleService(sessionRepo, messageRepo, geminiClient, ai.GenerateConfig{
		BaseURL:     cfg.Gemini.BaseURL,
		APIKey:      cfg.Gemini.APIKey,
		Model:       cfg.Gemini.TitleModel,
		Temperature: cfg.Gemini.TitleTemperature,
	})

	renameWorker := worker.NewRenameWorker(mqConn, titleService, cfg.RabbitMQ.RenameQueue)
	if err := renameWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start rename worker failed: %w", err)
	}

	return &App{
		Config:       cfg,
		MySQL:        mysqlDB,
		Redis:        redisCli,
		MQConn:       mqConn,
		Gemini:       geminiClient,
		TitleService: titleService,
		RenameWorker: renameWorker,
		StartedAt:    time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.RenameWorker != nil {
		a.RenameWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
