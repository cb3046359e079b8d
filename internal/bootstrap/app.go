package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docqa/internal/ai"
	appsvc "docqa/internal/app"
	"docqa/internal/cache"
	"docqa/internal/config"
	"docqa/internal/evidence"
	"docqa/internal/ingest"
	"docqa/internal/model"
	mysqlClient "docqa/internal/platform/mysql"
	rabbitmqClient "docqa/internal/platform/rabbitmq"
	redisClient "docqa/internal/platform/redis"
	"docqa/internal/qa"
	"docqa/internal/repository"
	"docqa/internal/retriever"
	"docqa/internal/storage"
	"docqa/internal/vectorindex"
	"docqa/internal/worker"
)

// App owns every process-scoped component. Both the HTTP server and the
// worker-only process are built from it.
type App struct {
	Config *config.Config
	MySQL  *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	Indexes   *vectorindex.Manager
	Runner    *ingest.Runner
	Auth      *appsvc.AuthService
	Documents *appsvc.DocumentService
	Chats     *appsvc.ChatService

	ingestWorker *worker.IngestWorker
	StartedAt    time.Time
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, StartedAt: time.Now()}
	if err := a.connect(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.wire(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg)
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.AutoMigrate(
		&model.User{},
		&model.Document{},
		&model.Page{},
		&model.Chunk{},
		&model.Chat{},
		&model.Message{},
		&model.Citation{},
	); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	a.Redis = redisCli

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.IngestQueue)
	if err != nil {
		return err
	}
	a.MQConn = mqConn
	return nil
}

func (a *App) wire() error {
	cfg := a.Config

	llm := ai.NewOpenAICompatibleClient(ai.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, ai.EmbeddingConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.EmbeddingModel,
	})
	embeddingCache := cache.NewEmbeddingCache(a.Redis, llm.EmbeddingModel(), time.Duration(cfg.Redis.EmbeddingTTLSeconds)*time.Second)
	embedder := cache.NewCachedEmbedder(llm, embeddingCache)

	a.Indexes = vectorindex.NewManager(embedder, vectorindex.Options{
		Dir:            cfg.Index.Dir,
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		EfSearch:       cfg.Index.EfSearch,
		BatchSize:      cfg.LLM.EmbedBatchSize,
	})

	originals, err := storage.NewLocal(cfg.Storage.Dir)
	if err != nil {
		return err
	}

	userRepo := repository.NewUserRepository(a.MySQL)
	documentRepo := repository.NewDocumentRepository(a.MySQL)
	pageRepo := repository.NewPageRepository(a.MySQL)
	chunkRepo := repository.NewChunkRepository(a.MySQL)
	chatRepo := repository.NewChatRepository(a.MySQL)
	messageRepo := repository.NewMessageRepository(a.MySQL)

	a.Runner = ingest.NewRunner(
		documentRepo,
		pageRepo,
		chunkRepo,
		ingest.NewStoredPages(originals),
		a.Indexes,
		cache.NewJobLock(a.Redis, time.Duration(cfg.Redis.JobLockTTLSeconds)*time.Second),
		ingest.Options{
			ChunkSize:    cfg.RAG.ChunkSize,
			ChunkOverlap: cfg.RAG.ChunkOverlap,
			Timeout:      cfg.Worker.IngestTimeout(),
		},
	)

	streamer := qa.NewStreamer(retriever.New(a.Indexes, chunkRepo), llm, messageRepo, qa.Options{
		TopK: cfg.RAG.TopK,
		Evidence: evidence.Options{
			MaxChunks:   cfg.RAG.EvidenceChunks,
			BudgetChars: cfg.RAG.EvidenceBudgetChars,
		},
		RetrievalTimeout: cfg.RAG.RetrievalTimeout(),
		TokenTimeout:     cfg.RAG.TokenTimeout(),
		GenerateTimeout:  cfg.RAG.GenerateTimeout(),
	})

	publisher := rabbitmqClient.NewIngestPublisher(a.MQConn, cfg.RabbitMQ.IngestQueue)
	a.Auth = appsvc.NewAuthService(userRepo, cfg.Auth.JWTSecret, time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute)
	a.Documents = appsvc.NewDocumentService(documentRepo, originals, publisher, a.Indexes, int64(cfg.Storage.MaxUploadMiB)<<20)
	a.Chats = appsvc.NewChatService(chatRepo, messageRepo, documentRepo, streamer)
	return nil
}

// StartWorkers begins consuming ingestion jobs.
func (a *App) StartWorkers(ctx context.Context) error {
	if a.ingestWorker != nil {
		return nil
	}
	w := worker.NewIngestWorker(a.MQConn, a.Runner, a.Config.RabbitMQ.IngestQueue, a.Config.Worker.PoolSize)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start ingest worker failed: %w", err)
	}
	a.ingestWorker = w
	return nil
}

// WorkersRunning reports whether this process consumes ingestion jobs.
func (a *App) WorkersRunning() bool {
	return a.ingestWorker != nil
}

func (a *App) Close() error {
	var closeErr error
	if a.ingestWorker != nil {
		a.ingestWorker.Close()
	}
	if a.Indexes != nil {
		_ = a.Indexes.Close()
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
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if closeErr != nil {
		log.Printf("close resources: %v", closeErr)
	}
	return closeErr
}
