package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"

	"spark-backend/internal/chat"
	"spark-backend/internal/config"
	"spark-backend/internal/core/frames"
	"spark-backend/internal/credential"
	"spark-backend/internal/database"
	"spark-backend/internal/messaging"
	"spark-backend/internal/modelservice"
	"spark-backend/internal/storage"
	"spark-backend/internal/video"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if err := LoadEnv(configPath); err != nil {
		log.Fatalf("%v", err)
	}
}

// LoadEnv loads a dotenv file into the process environment. An empty path
// leaves the environment untouched.
func LoadEnv(path string) error {
	if path == "" {
		log.Printf("no env file specified, using os.Environ only")
		return nil
	}

	log.Printf("loading env from file %s", path)
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading .env file '%s': %w", path, err)
	}
	return nil
}

func NewModelService(ctx context.Context, cfg config.ModelConfig) (modelservice.Facade, modelservice.ArtifactFetcher, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		gemini, err := modelservice.NewGemini(ctx, modelservice.GeminiOptions{
			Backend:  cfg.GeminiBackend,
			APIKey:   cfg.GeminiAPIKey,
			Project:  cfg.GCPProject,
			Location: cfg.GCPLocation,
		})
		if err != nil {
			return nil, nil, err
		}
		return gemini, modelservice.NewArtifactClient(), nil

	case config.ProviderOpenAI:
		return modelservice.NewOpenAIChat(cfg.OpenAIAPIKey, nil), modelservice.NewArtifactClient(), nil

	case config.ProviderMock:
		mock := modelservice.NewMock()
		return mock, mock, nil

	default:
		return nil, nil, fmt.Errorf("invalid model provider '%s'", cfg.Provider)
	}
}

func NewObjectStore(ctx context.Context, cfg config.StoreConfig) (storage.ObjectStore, error) {
	if cfg.Kind == config.StoreS3 {
		store, err := storage.NewS3ObjectStore(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := storage.NewLocalObjectStore(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewQueue returns the job transport. Without a RabbitMQ url jobs are handed
// to the worker in process.
func NewQueue(cfg config.QueueConfig) (messaging.Publisher, messaging.Receiver, error) {
	if cfg.RabbitMQURL == "" {
		queue := messaging.NewInMemoryQueue()
		return queue, queue, nil
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting publisher to rabbitmq: %w", err)
	}

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL, cfg.WorkerConcurrency)
	if err != nil {
		publisher.Close()
		return nil, nil, fmt.Errorf("error connecting receiver to rabbitmq: %w", err)
	}

	return publisher, receiver, nil
}

// App holds the wired components shared by the server and the CLI.
type App struct {
	Config config.Config

	DB          *gorm.DB
	Model       modelservice.Facade
	Store       storage.ObjectStore
	Publisher   messaging.Publisher
	Receiver    messaging.Receiver
	Credentials *credential.Store

	Chat      *chat.Manager
	Generator *video.Generator
	Analyzer  *video.Analyzer
}

func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := database.NewDatabase(database.InMemoryDSN)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	model, fetcher, err := NewModelService(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("error creating model service: %w", err)
	}

	store, err := NewObjectStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("error creating artifact store: %w", err)
	}

	publisher, receiver, err := NewQueue(cfg.Queue)
	if err != nil {
		return nil, err
	}

	credentials := credential.NewStore(cfg.Model.GeminiAPIKey)

	app := &App{
		Config:      cfg,
		DB:          db,
		Model:       model,
		Store:       store,
		Publisher:   publisher,
		Receiver:    receiver,
		Credentials: credentials,
		Chat: chat.NewManager(db, model, chat.Options{
			ChatModel:         cfg.Model.ChatModel,
			ProModel:          cfg.Model.ProModel,
			SystemInstruction: cfg.Model.SystemInstruction,
		}),
		Generator: video.NewGenerator(db, model, fetcher, store, publisher, credentials, video.GeneratorOptions{
			PollInterval: cfg.Video.PollInterval,
			PollTimeout:  cfg.Video.PollTimeout,
		}),
		Analyzer: video.NewAnalyzer(model, cfg.Video.FramesPerSecond, frames.FFmpegOptions{
			FFmpegPath:  cfg.Video.FFmpegPath,
			FFprobePath: cfg.Video.FFprobePath,
		}),
	}

	slog.Info("application initialized", "provider", cfg.Model.Provider, "artifact_store", cfg.Store.Kind, "rabbitmq", cfg.Queue.RabbitMQURL != "")
	return app, nil
}

func (a *App) Worker() *messaging.Worker {
	return messaging.NewWorker(a.Receiver, a.Generator, a.Config.Queue.WorkerConcurrency)
}

func (a *App) Close() {
	a.Receiver.Close()
	if any(a.Publisher) != any(a.Receiver) {
		a.Publisher.Close()
	}
}
