package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"

	StoreLocal = "local"
	StoreS3    = "s3"
)

type ModelConfig struct {
	Provider          string `env:"MODEL_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey      string `env:"GEMINI_API_KEY"`
	GeminiBackend     string `env:"GEMINI_BACKEND" envDefault:"gemini"`
	GCPProject        string `env:"GCP_PROJECT"`
	GCPLocation       string `env:"GCP_LOCATION" envDefault:"us-central1"`
	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`
	ChatModel         string `env:"CHAT_MODEL"`
	ProModel          string `env:"PRO_MODEL"`
	SystemInstruction string `env:"SYSTEM_INSTRUCTION"`
}

type VideoConfig struct {
	PollInterval    time.Duration `env:"VIDEO_POLL_INTERVAL" envDefault:"10s"`
	PollTimeout     time.Duration `env:"VIDEO_POLL_TIMEOUT" envDefault:"20m"`
	FramesPerSecond float64       `env:"FRAMES_PER_SECOND" envDefault:"1"`
	FFmpegPath      string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath     string        `env:"FFPROBE_PATH" envDefault:"ffprobe"`
}

type QueueConfig struct {
	// RabbitMQURL selects the RabbitMQ transport; empty keeps jobs in process.
	RabbitMQURL       string `env:"RABBITMQ_URL"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY" envDefault:"2"`
}

type StoreConfig struct {
	Kind              string `env:"ARTIFACT_STORE" envDefault:"local"`
	Dir               string `env:"ARTIFACT_DIR" envDefault:"./artifacts"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	Bucket            string `env:"ARTIFACT_BUCKET" envDefault:"spark-artifacts"`
}

type Config struct {
	APIPort string `env:"API_PORT" envDefault:"8001"`

	Model ModelConfig
	Video VideoConfig
	Queue QueueConfig
	Store StoreConfig
}

// Load reads the configuration from the environment. Call cmd.LoadEnvFile
// first to pick up a dotenv file.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if cfg.Store.Kind == StoreS3 && cfg.Store.S3EndpointURL != "" && (cfg.Store.S3AccessKeyID == "" || cfg.Store.S3SecretAccessKey == "") {
		slog.Warn("S3_ENDPOINT_URL is set but AWS_ACCESS_KEY_ID or AWS_SECRET_ACCESS_KEY are missing, using anonymous access")
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Model.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderMock:
	default:
		return fmt.Errorf("invalid MODEL_PROVIDER '%s'", c.Model.Provider)
	}

	switch c.Store.Kind {
	case StoreLocal, StoreS3:
	default:
		return fmt.Errorf("invalid ARTIFACT_STORE '%s'", c.Store.Kind)
	}

	if c.Video.PollInterval <= 0 {
		return fmt.Errorf("VIDEO_POLL_INTERVAL must be positive, got %v", c.Video.PollInterval)
	}
	if c.Video.PollTimeout < 0 {
		return fmt.Errorf("VIDEO_POLL_TIMEOUT must not be negative, got %v", c.Video.PollTimeout)
	}
	if c.Video.FramesPerSecond <= 0 {
		return fmt.Errorf("FRAMES_PER_SECOND must be positive, got %v", c.Video.FramesPerSecond)
	}
	if c.Queue.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.Queue.WorkerConcurrency)
	}
	return nil
}
