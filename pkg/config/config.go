package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Vector    VectorConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Scraper   ScraperConfig
	Processor ProcessorConfig
	Ingest    IngestConfig
	Webhook   WebhookConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type VectorConfig struct {
	// Provider selects the vector store backend: "local" (embedded bbolt
	// collection file) or "milvus".
	Provider       string
	Path           string
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	EmbeddingBatch int
	Temperature    float32
	TopP           float32
	MaxTokens      int
}

type ScraperConfig struct {
	Port          int
	ArxivBaseURL  string
	MaxResults    int
	LookbackDays  int
	JobStorePath  string
	RequestTimeout int
}

type ProcessorConfig struct {
	Port          int
	ChunkSize     int
	ChunkOverlap  int
	MaxFileSizeMB int
	JobStorePath  string
}

type IngestConfig struct {
	Directories  []string
	ChunkSize    int
	ChunkOverlap int
}

type WebhookConfig struct {
	BackendURL string
	Secret     string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/mlfolio")

	viper.SetEnvPrefix("MLFOLIO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/portfolio.db")

	viper.SetDefault("vector.provider", "local")
	viper.SetDefault("vector.path", "./data/vectors.db")
	viper.SetDefault("vector.endpoint", "localhost:19530")
	viper.SetDefault("vector.collectionName", "portfolio_docs")
	viper.SetDefault("vector.vectorDim", 768)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.embeddingBatch", 100)
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.topP", 0.9)
	viper.SetDefault("llm.maxTokens", 500)

	viper.SetDefault("scraper.port", 8001)
	viper.SetDefault("scraper.arxivBaseURL", "http://export.arxiv.org/api/query")
	viper.SetDefault("scraper.maxResults", 50)
	viper.SetDefault("scraper.lookbackDays", 7)
	viper.SetDefault("scraper.jobStorePath", "./data/scraper_jobs.db")
	viper.SetDefault("scraper.requestTimeout", 30)

	viper.SetDefault("processor.port", 8003)
	viper.SetDefault("processor.chunkSize", 1000)
	viper.SetDefault("processor.chunkOverlap", 200)
	viper.SetDefault("processor.maxFileSizeMB", 50)
	viper.SetDefault("processor.jobStorePath", "./data/processor_jobs.db")

	viper.SetDefault("ingest.directories", []string{"./docs"})
	viper.SetDefault("ingest.chunkSize", 500)
	viper.SetDefault("ingest.chunkOverlap", 50)

	viper.SetDefault("webhook.backendURL", "http://localhost:8000")
	viper.SetDefault("webhook.secret", "dev-secret-change-in-production")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
