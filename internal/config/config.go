package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Staleness detection strategies for the persisted index.
const (
	StalenessCount       = "count"
	StalenessFingerprint = "fingerprint"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Knowledge base source: local path or s3://bucket/key URI.
	KnowledgeBasePath string  `envconfig:"KNOWLEDGE_BASE_PATH" default:"knowledge_base.json"`
	MaxSkipRatio      float64 `envconfig:"MAX_SKIP_RATIO" default:"0.25"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	RelevanceThreshold float32       `envconfig:"RELEVANCE_THRESHOLD" default:"0.35"`
	DomainKeywords     []string      `envconfig:"DOMAIN_KEYWORDS"`
	TopK               int           `envconfig:"TOP_K" default:"3"`
	QueryTimeout       time.Duration `envconfig:"QUERY_TIMEOUT" default:"5s"`

	StalenessStrategy string        `envconfig:"STALENESS_STRATEGY" default:"count"`
	StalenessInterval time.Duration `envconfig:"STALENESS_INTERVAL" default:"5m"`

	// Optional static bearer token for the HTTP surface.
	APIToken string `envconfig:"API_TOKEN"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("VOICERAG", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	switch cfg.StalenessStrategy {
	case StalenessCount, StalenessFingerprint:
	default:
		return nil, fmt.Errorf("invalid staleness strategy %q (expected %q or %q)",
			cfg.StalenessStrategy, StalenessCount, StalenessFingerprint)
	}

	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasS3() bool {
	return c.S3AccessKey != "" && c.S3SecretKey != ""
}

// KnowledgeBaseFromS3 reports whether the knowledge base is addressed
// as an S3 object rather than a local file.
func (c *Config) KnowledgeBaseFromS3() bool {
	return strings.HasPrefix(c.KnowledgeBasePath, "s3://")
}
