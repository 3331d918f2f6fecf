package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/cloo-solutions/voicerag/internal/catalog"
	"github.com/cloo-solutions/voicerag/internal/config"
	"github.com/cloo-solutions/voicerag/internal/database"
	"github.com/cloo-solutions/voicerag/internal/domain"
	"github.com/cloo-solutions/voicerag/internal/openai"
	"github.com/cloo-solutions/voicerag/internal/repository"
	"github.com/cloo-solutions/voicerag/internal/service"
	"github.com/cloo-solutions/voicerag/internal/storage"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// loadKnowledgeBase reads the configured knowledge base from a local
// file or an s3:// URI.
func loadKnowledgeBase(ctx context.Context, cfg *config.Config) (*catalog.KnowledgeBase, error) {
	if !cfg.KnowledgeBaseFromS3() {
		return catalog.Load(cfg.KnowledgeBasePath, cfg.MaxSkipRatio)
	}

	bucket, key, err := storage.ParseS3URI(cfg.KnowledgeBasePath)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, "invalid knowledge base location", err)
	}

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		UsePathStyle:    cfg.S3Endpoint != "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	data, err := s3Client.FetchObject(ctx, bucket, key)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, "failed to fetch knowledge base from S3", err)
	}
	return catalog.Parse(data, cfg.MaxSkipRatio)
}

// extractChunks loads the knowledge base and flattens it, returning the
// chunks together with their content fingerprint.
func extractChunks(ctx context.Context, cfg *config.Config) ([]domain.Chunk, string, error) {
	kb, err := loadKnowledgeBase(ctx, cfg)
	if err != nil {
		return nil, "", err
	}
	chunks := catalog.ExtractChunks(kb)
	return chunks, catalog.Fingerprint(chunks), nil
}

// connectPool opens and pings the database pool.
func connectPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

// newRetrievalIndex wires the retrieval index from configuration. The
// embedding client may be nil when no API key is configured; the index
// then stays uninitialized and serves keyword-only relevance.
func newRetrievalIndex(cfg *config.Config, pool *pgxpool.Pool) (*service.RetrievalIndex, *repository.ChunkRepository) {
	repo := repository.NewChunkRepository(pool)

	var embedder service.EmbeddingClient
	if cfg.HasOpenAI() {
		embedder = openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			EmbeddingModel:      cfg.EmbeddingModel,
			EmbeddingDimensions: cfg.EmbeddingDimensions,
		})
	}

	idx := service.NewRetrievalIndex(repo, embedder, service.IndexConfig{
		RelevanceThreshold: cfg.RelevanceThreshold,
		Keywords:           cfg.DomainKeywords,
		TopK:               cfg.TopK,
		QueryTimeout:       cfg.QueryTimeout,
		StalenessStrategy:  cfg.StalenessStrategy,
		EmbeddingModel:     cfg.EmbeddingModel,
	})
	return idx, repo
}

func runMigrations(databaseURL string) error {
	// golang-migrate drives a database/sql connection
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else {
		log.Printf("migrations: database at version %d", version)
	}

	return nil
}
