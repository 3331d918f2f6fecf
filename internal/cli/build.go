package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/voicerag/internal/config"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// BuildCmd returns the build command
func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build or refresh the retrieval index",
		Long:  "Extract chunks from the knowledge base, embed them, and persist the index. Reuses a fresh persisted build unless --force is given",
		RunE:  runBuild,
	}

	cmd.Flags().BoolP("force", "f", false, "Rebuild even if the persisted index is fresh")

	return cmd
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return fmt.Errorf("OPENAI_API_KEY is required to build the index")
	}

	pool, err := connectPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := runMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	chunks, fingerprint, err := extractChunks(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load knowledge base: %w", err)
	}
	log.Printf("extracted %d chunks from %s", len(chunks), cfg.KnowledgeBasePath)

	idx, _ := newRetrievalIndex(cfg, pool)

	bar := progressbar.Default(int64(len(chunks)), "embedding chunks")
	idx.SetProgress(func(done, total int) {
		_ = bar.Set(done)
	})

	force, _ := cmd.Flags().GetBool("force")
	result, err := idx.BuildOrLoad(ctx, chunks, fingerprint, force)
	if err != nil {
		return err
	}

	if result.Rebuilt {
		_ = bar.Finish()
		fmt.Printf("index rebuilt: %d chunks (fingerprint %.12s)\n", result.ChunkCount, result.Fingerprint)
	} else {
		fmt.Printf("index already fresh: %d chunks, nothing to do\n", result.ChunkCount)
	}
	return nil
}
