package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/voicerag/internal/config"
	"github.com/cloo-solutions/voicerag/internal/repository"
	"github.com/spf13/cobra"
)

// StatusCmd returns the status command
func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the persisted index build metadata",
		RunE:  runStatus,
	}

	cmd.Flags().Bool("chunks", false, "List every stored chunk ID and category")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := connectPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := repository.NewChunkRepository(pool)

	meta, err := repo.Meta(ctx)
	if err != nil {
		return fmt.Errorf("failed to read index metadata: %w", err)
	}
	if meta == nil {
		fmt.Println("no index build recorded")
		return nil
	}

	stored, err := repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count stored chunks: %w", err)
	}

	fmt.Printf("chunks recorded:  %d\n", meta.ChunkCount)
	fmt.Printf("chunks stored:    %d\n", stored)
	fmt.Printf("fingerprint:      %s\n", meta.Fingerprint)
	fmt.Printf("embedding model:  %s\n", meta.EmbeddingModel)
	fmt.Printf("built at:         %s\n", meta.BuiltAt.Format(time.RFC3339))
	if stored != meta.ChunkCount {
		fmt.Println("warning: stored chunk count does not match recorded build, next startup will rebuild")
	}

	listChunks, _ := cmd.Flags().GetBool("chunks")
	if listChunks {
		chunks, err := repo.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list chunks: %w", err)
		}
		fmt.Println()
		for _, c := range chunks {
			fmt.Printf("%-14s %s\n", c.ID, c.Category)
		}
	}
	return nil
}
