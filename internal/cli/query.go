package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/voicerag/internal/config"
	"github.com/cloo-solutions/voicerag/internal/service"
	"github.com/spf13/cobra"
)

// QueryCmd returns the query command
func QueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <utterance>",
		Short: "Retrieve the chunks most similar to an utterance",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery,
	}

	cmd.Flags().IntP("top-k", "k", 0, "Number of chunks to return (0 uses the configured default)")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	utterance := strings.Join(args, " ")

	idx, cleanup, err := readyIndex(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	k, _ := cmd.Flags().GetInt("top-k")
	results := idx.Retrieve(ctx, utterance, k)
	if len(results) == 0 {
		fmt.Println("no relevant chunks found")
		return nil
	}

	for i, rc := range results {
		fmt.Printf("%d. [%s] %s (score %.4f)\n   %s\n", i+1, rc.Chunk.Category, rc.Chunk.ID, rc.Score, rc.Chunk.Text)
	}
	return nil
}

// RelevanceCmd returns the relevance command
func RelevanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relevance <utterance>",
		Short: "Classify whether an utterance is catalog-related",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRelevance,
	}
}

func runRelevance(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	utterance := strings.Join(args, " ")

	idx, cleanup, err := readyIndex(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if idx.IsRelevant(ctx, utterance) {
		fmt.Println("relevant")
	} else {
		fmt.Println("not relevant")
	}
	return nil
}

// readyIndex connects to the store, builds or loads the index, and
// returns a handle ready for queries plus a cleanup function.
func readyIndex(ctx context.Context) (*service.RetrievalIndex, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return nil, nil, fmt.Errorf("OPENAI_API_KEY is required for queries")
	}

	pool, err := connectPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	chunks, fingerprint, err := extractChunks(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}

	idx, _ := newRetrievalIndex(cfg, pool)
	if _, err := idx.BuildOrLoad(ctx, chunks, fingerprint, false); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return idx, pool.Close, nil
}
