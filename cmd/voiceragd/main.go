package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/voicerag/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "voiceragd",
		Short: "Catalog retrieval daemon and CLI",
		Long:  "Voicerag daemon for serving catalog retrieval and relevance queries, with commands to build and inspect the index",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.BuildCmd())
	rootCmd.AddCommand(cli.QueryCmd())
	rootCmd.AddCommand(cli.RelevanceCmd())
	rootCmd.AddCommand(cli.StatusCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
