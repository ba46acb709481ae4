package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/ragsync/internal/cli"
	"github.com/cloo-solutions/ragsync/internal/cli/client"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "ragsync",
		Short: "ragsync - document ingestion and retrieval for RAG",
		Long: `ragsync ingests documents into a vector index and searches them by corpus.

Environment variables (flags take precedence):
  RAGSYNC_INDEX_BACKEND    qdrant, pgvector or memory (default: qdrant)
  RAGSYNC_QDRANT_HOST      Qdrant host (default: localhost)
  RAGSYNC_DATABASE_URL     PostgreSQL URL for the pgvector backend
  RAGSYNC_EMBED_BASE_URL   Embeddings endpoint (default: http://localhost:11434/v1)
  RAGSYNC_EMBED_MODEL      Embedding model (default: nomic-embed-text)`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.IngestCmd())
	rootCmd.AddCommand(client.QueryCmd())
	rootCmd.AddCommand(client.MCPCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if ok, err := cli.CheckHelpJSON(rootCmd, os.Args[1:], os.Stdout); ok {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
