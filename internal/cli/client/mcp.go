package client

import (
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/ragsync/internal/cli"
	"github.com/cloo-solutions/ragsync/internal/mcp"
	"github.com/cloo-solutions/ragsync/internal/telemetry"
)

// MCPCmd creates the mcp command.
func MCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve rag_search and rag_health over MCP stdio",
		Long: `Starts a Model Context Protocol server on stdin/stdout so agents can search
ingested corpora. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: runMCP,
	}

	cli.AddPipelineFlags(cmd)

	return cmd
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := telemetry.NewLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.Debug)

	pipeline, err := cli.NewPipeline(ctx, cfg, logger, cli.PipelineOptions{})
	if err != nil {
		return err
	}
	defer pipeline.Close()

	server, err := mcp.NewServer(mcp.Ports{
		Query:         pipeline.Query,
		Health:        pipeline.Health,
		DefaultCorpus: cfg.Corpus,
	})
	if err != nil {
		return err
	}

	logger.Info("mcp server listening on stdio", "index", cfg.IndexBackend, "corpus", cfg.Corpus)
	return server.Run(ctx)
}
