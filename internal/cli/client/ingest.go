package client

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/ragsync/internal/cli"
	"github.com/cloo-solutions/ragsync/internal/domain"
	"github.com/cloo-solutions/ragsync/internal/service"
	"github.com/cloo-solutions/ragsync/internal/telemetry"
)

// IngestCmd creates the ingest command.
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest documents into a corpus",
		Long: `Walks a file, directory or s3://bucket/prefix, converts every supported
document (.md, .txt, .docx, .html) to text, splits it into chunks, embeds them
and replaces the document's chunks in the corpus collection.

Per-document failures are reported and counted; the command only fails when the
pipeline cannot be set up.`,
		Args: cobra.NoArgs,
		RunE: runIngest,
	}

	cmd.Flags().String("path", "", "File, directory or s3://bucket/prefix to ingest (default $RAGSYNC_INGEST_ROOT)")
	cli.AddPipelineFlags(cmd)

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.IngestRoot == "" {
		return domain.Wrap(domain.ErrInvalidConfig, fmt.Errorf("--path is required"))
	}

	ctx := cmd.Context()
	logger := telemetry.NewLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.Debug)

	pipeline, err := cli.NewPipeline(ctx, cfg, logger, cli.PipelineOptions{Migrate: true})
	if err != nil {
		return err
	}
	defer pipeline.Close()

	src, err := pipeline.Source(ctx, cfg.IngestRoot)
	if err != nil {
		return err
	}

	outputJSON, _ := cmd.Flags().GetBool("output")
	out := cmd.OutOrStdout()

	req := service.IngestRequest{Corpus: cfg.Corpus}
	if !outputJSON {
		req.Progress = func(r service.DocumentResult) { printDocumentResult(out, r) }
	}

	summary, err := pipeline.Ingester(src).Run(ctx, req)
	if err != nil {
		return err
	}

	if outputJSON {
		output, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Fprintln(out, string(output))
		return nil
	}

	if summary.Discovered == 0 {
		fmt.Fprintf(out, "No matching files under %s\n", cfg.IngestRoot)
		return nil
	}
	printSummary(out, summary)
	return nil
}

func printDocumentResult(w io.Writer, r service.DocumentResult) {
	switch r.Status {
	case service.DocumentProcessed:
		fmt.Fprintf(w, "Upserted %d chunks from %s\n", r.Chunks, r.Path)
	case service.DocumentRemoved:
		fmt.Fprintf(w, "Removed %s (no text)\n", r.Path)
	case service.DocumentSkipped:
		fmt.Fprintf(w, "Skipped %s: %v\n", r.Path, r.Err)
	case service.DocumentFailed:
		fmt.Fprintf(w, "Failed %s: %v\n", r.Path, r.Err)
	}
}

func printSummary(w io.Writer, s *service.IngestSummary) {
	fmt.Fprintf(w, "\nCorpus %s (%s): %d processed, %d skipped, %d failed, %d removed, %d chunks in %s\n",
		s.Corpus, s.Collection, s.Processed, s.Skipped, s.Failed, s.Removed, s.Chunks, s.Duration.Round(time.Millisecond))
}
