package client

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/ragsync/internal/cli"
	"github.com/cloo-solutions/ragsync/internal/domain"
	"github.com/cloo-solutions/ragsync/internal/service"
	"github.com/cloo-solutions/ragsync/internal/telemetry"
)

const maxPrintedText = 1000

// QueryResult is the JSON form of one hit.
type QueryResult struct {
	Score      float32 `json:"score"`
	SourcePath string  `json:"source_path"`
	Section    string  `json:"section,omitempty"`
	Text       string  `json:"text"`
	DocumentID string  `json:"doc_id"`
	ChunkID    string  `json:"chunk_id"`
}

// QueryCmd creates the query command.
func QueryCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search a corpus",
		Long:  "Embeds the query and prints the most similar chunks of the corpus, best first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args[0], topK)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", service.DefaultTopK, "Maximum number of results")
	cli.AddPipelineFlags(cmd)

	return cmd
}

func runQuery(cmd *cobra.Command, text string, topK int) error {
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

	hits, err := pipeline.Query.Query(ctx, cfg.Corpus, text, topK)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	outputJSON, _ := cmd.Flags().GetBool("output")
	return printHits(cmd.OutOrStdout(), hits, outputJSON)
}

func printHits(w io.Writer, hits []domain.SearchHit, outputJSON bool) error {
	if outputJSON {
		results := make([]QueryResult, len(hits))
		for i, h := range hits {
			results[i] = QueryResult{
				Score:      h.Score,
				SourcePath: h.Payload.SourcePath,
				Section:    h.Payload.Section,
				Text:       h.Payload.Text,
				DocumentID: h.Payload.DocumentID,
				ChunkID:    h.ID,
			}
		}
		output, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(output))
		return nil
	}

	if len(hits) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	for i, h := range hits {
		text := h.Payload.Text
		if len(text) > maxPrintedText {
			text = text[:maxPrintedText]
		}
		fmt.Fprintf(w, "\n#%d score=%.4f %s#%s\n", i+1, h.Score, h.Payload.SourcePath, strings.TrimSpace(h.Payload.Section))
		fmt.Fprintln(w, strings.Repeat("-", 80))
		fmt.Fprintln(w, text)
	}
	return nil
}
