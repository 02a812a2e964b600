package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driving"
)

var (
	ingestForce   bool
	ingestReembed bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest documents into the vector store",
	Long: `Loads documents from sources, chunks and embeds them, and synchronises the
vector store and catalog. Sources updated within their update frequency are
skipped unless --force is given.`,
}

var ingestSourceCmd = &cobra.Command{
	Use:   "source <domain> <source>",
	Short: "Ingest one source",
	Args:  cobra.ExactArgs(2),
	RunE:  runIngestSource,
}

var ingestDomainCmd = &cobra.Command{
	Use:   "domain <domain>",
	Short: "Ingest the batch-update sources of a domain",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestDomain,
}

var ingestAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Ingest every domain",
	Args:  cobra.NoArgs,
	RunE:  runIngestAll,
}

func init() {
	ingestCmd.PersistentFlags().BoolVarP(&ingestForce, "force", "f", false, "ingest sources even when not due")
	ingestCmd.PersistentFlags().BoolVar(&ingestReembed, "reembed", false, "re-embed chunks whose content is unchanged")
	ingestCmd.AddCommand(ingestSourceCmd)
	ingestCmd.AddCommand(ingestDomainCmd)
	ingestCmd.AddCommand(ingestAllCmd)
	rootCmd.AddCommand(ingestCmd)
}

func ingestOptions() driving.IngestOptions {
	return driving.IngestOptions{Force: ingestForce, Reembed: ingestReembed}
}

func runIngestSource(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errNotConfigured("ingest")
	}

	cmd.Printf("Ingesting %s/%s...\n", args[0], args[1])
	summary, err := ingestService.IngestSource(cmd.Context(), args[0], args[1], ingestOptions())
	if summary != nil {
		printSummary(cmd.OutOrStdout(), summary)
	}
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	return nil
}

func runIngestDomain(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errNotConfigured("ingest")
	}

	cmd.Printf("Ingesting domain %s...\n", args[0])
	summary, err := ingestService.IngestDomain(cmd.Context(), args[0], ingestOptions())
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	return printDomainSummary(cmd.OutOrStdout(), summary)
}

func runIngestAll(cmd *cobra.Command, _ []string) error {
	if ingestService == nil {
		return errNotConfigured("ingest")
	}

	cmd.Println("Ingesting all domains...")
	summaries, err := ingestService.IngestAll(cmd.Context(), ingestOptions())
	var failed int
	for _, s := range summaries {
		if printDomainSummary(cmd.OutOrStdout(), s) != nil {
			failed++
		}
	}
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d domains had failing sources", failed, len(summaries))
	}
	return nil
}

// printDomainSummary prints every source pass and returns an error when a
// source failed fatally.
func printDomainSummary(w io.Writer, d *domain.DomainSummary) error {
	for _, s := range d.Sources {
		printSummary(w, s)
	}
	for _, err := range d.Errors {
		fmt.Fprintf(w, "  error: %v\n", err)
	}
	total := d.Totals()
	fmt.Fprintf(w, "Domain %s: %d documents, %d chunks upserted, %d deleted, %d failed\n",
		d.Domain, total.DocumentsProcessed, total.ChunksUpserted, total.ChunksDeleted, total.ChunksFailed)
	if len(d.Errors) > 0 {
		return fmt.Errorf("domain %s: %d sources failed", d.Domain, len(d.Errors))
	}
	return nil
}

func printSummary(w io.Writer, s *domain.IngestSummary) {
	name := s.Domain + "/" + s.Source
	if s.Skipped {
		fmt.Fprintf(w, "  %s: not due, skipped\n", name)
		return
	}
	fmt.Fprintf(w, "  %s: %d/%d documents, %d upserted, %d unchanged, %d deleted, %d failed (%s)\n",
		name, s.DocumentsProcessed, s.DocumentsLoaded,
		s.ChunksUpserted, s.ChunksUnchanged, s.ChunksDeleted, s.ChunksFailed,
		s.Duration.Round(time.Millisecond))
	if s.Tokens.Count > 0 {
		fmt.Fprintf(w, "    tokens: min %d, avg %d, max %d over %d chunks\n",
			s.Tokens.Min, s.Tokens.Avg(), s.Tokens.Max, s.Tokens.Count)
	}
	for _, f := range s.Failures {
		fmt.Fprintf(w, "    %s %s: %s\n", f.Stage, f.ID, f.Reason)
	}
}
