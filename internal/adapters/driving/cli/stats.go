package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats <domain>",
	Short: "Show indexed counts for a domain",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errNotConfigured("index")
	}

	stats, err := indexService.Stats(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	cmd.Printf("Domain:    %s\n", stats.Domain)
	cmd.Printf("Namespace: %s\n", stats.Namespace)
	cmd.Printf("Vectors:   %d\n", stats.Vectors)
	cmd.Printf("Chunks:    %d\n", stats.Chunks)
	if stats.Vectors != stats.Chunks {
		cmd.Println("Warning: vector count differs from catalog chunk count; a forced ingest will reconcile them.")
	}
	if len(stats.Sources) == 0 {
		return nil
	}

	cmd.Println()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tDOCUMENTS\tCHUNKS\tLAST UPDATED")
	for _, s := range stats.Sources {
		updated := "never"
		if !s.LastUpdated.IsZero() {
			updated = s.LastUpdated.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", s.Name, s.Documents, s.Chunks, updated)
	}
	return w.Flush()
}
