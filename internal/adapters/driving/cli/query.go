package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shelby-as-a-service/shelby/internal/core/ports/driving"
)

var (
	queryTopK    int
	queryDocType string
	queryJSON    bool
)

var queryCmd = &cobra.Command{
	Use:   "query <domain> <text...>",
	Short: "Retrieve the chunks closest to a question",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default 5)")
	queryCmd.Flags().StringVar(&queryDocType, "doc-type", "", "only match chunks of this doc_type")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(queryCmd)
}

// queryResult is the JSON form of a hit.
type queryResult struct {
	Rank    int     `json:"rank"`
	Score   float64 `json:"score"`
	Title   string  `json:"title"`
	URI     string  `json:"uri"`
	DocType string  `json:"doc_type,omitempty"`
	Content string  `json:"content"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errNotConfigured("query")
	}

	text := strings.Join(args[1:], " ")
	docs, err := queryService.Query(cmd.Context(), driving.QueryRequest{
		Domain:  args[0],
		Text:    text,
		TopK:    queryTopK,
		DocType: queryDocType,
	})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		results := make([]queryResult, 0, len(docs))
		for _, d := range docs {
			results = append(results, queryResult{
				Rank:    d.Rank,
				Score:   d.Score,
				Title:   d.Title,
				URI:     d.URI,
				DocType: d.DocType,
				Content: d.Content,
			})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(docs) == 0 {
		cmd.Printf("No results for: %s\n", text)
		return nil
	}
	for _, d := range docs {
		cmd.Printf("%d. %s (%.3f)\n", d.Rank, d.Title, d.Score)
		if d.URI != "" {
			cmd.Printf("   %s\n", d.URI)
		}
		cmd.Printf("   %s\n\n", preview(d.Content, 200))
	}
	return nil
}

// preview collapses whitespace and truncates to n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
