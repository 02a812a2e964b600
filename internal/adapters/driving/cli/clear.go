package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

var clearYes bool

// confirmInput is where confirmation answers are read from.
var confirmInput io.Reader = os.Stdin

// isInteractive reports whether confirmInput is a terminal.
var isInteractive = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete indexed content",
	Long: `Deletes vectors and catalog rows bottom-up: chunks first, then documents,
then the source or domain itself. A unit is only removed once everything
beneath it is gone, so a failed clear can be re-run.`,
}

var clearSourceCmd = &cobra.Command{
	Use:   "source <domain> <source>",
	Short: "Delete a source and everything indexed from it",
	Args:  cobra.ExactArgs(2),
	RunE:  runClearSource,
}

var clearDomainCmd = &cobra.Command{
	Use:   "domain <domain>",
	Short: "Delete a domain with all its sources",
	Args:  cobra.ExactArgs(1),
	RunE:  runClearDomain,
}

func init() {
	clearCmd.PersistentFlags().BoolVarP(&clearYes, "yes", "y", false, "skip the confirmation prompt")
	clearCmd.AddCommand(clearSourceCmd)
	clearCmd.AddCommand(clearDomainCmd)
	rootCmd.AddCommand(clearCmd)
}

func runClearSource(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errNotConfigured("index")
	}
	if err := confirm(cmd, fmt.Sprintf("Delete source %s/%s and its vectors?", args[0], args[1])); err != nil {
		return err
	}
	return reportClear(cmd, indexService.ClearSource(cmd.Context(), args[0], args[1]))
}

func runClearDomain(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errNotConfigured("index")
	}
	if err := confirm(cmd, fmt.Sprintf("Delete domain %s, all its sources and vectors?", args[0])); err != nil {
		return err
	}
	return reportClear(cmd, indexService.ClearDomain(cmd.Context(), args[0]))
}

// confirm asks before a destructive operation unless --yes was given.
func confirm(cmd *cobra.Command, question string) error {
	if clearYes {
		return nil
	}
	if !isInteractive() {
		return errors.New("refusing to delete without confirmation; pass --yes")
	}

	cmd.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(confirmInput)
	answer, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer != "y" && answer != "yes" {
		return errors.New("aborted")
	}
	return nil
}

func reportClear(cmd *cobra.Command, results []domain.ClearResult) error {
	var failed int
	var vectors int
	for _, r := range results {
		vectors += r.VectorsDeleted
		if r.Err != nil {
			failed++
			cmd.Printf("  %s: %v\n", r.Unit, r.Err)
			continue
		}
		cmd.Printf("  %s: cleared (%d vectors)\n", r.Unit, r.VectorsDeleted)
	}
	cmd.Printf("Deleted %d vectors\n", vectors)
	if failed > 0 {
		return fmt.Errorf("%d of %d units could not be cleared; re-run to retry", failed, len(results))
	}
	return nil
}
