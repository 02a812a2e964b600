package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

var watchDebounceFlag time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <domain> <source>",
	Short: "Re-ingest a source whenever it changes",
	Long: `Runs one ingestion pass, then re-ingests the source each time its loader
reports a change. Only loaders that can observe their origin (directory)
support watching. Stop with Ctrl+C.`,
	Args: cobra.ExactArgs(2),
	RunE: runWatch,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Ingest every domain on the configured interval",
	Args:  cobra.NoArgs,
	RunE:  runSchedule,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounceFlag, "debounce", 0, "quiet period before re-ingesting (default 2s)")
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errNotConfigured("ingest")
	}

	debounce := watchDebounceFlag
	if debounce <= 0 {
		debounce = watchDebounce
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	cmd.Printf("Watching %s/%s (Ctrl+C to stop)\n", args[0], args[1])
	err := ingestService.Watch(cmd.Context(), args[0], args[1], debounce,
		func(s *domain.IngestSummary, err error) {
			if s != nil {
				printSummary(cmd.OutOrStdout(), s)
			}
			if err != nil {
				cmd.Printf("  pass failed: %v\n", err)
			}
		})
	return ignoreCanceled(err)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	if scheduler == nil {
		return errNotConfigured("scheduler")
	}

	cmd.Println("Scheduler running (Ctrl+C to stop)")
	return ignoreCanceled(scheduler.Start(cmd.Context()))
}
