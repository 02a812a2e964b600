// Package cli implements the shelby command line.
package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driving"
	"github.com/shelby-as-a-service/shelby/internal/logger"
)

// annotationLight marks commands that only need the config store and the
// loader registry.
const annotationLight = "light"

var version = "dev"

// Services wired by Bootstrap.
var (
	ingestService  driving.IngestService
	indexService   driving.IndexService
	queryService   driving.QueryService
	loaderRegistry driving.LoaderRegistry
	scheduler      driving.Scheduler
	configStore    driven.ConfigStore

	watchDebounce time.Duration
	closeServices func() error
)

// Services are the application services the commands drive.
type Services struct {
	Ingest    driving.IngestService
	Index     driving.IndexService
	Query     driving.QueryService
	Loaders   driving.LoaderRegistry
	Scheduler driving.Scheduler
	Config    driven.ConfigStore

	// WatchDebounce groups bursts of change events (default: 2s).
	WatchDebounce time.Duration

	// Close releases the services' resources. May be nil.
	Close func() error
}

// Bootstrap builds the services for a config file. When full is false only
// Config and Loaders are required; the pipeline may be left unset.
type Bootstrap func(ctx context.Context, configPath string, full bool) (*Services, error)

var bootstrap Bootstrap

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "shelby",
	Short: "Document ingestion and retrieval for question answering",
	Long: `shelby loads documents from configured sources, splits them into token-bounded
chunks, embeds them and keeps a vector store in sync with a local catalog.

Domains group sources and map to one vector store namespace each. Describe
them in a YAML file and register them with "shelby index apply".`,
	SilenceUsage:       true,
	PersistentPreRunE:  initServices,
	PersistentPostRunE: closeAfterRun,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.shelby/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// SetVersion sets the version printed by "shelby version".
func SetVersion(v string) {
	version = v
}

// SetBootstrap registers the function that builds services once flags are parsed.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetServices installs already built services.
func SetServices(s *Services) {
	ingestService = s.Ingest
	indexService = s.Index
	queryService = s.Query
	loaderRegistry = s.Loaders
	scheduler = s.Scheduler
	configStore = s.Config
	watchDebounce = s.WatchDebounce
	closeServices = s.Close
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func initServices(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if bootstrap == nil {
		return nil
	}
	full := cmd.Annotations[annotationLight] == ""
	s, err := bootstrap(cmd.Context(), configPath, full)
	if err != nil {
		return err
	}
	SetServices(s)
	return nil
}

func closeAfterRun(_ *cobra.Command, _ []string) error {
	return Shutdown()
}

// Shutdown flushes logs and releases the services. It is safe to call twice.
func Shutdown() error {
	logger.Sync()
	if closeServices == nil {
		return nil
	}
	err := closeServices()
	closeServices = nil
	return err
}

// light marks a command as not needing the ingestion pipeline.
func light() map[string]string {
	return map[string]string{annotationLight: "true"}
}

// errNotConfigured reports a service the bootstrap did not provide.
func errNotConfigured(name string) error {
	return errors.New(name + " service not configured")
}

// ignoreCanceled treats an interrupted long-running command as a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
