package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/config/file"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and change configuration values",
	Long: `Keys use dot notation for nested tables, for example "ingest.sparse" or
"embedding.provider". Values are parsed as booleans, integers, durations or
comma-separated lists where they look like one.`,
}

var configGetCmd = &cobra.Command{
	Use:         "get <key>",
	Short:       "Print a configuration value",
	Args:        cobra.ExactArgs(1),
	Annotations: light(),
	RunE:        runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:         "set <key> <value>",
	Short:       "Set a configuration value",
	Args:        cobra.ExactArgs(2),
	Annotations: light(),
	RunE:        runConfigSet,
}

var configUnsetCmd = &cobra.Command{
	Use:         "unset <key>",
	Short:       "Remove a configuration value",
	Args:        cobra.ExactArgs(1),
	Annotations: light(),
	RunE:        runConfigUnset,
}

var configListCmd = &cobra.Command{
	Use:         "list",
	Short:       "List every configuration value",
	Args:        cobra.NoArgs,
	Annotations: light(),
	RunE:        runConfigList,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errNotConfigured("config")
	}

	v, ok := configStore.Get(args[0])
	if !ok {
		return fmt.Errorf("key %q is not set", args[0])
	}
	cmd.Println(formatValue(v))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errNotConfigured("config")
	}

	if err := configStore.Set(args[0], file.ParseValue(args[1])); err != nil {
		return fmt.Errorf("failed to set %s: %w", args[0], err)
	}
	cmd.Printf("Set %s in %s\n", args[0], configStore.Path())
	return nil
}

func runConfigUnset(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errNotConfigured("config")
	}

	if err := configStore.Unset(args[0]); err != nil {
		return fmt.Errorf("failed to unset %s: %w", args[0], err)
	}
	cmd.Printf("Removed %s\n", args[0])
	return nil
}

func runConfigList(cmd *cobra.Command, _ []string) error {
	if configStore == nil {
		return errNotConfigured("config")
	}

	keys := configStore.Keys()
	if len(keys) == 0 {
		cmd.Printf("No values set in %s\n", configStore.Path())
		return nil
	}
	for _, k := range keys {
		v, _ := configStore.Get(k)
		cmd.Printf("%s = %s\n", k, formatValue(v))
	}
	return nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return fmt.Sprintf("%q", t)
	default:
		return fmt.Sprint(v)
	}
}
