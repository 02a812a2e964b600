package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/config/file"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage domains and sources",
	Long: `Register domains and sources from an index description, list what the
catalog holds and inspect the available loaders.`,
}

var indexApplyCmd = &cobra.Command{
	Use:   "apply <file.yaml>",
	Short: "Create or update domains from an index description",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexApply,
}

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List domains and their sources",
	Args:  cobra.NoArgs,
	RunE:  runIndexList,
}

var indexLoadersCmd = &cobra.Command{
	Use:         "loaders",
	Short:       "List loader kinds and their options",
	Args:        cobra.NoArgs,
	Annotations: light(),
	RunE:        runIndexLoaders,
}

func init() {
	indexCmd.AddCommand(indexApplyCmd)
	indexCmd.AddCommand(indexListCmd)
	indexCmd.AddCommand(indexLoadersCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexApply(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errNotConfigured("index")
	}

	domains, err := file.LoadIndexDescription(args[0])
	if err != nil {
		return err
	}
	if err := indexService.Apply(cmd.Context(), domains); err != nil {
		return fmt.Errorf("failed to apply index: %w", err)
	}

	for i := range domains {
		cmd.Printf("Applied domain %s (%d sources)\n", domains[i].Name, len(domains[i].Sources))
	}
	return nil
}

func runIndexList(cmd *cobra.Command, _ []string) error {
	if indexService == nil {
		return errNotConfigured("index")
	}

	domains, err := indexService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list domains: %w", err)
	}
	if len(domains) == 0 {
		cmd.Println("No domains configured. Run 'shelby index apply <file.yaml>' to add some.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOMAIN\tSOURCE\tLOADER\tDATABASE\tLAST UPDATED")
	for i := range domains {
		d := &domains[i]
		if len(d.Sources) == 0 {
			fmt.Fprintf(w, "%s\t-\t%s\t%s\t-\n", d.Name, orDash(d.Loader.Kind), orDash(d.Database))
			continue
		}
		for j := range d.Sources {
			s := &d.Sources[j]
			kind := s.Loader.Kind
			if kind == "" {
				kind = d.Loader.Kind
			}
			db := s.Database
			if db == "" {
				db = d.Database
			}
			updated := "never"
			if !s.LastUpdated.IsZero() {
				updated = s.LastUpdated.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.Name, s.Name, orDash(kind), orDash(db), updated)
		}
	}
	return w.Flush()
}

func runIndexLoaders(cmd *cobra.Command, _ []string) error {
	if loaderRegistry == nil {
		return errNotConfigured("loader registry")
	}

	for _, lt := range loaderRegistry.List() {
		cmd.Printf("%s - %s\n", lt.Kind, lt.Name)
		if lt.Description != "" {
			cmd.Printf("  %s\n", lt.Description)
		}
		if lt.CredentialEnv != "" {
			cmd.Printf("  Credentials: $%s\n", lt.CredentialEnv)
		}
		for _, k := range lt.ConfigKeys {
			var notes []string
			if k.Required {
				notes = append(notes, "required")
			}
			if k.Default != "" {
				notes = append(notes, "default "+k.Default)
			}
			line := fmt.Sprintf("    %-12s %s", k.Key, k.Description)
			if len(notes) > 0 {
				line += " (" + strings.Join(notes, ", ") + ")"
			}
			cmd.Println(line)
		}
		cmd.Println()
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
