package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/mplp/internal/concerns"
)

var concernsCmd = &cobra.Command{
	Use:   "concerns [name]",
	Short: "Show the cross-cutting concern registry",
	Long: `List the nine cross-cutting concerns with the manager that implements
each one, its infrastructure category and its location.

With a name, show that concern only.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConcerns,
}

var (
	concernsJSON bool // Output as JSON
)

func init() {
	concernsCmd.Flags().BoolVar(&concernsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(concernsCmd)
}

func runConcerns(cmd *cobra.Command, args []string) error {
	mappings := concerns.Mappings()
	if len(args) == 1 {
		m, ok := concerns.Lookup(args[0])
		if !ok {
			return fmt.Errorf("unknown concern %q (known: %s)", args[0], strings.Join(concerns.Concerns(), ", "))
		}
		mappings = []concerns.Mapping{m}
	}

	out := cmd.OutOrStdout()
	if concernsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(mappings)
	}
	printConcerns(out, mappings)
	return nil
}

func printConcerns(w io.Writer, mappings []concerns.Mapping) {
	fmt.Fprintf(w, "%-16s %-28s %-16s %s\n", "CONCERN", "MANAGER", "CATEGORY", "LOCATION")
	fmt.Fprintln(w, strings.Repeat("─", 90))
	for _, m := range mappings {
		fmt.Fprintf(w, "%-16s %-28s %-16s %s\n", m.Concern, m.Manager, m.Category, m.Location)
	}
}
