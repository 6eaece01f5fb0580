package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okenlabs/foreman/llm"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the known models and their aliases",
	RunE:  listModels,
}

func init() {
	modelsCmd.Flags().String("provider", "", "Only list models for this provider")
	rootCmd.AddCommand(modelsCmd)
}

func listModels(cmd *cobra.Command, args []string) error {
	provider, _ := cmd.Flags().GetString("provider")

	models := llm.ListModels(provider)
	if len(models) == 0 {
		return fmt.Errorf("no models known for provider %q", provider)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tPROVIDER\tCONTEXT\tALIASES")
	for _, m := range models {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", m.ID, m.Provider, m.ContextWindow, strings.Join(m.Aliases, ", "))
	}
	return w.Flush()
}
