package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okenlabs/foreman/agent"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the built-in tools exposed to the model",
	RunE:  listTools,
}

func init() {
	toolsCmd.Flags().Bool("json", false, "Print full definitions with parameter and return schemas")
	rootCmd.AddCommand(toolsCmd)
}

func listTools(cmd *cobra.Command, args []string) error {
	set := agent.DefaultToolSet(agent.ToolSetOptions{Browser: true})

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		type toolInfo struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			Parameters  map[string]any `json:"parameters"`
			Returns     map[string]any `json:"returns,omitempty"`
		}
		infos := make([]toolInfo, 0, len(set.Names()))
		for _, t := range set.List() {
			infos = append(infos, toolInfo{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
				Returns:     t.Returns,
			})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tDESCRIPTION")
	for _, t := range set.List() {
		fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Description)
	}
	return w.Flush()
}
