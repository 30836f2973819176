package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avi3tal/agentflow/internal/graph"
)

var graphCmd = &cobra.Command{
	Use:     "viz <spec-file>",
	Aliases: []string{"graph"},
	Short:   "Render a workflow spec as a Mermaid diagram",
	Long:    `Prints a Mermaid flowchart of the workflow's nodes, edges and queues on stdout. Paste the output into any Mermaid renderer to inspect the topology.`,
	Args:    cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		spec, err := graph.LoadSpecFile(args[0])
		if err != nil {
			return err
		}
		fmt.Println(graph.Mermaid(spec))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
