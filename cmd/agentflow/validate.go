package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avi3tal/agentflow/internal/graph"
)

var validateCmd = &cobra.Command{
	Use:   "validate <spec-file>",
	Short: "Check a workflow spec for structural problems",
	Long:  `Loads a workflow spec (JSON or YAML) and reports every structural and semantic issue found: unknown node types, dangling edges, orphaned nodes, missing source references.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cycles, _ := cmd.Flags().GetBool("cycles")

		spec, err := graph.LoadSpecFile(args[0])
		if err != nil {
			return err
		}

		var opts []graph.ValidateOption
		if cycles {
			opts = append(opts, graph.WithCycleCheck())
		}
		issues := graph.Validate(spec, opts...)
		if len(issues) == 0 {
			fmt.Printf("%s: valid (%d nodes, %d edges)\n", spec.Name, len(spec.Nodes), len(spec.Edges))
			return nil
		}
		for _, issue := range issues {
			if issue.NodeID != "" {
				fmt.Printf("  [%s] %s (node %q)\n", issue.Type, issue.Message, issue.NodeID)
			} else {
				fmt.Printf("  [%s] %s\n", issue.Type, issue.Message)
			}
		}
		return fmt.Errorf("%d validation issue(s)", len(issues))
	},
}

func init() {
	validateCmd.Flags().Bool("cycles", false, "Also flag cycles in the graph")
	rootCmd.AddCommand(validateCmd)
}
