package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/avi3tal/agentflow/internal/graph"
	"github.com/avi3tal/agentflow/internal/registry"
	"github.com/avi3tal/agentflow/internal/state"
)

var runCmd = &cobra.Command{
	Use:   "run <spec-file>",
	Short: "Execute a workflow spec locally",
	Long:  `Validates, compiles and runs a workflow spec in-process, then prints the final state as JSON on stdout. Source credentials are read from the environment (a .env file is honored).`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		statePath, _ := cmd.Flags().GetString("state")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		maxSteps, _ := cmd.Flags().GetInt("max-steps")
		log := newLogger(cmd)

		spec, err := graph.LoadSpecFile(args[0])
		if err != nil {
			return err
		}
		if issues := graph.Validate(spec); len(issues) > 0 {
			for _, issue := range issues {
				fmt.Fprintf(os.Stderr, "  [%s] %s\n", issue.Type, issue.Message)
			}
			return fmt.Errorf("spec has %d validation issue(s)", len(issues))
		}

		initial, err := initialState(input, statePath)
		if err != nil {
			return err
		}

		reg := registry.New(registry.WithLogger(log))
		wf, err := graph.Compile(spec, reg, graph.WithLogger(log))
		if err != nil {
			return errors.Wrap(err, "compile")
		}

		result, err := wf.Run(context.Background(), initial,
			graph.WithTimeout(timeout),
			graph.WithMaxSteps(maxSteps),
		)
		if err != nil {
			if partial, ok := graph.PartialState(err); ok {
				printJSON(map[string]any{
					"status":      "error",
					"error":       err.Error(),
					"final_state": partial,
				})
			}
			return err
		}

		printJSON(map[string]any{
			"status":            "success",
			"execution_id":      result.ExecutionID,
			"execution_time_ms": result.Duration.Milliseconds(),
			"final_state":       result.State,
		})
		return nil
	},
}

func init() {
	runCmd.Flags().String("input", "", "Value for the user_input state field")
	runCmd.Flags().String("state", "", "Path to a JSON file with the full initial state")
	runCmd.Flags().Duration("timeout", 60*time.Second, "Execution timeout")
	runCmd.Flags().Int("max-steps", 100, "Maximum step invocations before aborting")
	rootCmd.AddCommand(runCmd)
}

// initialState assembles the run's initial state from the --state file and
// the --input shorthand. --input wins when both name user_input.
func initialState(input, statePath string) (map[string]any, error) {
	initial := map[string]any{}
	if statePath != "" {
		data, err := os.ReadFile(statePath)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &initial); err != nil {
			return nil, errors.Wrap(err, "parse state file")
		}
	}
	if input != "" {
		initial[state.KeyUserInput] = input
	}
	return initial, nil
}

func printJSON(payload any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
