package main

import (
	"context"
	"fmt"
	"log"

	"github.com/avi3tal/agentflow/pkg/workflow"
)

// Fans one input out to two transform branches that run concurrently, then
// joins them in a concat aggregator. Runs entirely offline.
func main() {
	b := workflow.New("parallel-transforms").
		AddInput("intake", nil).
		AddInput("shout", map[string]any{
			"transform": "uppercase", "output_key": "shouted",
		}).
		AddInput("whisper", map[string]any{
			"transform": "lowercase", "output_key": "whispered",
		}).
		AddAggregator("combine", map[string]any{
			"strategy":         "concat",
			"source_keys":      []string{"shouted", "whispered"},
			"separator":        " | ",
			"include_metadata": false,
		}).
		AddFanOut("intake", "shout", "whisper").
		AddEdge("shout", "combine").
		AddEdge("whisper", "combine").
		SetStart("intake")

	result, err := b.Run(context.Background(), map[string]any{
		"user_input": "The Quick Brown Fox",
	})
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}

	fmt.Printf("combined: %v\n", result.State["final_output"])
	fmt.Printf("path:     %v\n", result.State["execution_path"])
	fmt.Printf("duration: %s\n", result.Duration)
}
