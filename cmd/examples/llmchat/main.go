package main

import (
	"context"
	"fmt"
	"log"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/avi3tal/agentflow/pkg/workflow"
)

// One LLM call behind the full pipeline: input validation, generation,
// aggregation. Needs OPENAI_API_KEY in the environment or a .env file.
func main() {
	if os.Getenv("OPENAI_API_KEY") == "" {
		fmt.Println("set OPENAI_API_KEY to run this example")
		return
	}

	b := workflow.New("llm-chat").
		AddSource("main-llm", "llm", map[string]any{
			"model":              "gpt-4o-mini",
			"api_key_env":        "OPENAI_API_KEY",
			"cost_per_1k_tokens": 0.15,
		}).
		AddInput("intake", map[string]any{
			"validate": map[string]any{"required": true, "min_length": 3},
		}).
		AddLLM("answer", map[string]any{
			"source_id":       "main-llm",
			"system_prompt":   "You are a concise assistant. Answer in two sentences.",
			"prompt_template": "{user_input}",
			"temperature":     0.2,
		}).
		AddAggregator("final", map[string]any{
			"strategy":   "select",
			"select_key": "text_result",
		}).
		AddEdge("intake", "answer").
		AddEdge("answer", "final").
		SetStart("intake")

	question := "What is a directed acyclic graph?"
	if len(os.Args) > 1 {
		question = os.Args[1]
	}

	result, err := b.Run(context.Background(), map[string]any{"user_input": question})
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}

	fmt.Printf("question: %s\n", question)
	fmt.Printf("answer:   %v\n", result.State["final_output"])
	fmt.Printf("tokens:   %v  cost: %v\n", result.State["tokens_used"], result.State["cost"])
}
