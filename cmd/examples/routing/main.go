package main

import (
	"context"
	"fmt"
	"log"

	"github.com/avi3tal/agentflow/pkg/workflow"
)

// A support triage flow: a keyword router classifies the request and hands
// it to the matching team's aggregator. Runs entirely offline.
func main() {
	b := workflow.New("support-triage").
		AddInput("intake", map[string]any{
			"validate": map[string]any{"required": true},
		}).
		AddRouter("classify", map[string]any{
			"routes": []map[string]any{
				{"intent": "billing", "keywords": []string{"invoice", "charge", "refund"}},
				{"intent": "technical", "keywords": []string{"broken", "error", "crash"}},
			},
			"default_intent": "general",
		}).
		AddAggregator("billing", map[string]any{
			"strategy": "template", "template": "Billing team will review: {user_input}",
			"include_metadata": false,
		}).
		AddAggregator("technical", map[string]any{
			"strategy": "template", "template": "Filed a technical ticket for: {user_input}",
			"include_metadata": false,
		}).
		AddAggregator("general", map[string]any{
			"strategy": "template", "template": "Forwarded to general support: {user_input}",
			"include_metadata": false,
		}).
		AddEdge("intake", "classify").
		AddConditionalEdge("classify", []string{"billing", "technical", "general"}, "intent").
		SetStart("intake")

	requests := []string{
		"I was double charged on my last invoice",
		"The dashboard is broken after the update",
		"How do I change my username?",
	}

	for _, req := range requests {
		result, err := b.Run(context.Background(), map[string]any{"user_input": req})
		if err != nil {
			log.Fatalf("run failed: %v", err)
		}
		fmt.Printf("request: %s\n", req)
		fmt.Printf("  intent: %v\n", result.State["intent"])
		fmt.Printf("  answer: %v\n", result.State["final_output"])
		fmt.Printf("  path:   %v\n\n", result.State["execution_path"])
	}
}
