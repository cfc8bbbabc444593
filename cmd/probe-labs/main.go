package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/sanctum-labs/sanctum/gemini"
)

func main() {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("GEMINI_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	gen, err := gemini.NewGenerator(ctx, apiKey)
	if err != nil {
		log.Fatalf("Failed to create generator: %v", err)
	}

	// Reframes: structured JSON output
	reframes, err := gen.GenerateReframes(ctx, "I am not good enough; nobody listens to me")
	if err != nil {
		log.Fatalf("Reframes failed: %v", err)
	}
	log.Printf("✅ Reframes (%d):", len(reframes))
	for _, r := range reframes {
		log.Printf("   • %s", r)
	}

	// Reading: structured JSON output with nested schema
	reading, err := gen.GenerateHolisticReading(ctx, "chakra", "tight shoulders, shallow breathing, trouble speaking up at work")
	if err != nil {
		log.Fatalf("Reading failed: %v", err)
	}
	log.Printf("✅ Reading: %s (%d components)", reading.Title, len(reading.Components))

	// Research: search grounding with citations
	answer, err := gen.ResearchTopic(ctx, "somatic approaches to performance anxiety")
	if err != nil {
		log.Fatalf("Research failed: %v", err)
	}
	log.Printf("✅ Research: %d chars, %d sources", len(answer.Text), len(answer.Sources))
	for _, s := range answer.Sources {
		log.Printf("   🔗 %s (%s)", s.Title, s.URI)
	}

	// Chat: deep-reasoning practitioner assistant
	text, err := gen.Chat(ctx, "How should I pace regression work with a client who dissociates?", nil)
	if err != nil {
		log.Fatalf("Chat failed: %v", err)
	}
	log.Printf("✅ Chat: %s", text)

	log.Println("Done")
}
