package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"

	"ragquiz"
)

func main() {
	var (
		paramsPath = flag.String("params", "params.yaml", "Path to params.yaml")
		count      = flag.Int("count", 0, "Number of questions to generate (overrides params)")
		quizPath   = flag.String("quiz", "", "Quiz output file (overrides params)")
		answers    = flag.String("answers", "", "Answer key output file (overrides params)")
		model      = flag.String("model", "", "Model name (overrides params)")
		noRAG      = flag.Bool("no-rag", false, "Disable retrieval")
		verbose    = flag.Bool("verbose", false, "Enable verbose debugging output")
	)
	flag.Parse()

	ragquiz.SetVerbose(*verbose)

	cfg, err := ragquiz.LoadConfig(*paramsPath, ragquiz.SectionPrepare)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if *count > 0 {
		cfg.Count = *count
	}
	if *quizPath != "" {
		cfg.QuizPath = *quizPath
	}
	if *answers != "" {
		cfg.AnswersPath = *answers
	}
	if *model != "" {
		cfg.Model = *model
	}
	if *noRAG {
		cfg.NoRAG = true
	}

	runlog := ragquiz.NewRunLogger(cfg.DumpPromptPath, cfg.DumpPayloadPath, cfg.DumpResponsePath)
	defer runlog.Close()

	client := ragquiz.NewClient(cfg, runlog)

	var retriever *ragquiz.Retriever
	if !cfg.NoRAG && cfg.RAGPersist != "" {
		store, err := ragquiz.OpenVecStore(cfg.RAGPersist)
		if err != nil {
			log.Printf("[warn] Knowledge store unavailable (%v); proceeding without retrieval.", err)
		} else {
			defer store.Close()
			retriever = ragquiz.NewRetriever(store, client, cfg)
		}
	}

	history := ragquiz.NewHistoryLog(cfg.HistoryPath)

	generator, err := ragquiz.NewGenerator(cfg, client, retriever, history)
	if err != nil {
		log.Fatalf("Failed to build generator: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	questions, err := generator.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Println("Interrupted.")
			os.Exit(130)
		}
		log.Fatalf("Quiz generation failed: %v", err)
	}

	if err := ragquiz.WriteOutputs(questions, cfg.QuizPath, cfg.AnswersPath); err != nil {
		log.Fatalf("Failed to write outputs: %v", err)
	}
	log.Printf("Wrote %d questions -> %s, answer key -> %s", len(questions), cfg.QuizPath, cfg.AnswersPath)
}
