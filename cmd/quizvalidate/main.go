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
		quizPath   = flag.String("quiz", "", "Quiz input file (overrides params)")
		answers    = flag.String("answers", "", "Answer key input file (overrides params)")
		outPath    = flag.String("validated-out", "", "Output file for validated questions (overrides params)")
		verbose    = flag.Bool("verbose", false, "Enable verbose debugging output")
	)
	flag.Parse()

	ragquiz.SetVerbose(*verbose)

	cfg, err := ragquiz.LoadConfig(*paramsPath, ragquiz.SectionValidate)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if *quizPath != "" {
		cfg.QuizPath = *quizPath
	}
	if *answers != "" {
		cfg.AnswersPath = *answers
	}
	if *outPath != "" {
		cfg.ValidatedPath = *outPath
	}

	quiz, key, err := ragquiz.ReadOutputs(cfg.QuizPath, cfg.AnswersPath)
	if err != nil {
		log.Fatalf("Failed to load quiz artifacts: %v", err)
	}

	runlog := ragquiz.NewRunLogger(cfg.DumpPromptPath, cfg.DumpPayloadPath, cfg.DumpResponsePath)
	defer runlog.Close()

	client := ragquiz.NewClient(cfg, runlog)

	var retriever *ragquiz.Retriever
	if !cfg.NoRAG && cfg.RAGPersist != "" {
		store, err := ragquiz.OpenVecStore(cfg.RAGPersist)
		if err != nil {
			log.Printf("[warn] Knowledge store unavailable (%v); validating without retrieval.", err)
		} else {
			defer store.Close()
			retriever = ragquiz.NewRetriever(store, client, cfg)
		}
	}

	var db *ragquiz.DB
	if cfg.DBPath != "" {
		db, err = ragquiz.OpenDB(cfg.DBPath)
		if err != nil {
			log.Printf("[warn] Could not open SQLite DB at %s: %v", cfg.DBPath, err)
		} else {
			defer db.Close()
			if err := db.CreateTables(); err != nil {
				log.Printf("[warn] Could not apply schema: %v", err)
				db = nil
			}
		}
	}

	validator, err := ragquiz.NewValidator(cfg, client, retriever, db)
	if err != nil {
		log.Fatalf("Failed to build validator: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	accepted, _, err := validator.Run(ctx, quiz, key)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Println("Interrupted.")
			os.Exit(130)
		}
		log.Fatalf("Validation failed: %v", err)
	}

	if err := ragquiz.WriteValidated(accepted, cfg.ValidatedPath); err != nil {
		log.Fatalf("Failed to write validated questions: %v", err)
	}
	log.Printf("Wrote %d validated questions -> %s", len(accepted), cfg.ValidatedPath)
}
