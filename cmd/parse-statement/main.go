package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/parity/internal/logger"
	"github.com/dvloznov/parity/internal/parsing"
)

// Debug tool: parse a local statement file and print the normalized
// transactions as JSON, without touching any storage. Handy for checking
// what the Gemini parser extracts from a new bank's PDF layout.
func main() {
	log := logger.New()

	filePath := flag.String("file", "", "Path to local statement file (required)")
	fileType := flag.String("file-type", "pdf", "Statement file type: csv, xlsx or pdf")
	currency := flag.String("currency", "GBP", "Expected statement currency (ISO 4217)")
	geminiModel := flag.String("gemini-model", envOr("GEMINI_MODEL", "gemini-2.5-flash"), "Gemini model for PDF parsing")
	flag.Parse()

	if *filePath == "" {
		log.Fatal().Msg("Error: -file is required")
	}

	fileBytes, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to read file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	parser := parsing.ForFileType(*fileType, parsing.NewGeminiParser(*geminiModel))
	if parser == nil {
		log.Fatal().Str("file_type", *fileType).Msg("Unsupported file type")
	}

	txns, detected, err := parser.Parse(ctx, fileBytes, "local", *currency)
	if err != nil {
		log.Fatal().Err(err).Msg("Parse failed")
	}

	out, err := json.MarshalIndent(txns, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to marshal transactions")
	}

	fmt.Println(string(out))
	fmt.Fprintf(os.Stderr, "parsed %d transactions", len(txns))
	if detected != "" {
		fmt.Fprintf(os.Stderr, ", detected currency %s", detected)
	}
	fmt.Fprintln(os.Stderr)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
