package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/bid-front/internal"
	"github.com/dgellow/bid-front/internal/config"
	"github.com/dgellow/bid-front/internal/log"
)

var BuildVersion = "dev"

func printValidation(result *config.ValidationResult) {
	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			fmt.Printf("  - %s: %s\n", err.Path, err.Message)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			fmt.Printf("  - %s: %s\n", warn.Path, warn.Message)
		}
	}

	fmt.Println()
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Println("Result: PASS")
	case len(result.Errors) == 0:
		fmt.Println("Result: FAIL (warnings present)")
	default:
		fmt.Println("Result: FAIL")
	}
}

func main() {
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	validate := flag.Bool("validate", false, "validate the environment configuration and exit")
	printConfig := flag.Bool("print-config", false, "print the resolved configuration (secrets redacted) and exit")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	if *printConfig {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			log.LogError("Failed to encode config: %v", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	result := config.Validate(&cfg)
	if *validate {
		printValidation(result)
		if len(result.Errors) > 0 || len(result.Warnings) > 0 {
			os.Exit(1)
		}
		return
	}
	if err := result.Err(); err != nil {
		log.LogError("Invalid configuration: %v", err)
		os.Exit(1)
	}
	for _, warn := range result.Warnings {
		log.LogWarnWithFields("main", warn.Message, map[string]any{
			"setting": warn.Path,
		})
	}

	log.LogInfoWithFields("main", "Starting bid-front", map[string]any{
		"version": BuildVersion,
	})

	ctx := context.Background()
	bidFront, err := internal.NewBidFront(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create bid-front: %v", err)
		os.Exit(1)
	}

	if err := bidFront.Run(); err != nil {
		log.LogError("Server stopped with error: %v", err)
		os.Exit(1)
	}
}
