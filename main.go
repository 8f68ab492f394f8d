package main

import (
	"errors"
	"log"
	"os"

	"github.com/joho/godotenv"

	"zugferd/cmd"
	"zugferd/internal/config"
	"zugferd/internal/logger"
)

func main() {
	// Load environment variables; a missing .env is fine
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	log := logger.WithComponent("main")
	log.Debug().Msg("Starting ZUGFeRD Manager")

	cmd.Execute(cfg)
}
