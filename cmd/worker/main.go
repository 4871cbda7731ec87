/**
 * Supply-List Worker - Main Entry Point
 *
 * Turns scanned school supply lists into structured records:
 * - asynq consumer for the Redis-backed job queue
 * - OCR through Google Document AI or a local Tesseract install
 * - Gemini extraction of school, school year, levels and textbooks
 * - Standardization against a human-reviewed PostgreSQL knowledge base
 * - Optional Qdrant similarity index over saved textbooks (VoyageAI embeddings)
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(".env.supplylist"); err != nil {
		log.Printf("Warning: .env.supplylist not found, using system environment variables")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
