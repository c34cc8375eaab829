package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/umadex/umadex-backend/internal/bypass"
	"github.com/umadex/umadex-backend/internal/config"
	"github.com/umadex/umadex-backend/internal/database"
	"github.com/umadex/umadex-backend/internal/logger"
	"github.com/umadex/umadex-backend/internal/repository"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	bypassRepo := repository.NewBypassRepository(pool)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Set Teacher Bypass Code ===")

	fmt.Print("Enter Teacher ID: ")
	rawID, _ := reader.ReadString('\n')
	teacherID, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		fmt.Println("Error: Teacher ID must be a UUID")
		os.Exit(1)
	}

	code, err := readSecret("Enter 4-digit code: ")
	if err != nil {
		fmt.Println("\nError reading code")
		os.Exit(1)
	}
	confirm, err := readSecret("Repeat code: ")
	if err != nil {
		fmt.Println("\nError reading code")
		os.Exit(1)
	}
	if code != confirm {
		fmt.Println("Error: codes do not match")
		os.Exit(1)
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	hash, err := bypass.HashPermanentCode(code, cfg.BcryptCost)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if err := bypassRepo.SetPermanentCode(ctx, teacherID, hash); err != nil {
		log.Fatal().Err(err).Str("teacher_id", teacherID.String()).Msg("Failed to set bypass code")
	}

	fmt.Printf("\nSuccess! Bypass code updated for teacher %s. Students enter it as !BYPASS-%s\n",
		teacherID, strings.Repeat("*", len(code)))
}

// readSecret prompts and reads a line without echoing it.
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
