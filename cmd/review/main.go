// cmd/review — runs one auto-review sweep over every registered agent and
// exits. Meant for cron or a systemd timer; the server itself never
// transitions agent status.
//
// Usage:
//
//	NODE_ENV=production JWT_SECRET=... go run ./cmd/review
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/agoramesh/agora/internal/config"
	"github.com/agoramesh/agora/internal/registry/repository"
	"github.com/agoramesh/agora/internal/registry/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const sweepTimeout = 5 * time.Minute

func main() {
	_ = godotenv.Load() // missing .env is fine

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "review: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	reviews := service.NewReviewService(
		repository.NewAgentRepository(db),
		repository.NewStatsRepository(db),
		repository.NewFeedbackRepository(db),
		repository.NewFraudRepository(db),
		cfg.IsProduction(),
		logger,
	)

	summary, err := reviews.AutoReview(ctx)
	if err != nil {
		return fmt.Errorf("auto-review sweep: %w", err)
	}

	fmt.Printf("scanned %d agents: %d quarantined, %d banned, %d reactivated\n",
		summary.Scanned, summary.Quarantined, summary.Banned, summary.Reactivated)
	return nil
}
