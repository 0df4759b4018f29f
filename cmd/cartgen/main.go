package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aevon-lab/matview/internal/generator"
)

func main() {
	url := flag.String("url", "http://localhost:8080", "Base URL of the matview service")
	count := flag.Int("count", 0, "Number of carts to generate (0 runs until interrupted)")
	interval := flag.Duration("interval", 100*time.Millisecond, "Pause between carts")
	seed := flag.Int64("seed", 0, "Random seed (0 uses the current time)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("[CartGen] Starting data generation", "url", *url, "count", *count, "interval", *interval)

	started := time.Now()
	stats := generator.Run(ctx, generator.New(*seed), generator.NewClient(*url, nil), *count, *interval)

	slog.Info("[CartGen] Finished",
		"carts", stats.Carts,
		"sent", stats.Sent,
		"duplicates", stats.Duplicates,
		"failed", stats.Failed,
		"elapsed", time.Since(started).Round(time.Millisecond))

	if stats.Failed > 0 {
		os.Exit(1)
	}
}
