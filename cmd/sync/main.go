// Package main provides the film catalog sync service: a one-shot CLI that
// reads the PostgreSQL content schema end to end and projects it into the
// search engine's movies index via the Direct, Via-person and Via-genre
// pipelines.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/filmcatalog/pges-sync/internal/config"
	"github.com/filmcatalog/pges-sync/internal/pipeline"
	"github.com/filmcatalog/pges-sync/internal/retry"
	"github.com/filmcatalog/pges-sync/internal/search"
	"github.com/filmcatalog/pges-sync/internal/storage"
)

const (
	version = "1.0.0-dev"
	name    = "pges-sync"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration file")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Config errors are reported before a logger exists: Validate/Load
		// failures are almost always a typo in the file, not worth a JSON
		// log line.
		fmt.Fprintf(os.Stderr, "%s: configuration error: %v\n", name, err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	logger.Info("starting sync run",
		slog.String("service", name),
		slog.String("version", version),
		slog.String("database", cfg.Postgres.MaskedDSN()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy := retry.Policy{
		StartSleep:  cfg.Backoff.StartSleepTime(),
		Factor:      cfg.Backoff.Factor,
		BorderSleep: cfg.Backoff.BorderSleepTime(),
	}

	session, err := storage.Open(ctx, cfg.Postgres.DSN(), policy)
	if err != nil {
		logger.Error("failed to open database session", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer session.Close()

	searchURL := fmt.Sprintf("http://%s:%d", cfg.Elastic.Host, cfg.Elastic.Port)
	sink := search.NewClient(searchURL, 0, policy)

	// Cursor persistence across restarts is out of scope: every run starts
	// from the bottom of time and re-derives the current catalog state.
	start := time.Unix(0, 0)

	if err := pipeline.RunAll(ctx, session, sink, start); err != nil {
		if errors.Is(err, storage.ErrFatalQuery) {
			logger.Error("sync run aborted on fatal query error", slog.String("error", err.Error()))
			os.Exit(1)
		}

		logger.Error("sync run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("sync run completed")
}
