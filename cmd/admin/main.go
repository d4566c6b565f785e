package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/platformkit/content-catalog/pkg/catalog/admin"
	"github.com/platformkit/content-catalog/pkg/catalog/config"
)

const usage = `Content Catalog Admin CLI

Reconciles the object store against the document index. Reports blobs that
no document references (orphans) and documents whose blob is missing.

USAGE:
  admin sweep [options]

OPTIONS:
  --type=<name>      Sweep a single content type (default: all types)
  --delete-orphans   Delete orphaned blobs instead of only reporting them
  --grace=<dur>      Skip unreferenced blobs younger than this (default: 24h)

ENVIRONMENT VARIABLES:
  DATABASE_URL      "memory" or a PostgreSQL connection string
  STORAGE_URL       memory://, file:///path, s3://region or minio://host:port
  TYPES_FILE        Optional YAML file of content type definitions

  Configuration can be loaded from a .env file in the current directory.
  Real environment variables override .env file values.

EXAMPLES:
  # Dry-run sweep over every content type
  admin sweep

  # Sweep one type, deleting orphans older than a week
  admin sweep --type=documents --delete-orphans --grace=168h
`

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	if command == "help" || command == "--help" || command == "-h" {
		fmt.Print(usage)
		os.Exit(0)
	}

	if command != "sweep" {
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage)
		os.Exit(1)
	}

	flags := flag.NewFlagSet("sweep", flag.ExitOnError)
	contentType := flags.String("type", "", "content type to sweep")
	deleteOrphans := flags.Bool("delete-orphans", false, "delete orphaned blobs")
	grace := flags.Duration("grace", 24*time.Hour, "grace period for unreferenced blobs")
	if err := flags.Parse(os.Args[2:]); err != nil {
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(config.WithEnv(""))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	reconciler, err := cfg.BuildReconciler(logger)
	if err != nil {
		logger.Error("failed to build reconciler", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	opts := admin.SweepOptions{
		DeleteOrphans: *deleteOrphans,
		GracePeriod:   *grace,
	}

	var reports []*admin.Report
	if *contentType != "" {
		report, err := reconciler.Sweep(ctx, *contentType, opts)
		if err != nil {
			logger.Error("sweep failed", "content_type", *contentType, "error", err)
			os.Exit(1)
		}
		reports = []*admin.Report{report}
	} else {
		reports, err = reconciler.SweepAll(ctx, opts)
		if err != nil {
			logger.Error("sweep failed", "error", err)
			os.Exit(1)
		}
	}

	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		logger.Error("failed to encode report", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(data))

	// Missing blobs need manual attention; make the run visibly dirty for
	// cron and CI callers.
	for _, report := range reports {
		if len(report.MissingBlobs) > 0 {
			os.Exit(3)
		}
	}
}
