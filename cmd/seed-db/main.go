package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/nusa-pos/internal/seed"
	"github.com/xenking/nusa-pos/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		catalogFile string
		migrateOnly bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog", "db/seed/catalog.json", "path to catalog JSON file, optionally .gz")
	flag.BoolVar(&migrateOnly, "migrate-only", false, "apply the schema without loading the catalog")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, migrateOnly); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile string, migrateOnly bool) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	if migrateOnly {
		return nil
	}

	slog.Info("reading catalog", slog.String("path", catalogFile))

	data, err := seed.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog")
	}

	slog.Info("upserting catalog",
		slog.Int("products", len(data.Products)),
		slog.Int("vouchers", len(data.Vouchers)),
		slog.Int("customers", len(data.Customers)),
	)

	if err := seed.Apply(ctx, postgres.NewStore(pool), data); err != nil {
		return errors.Wrap(err, "apply catalog")
	}

	return nil
}
