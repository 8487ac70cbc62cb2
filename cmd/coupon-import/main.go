// Command coupon-import bulk-loads JSON-lines coupon files into the catalog.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/coupon-selector/internal/domain/coupon"
	"github.com/xenking/coupon-selector/internal/importer"
	"github.com/xenking/coupon-selector/internal/storage/memory"
	"github.com/xenking/coupon-selector/internal/storage/postgres"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coupon-import FILE...",
		Short: "Import coupons from JSON-lines files",
		Long: `Reads one coupon JSON object per line from each FILE (gzip when the name
ends in .gz), reports codes that appear in more than one file and appends
every coupon to the catalog. Existing codes are counted as duplicates.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runImport,
	}

	cmd.Flags().String("database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	cmd.Flags().Bool("dry-run", false, "Import into an in-memory catalog and only print the report")
	cmd.Flags().Bool("strict", false, "Abort on the first line that fails to decode")
	cmd.Flags().Bool("verbose", false, "Log every skipped coupon")

	return cmd
}

func runImport(cmd *cobra.Command, paths []string) error {
	databaseURL, _ := cmd.Flags().GetString("database-url")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	strict, _ := cmd.Flags().GetBool("strict")
	verbose, _ := cmd.Flags().GetBool("verbose")

	lg, err := newLogger(verbose)
	if err != nil {
		return errors.Wrap(err, "create logger")
	}
	defer func() { _ = lg.Sync() }()

	ctx := cmd.Context()
	files, err := importer.ReadFiles(ctx, lg, paths, importer.Options{Strict: strict})
	if err != nil {
		return errors.Wrap(err, "read files")
	}

	catalog, closeCatalog, err := openCatalog(ctx, databaseURL, dryRun)
	if err != nil {
		return err
	}
	defer closeCatalog()

	rep, err := importer.Import(ctx, lg, catalog, files)
	if err != nil {
		return errors.Wrap(err, "import")
	}

	lg.Info("Import finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("files", rep.Files),
		zap.Int("read", rep.Read),
		zap.Int("created", rep.Created),
		zap.Int("duplicates", rep.Duplicates),
		zap.Int("invalid", rep.Invalid),
		zap.Int("conflicts", len(rep.Conflicts)),
	)
	return nil
}

func openCatalog(ctx context.Context, databaseURL string, dryRun bool) (coupon.Catalog, func(), error) {
	if dryRun {
		return memory.NewCatalog(), func() {}, nil
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return nil, nil, errors.New("database URL is required: set --database-url or DATABASE_URL, or use --dry-run")
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect to database")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "run migrations")
	}
	return postgres.NewCouponRepository(pool), pool.Close, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
