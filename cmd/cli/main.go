package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/yurifrl/finbr/pkg/archive"
	"github.com/yurifrl/finbr/pkg/config"
	"github.com/yurifrl/finbr/pkg/store"
)

var (
	cliFilters filters
	cfgFile    string
)

var rootCmd = &cobra.Command{
	Use:          "finbr",
	Short:        "Import Brazilian bank statements and NFe invoices, classify transactions",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Show help when no subcommand is provided
		return cmd.Help()
	},
}

// setup loads configuration (config file + env + flag overrides) and the logger.
func setup(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	cfg, err := config.Build(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	return cfg, cfg.Logger("finbr-cli"), nil
}

func requireCompany(cfg *config.Config) error {
	if cfg.CompanyID == "" {
		return fmt.Errorf("company id required: pass --company or set company_id")
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (*store.Postgres, error) {
	if cfg.Secrets.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	return store.Open(ctx, logger, cfg.Secrets.DatabaseURL)
}

// openArchiver returns the GCS archive when a bucket is configured.
func openArchiver(ctx context.Context, cfg *config.Config, logger *log.Logger) (archive.Archiver, func(), error) {
	if cfg.Archive.Bucket == "" {
		return archive.Nop{}, func() {}, nil
	}
	gcs, err := archive.NewGCS(ctx, logger, cfg.Archive.Bucket, cfg.Archive.Prefix, cfg.Secrets.GoogleCredentials)
	if err != nil {
		return nil, nil, err
	}
	return gcs, func() {
		if err := gcs.Close(); err != nil {
			logger.Warn("failed to close storage client", "err", err)
		}
	}, nil
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("company", "", "Company id")

	// Filter flags (global)
	rootCmd.PersistentFlags().StringVar(&cliFilters.startDate, "start", "", "Start date (YYYY/MM/DD)")
	rootCmd.PersistentFlags().StringVar(&cliFilters.endDate, "end", "", "End date (YYYY/MM/DD)")
	rootCmd.PersistentFlags().Float64Var(&cliFilters.minAmount, "min", 0, "Minimum amount")
	rootCmd.PersistentFlags().Float64Var(&cliFilters.maxAmount, "max", 0, "Maximum amount")
	rootCmd.PersistentFlags().StringVar(&cliFilters.contains, "contains", "", "Filter by description (case insensitive)")

	rootCmd.AddCommand(ofxCmd, nfeCmd)
	rootCmd.AddCommand(planCmd, applyCmd, watchCmd, importCmd)
	rootCmd.AddCommand(classifyCmd, seedCmd, migrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
