package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron"
	"github.com/spf13/cobra"

	"github.com/yurifrl/finbr/pkg/config"
	"github.com/yurifrl/finbr/pkg/executors"
	"github.com/yurifrl/finbr/pkg/parser"
	"github.com/yurifrl/finbr/pkg/plan"
	"github.com/yurifrl/finbr/pkg/service"
	"github.com/yurifrl/finbr/pkg/store"
	"github.com/yurifrl/finbr/pkg/ynab"
)

// newExecutor wires the plan's destination. Invoices go to Postgres whenever a
// database is configured, even for a YNAB plan.
func newExecutor(ctx context.Context, cfg *config.Config, logger *log.Logger, p *plan.Plan) (*executors.Executor, func(), error) {
	closers := []func(){}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	companyID := p.CompanyID
	if companyID == "" {
		companyID = cfg.CompanyID
	}

	var pg *store.Postgres
	if p.Destination == plan.DestinationPostgres || cfg.Secrets.DatabaseURL != "" {
		var err error
		if pg, err = openStore(ctx, cfg, logger); err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = pg.Close() })
	}

	arch, closeArchive, err := openArchiver(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, closeArchive)

	opts := executors.Options{Archiver: arch, CompanyID: companyID}
	if pg != nil && companyID != "" {
		opts.Invoices = pg
	}

	var dest executors.Destination
	switch p.Destination {
	case plan.DestinationYNAB:
		token := p.Token(cfg.Secrets.YNABToken)
		if token == "" {
			cleanup()
			return nil, nil, fmt.Errorf("no YNAB token: set YNAB_ACCESS_TOKEN or ynab.token_env")
		}
		dest = ynab.New(logger, token, p.YNAB.BudgetID, p.YNAB.Accounts)
	default:
		dest = store.NewDestination(pg, companyID)
	}

	return executors.New(logger, parser.New(logger), dest, opts), cleanup, nil
}

var planCmd = &cobra.Command{
	Use:   "plan <plan_file>",
	Short: "Preview a YAML plan of statements and invoices (dry-run)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		p, err := plan.Load(args[0])
		if err != nil {
			return err
		}

		exec, cleanup, err := newExecutor(cmd.Context(), cfg, logger, p)
		if err != nil {
			return err
		}
		defer cleanup()

		fmt.Printf("Plan preview for %s\n", args[0])
		p.Print(cmd.OutOrStdout())
		fmt.Println()
		return exec.Plan(cmd.Context(), p)
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply <plan_file>",
	Short: "Create the missing transactions of a plan and store its invoices",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		p, err := plan.Load(args[0])
		if err != nil {
			return err
		}

		exec, cleanup, err := newExecutor(cmd.Context(), cfg, logger, p)
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := exec.Apply(cmd.Context(), p)
		if err != nil {
			return err
		}
		fmt.Printf("Apply complete: %d transaction(s) added, %d already in sync, %d invoice(s) stored, %d already present\n",
			res.Created, res.InSync, res.InvoicesCreated, res.InvoicesExisting)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <plan_file>",
	Short: "Apply a plan now and then on a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		singleRun, _ := cmd.Flags().GetBool("single-run")
		ctx := cmd.Context()

		// the plan file is re-read on every run so edits are picked up
		var mu sync.Mutex
		run := func() {
			mu.Lock()
			defer mu.Unlock()

			p, err := plan.Load(args[0])
			if err != nil {
				logger.Error("failed to load plan", "err", err)
				return
			}
			exec, cleanup, err := newExecutor(ctx, cfg, logger, p)
			if err != nil {
				logger.Error("failed to prepare plan", "err", err)
				return
			}
			defer cleanup()

			res, err := exec.Apply(ctx, p)
			if err != nil {
				logger.Error("apply failed", "err", err)
				return
			}
			logger.Info("apply complete", "created", res.Created, "in_sync", res.InSync, "invoices", res.InvoicesCreated)
		}

		run()
		if singleRun {
			return nil
		}

		c := cron.New()
		if err := c.AddFunc(cfg.Watch.Schedule, run); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cfg.Watch.Schedule, err)
		}
		logger.Info("watching plan", "file", args[0], "schedule", cfg.Watch.Schedule)
		c.Start()
		defer c.Stop()

		<-ctx.Done()
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <directory>",
	Short: "Import every statement and invoice in a directory into Postgres",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		if err := requireCompany(cfg); err != nil {
			return err
		}

		pg, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		arch, closeArchive, err := openArchiver(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer closeArchive()

		processor := service.NewProcessor(logger, pg, arch, service.Options{HierarchyTTL: cfg.Hierarchy.TTL})
		n, err := processor.ProcessDirectory(cmd.Context(), cfg.CompanyID, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d file(s) from %s\n", n, args[0])
		return nil
	},
}

func init() {
	watchCmd.Flags().Bool("single-run", false, "Apply once and exit (disable cron)")
	watchCmd.Flags().String("schedule", "", "Cron schedule, e.g. \"@every 30m\" (default from config)")
}
