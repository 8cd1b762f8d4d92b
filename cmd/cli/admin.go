package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/yurifrl/finbr/pkg/classify"
	"github.com/yurifrl/finbr/pkg/service"
	"github.com/yurifrl/finbr/pkg/store"
)

var (
	classifiedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	skippedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
	failedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Apply the company's classification rules to its stored transactions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		if err := requireCompany(cfg); err != nil {
			return err
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		stopOnError, _ := cmd.Flags().GetBool("stop-on-error")

		pg, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer pg.Close()

		processor := service.NewProcessor(logger, pg, nil, service.Options{
			HierarchyTTL: cfg.Hierarchy.TTL,
			Classify: classify.Options{
				StopOnError:         stopOnError || cfg.Classify.StopOnError,
				LargeBatchThreshold: cfg.Classify.LargeBatchThreshold,
				ProgressEvery:       cfg.Classify.ProgressEvery,
			},
		})
		report, err := processor.Classify(cmd.Context(), cfg.CompanyID, dryRun)
		if err != nil {
			return err
		}

		verbose, _ := cmd.Flags().GetBool("verbose")
		printReport(cmd.OutOrStdout(), report, verbose)
		if report.Failed() > 0 {
			return fmt.Errorf("%d transaction(s) failed to classify", report.Failed())
		}
		return nil
	},
}

func printReport(w io.Writer, report *classify.Report, verbose bool) {
	for _, res := range report.Results {
		line := fmt.Sprintf("%s | %-10s | %s", res.TransactionID, res.Status, res.RuleID)
		switch res.Status {
		case classify.StatusClassified:
			fmt.Fprintln(w, classifiedStyle.Render("+ "+line))
		case classify.StatusFailed:
			fmt.Fprintln(w, failedStyle.Render("! "+line+" | "+res.Reason))
		default:
			if verbose {
				fmt.Fprintln(w, skippedStyle.Render("= "+line+" | "+res.Reason))
			}
		}
	}

	mode := ""
	if report.DryRun {
		mode = " (dry-run)"
	}
	fmt.Fprintf(w, "\nClassify%s: %d classified, %d skipped, %d failed, %d write(s) [run %s]\n",
		mode, report.Classified(), report.Skipped(), report.Failed(), report.Writes, report.RunID)
}

var seedCmd = &cobra.Command{
	Use:   "seed <seed_file>",
	Short: "Load a commitment hierarchy and classification rules from YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		seed, err := store.LoadSeed(args[0])
		if err != nil {
			return err
		}

		pg, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := pg.Seed(cmd.Context(), seed); err != nil {
			return err
		}
		types, groups, commitments := seed.Hierarchy()
		fmt.Printf("Seeded %d type(s), %d group(s), %d commitment(s), %d rule(s)\n",
			len(types), len(groups), len(commitments), len(seed.ClassificationRules()))
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		pg, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := pg.Migrate(cmd.Context()); err != nil {
			return err
		}
		logger.Info("migrations applied")
		return nil
	},
}

func init() {
	classifyCmd.Flags().Bool("dry-run", false, "Compute matches without writing")
	classifyCmd.Flags().Bool("stop-on-error", false, "Abort the batch at the first failed write")
	classifyCmd.Flags().BoolP("verbose", "v", false, "Also list skipped transactions")
}
