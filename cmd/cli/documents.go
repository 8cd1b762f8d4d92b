package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/yurifrl/finbr/pkg/models"
	"github.com/yurifrl/finbr/pkg/parser"
)

var ofxCmd = &cobra.Command{
	Use:     "ofx [flags] <file>",
	Aliases: []string{"statement"},
	Short:   "Parse a bank statement (OFX or Itaú export) and list its transactions",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		match, err := cliFilters.toFilterFunc()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		stmt, err := parser.New(logger).ParseStatement(data, args[0])
		if err != nil {
			return err
		}

		if dump, _ := cmd.Flags().GetBool("dump"); dump {
			_, err := pp.Println(stmt)
			return err
		}
		printStatement(cmd.OutOrStdout(), stmt, match)
		return nil
	},
}

var nfeCmd = &cobra.Command{
	Use:   "nfe [flags] <file>",
	Short: "Parse an NFe XML invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		inv, err := parser.New(logger).ParseInvoice(data)
		if err != nil {
			return err
		}

		if dump, _ := cmd.Flags().GetBool("dump"); dump {
			_, err := pp.Println(inv)
			return err
		}
		printInvoice(cmd.OutOrStdout(), inv)
		return nil
	},
}

func printStatement(w io.Writer, stmt *models.BankStatement, match func(models.BankTransaction) bool) {
	fmt.Fprintf(w, "%s (%s) branch %s account %s [%s, %s]\n", stmt.BankName, stmt.BankID, stmt.BranchID, stmt.AccountID, stmt.AccountType, stmt.Source)

	txs := make([]models.BankTransaction, len(stmt.Transactions))
	copy(txs, stmt.Transactions)
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].PostedAt.Before(txs[j].PostedAt) })

	shown := 0
	for _, t := range txs {
		if !match(t) {
			continue
		}
		fmt.Fprintf(w, "%s | %-40s | %-20s | R$ %12s\n", t.PostedAt.Format("2006/01/02"), t.Description(), t.FITID, t.SignedAmount().StringFixed(2))
		shown++
	}

	credits, debits := stmt.Totals()
	fmt.Fprintf(w, "\n%d of %d transaction(s) | credits R$ %s | debits R$ %s | balance R$ %s\n",
		shown, len(stmt.Transactions), credits.StringFixed(2), debits.StringFixed(2), stmt.Balance.StringFixed(2))
}

func printInvoice(w io.Writer, inv *models.Invoice) {
	fmt.Fprintf(w, "NF %s série %s | %s\n", inv.Number, inv.Series, inv.AccessKey)
	fmt.Fprintf(w, "issued %s | %s | CFOP %s\n", inv.IssuedAtRaw, inv.NatureOfOperation, inv.CFOP)
	fmt.Fprintf(w, "emitter   %s %s (%s/%s)\n", inv.Emitter.Document(), inv.Emitter.Name, inv.Emitter.Municipality, inv.Emitter.State)
	fmt.Fprintf(w, "recipient %s %s (%s/%s)\n", inv.Recipient.Document(), inv.Recipient.Name, inv.Recipient.Municipality, inv.Recipient.State)

	fmt.Fprintln(w)
	for _, item := range inv.Items {
		fmt.Fprintf(w, "%-10s | %-40s | %s x %s | R$ %s\n", item.Code, item.Description, item.Quantity.String(), item.UnitValue.StringFixed(2), item.TotalValue.StringFixed(2))
		for _, tax := range item.Taxes {
			fmt.Fprintf(w, "    %-6s %-10s base %s rate %s%% value %s\n", tax.Kind, tax.Variant, tax.Base.StringFixed(2), tax.Rate.String(), tax.Value.StringFixed(2))
		}
	}

	fmt.Fprintf(w, "\nproducts R$ %s | ICMS R$ %s | IPI R$ %s | total R$ %s\n",
		inv.Totals.Products.StringFixed(2), inv.Totals.ICMS.StringFixed(2), inv.Totals.IPI.StringFixed(2), inv.Totals.Invoice.StringFixed(2))
	for _, dup := range inv.Duplicatas {
		fmt.Fprintf(w, "installment %s due %s R$ %s\n", dup.Number, dup.DueDateRaw, dup.Amount.StringFixed(2))
	}
}

func init() {
	ofxCmd.Flags().Bool("dump", false, "Pretty-print the parsed statement")
	nfeCmd.Flags().Bool("dump", false, "Pretty-print the parsed invoice")
}
