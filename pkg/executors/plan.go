package executors

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/yurifrl/finbr/pkg/plan"
)

var (
	syncedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	invoiceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // blue
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

// Plan prints what Apply would do without writing anything.
func (e *Executor) Plan(ctx context.Context, p *plan.Plan) error {
	var missing, inSync int

	for _, entry := range p.Statements {
		e.logger.Debug("planning statement", "file", entry.File)

		sf, err := e.loadStatement(p, entry)
		if err != nil {
			return err
		}
		existing, err := e.dest.ExistingIDs(ctx, sf.stmt)
		if err != nil {
			return err
		}

		report := BuildReport(sf.stmt.Transactions, existing)
		e.logger.Debug("processing plan report", "total", len(report.Items), "in_sync", report.InSyncCount(), "to_add", report.MissingCount())

		fmt.Fprintln(e.out, headerStyle.Render(fmt.Sprintf("%s (%s, account %s) -> %s", entry.File, sf.stmt.BankName, sf.stmt.AccountID, e.dest.Name())))
		for _, m := range report.Items {
			line := fmt.Sprintf("%s | %-30s | %s | R$ %s", m.Local.PostedAt.Format("2006/01/02"), m.Local.Description(), m.Local.FITID, m.Local.SignedAmount().StringFixed(2))
			if m.Status == Synced {
				fmt.Fprintln(e.out, syncedStyle.Render("= "+line))
				continue
			}
			fmt.Fprintln(e.out, addedStyle.Render("+ "+line))
		}

		missing += report.MissingCount()
		inSync += report.InSyncCount()
	}

	invoices := 0
	for _, entry := range p.Invoices {
		inf, err := e.loadInvoice(p, entry)
		if err != nil {
			return err
		}
		if e.invoices == nil {
			e.logger.Warn("destination does not store invoices", "file", entry.File, "destination", e.dest.Name())
			continue
		}
		inv := inf.inv
		line := fmt.Sprintf("%s | NF %s | %-30s | %s | R$ %s", inv.IssuedAt.Format("2006/01/02"), inv.Number, inv.Emitter.Name, inv.AccessKey, inv.Totals.Invoice.StringFixed(2))
		fmt.Fprintln(e.out, invoiceStyle.Render("~ "+line))
		invoices++
	}

	switch {
	case missing == 0 && invoices == 0:
		fmt.Fprintf(e.out, "\nPlan: All %d transaction(s) are in sync\n", inSync)
	case invoices == 0:
		fmt.Fprintf(e.out, "\nPlan: %d transaction(s) will be added, %d already in sync\n", missing, inSync)
	default:
		fmt.Fprintf(e.out, "\nPlan: %d transaction(s) will be added, %d already in sync, %d invoice(s) will be stored unless already present\n", missing, inSync, invoices)
	}
	return nil
}
