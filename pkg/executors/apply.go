package executors

import (
	"context"
	"fmt"

	"github.com/yurifrl/finbr/pkg/archive"
	"github.com/yurifrl/finbr/pkg/plan"
)

// ApplyResult counts what Apply wrote.
type ApplyResult struct {
	Created          int
	InSync           int
	InvoicesCreated  int
	InvoicesExisting int
}

// Apply creates the ToAdd transactions of every statement and stores every
// invoice. Raw files are archived before their rows are written.
func (e *Executor) Apply(ctx context.Context, p *plan.Plan) (*ApplyResult, error) {
	e.logger.Debug("applying plan", "statements", len(p.Statements), "invoices", len(p.Invoices))
	res := &ApplyResult{}

	for _, entry := range p.Statements {
		sf, err := e.loadStatement(p, entry)
		if err != nil {
			return res, err
		}
		existing, err := e.dest.ExistingIDs(ctx, sf.stmt)
		if err != nil {
			return res, err
		}

		report := BuildReport(sf.stmt.Transactions, existing)
		res.InSync += report.InSyncCount()

		toSync := report.TransactionsToSync()
		e.logger.Info("transactions to create", "count", len(toSync), "account_id", sf.stmt.AccountID)
		if len(toSync) == 0 {
			continue
		}

		uri, err := e.archiver.Put(ctx, e.companyID, archive.KindStatement, sf.path, sf.data)
		if err != nil {
			return res, fmt.Errorf("failed to archive %s: %w", entry.File, err)
		}
		if rec, ok := e.dest.(archiveRecorder); ok {
			rec.SetArchiveURI(uri)
		}

		n, err := e.dest.Create(ctx, sf.stmt, toSync)
		if err != nil {
			return res, err
		}
		res.Created += n
		e.logger.Info("created transactions", "count", n, "account_id", sf.stmt.AccountID, "destination", e.dest.Name())
	}

	for _, entry := range p.Invoices {
		if e.invoices == nil {
			e.logger.Warn("destination does not store invoices", "file", entry.File, "destination", e.dest.Name())
			continue
		}
		inf, err := e.loadInvoice(p, entry)
		if err != nil {
			return res, err
		}

		uri, err := e.archiver.Put(ctx, e.companyID, archive.KindInvoice, inf.path, inf.data)
		if err != nil {
			return res, fmt.Errorf("failed to archive %s: %w", entry.File, err)
		}
		id, created, err := e.invoices.SaveInvoice(ctx, e.companyID, inf.inv, uri)
		if err != nil {
			return res, fmt.Errorf("failed to save invoice %s: %w", entry.File, err)
		}
		if created {
			res.InvoicesCreated++
		} else {
			res.InvoicesExisting++
		}
		e.logger.Info("stored invoice", "id", id, "access_key", inf.inv.AccessKey, "created", created)
	}

	return res, nil
}
