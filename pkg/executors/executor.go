// Package executors previews and applies import plans.
package executors

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/finbr/pkg/archive"
	"github.com/yurifrl/finbr/pkg/models"
	"github.com/yurifrl/finbr/pkg/parser"
	"github.com/yurifrl/finbr/pkg/plan"
)

// Destination receives statement transactions. It is implemented by
// store.Destination and ynab.Destination.
type Destination interface {
	Name() string
	ExistingIDs(ctx context.Context, stmt *models.BankStatement) (map[string]bool, error)
	Create(ctx context.Context, stmt *models.BankStatement, txs []models.BankTransaction) (int, error)
}

type InvoiceStore interface {
	SaveInvoice(ctx context.Context, companyID string, inv *models.Invoice, archiveURI string) (string, bool, error)
}

// archiveRecorder is implemented by destinations that store the archive URI
// alongside the statement.
type archiveRecorder interface {
	SetArchiveURI(uri string)
}

type Options struct {
	// Archiver defaults to archive.Nop.
	Archiver archive.Archiver
	// Invoices is nil when the destination cannot hold invoices.
	Invoices  InvoiceStore
	CompanyID string
	// Out receives the plan preview. Defaults to stdout.
	Out io.Writer
}

type Executor struct {
	logger    *log.Logger
	parser    *parser.Parser
	dest      Destination
	archiver  archive.Archiver
	invoices  InvoiceStore
	companyID string
	out       io.Writer
}

func New(logger *log.Logger, p *parser.Parser, dest Destination, opts Options) *Executor {
	if opts.Archiver == nil {
		opts.Archiver = archive.Nop{}
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Executor{
		logger:    logger,
		parser:    p,
		dest:      dest,
		archiver:  opts.Archiver,
		invoices:  opts.Invoices,
		companyID: opts.CompanyID,
		out:       opts.Out,
	}
}

type statementFile struct {
	path string
	data []byte
	stmt *models.BankStatement
}

func (e *Executor) loadStatement(p *plan.Plan, entry plan.Statement) (*statementFile, error) {
	path, err := p.Path(entry.File)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement: %w", err)
	}

	stmt, err := e.parser.ParseStatement(data, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", entry.File, err)
	}
	if entry.Account != "" {
		stmt.AccountID = entry.Account
	}
	if stmt.AccountID == "" {
		return nil, fmt.Errorf("statement %s missing account", entry.File)
	}
	return &statementFile{path: path, data: data, stmt: stmt}, nil
}

type invoiceFile struct {
	path string
	data []byte
	inv  *models.Invoice
}

func (e *Executor) loadInvoice(p *plan.Plan, entry plan.Invoice) (*invoiceFile, error) {
	path, err := p.Path(entry.File)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read invoice: %w", err)
	}

	inv, err := e.parser.ParseInvoice(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", entry.File, err)
	}
	return &invoiceFile{path: path, data: data, inv: inv}, nil
}
