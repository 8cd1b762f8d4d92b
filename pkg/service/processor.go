// Package service ties parsing, archiving, persistence and classification
// together for the CLI and the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/finbr/pkg/archive"
	"github.com/yurifrl/finbr/pkg/classify"
	"github.com/yurifrl/finbr/pkg/hierarchy"
	"github.com/yurifrl/finbr/pkg/models"
	"github.com/yurifrl/finbr/pkg/parser"
	"github.com/yurifrl/finbr/pkg/store"
)

type Options struct {
	HierarchyTTL time.Duration
	Classify     classify.Options
}

type Processor struct {
	logger   *log.Logger
	parser   *parser.Parser
	store    store.Store
	archiver archive.Archiver
	opts     Options

	mu          sync.Mutex
	hierarchies map[string]*hierarchy.Repository
}

func NewProcessor(logger *log.Logger, s store.Store, archiver archive.Archiver, opts Options) *Processor {
	if archiver == nil {
		archiver = archive.Nop{}
	}
	return &Processor{
		logger:      logger,
		parser:      parser.New(logger),
		store:       s,
		archiver:    archiver,
		opts:        opts,
		hierarchies: make(map[string]*hierarchy.Repository),
	}
}

func (p *Processor) Parser() *parser.Parser {
	return p.parser
}

type StatementResult struct {
	Statement  *models.BankStatement `json:"statement"`
	Inserted   int                   `json:"inserted"`
	ArchiveURI string                `json:"archive_uri,omitempty"`
}

// ImportStatement parses a statement and, when persist is set, archives the
// raw file and stores the transactions not yet present.
func (p *Processor) ImportStatement(ctx context.Context, companyID, filename string, data []byte, persist bool) (*StatementResult, error) {
	stmt, err := p.parser.ParseStatement(data, filename)
	if err != nil {
		return nil, err
	}
	res := &StatementResult{Statement: stmt}
	if !persist {
		return res, nil
	}
	if companyID == "" {
		return nil, fmt.Errorf("company id required to persist")
	}

	res.ArchiveURI, err = p.archiver.Put(ctx, companyID, archive.KindStatement, filename, data)
	if err != nil {
		return nil, fmt.Errorf("failed to archive statement: %w", err)
	}
	res.Inserted, err = p.store.SaveStatement(ctx, companyID, stmt, res.ArchiveURI)
	if err != nil {
		return nil, fmt.Errorf("failed to save statement: %w", err)
	}
	p.logger.Info("imported statement", "file", filename, "account", stmt.AccountID, "parsed", len(stmt.Transactions), "inserted", res.Inserted)
	return res, nil
}

type InvoiceResult struct {
	Invoice    *models.Invoice `json:"invoice"`
	ID         string          `json:"id,omitempty"`
	Created    bool            `json:"created"`
	ArchiveURI string          `json:"archive_uri,omitempty"`
}

func (p *Processor) ImportInvoice(ctx context.Context, companyID, filename string, data []byte, persist bool) (*InvoiceResult, error) {
	inv, err := p.parser.ParseInvoice(data)
	if err != nil {
		return nil, err
	}
	res := &InvoiceResult{Invoice: inv}
	if !persist {
		return res, nil
	}
	if companyID == "" {
		return nil, fmt.Errorf("company id required to persist")
	}

	res.ArchiveURI, err = p.archiver.Put(ctx, companyID, archive.KindInvoice, filename, data)
	if err != nil {
		return nil, fmt.Errorf("failed to archive invoice: %w", err)
	}
	res.ID, res.Created, err = p.store.SaveInvoice(ctx, companyID, inv, res.ArchiveURI)
	if err != nil {
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}
	p.logger.Info("imported invoice", "file", filename, "access_key", inv.AccessKey, "created", res.Created)
	return res, nil
}

// ProcessDirectory imports every statement and invoice directly under dir.
// Files of unknown type are skipped; a failing file is logged and does not
// stop the others.
func (p *Processor) ProcessDirectory(ctx context.Context, companyID, dir string) (imported int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("error reading directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		if err := p.processEntry(ctx, companyID, filepath.Join(dir, entry.Name())); err != nil {
			p.logger.Error("failed to process entry", "file", entry.Name(), "error", err)
			continue
		}
		imported++
	}
	return imported, nil
}

func (p *Processor) processEntry(ctx context.Context, companyID, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fileType := parser.DetectType(path, data)
	p.logger.Debug("processing file", "path", path, "type", fileType)
	switch {
	case fileType == parser.NFe:
		_, err = p.ImportInvoice(ctx, companyID, path, data, true)
	case fileType.IsStatement():
		_, err = p.ImportStatement(ctx, companyID, path, data, true)
	default:
		return fmt.Errorf("%w: %s", parser.ErrUnknownFileType, filepath.Base(path))
	}
	return err
}

// Hierarchy returns the cached repository of a company.
func (p *Processor) Hierarchy(companyID string) *hierarchy.Repository {
	p.mu.Lock()
	defer p.mu.Unlock()
	repo, ok := p.hierarchies[companyID]
	if !ok {
		repo = hierarchy.NewRepository(p.logger, p.store, companyID, p.opts.HierarchyTTL)
		p.hierarchies[companyID] = repo
	}
	return repo
}

// Classify runs the company's rules, in storage order, over its stored
// transactions. Rules whose target is not a usable commitment are left out of
// the matcher.
func (p *Processor) Classify(ctx context.Context, companyID string, dryRun bool) (*classify.Report, error) {
	rules, err := p.store.ListRules(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	repo := p.Hierarchy(companyID)
	usable := make([]models.ClassificationRule, 0, len(rules))
	for _, rule := range rules {
		if err := repo.ValidateTarget(ctx, rule.Target); err != nil {
			if !errors.Is(err, hierarchy.ErrInvalidTarget) {
				return nil, fmt.Errorf("failed to load hierarchy: %w", err)
			}
			p.logger.Warn("ignoring rule", "rule", rule.ID, "error", err)
			continue
		}
		usable = append(usable, rule)
	}

	candidates, err := p.store.ListTransactions(ctx, companyID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	opts := p.opts.Classify
	opts.DryRun = dryRun
	job := classify.NewJob(p.logger, classify.NewMatcher(usable), p.store, opts)
	return job.Run(ctx, candidates), nil
}

// Seed writes a seed file and drops the cached hierarchies it affects.
func (p *Processor) Seed(ctx context.Context, seed *store.Seed) error {
	if err := p.store.Seed(ctx, seed); err != nil {
		return fmt.Errorf("failed to seed: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for companyID, repo := range p.hierarchies {
		if seed.Universal || companyID == seed.CompanyID {
			repo.Invalidate()
		}
	}
	return nil
}
