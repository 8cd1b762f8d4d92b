package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/yurifrl/finbr/pkg/classify"
	"github.com/yurifrl/finbr/pkg/models"
)

// Postgres is the Store backed by the hosted Postgres database. Every query is
// scoped by company id.
type Postgres struct {
	logger *log.Logger
	db     *bun.DB
}

// Open connects using a postgres:// DSN and pings the server.
func Open(ctx context.Context, logger *log.Logger, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url is empty")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewPostgres(logger, bun.NewDB(sqldb, pgdialect.New())), nil
}

func NewPostgres(logger *log.Logger, db *bun.DB) *Postgres {
	return &Postgres{logger: logger, db: db}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// Migrate creates the tables that do not exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, model := range tableModels {
		if _, err := p.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}
	p.logger.Debug("migrated tables", "count", len(tableModels))
	return nil
}

func (p *Postgres) SaveStatement(ctx context.Context, companyID string, stmt *models.BankStatement, archiveURI string) (int, error) {
	if stmt.AccountID == "" {
		return 0, fmt.Errorf("statement has no account id")
	}

	head := &statementRow{
		ID:          uuid.NewString(),
		CompanyID:   companyID,
		BankID:      stmt.BankID,
		BankName:    stmt.BankName,
		BranchID:    stmt.BranchID,
		AccountID:   stmt.AccountID,
		AccountType: stmt.AccountType,
		Currency:    stmt.Currency,
		Source:      stmt.Source,
		StartDate:   stmt.StartDate,
		EndDate:     stmt.EndDate,
		Balance:     stmt.Balance,
		BalanceDate: stmt.BalanceDate,
		ArchiveURI:  archiveURI,
	}

	rows := make([]transactionRow, 0, len(stmt.Transactions))
	for _, tx := range stmt.Transactions {
		row := newTransactionRow(companyID, stmt.AccountID, head.ID, tx)
		row.ID = uuid.NewString()
		rows = append(rows, row)
	}

	var inserted int
	err := p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(head).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert statement: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		res, err := insertMissing(tx, &rows).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert transactions: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}

	p.logger.Debug("saved statement", "company", companyID, "account", stmt.AccountID, "inserted", inserted, "total", len(rows))
	return inserted, nil
}

// insertMissing skips transactions already stored for the same account.
func insertMissing(db bun.IDB, rows *[]transactionRow) *bun.InsertQuery {
	return db.NewInsert().
		Model(rows).
		On("CONFLICT (company_id, account_id, fitid) DO NOTHING")
}

func (p *Postgres) ExistingFITIDs(ctx context.Context, companyID, accountID string) (map[string]bool, error) {
	var fitids []string
	err := p.db.NewSelect().
		Model((*transactionRow)(nil)).
		Column("fitid").
		Where("company_id = ?", companyID).
		Where("account_id = ?", accountID).
		Scan(ctx, &fitids)
	if err != nil {
		return nil, fmt.Errorf("failed to list fitids: %w", err)
	}

	out := make(map[string]bool, len(fitids))
	for _, id := range fitids {
		out[id] = true
	}
	return out, nil
}

func (p *Postgres) SaveInvoice(ctx context.Context, companyID string, inv *models.Invoice, archiveURI string) (string, bool, error) {
	if inv.AccessKey == "" {
		return "", false, fmt.Errorf("invoice has no access key")
	}

	var existing string
	err := p.db.NewSelect().
		Model((*invoiceRow)(nil)).
		Column("id").
		Where("company_id = ?", companyID).
		Where("access_key = ?", inv.AccessKey).
		Scan(ctx, &existing)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", false, fmt.Errorf("failed to look up invoice: %w", err)
	}

	head, items, taxes, installments := invoiceRows(companyID, inv, archiveURI)
	err = p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(head).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert invoice: %w", err)
		}
		if len(items) > 0 {
			if _, err := tx.NewInsert().Model(&items).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert invoice items: %w", err)
			}
		}
		if len(taxes) > 0 {
			if _, err := tx.NewInsert().Model(&taxes).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert invoice taxes: %w", err)
			}
		}
		if len(installments) > 0 {
			if _, err := tx.NewInsert().Model(&installments).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert installments: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}

	p.logger.Debug("saved invoice", "company", companyID, "key", inv.AccessKey, "items", len(items))
	return head.ID, true, nil
}

func invoiceRows(companyID string, inv *models.Invoice, archiveURI string) (*invoiceRow, []invoiceItemRow, []invoiceTaxRow, []installmentRow) {
	head := &invoiceRow{
		ID:                uuid.NewString(),
		CompanyID:         companyID,
		AccessKey:         inv.AccessKey,
		Number:            inv.Number,
		Series:            inv.Series,
		IssuedAtRaw:       inv.IssuedAtRaw,
		IssuedAt:          inv.IssuedAt,
		NatureOfOperation: inv.NatureOfOperation,
		CFOP:              inv.CFOP,
		Emitter:           inv.Emitter,
		Recipient:         inv.Recipient,
		Totals:            inv.Totals,
		RawXML:            inv.RawXML,
		ArchiveURI:        archiveURI,
	}
	if inv.Fatura != nil {
		head.FaturaNumber = inv.Fatura.Number
		head.FaturaOriginal = inv.Fatura.OriginalValue
		head.FaturaDiscount = inv.Fatura.Discount
		head.FaturaNet = inv.Fatura.NetValue
	}

	var (
		items        []invoiceItemRow
		taxes        []invoiceTaxRow
		installments []installmentRow
	)
	for i, it := range inv.Items {
		item := invoiceItemRow{
			ID:          uuid.NewString(),
			InvoiceID:   head.ID,
			Position:    i + 1,
			Code:        it.Code,
			Description: it.Description,
			NCM:         it.NCM,
			CFOP:        it.CFOP,
			Unit:        it.Unit,
			Quantity:    it.Quantity,
			UnitValue:   it.UnitValue,
			TotalValue:  it.TotalValue,
		}
		items = append(items, item)
		for _, t := range it.Taxes {
			taxes = append(taxes, invoiceTaxRow{
				ID:      uuid.NewString(),
				ItemID:  item.ID,
				Kind:    string(t.Kind),
				Variant: t.Variant,
				Base:    t.Base,
				Rate:    t.Rate,
				Value:   t.Value,
			})
		}
	}
	for _, d := range inv.Duplicatas {
		installments = append(installments, installmentRow{
			ID:         uuid.NewString(),
			InvoiceID:  head.ID,
			Number:     d.Number,
			DueDateRaw: d.DueDateRaw,
			DueDate:    d.DueDate,
			Amount:     d.Amount,
		})
	}
	return head, items, taxes, installments
}

func (p *Postgres) ListRules(ctx context.Context, companyID string) ([]models.ClassificationRule, error) {
	var rows []ruleRow
	if err := rulesQuery(p.db, &rows, companyID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	out := make([]models.ClassificationRule, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.rule())
	}
	return out, nil
}

func rulesQuery(db bun.IDB, rows *[]ruleRow, companyID string) *bun.SelectQuery {
	return db.NewSelect().
		Model(rows).
		Where("company_id = ?", companyID).
		Order("position ASC", "created_at ASC")
}

func (p *Postgres) ListTransactions(ctx context.Context, companyID string, onlyUnclassified bool) ([]classify.Candidate, error) {
	var rows []transactionRow
	q := p.db.NewSelect().
		Model(&rows).
		Where("company_id = ?", companyID).
		Order("posted_at ASC", "fitid ASC")
	if onlyUnclassified {
		q = q.Where("commitment_id IS NULL")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	out := make([]classify.Candidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.candidate())
	}
	return out, nil
}

// Classify never overwrites an existing classification.
func (p *Postgres) Classify(ctx context.Context, transactionID string, rule models.ClassificationRule) error {
	res, err := classifyQuery(p.db, transactionID, rule, time.Now()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to classify transaction %s: %w", transactionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: unclassified transaction %s", ErrNotFound, transactionID)
	}
	return nil
}

func classifyQuery(db bun.IDB, transactionID string, rule models.ClassificationRule, at time.Time) *bun.UpdateQuery {
	return db.NewUpdate().
		Model((*transactionRow)(nil)).
		Set("type_id = ?", rule.Target.TypeID).
		Set("group_id = ?", rule.Target.GroupID).
		Set("commitment_id = ?", rule.Target.CommitmentID).
		Set("rule_id = ?", rule.ID).
		Set("classified_at = ?", at).
		Where("id = ?", transactionID).
		Where("commitment_id IS NULL")
}

func (p *Postgres) Types(ctx context.Context, companyID string) ([]models.CommitmentType, error) {
	var rows []typeRow
	if err := p.visible(p.db.NewSelect().Model(&rows), companyID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list commitment types: %w", err)
	}
	out := make([]models.CommitmentType, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.CommitmentType{ID: r.ID, Name: r.Name, CompanyID: r.CompanyID, Universal: r.Universal})
	}
	return out, nil
}

func (p *Postgres) Groups(ctx context.Context, companyID string) ([]models.CommitmentGroup, error) {
	var rows []groupRow
	if err := p.visible(p.db.NewSelect().Model(&rows), companyID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list commitment groups: %w", err)
	}
	out := make([]models.CommitmentGroup, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.CommitmentGroup{ID: r.ID, Name: r.Name, TypeID: r.TypeID, CompanyID: r.CompanyID, Universal: r.Universal})
	}
	return out, nil
}

func (p *Postgres) Commitments(ctx context.Context, companyID string) ([]models.Commitment, error) {
	var rows []commitmentRow
	if err := p.visible(p.db.NewSelect().Model(&rows), companyID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list commitments: %w", err)
	}
	out := make([]models.Commitment, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Commitment{ID: r.ID, Name: r.Name, GroupID: r.GroupID, TypeID: r.TypeID, CompanyID: r.CompanyID, Universal: r.Universal})
	}
	return out, nil
}

// visible restricts a hierarchy query to the company's rows plus universal ones.
func (p *Postgres) visible(q *bun.SelectQuery, companyID string) *bun.SelectQuery {
	return q.
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("company_id = ?", companyID).WhereOr("universal = TRUE")
		}).
		Order("name ASC")
}

// Seed upserts the hierarchy and rules of a seed file. Rows are keyed by
// owner and id, so two companies may reuse the same slugs.
func (p *Postgres) Seed(ctx context.Context, seed *Seed) error {
	types, groups, commitments := seed.Hierarchy()

	var (
		typeRows       []typeRow
		groupRows      []groupRow
		commitmentRows []commitmentRow
		ruleRows       []ruleRow
	)
	for _, t := range types {
		typeRows = append(typeRows, typeRow{ID: t.ID, Name: t.Name, CompanyID: t.CompanyID, Universal: t.Universal})
	}
	for _, g := range groups {
		groupRows = append(groupRows, groupRow{ID: g.ID, Name: g.Name, TypeID: g.TypeID, CompanyID: g.CompanyID, Universal: g.Universal})
	}
	for _, c := range commitments {
		commitmentRows = append(commitmentRows, commitmentRow{ID: c.ID, Name: c.Name, GroupID: c.GroupID, TypeID: c.TypeID, CompanyID: c.CompanyID, Universal: c.Universal})
	}
	for _, r := range seed.ClassificationRules() {
		ruleRows = append(ruleRows, ruleRow{
			ID:           r.ID,
			CompanyID:    r.CompanyID,
			Name:         r.Name,
			Contains:     r.Contains,
			TypeID:       r.Target.TypeID,
			GroupID:      r.Target.GroupID,
			CommitmentID: r.Target.CommitmentID,
			Position:     r.Position,
		})
	}

	return p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		upserts := []struct {
			model interface{}
			set   string
			n     int
		}{
			{&typeRows, "name = EXCLUDED.name", len(typeRows)},
			{&groupRows, "name = EXCLUDED.name, type_id = EXCLUDED.type_id", len(groupRows)},
			{&commitmentRows, "name = EXCLUDED.name, group_id = EXCLUDED.group_id, type_id = EXCLUDED.type_id", len(commitmentRows)},
			{&ruleRows, "name = EXCLUDED.name, contains = EXCLUDED.contains, type_id = EXCLUDED.type_id, group_id = EXCLUDED.group_id, commitment_id = EXCLUDED.commitment_id, position = EXCLUDED.position", len(ruleRows)},
		}
		for _, u := range upserts {
			if u.n == 0 {
				continue
			}
			if _, err := upsertOwned(tx, u.model, u.set).Exec(ctx); err != nil {
				return fmt.Errorf("failed to seed %T: %w", u.model, err)
			}
		}
		return nil
	})
}

func upsertOwned(db bun.IDB, model interface{}, set string) *bun.InsertQuery {
	return db.NewInsert().
		Model(model).
		On("CONFLICT (company_id, id) DO UPDATE").
		Set(set)
}

var _ Store = (*Postgres)(nil)
