package store

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/yurifrl/finbr/pkg/classify"
	"github.com/yurifrl/finbr/pkg/models"
)

type statementRow struct {
	bun.BaseModel `bun:"table:statements"`

	ID          string `bun:",pk,type:uuid"`
	CompanyID   string `bun:",notnull"`
	BankID      string
	BankName    string
	BranchID    string
	AccountID   string `bun:",notnull"`
	AccountType string
	Currency    string
	Source      string
	StartDate   time.Time       `bun:",nullzero"`
	EndDate     time.Time       `bun:",nullzero"`
	Balance     decimal.Decimal `bun:"type:numeric(15,2)"`
	BalanceDate time.Time       `bun:",nullzero"`
	ArchiveURI  string
	ImportedAt  time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

type transactionRow struct {
	bun.BaseModel `bun:"table:bank_transactions"`

	ID           string          `bun:",pk,type:uuid"`
	CompanyID    string          `bun:",notnull,unique:company_account_fitid"`
	AccountID    string          `bun:",notnull,unique:company_account_fitid"`
	FITID        string          `bun:"fitid,notnull,unique:company_account_fitid"`
	StatementID  string          `bun:",type:uuid"`
	Amount       decimal.Decimal `bun:"type:numeric(15,2),notnull"`
	Direction    string          `bun:",notnull"`
	PostedAt     time.Time
	Memo         string `bun:"type:text"`
	Name         string
	TrnType      string
	CheckNum     string
	TypeID       string    `bun:",nullzero"`
	GroupID      string    `bun:",nullzero"`
	CommitmentID string    `bun:",nullzero"`
	RuleID       string    `bun:",nullzero"`
	ClassifiedAt time.Time `bun:",nullzero"`
}

func newTransactionRow(companyID, accountID, statementID string, tx models.BankTransaction) transactionRow {
	row := transactionRow{
		CompanyID:   companyID,
		AccountID:   accountID,
		FITID:       tx.FITID,
		StatementID: statementID,
		Amount:      tx.Amount,
		Direction:   string(tx.Direction),
		PostedAt:    tx.PostedAt,
		Memo:        tx.Memo,
		Name:        tx.Name,
		TrnType:     tx.TrnType,
		CheckNum:    tx.CheckNum,
	}
	if tx.Classification != nil {
		row.TypeID = tx.Classification.TypeID
		row.GroupID = tx.Classification.GroupID
		row.CommitmentID = tx.Classification.CommitmentID
	}
	return row
}

func (r transactionRow) candidate() classify.Candidate {
	tx := models.BankTransaction{
		FITID:     r.FITID,
		Amount:    r.Amount,
		Direction: models.Direction(r.Direction),
		PostedAt:  r.PostedAt,
		Memo:      r.Memo,
		Name:      r.Name,
		TrnType:   r.TrnType,
		CheckNum:  r.CheckNum,
	}
	if r.CommitmentID != "" {
		tx.Classification = &models.Target{TypeID: r.TypeID, GroupID: r.GroupID, CommitmentID: r.CommitmentID}
	}
	return classify.Candidate{ID: r.ID, Transaction: tx}
}

type invoiceRow struct {
	bun.BaseModel `bun:"table:invoices"`

	ID                string `bun:",pk,type:uuid"`
	CompanyID         string `bun:",notnull,unique:company_access_key"`
	AccessKey         string `bun:",notnull,unique:company_access_key"`
	Number            string
	Series            string
	IssuedAtRaw       string
	IssuedAt          time.Time `bun:",nullzero"`
	NatureOfOperation string
	CFOP              string        `bun:"cfop"`
	Emitter           models.Party  `bun:"embed:emitter_"`
	Recipient         models.Party  `bun:"embed:recipient_"`
	Totals            models.Totals `bun:"type:jsonb"`
	FaturaNumber      string
	FaturaOriginal    decimal.Decimal `bun:"type:numeric(15,2)"`
	FaturaDiscount    decimal.Decimal `bun:"type:numeric(15,2)"`
	FaturaNet         decimal.Decimal `bun:"type:numeric(15,2)"`
	RawXML            string          `bun:"raw_xml,type:text"`
	ArchiveURI        string
	ImportedAt        time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

type invoiceItemRow struct {
	bun.BaseModel `bun:"table:invoice_items"`

	ID          string `bun:",pk,type:uuid"`
	InvoiceID   string `bun:",type:uuid,notnull"`
	Position    int
	Code        string
	Description string
	NCM         string `bun:"ncm"`
	CFOP        string `bun:"cfop"`
	Unit        string
	Quantity    decimal.Decimal `bun:"type:numeric(15,4)"`
	UnitValue   decimal.Decimal `bun:"type:numeric(15,4)"`
	TotalValue  decimal.Decimal `bun:"type:numeric(15,2)"`
}

type invoiceTaxRow struct {
	bun.BaseModel `bun:"table:invoice_taxes"`

	ID      string `bun:",pk,type:uuid"`
	ItemID  string `bun:",type:uuid,notnull"`
	Kind    string
	Variant string
	Base    decimal.Decimal `bun:"type:numeric(15,2)"`
	Rate    decimal.Decimal `bun:"type:numeric(7,4)"`
	Value   decimal.Decimal `bun:"type:numeric(15,2)"`
}

type installmentRow struct {
	bun.BaseModel `bun:"table:invoice_installments"`

	ID         string `bun:",pk,type:uuid"`
	InvoiceID  string `bun:",type:uuid,notnull"`
	Number     string
	DueDateRaw string
	DueDate    time.Time       `bun:",nullzero"`
	Amount     decimal.Decimal `bun:"type:numeric(15,2)"`
}

type ruleRow struct {
	bun.BaseModel `bun:"table:classification_rules"`

	ID           string `bun:",pk"`
	CompanyID    string `bun:",pk"`
	Name         string
	Contains     string `bun:",notnull"`
	TypeID       string
	GroupID      string
	CommitmentID string `bun:",notnull"`
	Position     int
	CreatedAt    time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

func (r ruleRow) rule() models.ClassificationRule {
	return models.ClassificationRule{
		ID:        r.ID,
		CompanyID: r.CompanyID,
		Name:      r.Name,
		Contains:  r.Contains,
		Target:    models.Target{TypeID: r.TypeID, GroupID: r.GroupID, CommitmentID: r.CommitmentID},
		Position:  r.Position,
		CreatedAt: r.CreatedAt,
	}
}

// Hierarchy rows are keyed by (id, company_id); universal rows store an
// empty company id.
type typeRow struct {
	bun.BaseModel `bun:"table:commitment_types"`

	ID        string `bun:",pk"`
	CompanyID string `bun:",pk"`
	Name      string `bun:",notnull"`
	Universal bool   `bun:",notnull,default:false"`
}

type groupRow struct {
	bun.BaseModel `bun:"table:commitment_groups"`

	ID        string `bun:",pk"`
	CompanyID string `bun:",pk"`
	Name      string `bun:",notnull"`
	TypeID    string `bun:",notnull"`
	Universal bool   `bun:",notnull,default:false"`
}

type commitmentRow struct {
	bun.BaseModel `bun:"table:commitments"`

	ID        string `bun:",pk"`
	CompanyID string `bun:",pk"`
	Name      string `bun:",notnull"`
	GroupID   string `bun:",notnull"`
	TypeID    string `bun:",notnull"`
	Universal bool   `bun:",notnull,default:false"`
}

var tableModels = []interface{}{
	(*statementRow)(nil),
	(*transactionRow)(nil),
	(*invoiceRow)(nil),
	(*invoiceItemRow)(nil),
	(*invoiceTaxRow)(nil),
	(*installmentRow)(nil),
	(*ruleRow)(nil),
	(*typeRow)(nil),
	(*groupRow)(nil),
	(*commitmentRow)(nil),
}
