package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source formats a statement can be parsed from.
const (
	SourceOFX            = "ofx"
	SourceItauExtratoTXT = "itau_extrato_txt"
	SourceItauExtratoXLS = "itau_extrato_xls"
	SourceItauFaturaXLS  = "itau_fatura_xls"
	SourceItauFaturaCSV  = "itau_fatura_csv"
)

// Account types as found in OFX ACCTTYPE.
const (
	AccountChecking   = "CHECKING"
	AccountSavings    = "SAVINGS"
	AccountCreditCard = "CREDITCARD"
)

// BankStatement is the result of parsing one statement file.
type BankStatement struct {
	BankID      string          `json:"bank_id"`
	BankName    string          `json:"bank_name"`
	BranchID    string          `json:"branch_id,omitempty"`
	AccountID   string          `json:"account_id"`
	AccountType string          `json:"account_type"`
	Currency    string          `json:"currency"`
	StartDate   time.Time       `json:"start_date"`
	EndDate     time.Time       `json:"end_date"`
	Balance     decimal.Decimal `json:"balance"`
	BalanceDate time.Time       `json:"balance_date"`
	Source      string          `json:"source"`

	Transactions []BankTransaction `json:"transactions"`
}

// Totals returns the sum of credits and debits in the statement.
func (s *BankStatement) Totals() (credits, debits decimal.Decimal) {
	for _, t := range s.Transactions {
		if t.Direction == Debit {
			debits = debits.Add(t.Amount)
			continue
		}
		credits = credits.Add(t.Amount)
	}
	return credits, debits
}
