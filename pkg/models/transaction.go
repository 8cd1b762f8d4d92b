package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction tells whether money left (debit) or entered (credit) the account.
type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// DirectionOf returns the direction implied by the sign of a raw statement amount.
// Zero counts as a credit.
func DirectionOf(raw decimal.Decimal) Direction {
	if raw.IsNegative() {
		return Debit
	}
	return Credit
}

// BankTransaction is a single statement entry. Amount is always the magnitude;
// Direction carries the sign recovered from the source file.
type BankTransaction struct {
	FITID     string          `json:"fitid"`
	Amount    decimal.Decimal `json:"amount"`
	Direction Direction       `json:"type"`
	PostedAt  time.Time       `json:"date"`
	Memo      string          `json:"memo,omitempty"`
	Name      string          `json:"name,omitempty"`
	TrnType   string          `json:"trn_type,omitempty"`
	CheckNum  string          `json:"check_num,omitempty"`

	// Classification is nil while the transaction is unclassified.
	Classification *Target `json:"classification,omitempty"`
}

// NewBankTransaction builds a transaction from the signed source amount.
func NewBankTransaction(fitid string, raw decimal.Decimal, postedAt time.Time) BankTransaction {
	return BankTransaction{
		FITID:     fitid,
		Amount:    raw.Abs(),
		Direction: DirectionOf(raw),
		PostedAt:  postedAt,
	}
}

// Description is the text classification rules are matched against.
func (t BankTransaction) Description() string {
	if t.Memo != "" {
		return t.Memo
	}
	return t.Name
}

// SignedAmount re-applies the direction to the stored magnitude.
func (t BankTransaction) SignedAmount() decimal.Decimal {
	if t.Direction == Debit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Classified reports whether a commitment has already been assigned.
func (t BankTransaction) Classified() bool {
	return t.Classification != nil && t.Classification.CommitmentID != ""
}
