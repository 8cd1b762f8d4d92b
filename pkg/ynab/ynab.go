// Package ynab pushes parsed statements into a YNAB budget.
package ynab

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/brunomvsouza/ynab.go"
	"github.com/brunomvsouza/ynab.go/api"
	"github.com/brunomvsouza/ynab.go/api/transaction"
	"github.com/charmbracelet/log"

	"github.com/yurifrl/finbr/pkg/models"
)

// YNAB field limits.
const (
	maxPayeeLen = 50
	maxMemoLen  = 200
)

type transactionService interface {
	GetTransactionsByAccount(budgetID, accountID string) ([]*transaction.Transaction, error)
	CreateTransactions(budgetID string, payloads []transaction.PayloadTransaction) error
}

// service adapts the client's transaction service.
type service struct {
	original *transaction.Service
}

func (s service) GetTransactionsByAccount(budgetID, accountID string) ([]*transaction.Transaction, error) {
	return s.original.GetTransactionsByAccount(budgetID, accountID, nil)
}

func (s service) CreateTransactions(budgetID string, payloads []transaction.PayloadTransaction) error {
	if len(payloads) == 0 {
		return nil
	}
	_, err := s.original.CreateTransactions(budgetID, payloads)
	return err
}

// Destination writes statement transactions into one budget. The statement's
// FITID travels as the first CSV field of the memo so reruns can tell which
// transactions already exist.
type Destination struct {
	logger   *log.Logger
	txs      transactionService
	budgetID string
	accounts map[string]string
}

func New(logger *log.Logger, token, budgetID string, accounts map[string]string) *Destination {
	client := ynab.NewClient(token)
	return newDestination(logger, service{original: client.Transaction()}, budgetID, accounts)
}

func newDestination(logger *log.Logger, txs transactionService, budgetID string, accounts map[string]string) *Destination {
	return &Destination{logger: logger, txs: txs, budgetID: budgetID, accounts: accounts}
}

func (d *Destination) Name() string {
	return "ynab"
}

// AccountID maps a statement account to a budget account. Unmapped accounts
// are assumed to already be YNAB ids.
func (d *Destination) AccountID(statementAccount string) string {
	if id, ok := d.accounts[statementAccount]; ok {
		return id
	}
	return statementAccount
}

func (d *Destination) ExistingIDs(ctx context.Context, stmt *models.BankStatement) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	accountID := d.AccountID(stmt.AccountID)
	if accountID == "" {
		return nil, fmt.Errorf("statement has no account id")
	}

	remote, err := d.txs.GetTransactionsByAccount(d.budgetID, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ynab transactions: %w", err)
	}

	ids := make(map[string]bool, len(remote))
	for _, tx := range remote {
		if id := CustomID(tx); id != "" {
			ids[id] = true
		}
	}
	d.logger.Debug("fetched ynab transactions", "account_id", accountID, "total", len(remote), "tagged", len(ids))
	return ids, nil
}

func (d *Destination) Create(ctx context.Context, stmt *models.BankStatement, txs []models.BankTransaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	accountID := d.AccountID(stmt.AccountID)
	payloads, err := Payloads(accountID, txs)
	if err != nil {
		return 0, err
	}
	if err := d.txs.CreateTransactions(d.budgetID, payloads); err != nil {
		return 0, fmt.Errorf("failed to create transactions: %w", err)
	}
	d.logger.Info("created transactions", "count", len(payloads), "account_id", accountID)
	return len(payloads), nil
}

// CustomID returns the first CSV field of the memo, or "" when the memo was not
// written by Payloads.
func CustomID(tx *transaction.Transaction) string {
	if tx == nil || tx.Memo == nil {
		return ""
	}
	memo := strings.Trim(*tx.Memo, "\"")
	if idx := strings.Index(memo, ","); idx > 0 {
		return memo[:idx]
	}
	return ""
}

// Payloads converts statement transactions into YNAB payloads. Amounts are
// signed milliunits.
func Payloads(accountID string, txs []models.BankTransaction) ([]transaction.PayloadTransaction, error) {
	out := make([]transaction.PayloadTransaction, 0, len(txs))
	for _, tx := range txs {
		date, err := api.DateFromString(tx.PostedAt.Format("2006-01-02"))
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.FITID, err)
		}

		payee := truncate(tx.Description(), maxPayeeLen)
		memo := truncate(tx.FITID+","+tx.Description(), maxMemoLen)
		out = append(out, transaction.PayloadTransaction{
			AccountID: accountID,
			Date:      date,
			Amount:    tx.SignedAmount().Shift(3).IntPart(),
			Cleared:   transaction.ClearingStatusCleared,
			Approved:  true,
			PayeeName: &payee,
			Memo:      &memo,
		})
	}
	return out, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
