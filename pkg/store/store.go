// Package store persists parsed documents, classification rules and the
// commitment hierarchy.
package store

import (
	"context"
	"errors"

	"github.com/yurifrl/finbr/pkg/classify"
	"github.com/yurifrl/finbr/pkg/hierarchy"
	"github.com/yurifrl/finbr/pkg/models"
)

var ErrNotFound = errors.New("not found")

// Store is implemented by the Postgres store and by store/memory.
type Store interface {
	hierarchy.Source
	classify.Writer

	// SaveStatement inserts the transactions not yet stored for the
	// statement's account and returns how many were added.
	SaveStatement(ctx context.Context, companyID string, stmt *models.BankStatement, archiveURI string) (int, error)
	ExistingFITIDs(ctx context.Context, companyID, accountID string) (map[string]bool, error)

	// SaveInvoice stores the invoice with its items, taxes and installments.
	// An invoice already stored under the same access key is left untouched
	// and created is false.
	SaveInvoice(ctx context.Context, companyID string, inv *models.Invoice, archiveURI string) (id string, created bool, err error)

	ListRules(ctx context.Context, companyID string) ([]models.ClassificationRule, error)
	ListTransactions(ctx context.Context, companyID string, onlyUnclassified bool) ([]classify.Candidate, error)

	Seed(ctx context.Context, seed *Seed) error
}
