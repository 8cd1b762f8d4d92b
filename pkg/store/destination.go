package store

import (
	"context"

	"github.com/yurifrl/finbr/pkg/models"
)

// Destination writes imported statements into a Store for one company.
type Destination struct {
	store      Store
	companyID  string
	archiveURI string
}

func NewDestination(s Store, companyID string) *Destination {
	return &Destination{store: s, companyID: companyID}
}

// SetArchiveURI records uri on the statement rows written by the next Create.
func (d *Destination) SetArchiveURI(uri string) {
	d.archiveURI = uri
}

func (d *Destination) Name() string {
	return "postgres"
}

func (d *Destination) ExistingIDs(ctx context.Context, stmt *models.BankStatement) (map[string]bool, error) {
	return d.store.ExistingFITIDs(ctx, d.companyID, stmt.AccountID)
}

func (d *Destination) Create(ctx context.Context, stmt *models.BankStatement, txs []models.BankTransaction) (int, error) {
	subset := *stmt
	subset.Transactions = txs
	return d.store.SaveStatement(ctx, d.companyID, &subset, d.archiveURI)
}
