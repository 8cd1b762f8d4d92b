// Package memory is an in-memory store.Store used by tests and dry runs. It is
// safe for concurrent use and hands out copies so callers cannot mutate its
// state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yurifrl/finbr/pkg/classify"
	"github.com/yurifrl/finbr/pkg/models"
	"github.com/yurifrl/finbr/pkg/store"
)

type storedTransaction struct {
	id        string
	companyID string
	accountID string
	seq       int
	tx        models.BankTransaction
	ruleID    string
}

type storedInvoice struct {
	id         string
	companyID  string
	archiveURI string
	invoice    models.Invoice
}

// ownedKey scopes a seeded id by its owner; universal rows have an empty
// owner.
type ownedKey struct {
	owner string
	id    string
}

type Store struct {
	mu           sync.RWMutex
	seq          int
	transactions map[string]*storedTransaction
	invoices     map[string]*storedInvoice
	rules        []models.ClassificationRule
	types        map[ownedKey]models.CommitmentType
	groups       map[ownedKey]models.CommitmentGroup
	commitments  map[ownedKey]models.Commitment
}

func New() *Store {
	return &Store{
		transactions: make(map[string]*storedTransaction),
		invoices:     make(map[string]*storedInvoice),
		types:        make(map[ownedKey]models.CommitmentType),
		groups:       make(map[ownedKey]models.CommitmentGroup),
		commitments:  make(map[ownedKey]models.Commitment),
	}
}

func (s *Store) SaveStatement(_ context.Context, companyID string, stmt *models.BankStatement, _ string) (int, error) {
	if stmt.AccountID == "" {
		return 0, fmt.Errorf("statement has no account id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.fitids(companyID, stmt.AccountID)
	inserted := 0
	for _, tx := range stmt.Transactions {
		if existing[tx.FITID] {
			continue
		}
		existing[tx.FITID] = true
		s.seq++
		stored := &storedTransaction{
			id:        uuid.NewString(),
			companyID: companyID,
			accountID: stmt.AccountID,
			seq:       s.seq,
			tx:        copyTransaction(tx),
		}
		s.transactions[stored.id] = stored
		inserted++
	}
	return inserted, nil
}

func (s *Store) ExistingFITIDs(_ context.Context, companyID, accountID string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitids(companyID, accountID), nil
}

func (s *Store) fitids(companyID, accountID string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range s.transactions {
		if t.companyID == companyID && t.accountID == accountID {
			out[t.tx.FITID] = true
		}
	}
	return out
}

func (s *Store) SaveInvoice(_ context.Context, companyID string, inv *models.Invoice, archiveURI string) (string, bool, error) {
	if inv.AccessKey == "" {
		return "", false, fmt.Errorf("invoice has no access key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stored := range s.invoices {
		if stored.companyID == companyID && stored.invoice.AccessKey == inv.AccessKey {
			return stored.id, false, nil
		}
	}

	stored := &storedInvoice{
		id:         uuid.NewString(),
		companyID:  companyID,
		archiveURI: archiveURI,
		invoice:    *inv,
	}
	s.invoices[stored.id] = stored
	return stored.id, true, nil
}

// Invoice returns a stored invoice by id.
func (s *Store) Invoice(id string) (models.Invoice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.invoices[id]
	if !ok {
		return models.Invoice{}, false
	}
	return stored.invoice, true
}

func (s *Store) ListRules(_ context.Context, companyID string) ([]models.ClassificationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ClassificationRule
	for _, r := range s.rules {
		if r.CompanyID == companyID {
			out = append(out, r)
		}
	}
	store.SortRules(out)
	return out, nil
}

// AddRule stores a rule, stamping its creation time.
func (s *Store) AddRule(rule models.ClassificationRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	s.rules = append(s.rules, rule)
}

func (s *Store) ListTransactions(_ context.Context, companyID string, onlyUnclassified bool) ([]classify.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stored []*storedTransaction
	for _, t := range s.transactions {
		if t.companyID != companyID {
			continue
		}
		if onlyUnclassified && t.tx.Classified() {
			continue
		}
		stored = append(stored, t)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].seq < stored[j].seq })

	out := make([]classify.Candidate, 0, len(stored))
	for _, t := range stored {
		out = append(out, classify.Candidate{ID: t.id, Transaction: copyTransaction(t.tx)})
	}
	return out, nil
}

func (s *Store) Classify(_ context.Context, transactionID string, rule models.ClassificationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[transactionID]
	if !ok || t.tx.Classified() {
		return fmt.Errorf("%w: unclassified transaction %s", store.ErrNotFound, transactionID)
	}
	target := rule.Target
	t.tx.Classification = &target
	t.ruleID = rule.ID
	return nil
}

func (s *Store) Types(_ context.Context, companyID string) ([]models.CommitmentType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.CommitmentType
	for _, t := range s.types {
		if t.VisibleTo(companyID) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Groups(_ context.Context, companyID string) ([]models.CommitmentGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.CommitmentGroup
	for _, g := range s.groups {
		if g.VisibleTo(companyID) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Commitments(_ context.Context, companyID string) ([]models.Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Commitment
	for _, c := range s.commitments {
		if c.VisibleTo(companyID) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Seed(_ context.Context, seed *store.Seed) error {
	types, groups, commitments := seed.Hierarchy()

	s.mu.Lock()
	for _, t := range types {
		s.types[ownedKey{t.CompanyID, t.ID}] = t
	}
	for _, g := range groups {
		s.groups[ownedKey{g.CompanyID, g.ID}] = g
	}
	for _, c := range commitments {
		s.commitments[ownedKey{c.CompanyID, c.ID}] = c
	}
	s.mu.Unlock()

	for _, r := range seed.ClassificationRules() {
		s.replaceRule(r)
	}
	return nil
}

func (s *Store) replaceRule(rule models.ClassificationRule) {
	s.mu.Lock()
	for i, r := range s.rules {
		if r.CompanyID == rule.CompanyID && r.ID == rule.ID {
			rule.CreatedAt = r.CreatedAt
			s.rules[i] = rule
			s.mu.Unlock()
			return
		}
	}
	s.mu.Unlock()
	s.AddRule(rule)
}

func copyTransaction(tx models.BankTransaction) models.BankTransaction {
	if tx.Classification != nil {
		target := *tx.Classification
		tx.Classification = &target
	}
	return tx
}

var _ store.Store = (*Store)(nil)
