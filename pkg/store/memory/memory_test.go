package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/finbr/pkg/models"
	"github.com/yurifrl/finbr/pkg/store"
)

const seedYAML = `
company_id: acme
types:
  - id: desp
    name: Despesas
    groups:
      - id: adm
        name: Administrativas
        commitments:
          - id: tarifas
            name: Tarifas bancárias
          - id: cartao
            name: Cartão
rules:
  - id: r-visa
    name: Cartão VISA
    contains: VISA
    commitment: cartao
  - id: r-tarifa
    contains: TARIFA
    commitment: tarifas
`

func statement(fitids ...string) *models.BankStatement {
	stmt := &models.BankStatement{AccountID: "123", BankID: "341"}
	for i, id := range fitids {
		tx := models.NewBankTransaction(id, decimal.NewFromInt(int64(-10*(i+1))), time.Date(2024, 3, i+1, 0, 0, 0, 0, time.Local))
		tx.Memo = "PAGAMENTO VISA " + id
		stmt.Transactions = append(stmt.Transactions, tx)
	}
	return stmt
}

func TestSaveStatementSkipsKnownFITIDs(t *testing.T) {
	s := New()
	ctx := context.Background()

	n, err := s.SaveStatement(ctx, "acme", statement("a", "b"), "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.SaveStatement(ctx, "acme", statement("a", "b", "c"), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ids, err := s.ExistingFITIDs(ctx, "acme", "123")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, ids)

	other, err := s.ExistingFITIDs(ctx, "globex", "123")
	require.NoError(t, err)
	assert.Empty(t, other)

	_, err = s.SaveStatement(ctx, "acme", &models.BankStatement{}, "")
	assert.Error(t, err)
}

func TestClassifyFlow(t *testing.T) {
	s := New()
	ctx := context.Background()

	seed, err := store.ParseSeed([]byte(seedYAML))
	require.NoError(t, err)
	require.NoError(t, s.Seed(ctx, seed))

	rules, err := s.ListRules(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "r-visa", rules[0].ID)
	assert.Equal(t, models.Target{TypeID: "desp", GroupID: "adm", CommitmentID: "cartao"}, rules[0].Target)

	_, err = s.SaveStatement(ctx, "acme", statement("a", "b"), "")
	require.NoError(t, err)

	candidates, err := s.ListTransactions(ctx, "acme", true)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "a", candidates[0].Transaction.FITID)

	require.NoError(t, s.Classify(ctx, candidates[0].ID, rules[0]))
	err = s.Classify(ctx, candidates[0].ID, rules[1])
	assert.True(t, errors.Is(err, store.ErrNotFound), "second classification must not overwrite")

	remaining, err := s.ListTransactions(ctx, "acme", true)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "b", remaining[0].Transaction.FITID)

	all, err := s.ListTransactions(ctx, "acme", false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[0].Transaction.Classification)
	assert.Equal(t, "cartao", all[0].Transaction.Classification.CommitmentID)

	all[0].Transaction.Classification.CommitmentID = "mutated"
	again, _ := s.ListTransactions(ctx, "acme", false)
	assert.Equal(t, "cartao", again[0].Transaction.Classification.CommitmentID)
}

func TestSaveInvoiceIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	inv := &models.Invoice{AccessKey: "3524", Number: "1"}

	id, created, err := s.SaveInvoice(ctx, "acme", inv, "gs://bucket/x.xml")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.SaveInvoice(ctx, "acme", inv, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	stored, ok := s.Invoice(id)
	require.True(t, ok)
	assert.Equal(t, "1", stored.Number)

	_, _, err = s.SaveInvoice(ctx, "acme", &models.Invoice{}, "")
	assert.Error(t, err)
}

func TestHierarchyVisibility(t *testing.T) {
	s := New()
	ctx := context.Background()

	universal, err := store.ParseSeed([]byte("universal: true\ntypes:\n  - id: u\n    name: Universal\n"))
	require.NoError(t, err)
	require.NoError(t, s.Seed(ctx, universal))

	own, err := store.ParseSeed([]byte("company_id: globex\ntypes:\n  - id: g\n    name: Globex\n"))
	require.NoError(t, err)
	require.NoError(t, s.Seed(ctx, own))

	types, err := s.Types(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, "u", types[0].ID)

	types, err = s.Types(ctx, "globex")
	require.NoError(t, err)
	assert.Len(t, types, 2)
}

func TestSeedIsScopedByCompany(t *testing.T) {
	s := New()
	ctx := context.Background()

	acme, err := store.ParseSeed([]byte(seedYAML))
	require.NoError(t, err)
	require.NoError(t, s.Seed(ctx, acme))

	globex, err := store.ParseSeed([]byte(strings.Replace(seedYAML, "company_id: acme", "company_id: globex", 1)))
	require.NoError(t, err)
	require.NoError(t, s.Seed(ctx, globex))

	for _, company := range []string{"acme", "globex"} {
		rules, err := s.ListRules(ctx, company)
		require.NoError(t, err)
		require.Len(t, rules, 2, company)
		assert.Equal(t, company, rules[0].CompanyID)

		types, err := s.Types(ctx, company)
		require.NoError(t, err)
		require.Len(t, types, 1, company)
		assert.Equal(t, company, types[0].CompanyID)

		leaves, err := s.Commitments(ctx, company)
		require.NoError(t, err)
		assert.Len(t, leaves, 2, company)
	}

	// reseeding one company leaves the other alone
	renamed, err := store.ParseSeed([]byte(strings.Replace(seedYAML, "contains: VISA", "contains: MASTERCARD", 1)))
	require.NoError(t, err)
	require.NoError(t, s.Seed(ctx, renamed))

	rules, err := s.ListRules(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "MASTERCARD", rules[0].Contains)

	rules, err = s.ListRules(ctx, "globex")
	require.NoError(t, err)
	assert.Equal(t, "VISA", rules[0].Contains)
}

func TestDestination(t *testing.T) {
	s := New()
	ctx := context.Background()
	dest := store.NewDestination(s, "acme")

	stmt := statement("a", "b")
	n, err := dest.Create(ctx, stmt, stmt.Transactions[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ids, err := dest.ExistingIDs(ctx, stmt)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true}, ids)
	assert.Len(t, stmt.Transactions, 2, "the caller's statement is left as is")
}
