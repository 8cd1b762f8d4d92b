package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/finbr/pkg/classify"
	"github.com/yurifrl/finbr/pkg/parser"
	"github.com/yurifrl/finbr/pkg/store"
	"github.com/yurifrl/finbr/pkg/store/memory"
)

const statementOFX = `OFXHEADER:100
<OFX>
<BANKACCTFROM><BANKID>0341<ACCTID>56789-0</BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN><TRNTYPE>DEBIT<DTPOSTED>20240301<TRNAMT>-3200.00<FITID>F1<MEMO>ALUGUEL IMOBILIARIA CENTRO</STMTTRN>
<STMTTRN><TRNTYPE>DEBIT<DTPOSTED>20240302<TRNAMT>-89.90<FITID>F2<MEMO>PADARIA DA ESQUINA</STMTTRN>
<STMTTRN><TRNTYPE>DEBIT<DTPOSTED>20240303<TRNAMT>-450.00<FITID>F3<MEMO>CONDOMINIO EDIFICIO</STMTTRN>
</BANKTRANLIST>
</OFX>
`

const invoiceXML = `<NFe><infNFe Id="NFe35240312345678000195550010000012341000012345">
<ide><nNF>1234</nNF></ide><emit><CNPJ>12345678000195</CNPJ></emit><dest><CNPJ>98765432000110</CNPJ></dest>
</infNFe></NFe>`

const seedYAML = `
company_id: acme
types:
  - id: desp
    name: Despesas
    groups:
      - id: adm
        name: Administrativas
        commitments:
          - id: aluguel
            name: Aluguel
          - id: condominio
            name: Condomínio
rules:
  - id: r-aluguel
    contains: imobiliaria
    commitment: aluguel
  - id: r-cond
    contains: CONDOMINIO
    commitment: condominio
`

type recordingArchiver struct {
	keys []string
}

func (a *recordingArchiver) Put(_ context.Context, companyID, kind, filename string, _ []byte) (string, error) {
	key := companyID + "/" + kind + "/" + filepath.Base(filename)
	a.keys = append(a.keys, key)
	return "mem://" + key, nil
}

func newProcessor(s *memory.Store, arch *recordingArchiver) *Processor {
	return NewProcessor(log.New(io.Discard), s, arch, Options{
		HierarchyTTL: time.Minute,
		Classify:     classify.Options{LargeBatchThreshold: 10, ProgressEvery: 1},
	})
}

func seed(t *testing.T, p *Processor) {
	t.Helper()
	sd, err := store.ParseSeed([]byte(seedYAML))
	require.NoError(t, err)
	require.NoError(t, p.Seed(context.Background(), sd))
}

func TestImportStatement(t *testing.T) {
	s := memory.New()
	arch := &recordingArchiver{}
	p := newProcessor(s, arch)
	ctx := context.Background()

	res, err := p.ImportStatement(ctx, "acme", "marco.ofx", []byte(statementOFX), false)
	require.NoError(t, err)
	assert.Len(t, res.Statement.Transactions, 3)
	assert.Zero(t, res.Inserted)
	assert.Empty(t, arch.keys, "preview does not archive")

	res, err = p.ImportStatement(ctx, "acme", "marco.ofx", []byte(statementOFX), true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, "mem://acme/statements/marco.ofx", res.ArchiveURI)

	res, err = p.ImportStatement(ctx, "acme", "marco.ofx", []byte(statementOFX), true)
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)

	_, err = p.ImportStatement(ctx, "", "marco.ofx", []byte(statementOFX), true)
	assert.ErrorContains(t, err, "company id")

	_, err = p.ImportStatement(ctx, "acme", "x.ofx", []byte("<OFX></OFX>"), true)
	assert.True(t, errors.Is(err, parser.ErrInvalidOFX))
}

func TestImportInvoice(t *testing.T) {
	s := memory.New()
	p := newProcessor(s, &recordingArchiver{})
	ctx := context.Background()

	res, err := p.ImportInvoice(ctx, "acme", "nota.xml", []byte(invoiceXML), true)
	require.NoError(t, err)
	assert.True(t, res.Created)
	stored, ok := s.Invoice(res.ID)
	require.True(t, ok)
	assert.Equal(t, "35240312345678000195550010000012341000012345", stored.AccessKey)

	again, err := p.ImportInvoice(ctx, "acme", "nota.xml", []byte(invoiceXML), true)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, res.ID, again.ID)

	_, err = p.ImportInvoice(ctx, "acme", "nota.xml", []byte("<html/>"), true)
	assert.True(t, errors.Is(err, parser.ErrInvalidNFe))
}

func TestProcessDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marco.ofx"), []byte(statementOFX), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nota.xml"), []byte(invoiceXML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# notes"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "old"), 0o755))

	s := memory.New()
	arch := &recordingArchiver{}
	imported, err := newProcessor(s, arch).ProcessDirectory(context.Background(), "acme", dir)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.ElementsMatch(t, []string{"acme/statements/marco.ofx", "acme/invoices/nota.xml"}, arch.keys)

	_, err = newProcessor(s, arch).ProcessDirectory(context.Background(), "acme", filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	s := memory.New()
	p := newProcessor(s, &recordingArchiver{})
	ctx := context.Background()
	seed(t, p)

	_, err := p.ImportStatement(ctx, "acme", "marco.ofx", []byte(statementOFX), true)
	require.NoError(t, err)

	dry, err := p.Classify(ctx, "acme", true)
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Equal(t, 2, dry.Classified())
	assert.Zero(t, dry.Writes)

	report, err := p.Classify(ctx, "acme", false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Classified())
	assert.Equal(t, 1, report.Skipped())
	assert.Equal(t, 2, report.Writes)

	byID := map[string]classify.Result{}
	for _, r := range report.Results {
		byID[r.TransactionID] = r
	}
	txs, err := s.ListTransactions(ctx, "acme", false)
	require.NoError(t, err)
	for _, c := range txs {
		switch c.Transaction.FITID {
		case "F1":
			assert.Equal(t, "r-aluguel", byID[c.ID].RuleID)
			assert.Equal(t, "aluguel", c.Transaction.Classification.CommitmentID)
		case "F2":
			assert.Equal(t, classify.ReasonNoMatch, byID[c.ID].Reason)
		case "F3":
			assert.Equal(t, "condominio", c.Transaction.Classification.CommitmentID)
		}
	}

	rerun, err := p.Classify(ctx, "acme", false)
	require.NoError(t, err)
	assert.Zero(t, rerun.Writes)
	assert.Equal(t, 3, rerun.Skipped())
}

func TestClassifyIgnoresRulesWithUnusableTarget(t *testing.T) {
	s := memory.New()
	p := newProcessor(s, &recordingArchiver{})
	ctx := context.Background()
	seed(t, p)

	rules, err := s.ListRules(ctx, "acme")
	require.NoError(t, err)
	broken := rules[0]
	broken.ID = "r-broken"
	broken.Position = -1
	broken.Contains = "PADARIA"
	broken.Target.CommitmentID = "deleted"
	s.AddRule(broken)

	_, err = p.ImportStatement(ctx, "acme", "marco.ofx", []byte(statementOFX), true)
	require.NoError(t, err)

	report, err := p.Classify(ctx, "acme", false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Classified(), "the PADARIA rule points nowhere and is dropped")
}

func TestSeedInvalidatesHierarchy(t *testing.T) {
	s := memory.New()
	p := newProcessor(s, &recordingArchiver{})
	ctx := context.Background()

	types, err := p.Hierarchy("acme").ListTypes(ctx)
	require.NoError(t, err)
	assert.Empty(t, types)

	seed(t, p)

	types, err = p.Hierarchy("acme").ListTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, types, 1)
}
